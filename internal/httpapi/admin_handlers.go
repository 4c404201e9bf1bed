package httpapi

import (
	"net/http"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/scope"
)

// handleAdmin serves the administrator work surface. An administrator
// without a department has no hierarchical reach at all: every method on
// the department-scoped resources answers 405 until a site manager
// assigns them a department.
func (a *API) handleAdmin(w http.ResponseWriter, r *http.Request) {
	facet, ok := a.requireFacet(w, r, directory.RoleAdministrator)
	if !ok {
		return
	}
	sc := scope.ForFacet(facet)
	resource, id := splitResource(r.URL.Path, "/admin/")
	switch resource {
	case "department":
		a.adminDepartment(w, r, facet, id)
	case "association", "service", "grantee", "request", "grant", "session":
		if facet.Department == nil {
			methodNotAllowed(w, r)
			return
		}
		switch resource {
		case "association":
			a.staffAssociations(w, r, facet, sc, id)
		case "service":
			a.staffServices(w, r, facet, sc, id)
		case "grantee":
			a.staffGrantees(w, r, facet, sc, id)
		case "request":
			a.staffRequests(w, r, facet, sc, id)
		case "grant":
			a.staffGrants(w, r, facet, sc, id)
		case "session":
			a.staffSessions(w, r, facet, sc, id)
		}
	case "permission":
		a.handlePermissions(w, r, facet, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// adminDepartment serves the administrator's own department. There is at
// most one; ids are not part of the path.
func (a *API) adminDepartment(w http.ResponseWriter, r *http.Request, facet directory.Facet, id string) {
	if id != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if facet.Department == nil {
			emptyList(w)
			return
		}
		writeJSON(w, http.StatusOK, facet.Department)
	case http.MethodPatch:
		if facet.Department == nil {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		var patch departmentPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		dept, err := a.svc.Store().Departments().Update(r.Context(), facet.Department.ID, directory.DepartmentUpdate{
			Title:       patch.Title,
			Description: patch.Description,
			Email:       patch.Email,
			Telephone:   patch.Telephone,
			Website:     patch.Website,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Department", dept.ID, http.StatusOK, "updated")
		writeJSON(w, http.StatusOK, dept)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}
