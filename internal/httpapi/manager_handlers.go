package httpapi

import (
	"net/http"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/gateway"
	"accessgov.org/internal/scope"
)

// handleManager serves the site manager surface. The manager sees the
// whole directory and additionally owns citizens, administrators,
// departments, cron history and the audit trail.
func (a *API) handleManager(w http.ResponseWriter, r *http.Request) {
	facet, ok := a.requireFacet(w, r, directory.RoleManager)
	if !ok {
		return
	}
	sc := scope.ForFacet(facet)
	resource, id := splitResource(r.URL.Path, "/manager/")
	switch resource {
	case "register":
		a.managerRegister(w, r, facet, id)
	case "citizen":
		a.managerCitizens(w, r, facet, id)
	case "administrator":
		a.managerAdministrators(w, r, facet, sc, id)
	case "department":
		a.managerDepartments(w, r, facet, sc, id)
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
	case "cron":
		a.managerCrons(w, r, sc, id)
	case "log":
		a.managerLogs(w, r, sc, id)
	case "permission":
		a.handlePermissions(w, r, facet, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// managerRegister promotes a citizen to site manager. The store keeps the
// post singular; a second registration answers 403.
func (a *API) managerRegister(w http.ResponseWriter, r *http.Request, facet directory.Facet, id string) {
	if id != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var payload staffPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mgr, err := a.svc.CreateSiteManager(r.Context(), payload.input())
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	a.record(r, facet, "SiteManager", mgr.ID, http.StatusCreated, "created")
	writeJSON(w, http.StatusCreated, mgr)
}

type citizenPatch struct {
	UserName      *string `json:"UserName"`
	FirstName     *string `json:"FirstName"`
	SecondName    *string `json:"SecondName"`
	Surname       *string `json:"Surname"`
	Email         *string `json:"Email"`
	EmailVerified *bool   `json:"EmailVerified"`
	Active        *bool   `json:"Active"`
}

func (a *API) managerCitizens(w http.ResponseWriter, r *http.Request, facet directory.Facet, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, directory.ScopeEverything(), directory.CitizenFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Citizens().List(r.Context(), q)
		})
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			return a.svc.Store().Citizens().GetByID(r.Context(), id)
		})
	case id != "" && r.Method == http.MethodPatch:
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		var patch citizenPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		citizen, err := a.svc.Store().Citizens().Update(r.Context(), id, directory.CitizenUpdate{
			UserName:      patch.UserName,
			FirstName:     patch.FirstName,
			SecondName:    patch.SecondName,
			Surname:       patch.Surname,
			Email:         patch.Email,
			EmailVerified: patch.EmailVerified,
			Active:        patch.Active,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Citizen", citizen.ID, http.StatusOK, "updated")
		writeJSON(w, http.StatusOK, citizen)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

type administratorPayload struct {
	staffPayload
	GranteeLimit int `json:"GranteeLimit"`
}

type administratorPatch struct {
	staffPatch
	GranteeLimit *int `json:"GranteeLimit"`
}

func (a *API) managerAdministrators(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, sc, directory.AdministratorFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Administrators().List(r.Context(), q)
		})
	case id == "" && r.Method == http.MethodPost:
		var payload administratorPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		admin, err := a.svc.CreateAdministrator(r.Context(), directory.AdministratorInput{
			StaffInput:   payload.staffPayload.input(),
			GranteeLimit: payload.GranteeLimit,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Administrator", admin.ID, http.StatusCreated, "created")
		writeJSON(w, http.StatusCreated, admin)
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			return a.svc.Store().Administrators().GetByID(r.Context(), id)
		})
	case id != "" && r.Method == http.MethodPatch:
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		var patch administratorPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		admin, err := a.svc.Store().Administrators().Update(r.Context(), id, directory.AdministratorUpdate{
			StaffUpdate: directory.StaffUpdate{
				UserName:    patch.UserName,
				FirstEmail:  patch.FirstEmail,
				SecondEmail: patch.SecondEmail,
			},
			GranteeLimit: patch.GranteeLimit,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Administrator", admin.ID, http.StatusOK, "updated")
		writeJSON(w, http.StatusOK, admin)
	case id != "" && r.Method == http.MethodDelete:
		a.deleteResource(w, r, facet, "Administrator", id, func(id string) error {
			return a.svc.Store().Administrators().Delete(r.Context(), id)
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) managerDepartments(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, sc, directory.DepartmentFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Departments().List(r.Context(), q)
		})
	case id == "" && r.Method == http.MethodPost:
		var payload departmentPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		dept, err := a.svc.CreateDepartment(r.Context(), payload.input())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Department", dept.ID, http.StatusCreated, "created")
		writeJSON(w, http.StatusCreated, dept)
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			return a.svc.Store().Departments().GetByID(r.Context(), id)
		})
	case id != "" && r.Method == http.MethodPatch:
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		var patch departmentPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		dept, err := a.svc.Store().Departments().Update(r.Context(), id, directory.DepartmentUpdate{
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
	case id != "" && r.Method == http.MethodDelete:
		a.deleteResource(w, r, facet, "Department", id, func(id string) error {
			return a.svc.Store().Departments().Delete(r.Context(), id)
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) managerCrons(w http.ResponseWriter, r *http.Request, sc directory.Scope, id string) {
	if r.Method != http.MethodGet || id != "" {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.svc.Store().Crons().List(r.Context(), directory.Scoped(sc))
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeList(w, items)
}

var logRoles = map[string]directory.Role{
	"citizen":       directory.RoleCitizen,
	"grantee":       directory.RoleGrantee,
	"administrator": directory.RoleAdministrator,
	"manager":       directory.RoleManager,
}

// managerLogs serves /manager/log/{role}/ with the usual querystring
// filters on top.
func (a *API) managerLogs(w http.ResponseWriter, r *http.Request, sc directory.Scope, rest string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roleName, extra := splitResource("/"+rest, "/")
	role, ok := logRoles[roleName]
	if !ok || extra != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	a.serveList(w, r, sc, directory.SystemLogFields, func(q directory.Query) (any, error) {
		return a.svc.Store().Logs().List(r.Context(), role, q)
	})
}

// deleteResource answers a delete with the uniform no-content shape.
func (a *API) deleteResource(w http.ResponseWriter, r *http.Request, facet directory.Facet, object, id string, del func(string) error) {
	if err := gateway.CheckID(id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	if err := del(id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	a.record(r, facet, object, id, http.StatusNoContent, "deleted")
	w.WriteHeader(http.StatusNoContent)
}
