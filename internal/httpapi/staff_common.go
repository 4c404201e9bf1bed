package httpapi

import (
	"net/http"
	"strings"
	"time"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/gateway"
	"accessgov.org/internal/obs"
)

// splitResource peels "/{prefix}/{resource}/{rest...}" into the resource
// name and the remaining id segment (empty when listing).
func splitResource(path, prefix string) (resource, rest string) {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	resource = parts[0]
	if len(parts) == 2 {
		rest = strings.Trim(parts[1], "/")
	}
	return resource, rest
}

// serveList applies querystring filters under the facet's scope.
func (a *API) serveList(w http.ResponseWriter, r *http.Request, sc directory.Scope, fields []string,
	list func(directory.Query) (any, error)) {
	filters, clean := gateway.ParseFilters(r.URL.Query(), fields)
	if !clean {
		emptyList(w)
		return
	}
	items, err := list(directory.Query{Scope: sc, Filters: filters})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeList(w, items)
}

// serveGet answers a single-record lookup; out-of-scope records were
// already reduced to ErrNotFound by the caller's lookup closure.
func (a *API) serveGet(w http.ResponseWriter, r *http.Request, id string, get func(string) (any, error)) {
	if err := gateway.CheckID(id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	item, err := get(id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// assocVisible reports whether the association sits inside the facet's
// hierarchical reach.
func (a *API) assocVisible(r *http.Request, facet directory.Facet, assocID string) bool {
	switch facet.Role {
	case directory.RoleManager:
		return true
	case directory.RoleAdministrator:
		if facet.Department == nil {
			return false
		}
		assoc, err := a.svc.Store().Associations().GetByID(r.Context(), assocID)
		return err == nil && assoc.DepartmentID == facet.Department.ID
	case directory.RoleGrantee:
		return facet.Grantee.AssociationID == assocID
	default:
		return false
	}
}

// --- grant mutation payload ---

type grantPatchPayload struct {
	Grantee   *string `json:"Grantee"`
	Message   *string `json:"Message"`
	Decline   *bool   `json:"Decline"`
	StartDate *string `json:"StartDate"`
	EndDate   *string `json:"EndDate"`
}

// toUpdate converts the wire patch. An empty date string clears the field;
// an absent field leaves it alone.
func (p grantPatchPayload) toUpdate() (directory.GrantUpdate, error) {
	upd := directory.GrantUpdate{
		GranteeID: p.Grantee,
		Message:   p.Message,
		Decline:   p.Decline,
	}
	parse := func(raw *string) (**time.Time, error) {
		if raw == nil {
			return nil, nil
		}
		if strings.TrimSpace(*raw) == "" {
			var cleared *time.Time
			return &cleared, nil
		}
		t, err := time.Parse("2006-01-02", *raw)
		if err != nil {
			return nil, err
		}
		tp := &t
		return &tp, nil
	}
	var err error
	if upd.StartDate, err = parse(p.StartDate); err != nil {
		return upd, err
	}
	if upd.EndDate, err = parse(p.EndDate); err != nil {
		return upd, err
	}
	return upd, nil
}

// handleGrantUpdate is the shared staff mutation path for grants.
func (a *API) handleGrantUpdate(w http.ResponseWriter, r *http.Request, facet directory.Facet, id string) {
	if err := gateway.CheckID(id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	var payload grantPatchPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd, err := payload.toUpdate()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "dates must be YYYY-MM-DD")
		return
	}
	grant, err := a.svc.UpdateGrant(r.Context(), facet, id, upd)
	if err != nil {
		obs.ObserveGrantDecision("rejected")
		handleDirectoryError(w, r, err)
		return
	}
	outcome := "updated"
	if upd.Decline != nil && *upd.Decline {
		outcome = "declined"
	} else if upd.StartDate != nil {
		outcome = "activated"
	}
	obs.ObserveGrantDecision(outcome)
	a.record(r, facet, "Grant", grant.ID, http.StatusOK, outcome)
	writeJSON(w, http.StatusOK, grant)
}

// --- permission routing shared by admin and manager ---

var permissionKinds = map[string]directory.PermissionKind{
	"department":  directory.PermissionDepartment,
	"association": directory.PermissionAssociation,
	"service":     directory.PermissionService,
}

type permissionPayload struct {
	Target      string   `json:"Target"`
	Name        string   `json:"Name"`
	Description string   `json:"Description"`
	Citizens    []string `json:"Citizens"`
	StartTime   string   `json:"StartTime"`
	EndTime     string   `json:"EndTime"`
}

func parsePermissionTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

// handlePermissions serves /{role}/permission/{kind}/[{id}/].
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request, facet directory.Facet, rest string) {
	kindName, id := splitResource("/"+rest, "/")
	kind, ok := permissionKinds[kindName]
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	sc := a.permissionListScope(facet)
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, sc, directory.PermissionFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Permissions().List(r.Context(), kind, q)
		})
	case id == "" && r.Method == http.MethodPost:
		var payload permissionPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		start, err := parsePermissionTime(payload.StartTime)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "StartTime must be RFC 3339")
			return
		}
		end, err := parsePermissionTime(payload.EndTime)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "EndTime must be RFC 3339")
			return
		}
		perm, err := a.svc.CreatePermission(r.Context(), facet, directory.PermissionInput{
			Kind:        kind,
			TargetID:    payload.Target,
			Name:        payload.Name,
			Description: payload.Description,
			CitizenIDs:  payload.Citizens,
			StartTime:   start,
			EndTime:     end,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Permission", perm.ID, http.StatusCreated, "created")
		writeJSON(w, http.StatusCreated, perm)
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			visible, err := a.permissionVisible(r, kind, sc, id)
			if err != nil {
				return nil, err
			}
			if !visible {
				return nil, directory.ErrNotFound
			}
			return a.svc.Store().Permissions().GetByID(r.Context(), kind, id)
		})
	case id != "" && r.Method == http.MethodDelete:
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		visible, err := a.permissionVisible(r, kind, sc, id)
		if err != nil || !visible {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if err := a.svc.Store().Permissions().Delete(r.Context(), kind, id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Permission", id, http.StatusNoContent, "deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// permissionListScope: the manager sees all permissions, an administrator
// only those targeting their department's subtree.
func (a *API) permissionListScope(facet directory.Facet) directory.Scope {
	if facet.Role == directory.RoleManager {
		return directory.ScopeEverything()
	}
	if facet.Department != nil {
		return directory.UnderDepartment(facet.Department.ID)
	}
	return directory.ScopeNothing()
}

// permissionVisible scans the facet-scoped listing for the id; an
// invisible permission is indistinguishable from an absent one.
func (a *API) permissionVisible(r *http.Request, kind directory.PermissionKind, sc directory.Scope, id string) (bool, error) {
	perms, err := a.svc.Store().Permissions().List(r.Context(), kind, directory.Scoped(sc))
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.ID == id {
			return true, nil
		}
	}
	return false, nil
}
