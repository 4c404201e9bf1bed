package httpapi

import (
	"net/http"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/scope"
)

// handleGrantee serves the grantee work surface: everything under the
// grantee's association.
func (a *API) handleGrantee(w http.ResponseWriter, r *http.Request) {
	facet, ok := a.requireFacet(w, r, directory.RoleGrantee)
	if !ok {
		return
	}
	sc := scope.ForFacet(facet)
	resource, id := splitResource(r.URL.Path, "/grantee/")
	switch resource {
	case "service":
		a.granteeServices(w, r, facet, sc, id)
	case "request":
		a.granteeRequests(w, r, facet, sc, id)
	case "grant":
		a.granteeGrants(w, r, facet, sc, id)
	case "session":
		a.granteeSessions(w, r, sc, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) granteeServices(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if id != "" {
		a.serveGet(w, r, id, func(id string) (any, error) {
			svc, err := a.svc.Store().Services().GetByID(r.Context(), id)
			if err != nil {
				return nil, err
			}
			if !a.assocVisible(r, facet, svc.AssociationID) {
				return nil, directory.ErrNotFound
			}
			return svc, nil
		})
		return
	}
	a.serveList(w, r, sc, directory.PublicServiceFields, func(q directory.Query) (any, error) {
		return a.svc.Store().Services().List(r.Context(), q)
	})
}

func (a *API) granteeRequests(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if id != "" {
		a.serveGet(w, r, id, func(id string) (any, error) {
			req, err := a.svc.Store().Requests().GetByID(r.Context(), id)
			if err != nil {
				return nil, err
			}
			svc, err := a.svc.Store().Services().GetByID(r.Context(), req.PublicServiceID)
			if err != nil || !a.assocVisible(r, facet, svc.AssociationID) {
				return nil, directory.ErrNotFound
			}
			return req, nil
		})
		return
	}
	a.serveList(w, r, sc, directory.RequestFields, func(q directory.Query) (any, error) {
		return a.svc.Store().Requests().List(r.Context(), q)
	})
}

func (a *API) granteeGrants(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, sc, directory.GrantFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Grants().List(r.Context(), q)
		})
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			return a.visibleGrant(r, facet, id)
		})
	case id != "" && r.Method == http.MethodPatch:
		a.handleGrantUpdate(w, r, facet, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) granteeSessions(w http.ResponseWriter, r *http.Request, sc directory.Scope, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if id != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	a.serveList(w, r, sc, directory.SessionFields, func(q directory.Query) (any, error) {
		items, err := a.svc.Store().Sessions().List(r.Context(), q)
		if err != nil {
			return nil, err
		}
		return a.sessionViews(items), nil
	})
}

// visibleGrant walks grant -> request -> service and applies the facet's
// hierarchy before returning the record.
func (a *API) visibleGrant(r *http.Request, facet directory.Facet, id string) (*directory.Grant, error) {
	grant, err := a.svc.Store().Grants().GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	req, err := a.svc.Store().Requests().GetByID(r.Context(), grant.RequestID)
	if err != nil {
		return nil, directory.ErrNotFound
	}
	svc, err := a.svc.Store().Services().GetByID(r.Context(), req.PublicServiceID)
	if err != nil || !a.assocVisible(r, facet, svc.AssociationID) {
		return nil, directory.ErrNotFound
	}
	return grant, nil
}
