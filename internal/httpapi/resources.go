package httpapi

import (
	"net/http"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/gateway"
	"accessgov.org/internal/scope"
)

// The admin and manager surfaces share these resource handlers; the facet
// carries the difference in reach.

func (a *API) requireWrite(w http.ResponseWriter, r *http.Request, facet directory.Facet) bool {
	if !scope.CanWrite(facet) {
		methodNotAllowed(w, r, http.MethodGet)
		return false
	}
	return true
}

func (a *API) staffAssociations(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, sc, directory.AssociationFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Associations().List(r.Context(), q)
		})
	case id == "" && r.Method == http.MethodPost:
		if !a.requireWrite(w, r, facet) {
			return
		}
		var payload associationPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		in, err := payload.input()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assoc, err := a.svc.CreateAssociation(r.Context(), facet, in)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Association", assoc.ID, http.StatusCreated, "created")
		writeJSON(w, http.StatusCreated, assoc)
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			assoc, err := a.svc.Store().Associations().GetByID(r.Context(), id)
			if err != nil {
				return nil, err
			}
			if !a.assocVisible(r, facet, assoc.ID) {
				return nil, directory.ErrNotFound
			}
			return assoc, nil
		})
	case id != "" && r.Method == http.MethodPatch:
		if !a.requireWrite(w, r, facet) {
			return
		}
		if !a.checkAssocAccess(w, r, facet, id) {
			return
		}
		var patch associationPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assoc, err := a.svc.Store().Associations().Update(r.Context(), id, directory.AssociationUpdate{
			Title:   patch.Title,
			Email:   patch.Email,
			Website: patch.Website,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Association", assoc.ID, http.StatusOK, "updated")
		writeJSON(w, http.StatusOK, assoc)
	case id != "" && r.Method == http.MethodDelete:
		if !a.requireWrite(w, r, facet) {
			return
		}
		if !a.checkAssocAccess(w, r, facet, id) {
			return
		}
		if err := a.svc.Store().Associations().Delete(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Association", id, http.StatusNoContent, "deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	}
}

// checkAssocAccess folds id validity and scope visibility into the
// uniform not-found answer.
func (a *API) checkAssocAccess(w http.ResponseWriter, r *http.Request, facet directory.Facet, id string) bool {
	if err := gateway.CheckID(id); err != nil {
		handleDirectoryError(w, r, err)
		return false
	}
	if !a.assocVisible(r, facet, id) {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return false
	}
	return true
}

func (a *API) staffServices(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, sc, directory.PublicServiceFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Services().List(r.Context(), q)
		})
	case id == "" && r.Method == http.MethodPost:
		if !a.requireWrite(w, r, facet) {
			return
		}
		var payload servicePayload
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		in, err := payload.input()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		svc, err := a.svc.CreateService(r.Context(), facet, in)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "PublicService", svc.ID, http.StatusCreated, "created")
		writeJSON(w, http.StatusCreated, svc)
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			return a.visibleService(r, facet, id)
		})
	case id != "" && r.Method == http.MethodPatch:
		if !a.requireWrite(w, r, facet) {
			return
		}
		a.staffServiceUpdate(w, r, facet, id)
	case id != "" && r.Method == http.MethodDelete:
		if !a.requireWrite(w, r, facet) {
			return
		}
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		if _, err := a.visibleService(r, facet, id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		if err := a.svc.Store().Services().Delete(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "PublicService", id, http.StatusNoContent, "deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) visibleService(r *http.Request, facet directory.Facet, id string) (*directory.PublicService, error) {
	svc, err := a.svc.Store().Services().GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !a.assocVisible(r, facet, svc.AssociationID) {
		return nil, directory.ErrNotFound
	}
	return svc, nil
}

func (a *API) staffServiceUpdate(w http.ResponseWriter, r *http.Request, facet directory.Facet, id string) {
	if err := gateway.CheckID(id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	svc, err := a.visibleService(r, facet, id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	var patch servicePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// A replaced grantee set keeps the association invariant.
	for _, gid := range patch.Grantee {
		grantee, err := a.svc.Store().Grantees().GetByID(r.Context(), gid)
		if err != nil || grantee.AssociationID != svc.AssociationID {
			writeError(w, r, http.StatusBadRequest, "grantee does not belong to the service association")
			return
		}
	}
	updated, err := a.svc.Store().Services().Update(r.Context(), id, directory.ServiceUpdate{
		Title:       patch.Title,
		Description: patch.Description,
		Email:       patch.Email,
		URL:         patch.URL,
		Restricted:  patch.Restricted,
		Visibility:  patch.Visibility,
		GranteeIDs:  patch.Grantee,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	a.record(r, facet, "PublicService", updated.ID, http.StatusOK, "updated")
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) staffGrantees(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		a.serveList(w, r, sc, directory.GranteeFields, func(q directory.Query) (any, error) {
			return a.svc.Store().Grantees().List(r.Context(), q)
		})
	case id == "" && r.Method == http.MethodPost:
		if !a.requireWrite(w, r, facet) {
			return
		}
		var payload granteePayload
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		grantee, err := a.svc.CreateGrantee(r.Context(), facet, payload.input())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Grantee", grantee.ID, http.StatusCreated, "created")
		writeJSON(w, http.StatusCreated, grantee)
	case id != "" && r.Method == http.MethodGet:
		a.serveGet(w, r, id, func(id string) (any, error) {
			return a.visibleGrantee(r, facet, id)
		})
	case id != "" && r.Method == http.MethodPatch:
		if !a.requireWrite(w, r, facet) {
			return
		}
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		if _, err := a.visibleGrantee(r, facet, id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		var patch staffPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		grantee, err := a.svc.Store().Grantees().Update(r.Context(), id, directory.StaffUpdate{
			UserName:    patch.UserName,
			FirstEmail:  patch.FirstEmail,
			SecondEmail: patch.SecondEmail,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Grantee", grantee.ID, http.StatusOK, "updated")
		writeJSON(w, http.StatusOK, grantee)
	case id != "" && r.Method == http.MethodDelete:
		if !a.requireWrite(w, r, facet) {
			return
		}
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		if _, err := a.visibleGrantee(r, facet, id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		if err := a.svc.Store().Grantees().Delete(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Grantee", id, http.StatusNoContent, "deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) visibleGrantee(r *http.Request, facet directory.Facet, id string) (*directory.Grantee, error) {
	grantee, err := a.svc.Store().Grantees().GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !a.assocVisible(r, facet, grantee.AssociationID) {
		return nil, directory.ErrNotFound
	}
	return grantee, nil
}

func (a *API) staffRequests(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
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

func (a *API) staffGrants(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
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
		if !a.requireWrite(w, r, facet) {
			return
		}
		a.handleGrantUpdate(w, r, facet, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) staffSessions(w http.ResponseWriter, r *http.Request, facet directory.Facet, sc directory.Scope, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if id != "" {
		a.serveGet(w, r, id, func(id string) (any, error) {
			sess, err := a.visibleSession(r, facet, id)
			if err != nil {
				return nil, err
			}
			return a.sessionView(sess), nil
		})
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

// visibleSession walks session -> service -> association and applies the
// facet's hierarchy before returning the record.
func (a *API) visibleSession(r *http.Request, facet directory.Facet, id string) (*directory.ServiceSession, error) {
	sess, err := a.svc.Store().Sessions().GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	svc, err := a.svc.Store().Services().GetByID(r.Context(), sess.ServiceID)
	if err != nil || !a.assocVisible(r, facet, svc.AssociationID) {
		return nil, directory.ErrNotFound
	}
	return sess, nil
}

// sessionView is the wire shape of a ServiceSession: the stored record
// plus the expiry state derived from the configured TTL.
type sessionView struct {
	*directory.ServiceSession
	Expired bool `json:"Expired"`
}

func (a *API) sessionView(sess *directory.ServiceSession) sessionView {
	return sessionView{ServiceSession: sess, Expired: a.svc.SessionExpired(sess)}
}

func (a *API) sessionViews(items []*directory.ServiceSession) []sessionView {
	out := make([]sessionView, 0, len(items))
	for _, sess := range items {
		out = append(out, a.sessionView(sess))
	}
	return out
}
