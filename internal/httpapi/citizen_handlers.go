package httpapi

import (
	"net/http"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/gateway"
)

// emptyList keeps list responses uniform; a poisoned filter answers with
// zero records, never with the unfiltered set.
func emptyList(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, []any{})
}

func (a *API) handleCitizenServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	facet, ok := a.requireFacet(w, r, directory.RoleCitizen)
	if !ok {
		return
	}
	if id, hasID := resourceID(r.URL.Path, "/service/"); hasID {
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		svc, err := a.engine.GetService(r.Context(), facet.Citizen, id, clientIP(r))
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "PublicService", svc.ID, http.StatusOK, "read")
		writeJSON(w, http.StatusOK, svc)
		return
	}
	filters, clean := gateway.ParseFilters(r.URL.Query(), directory.PublicServiceFields)
	if !clean {
		emptyList(w)
		return
	}
	services, err := a.engine.ListServices(r.Context(), facet.Citizen, filters, clientIP(r))
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeList(w, services)
}

type createRequestPayload struct {
	PublicService string `json:"PublicService"`
	Subject       string `json:"Subject"`
	Message       string `json:"Message"`
}

type requestPatch struct {
	Subject *string `json:"Subject"`
	Message *string `json:"Message"`
}

func (a *API) handleCitizenRequests(w http.ResponseWriter, r *http.Request) {
	facet, ok := a.requireFacet(w, r, directory.RoleCitizen)
	if !ok {
		return
	}
	if id, hasID := resourceID(r.URL.Path, "/request/"); hasID {
		a.citizenOwnRequest(w, r, facet, id)
		return
	}
	switch r.Method {
	case http.MethodGet:
		filters, clean := gateway.ParseFilters(r.URL.Query(), directory.RequestFields)
		if !clean {
			emptyList(w)
			return
		}
		filters = append(filters, directory.Filter{Field: "Citizen", Values: []string{facet.Citizen.ID}})
		items, err := a.svc.Store().Requests().List(r.Context(), directory.Query{
			Scope:   directory.ScopeEverything(),
			Filters: filters,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeList(w, items)
	case http.MethodPost:
		var payload createRequestPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req, err := a.svc.CreateRequest(r.Context(), facet.Citizen, directory.RequestInput{
			PublicServiceID: payload.PublicService,
			Subject:         payload.Subject,
			Message:         payload.Message,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Request", req.ID, http.StatusCreated, "created")
		writeJSON(w, http.StatusCreated, req)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// citizenOwnRequest serves one request the caller filed: read it, amend
// the subject or message, or withdraw it. Someone else's request id is
// indistinguishable from a missing one.
func (a *API) citizenOwnRequest(w http.ResponseWriter, r *http.Request, facet directory.Facet, id string) {
	if err := gateway.CheckID(id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	req, err := a.svc.Store().Requests().GetByID(r.Context(), id)
	if err != nil || req.CitizenID != facet.Citizen.ID {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, req)
	case http.MethodPatch:
		var patch requestPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.svc.Store().Requests().Update(r.Context(), id, directory.RequestUpdate{
			Subject: patch.Subject,
			Message: patch.Message,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Request", updated.ID, http.StatusOK, "updated")
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		// Deleting the request takes the paired grant with it.
		if err := a.svc.Store().Requests().Delete(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Request", id, http.StatusNoContent, "withdrawn")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleCitizenGrants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	facet, ok := a.requireFacet(w, r, directory.RoleCitizen)
	if !ok {
		return
	}
	if id, hasID := resourceID(r.URL.Path, "/grant/"); hasID {
		if err := gateway.CheckID(id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		grant, err := a.svc.Store().Grants().GetByID(r.Context(), id)
		if err != nil {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		req, err := a.svc.Store().Requests().GetByID(r.Context(), grant.RequestID)
		if err != nil || req.CitizenID != facet.Citizen.ID {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeJSON(w, http.StatusOK, grant)
		return
	}
	// Grants are reached through the citizen's own requests.
	requests, err := a.svc.Store().Requests().List(r.Context(), directory.Query{
		Scope:   directory.ScopeEverything(),
		Filters: []directory.Filter{{Field: "Citizen", Values: []string{facet.Citizen.ID}}},
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	if len(requests) == 0 {
		emptyList(w)
		return
	}
	reqIDs := make([]string, 0, len(requests))
	for _, req := range requests {
		reqIDs = append(reqIDs, req.ID)
	}
	filters, clean := gateway.ParseFilters(r.URL.Query(), directory.GrantFields)
	if !clean {
		emptyList(w)
		return
	}
	filters = append(filters, directory.Filter{Field: "Request", Values: reqIDs})
	grants, err := a.svc.Store().Grants().List(r.Context(), directory.Query{
		Scope:   directory.ScopeEverything(),
		Filters: filters,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeList(w, grants)
}

func (a *API) handleCitizenAssociations(w http.ResponseWriter, r *http.Request) {
	a.readOnlyDirectory(w, r, "/association/", directory.AssociationFields,
		func(q directory.Query) (any, error) {
			return a.svc.Store().Associations().List(r.Context(), q)
		},
		func(id string) (any, error) {
			return a.svc.Store().Associations().GetByID(r.Context(), id)
		})
}

func (a *API) handleCitizenDepartments(w http.ResponseWriter, r *http.Request) {
	a.readOnlyDirectory(w, r, "/department/", directory.DepartmentFields,
		func(q directory.Query) (any, error) {
			return a.svc.Store().Departments().List(r.Context(), q)
		},
		func(id string) (any, error) {
			return a.svc.Store().Departments().GetByID(r.Context(), id)
		})
}

// readOnlyDirectory serves the public organizational directory: any
// authenticated citizen may browse departments and associations.
func (a *API) readOnlyDirectory(w http.ResponseWriter, r *http.Request, prefix string, fields []string,
	list func(directory.Query) (any, error), get func(string) (any, error)) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireFacet(w, r, directory.RoleCitizen); !ok {
		return
	}
	if id, hasID := resourceID(r.URL.Path, prefix); hasID {
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
		return
	}
	filters, clean := gateway.ParseFilters(r.URL.Query(), fields)
	if !clean {
		emptyList(w)
		return
	}
	items, err := list(directory.Query{Scope: directory.ScopeEverything(), Filters: filters})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeList(w, items)
}

type profilePatch struct {
	FirstName  *string `json:"FirstName"`
	SecondName *string `json:"SecondName"`
	Surname    *string `json:"Surname"`
	Email      *string `json:"Email"`
}

// handleCitizenProfile serves the caller's own record at /citizen/me/.
func (a *API) handleCitizenProfile(w http.ResponseWriter, r *http.Request) {
	facet, ok := a.requireFacet(w, r, directory.RoleCitizen)
	if !ok {
		return
	}
	id, hasID := resourceID(r.URL.Path, "/citizen/")
	if !hasID || id != "me" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, facet.Citizen)
	case http.MethodPatch:
		var patch profilePatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.svc.Store().Citizens().Update(r.Context(), facet.Citizen.ID, directory.CitizenUpdate{
			FirstName:  patch.FirstName,
			SecondName: patch.SecondName,
			Surname:    patch.Surname,
			Email:      patch.Email,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.record(r, facet, "Citizen", updated.ID, http.StatusOK, "updated")
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}
