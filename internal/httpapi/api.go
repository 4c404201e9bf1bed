// Package httpapi is the HTTP edge: routing, authentication, role
// gating, and translation between wire payloads and the directory's
// domain operations.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"accessgov.org/internal/audit"
	"accessgov.org/internal/directory"
	"accessgov.org/internal/obs"
	"accessgov.org/internal/scope"
)

// ReadyProbe reports whether the service can take traffic. A nil DB means
// the service runs storeless (in-memory) and is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *directory.Service
	engine     *scope.Engine
	recorder   *audit.Recorder
	readyProbe ReadyProbe
	version    string
}

// New wires the routes. recorder may be nil when access-log ingestion is
// not configured; events then reach the log stream only.
func New(svc *directory.Service, engine *scope.Engine, recorder *audit.Recorder, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		engine:     engine,
		recorder:   recorder,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// Public auth surface.
	a.mux.HandleFunc("/api/auth/register/", a.handleRegister)
	a.mux.HandleFunc("/api/auth/login/", a.handleCitizenLogin)
	a.mux.HandleFunc("/api/auth/refresh/", a.handleRefresh)
	a.mux.HandleFunc("/api/manager/login/", a.staffLogin(directory.RoleManager))
	a.mux.HandleFunc("/api/admin/login/", a.staffLogin(directory.RoleAdministrator))
	a.mux.HandleFunc("/api/grantee/login/", a.staffLogin(directory.RoleGrantee))

	// Citizen surface.
	a.mux.HandleFunc("/service/", a.handleCitizenServices)
	a.mux.HandleFunc("/request/", a.handleCitizenRequests)
	a.mux.HandleFunc("/grant/", a.handleCitizenGrants)
	a.mux.HandleFunc("/association/", a.handleCitizenAssociations)
	a.mux.HandleFunc("/department/", a.handleCitizenDepartments)
	a.mux.HandleFunc("/citizen/", a.handleCitizenProfile)

	// Staff surfaces, stratified by role prefix.
	a.mux.HandleFunc("/grantee/", a.handleGrantee)
	a.mux.HandleFunc("/admin/", a.handleAdmin)
	a.mux.HandleFunc("/manager/", a.handleManager)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "accessgov-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// record emits one access-log event for the acting facet.
func (a *API) record(r *http.Request, facet directory.Facet, object, recordID string, status int, message string) {
	if a.recorder == nil {
		return
	}
	ev := audit.Event{
		Role:       facet.Role,
		Method:     r.Method,
		Object:     object,
		RecordID:   recordID,
		StatusCode: status,
		Message:    message,
		IPAddress:  clientIP(r),
		At:         a.svc.Now(),
	}
	if facet.Citizen != nil {
		ev.CitizenID = facet.Citizen.ID
	}
	switch facet.Role {
	case directory.RoleGrantee:
		if facet.Grantee != nil {
			ev.ActorName = facet.Grantee.GranteeUserName
		}
	case directory.RoleAdministrator:
		if facet.Administrator != nil {
			ev.ActorName = facet.Administrator.AdministratorUserName
		}
	case directory.RoleManager:
		if facet.SiteManager != nil {
			ev.ActorName = facet.SiteManager.ManagerUserName
		}
	}
	a.recorder.Record(ev)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeList answers a collection. A nil slice from the store marshals as
// null; the wire contract is always a JSON array.
func writeList(w http.ResponseWriter, items any) {
	if v := reflect.ValueOf(items); v.Kind() == reflect.Slice && v.IsNil() {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDirectoryError maps domain sentinels onto status codes. Validation
// detail passes through; everything opaque stays opaque.
func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, directory.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, "permission denied")
	case errors.Is(err, directory.ErrMethodNotAllowed):
		methodNotAllowed(w, r)
	case errors.Is(err, directory.ErrAuthenticationFailed):
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// resourceID splits "/{prefix}/{id}/" and reports whether an id segment is
// present. Deeper paths are rejected by the caller.
func resourceID(path, prefix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", false
	}
	return rest, true
}
