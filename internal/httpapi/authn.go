package httpapi

import (
	"context"
	"net/http"
	"strings"

	"accessgov.org/internal/auth"
	"accessgov.org/internal/directory"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/",
}

var publicPrefixes = []string{
	"/api/auth/",
	"/api/manager/login",
	"/api/admin/login",
	"/api/grantee/login",
}

type subjectKey struct{}

// withAuth verifies the access token and stores the citizen subject. Role
// facets are resolved per handler; the token only proves the citizen.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication failed")
			return
		}
		claims, err := auth.ParseAndValidate(token, auth.TokenTypeAccess)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication failed")
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(subjectKey{}).(string); ok {
		return v
	}
	return ""
}

// requireFacet resolves the acting facet for the role the route demands.
// Missing subject, missing facet, and inactive citizen all collapse into
// the same 401.
func (a *API) requireFacet(w http.ResponseWriter, r *http.Request, role directory.Role) (directory.Facet, bool) {
	subject := subjectFromContext(r.Context())
	if subject == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return directory.Facet{}, false
	}
	facet, err := a.svc.ResolveFacet(r.Context(), subject, role)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return directory.Facet{}, false
	}
	return facet, true
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
