package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"accessgov.org/internal/audit"
	"accessgov.org/internal/auth"
	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
	"accessgov.org/internal/scope"
	"accessgov.org/internal/store/memory"
)

var apiNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// env is one wired API over the in-memory store. Each request gets its own
// forwarded ip so the per-ip limiter never interferes.
type env struct {
	t        *testing.T
	handler  http.Handler
	svc      *directory.Service
	recorder *audit.Recorder
	reqNo    int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("ACCESSGOV_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := memory.NewStore()
	clock := func() time.Time { return apiNow }
	svc := directory.NewService(store, directory.WithClock(clock),
		directory.WithSessionTTL(time.Hour))
	engine := scope.NewEngine(store, clock)
	recorder := audit.NewRecorder(256)
	api := New(svc, engine, recorder, ReadyProbe{}, "test")
	return &env{t: t, handler: api.Handler(), svc: svc, recorder: recorder}
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	e.reqNo++
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.1.%d.%d", e.reqNo/200, e.reqNo%200))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) decode(rec *httptest.ResponseRecorder, dst any) {
	e.t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		e.t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (e *env) mustStatus(rec *httptest.ResponseRecorder, want int) {
	e.t.Helper()
	if rec.Code != want {
		e.t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func (e *env) register(name, email string) directory.Citizen {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/register/", "", map[string]any{
		"UserName":   name,
		"FirstName":  "Test",
		"Surname":    "User",
		"NationalId": "123456789012",
		"DOB":        "1990-01-01",
		"Email":      email,
		"password":   "password-1",
	})
	e.mustStatus(rec, http.StatusCreated)
	var c directory.Citizen
	e.decode(rec, &c)
	return c
}

func (e *env) login(path string, payload map[string]any) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, path, "", payload)
	e.mustStatus(rec, http.StatusOK)
	var session struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	e.decode(rec, &session)
	if session.Access == "" || session.Refresh == "" {
		e.t.Fatalf("login %s returned empty tokens", path)
	}
	return session.Access
}

// bootstrapManager seeds the singleton site manager directly; in
// production that is the seed migration's job.
func (e *env) bootstrapManager() string {
	e.t.Helper()
	citizen := e.register("root", "root@example.org")
	if _, err := e.svc.CreateSiteManager(context.Background(), directory.StaffInput{
		CitizenID: citizen.ID, UserName: "root-mgr",
		FirstEmail: "root@example.org", Password: "manager-pw",
	}); err != nil {
		e.t.Fatalf("bootstrap manager: %v", err)
	}
	return e.login("/api/manager/login/", map[string]any{
		"Email": "root@example.org", "password": "password-1",
		"ManagerUserName": "root-mgr", "ManagerPassword": "manager-pw",
	})
}

func TestHealthAndReady(t *testing.T) {
	e := newEnv(t)
	e.mustStatus(e.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)
	e.mustStatus(e.do(http.MethodGet, "/readyz", "", nil), http.StatusOK)
}

func TestAuthRegisterLoginRefresh(t *testing.T) {
	e := newEnv(t)
	e.register("alice", "alice@example.org")

	rec := e.do(http.MethodPost, "/api/auth/login/", "", map[string]any{
		"Email": "alice@example.org", "password": "password-1",
	})
	e.mustStatus(rec, http.StatusOK)
	var session struct {
		User    directory.Citizen `json:"user"`
		Access  string            `json:"access"`
		Refresh string            `json:"refresh"`
	}
	e.decode(rec, &session)
	if session.User.UserName != "alice" {
		t.Fatalf("login user = %+v", session.User)
	}

	rec = e.do(http.MethodPost, "/api/auth/refresh/", "", map[string]any{"refresh": session.Refresh})
	e.mustStatus(rec, http.StatusOK)

	// An access token is not accepted as a refresh token.
	rec = e.do(http.MethodPost, "/api/auth/refresh/", "", map[string]any{"refresh": session.Access})
	e.mustStatus(rec, http.StatusUnauthorized)

	rec = e.do(http.MethodPost, "/api/auth/login/", "", map[string]any{
		"Email": "alice@example.org", "password": "wrong",
	})
	e.mustStatus(rec, http.StatusUnauthorized)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/service/", "/request/", "/admin/association/", "/manager/citizen/"} {
		rec := e.do(http.MethodGet, path, "", nil)
		e.mustStatus(rec, http.StatusUnauthorized)
	}
}

func TestStaffLoginUniformFailure(t *testing.T) {
	e := newEnv(t)
	_ = e.bootstrapManager()

	wrongSecondary := e.do(http.MethodPost, "/api/manager/login/", "", map[string]any{
		"Email": "root@example.org", "password": "password-1",
		"ManagerUserName": "root-mgr", "ManagerPassword": "wrong",
	})
	wrongPrimary := e.do(http.MethodPost, "/api/manager/login/", "", map[string]any{
		"Email": "root@example.org", "password": "wrong",
		"ManagerUserName": "root-mgr", "ManagerPassword": "manager-pw",
	})
	e.mustStatus(wrongSecondary, http.StatusUnauthorized)
	e.mustStatus(wrongPrimary, http.StatusUnauthorized)

	var a, b map[string]any
	e.decode(wrongSecondary, &a)
	e.decode(wrongPrimary, &b)
	if a["error"] != b["error"] {
		t.Fatalf("failure bodies differ: %v vs %v", a["error"], b["error"])
	}
}

// TestAccessLifecycle walks the whole flow: the manager builds the
// hierarchy, a citizen requests access to a restricted service, the
// administrator activates the grant, and the service becomes visible.
func TestAccessLifecycle(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()

	admCitizen := e.register("adm", "adm@example.org")
	rec := e.do(http.MethodPost, "/manager/administrator/", managerToken, map[string]any{
		"Citizen": admCitizen.ID, "UserName": "adm-role",
		"FirstEmail": "adm@example.org", "password": "admin-pw1",
		"GranteeLimit": directory.MinGranteeLimit,
	})
	e.mustStatus(rec, http.StatusCreated)
	var admin directory.Administrator
	e.decode(rec, &admin)

	rec = e.do(http.MethodPost, "/manager/department/", managerToken, map[string]any{
		"Administrator": admin.ID, "Title": "Interior", "Email": "interior@example.org",
	})
	e.mustStatus(rec, http.StatusCreated)

	adminToken := e.login("/api/admin/login/", map[string]any{
		"Email": "adm@example.org", "password": "password-1",
		"AdministratorUserName": "adm-role", "AdministratorPassword": "admin-pw1",
	})

	rec = e.do(http.MethodPost, "/admin/association/", adminToken, map[string]any{
		"Title": "Civil Registry", "Email": "registry@example.org",
	})
	e.mustStatus(rec, http.StatusCreated)
	var assoc directory.Association
	e.decode(rec, &assoc)

	grtCitizen := e.register("grt", "grt@example.org")
	rec = e.do(http.MethodPost, "/admin/grantee/", adminToken, map[string]any{
		"Citizen": grtCitizen.ID, "UserName": "grt-role",
		"FirstEmail": "grt@example.org", "password": "grantee-pw",
		"Association": assoc.ID,
	})
	e.mustStatus(rec, http.StatusCreated)
	var grantee directory.Grantee
	e.decode(rec, &grantee)

	rec = e.do(http.MethodPost, "/admin/service/", adminToken, map[string]any{
		"Association": assoc.ID, "Title": "Passport Renewal",
		"MachineName": "passport_renewal", "Email": "svc@example.org",
		"URL": "https://example.org", "Restricted": true, "Visibility": true,
		"Grantee": []string{grantee.ID},
	})
	e.mustStatus(rec, http.StatusCreated)
	var restricted directory.PublicService
	e.decode(rec, &restricted)

	rec = e.do(http.MethodPost, "/admin/service/", adminToken, map[string]any{
		"Association": assoc.ID, "Title": "Address Lookup",
		"MachineName": "address_lookup", "Email": "svc@example.org",
		"URL": "https://example.org", "Restricted": false, "Visibility": true,
	})
	e.mustStatus(rec, http.StatusCreated)
	var open directory.PublicService
	e.decode(rec, &open)

	e.register("citizen", "citizen@example.org")
	citizenToken := e.login("/api/auth/login/", map[string]any{
		"Email": "citizen@example.org", "password": "password-1",
	})

	// The catalogue carries only the unrestricted service.
	rec = e.do(http.MethodGet, "/service/", citizenToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var services []directory.PublicService
	e.decode(rec, &services)
	if len(services) != 1 || services[0].ID != open.ID {
		t.Fatalf("catalogue = %+v", services)
	}

	// The restricted service answers as absent, not forbidden.
	rec = e.do(http.MethodGet, "/service/"+restricted.ID+"/", citizenToken, nil)
	e.mustStatus(rec, http.StatusNotFound)

	rec = e.do(http.MethodPost, "/request/", citizenToken, map[string]any{
		"PublicService": restricted.ID, "Subject": "Need a passport",
	})
	e.mustStatus(rec, http.StatusCreated)
	var request directory.Request
	e.decode(rec, &request)
	if request.GrantID == "" {
		t.Fatal("request created without its paired grant")
	}

	// The administrator sees the request and activates the grant.
	rec = e.do(http.MethodGet, "/admin/request/", adminToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var requests []directory.Request
	e.decode(rec, &requests)
	if len(requests) != 1 {
		t.Fatalf("admin request listing = %+v", requests)
	}

	rec = e.do(http.MethodPatch, "/admin/grant/"+request.GrantID+"/", adminToken, map[string]any{
		"Grantee":   grantee.ID,
		"StartDate": "2025-06-14",
	})
	e.mustStatus(rec, http.StatusOK)
	var grant directory.Grant
	e.decode(rec, &grant)
	if !grant.GrantedAt(apiNow) {
		t.Fatalf("grant not effective after activation: %+v", grant)
	}

	// The restricted service is now reachable and visible in the list.
	rec = e.do(http.MethodGet, "/service/"+restricted.ID+"/", citizenToken, nil)
	e.mustStatus(rec, http.StatusOK)

	rec = e.do(http.MethodGet, "/service/", citizenToken, nil)
	e.mustStatus(rec, http.StatusOK)
	e.decode(rec, &services)
	if len(services) != 2 {
		t.Fatalf("post-grant catalogue has %d services", len(services))
	}

	// The citizen sees their grant through their own surface.
	rec = e.do(http.MethodGet, "/grant/", citizenToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var grants []directory.Grant
	e.decode(rec, &grants)
	if len(grants) != 1 || grants[0].ID != request.GrantID {
		t.Fatalf("citizen grants = %+v", grants)
	}

	// The grantee works the same records through the association scope.
	granteeToken := e.login("/api/grantee/login/", map[string]any{
		"Email": "grt@example.org", "password": "password-1",
		"GranteeUserName": "grt-role", "GranteePassword": "grantee-pw",
	})
	rec = e.do(http.MethodGet, "/grantee/request/", granteeToken, nil)
	e.mustStatus(rec, http.StatusOK)
	e.decode(rec, &requests)
	if len(requests) != 1 {
		t.Fatalf("grantee request listing = %+v", requests)
	}

	// Sessions were refreshed by the restricted reads.
	rec = e.do(http.MethodGet, "/admin/session/", adminToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var sessions []directory.ServiceSession
	e.decode(rec, &sessions)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestAdminWithoutDepartment(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()

	admCitizen := e.register("bare", "bare@example.org")
	rec := e.do(http.MethodPost, "/manager/administrator/", managerToken, map[string]any{
		"Citizen": admCitizen.ID, "UserName": "bare-role",
		"FirstEmail": "bare@example.org", "password": "admin-pw1",
		"GranteeLimit": directory.MinGranteeLimit,
	})
	e.mustStatus(rec, http.StatusCreated)

	token := e.login("/api/admin/login/", map[string]any{
		"Email": "bare@example.org", "password": "password-1",
		"AdministratorUserName": "bare-role", "AdministratorPassword": "admin-pw1",
	})

	// Without a department the admin has no reach; reads and writes on
	// the scoped resources alike answer 405.
	rec = e.do(http.MethodPost, "/admin/association/", token, map[string]any{
		"Title": "Anything", "Email": "any@example.org",
	})
	e.mustStatus(rec, http.StatusMethodNotAllowed)

	for _, path := range []string{"/admin/association/", "/admin/service/", "/admin/grantee/",
		"/admin/request/", "/admin/grant/", "/admin/session/"} {
		rec = e.do(http.MethodGet, path, token, nil)
		e.mustStatus(rec, http.StatusMethodNotAllowed)
	}

	// The admin's own department view still answers; it is just empty.
	rec = e.do(http.MethodGet, "/admin/department/", token, nil)
	e.mustStatus(rec, http.StatusOK)
}

func TestManagerRegisterSecondManagerForbidden(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()

	second := e.register("usurper", "usurper@example.org")
	rec := e.do(http.MethodPost, "/manager/register/", managerToken, map[string]any{
		"Citizen": second.ID, "UserName": "usurper-role",
		"FirstEmail": "usurper@example.org", "password": "manager-pw",
	})
	e.mustStatus(rec, http.StatusForbidden)
}

func TestPermissionWindowExposesService(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()

	admCitizen := e.register("adm", "adm@example.org")
	rec := e.do(http.MethodPost, "/manager/administrator/", managerToken, map[string]any{
		"Citizen": admCitizen.ID, "UserName": "adm-role",
		"FirstEmail": "adm@example.org", "password": "admin-pw1",
		"GranteeLimit": directory.MinGranteeLimit,
	})
	e.mustStatus(rec, http.StatusCreated)
	var admin directory.Administrator
	e.decode(rec, &admin)
	rec = e.do(http.MethodPost, "/manager/department/", managerToken, map[string]any{
		"Administrator": admin.ID, "Title": "Interior", "Email": "interior@example.org",
	})
	e.mustStatus(rec, http.StatusCreated)

	rec = e.do(http.MethodPost, "/manager/association/", managerToken, map[string]any{
		"Department": nil, "Title": "Registry", "Email": "registry@example.org",
	})
	// The manager must name a department.
	e.mustStatus(rec, http.StatusBadRequest)

	var dept directory.Department
	recDept := e.do(http.MethodGet, "/manager/department/", managerToken, nil)
	e.mustStatus(recDept, http.StatusOK)
	var depts []directory.Department
	e.decode(recDept, &depts)
	dept = depts[0]

	rec = e.do(http.MethodPost, "/manager/association/", managerToken, map[string]any{
		"Department": dept.ID, "Title": "Registry", "Email": "registry@example.org",
	})
	e.mustStatus(rec, http.StatusCreated)
	var assoc directory.Association
	e.decode(rec, &assoc)

	rec = e.do(http.MethodPost, "/manager/service/", managerToken, map[string]any{
		"Association": assoc.ID, "Title": "Census Archive",
		"MachineName": "census_archive", "Email": "svc@example.org",
		"URL": "https://example.org", "Restricted": true, "Visibility": true,
	})
	e.mustStatus(rec, http.StatusCreated)
	var svc directory.PublicService
	e.decode(rec, &svc)

	viewer := e.register("viewer", "viewer@example.org")
	viewerToken := e.login("/api/auth/login/", map[string]any{
		"Email": "viewer@example.org", "password": "password-1",
	})

	rec = e.do(http.MethodGet, "/service/"+svc.ID+"/", viewerToken, nil)
	e.mustStatus(rec, http.StatusNotFound)

	rec = e.do(http.MethodPost, "/manager/permission/service/", managerToken, map[string]any{
		"Target": svc.ID, "Name": "Census week",
		"Citizens":  []string{viewer.ID},
		"StartTime": apiNow.Add(-time.Hour).Format(time.RFC3339),
		"EndTime":   apiNow.Add(time.Hour).Format(time.RFC3339),
	})
	e.mustStatus(rec, http.StatusCreated)

	rec = e.do(http.MethodGet, "/service/"+svc.ID+"/", viewerToken, nil)
	e.mustStatus(rec, http.StatusOK)
}

func TestMalformedFilterAnswersEmpty(t *testing.T) {
	e := newEnv(t)
	e.register("alice", "alice@example.org")
	token := e.login("/api/auth/login/", map[string]any{
		"Email": "alice@example.org", "password": "password-1",
	})

	rec := e.do(http.MethodGet, "/service/?association__in=not-a-list", token, nil)
	e.mustStatus(rec, http.StatusOK)
	var services []directory.PublicService
	e.decode(rec, &services)
	if len(services) != 0 {
		t.Fatalf("poisoned filter returned %d services", len(services))
	}
}

// seedSubtree plants an admin -> department -> association -> service
// chain directly in the store. The staff records never log in; the
// returned citizen id serves as a session subject.
func (e *env) seedSubtree(name string, restricted bool) (*directory.PublicService, string) {
	e.t.Helper()
	ctx := context.Background()
	st := e.svc.Store()

	citizen := &directory.Citizen{ID: ids.New(), UserName: name, FirstName: "F", Surname: "S",
		NationalID: name, Email: name + "@example.org", Active: true, Created: apiNow, Updated: apiNow}
	if err := st.Citizens().Create(ctx, citizen); err != nil {
		e.t.Fatalf("seed citizen: %v", err)
	}
	admin := &directory.Administrator{ID: ids.New(), CitizenID: citizen.ID,
		AdministratorUserName: name + "-adm", FirstEmail: name + "@example.org",
		GranteeLimit: directory.MinGranteeLimit, Created: apiNow, Updated: apiNow}
	if err := st.Administrators().Create(ctx, admin); err != nil {
		e.t.Fatalf("seed administrator: %v", err)
	}
	dept := &directory.Department{ID: ids.New(), AdministratorID: admin.ID,
		Title: name + "-dept", Email: name + "@example.org", Created: apiNow, Updated: apiNow}
	if err := st.Departments().Create(ctx, dept); err != nil {
		e.t.Fatalf("seed department: %v", err)
	}
	assoc := &directory.Association{ID: ids.New(), DepartmentID: dept.ID,
		Title: name + "-assoc", Email: name + "@example.org", Created: apiNow, Updated: apiNow}
	if err := st.Associations().Create(ctx, assoc); err != nil {
		e.t.Fatalf("seed association: %v", err)
	}
	svc := &directory.PublicService{ID: ids.New(), AssociationID: assoc.ID,
		Title: name + "-svc", MachineName: name + "_svc", Email: name + "@example.org",
		URL: "https://example.org", Restricted: restricted, Visibility: true,
		Created: apiNow, Updated: apiNow}
	if err := st.Services().Create(ctx, svc); err != nil {
		e.t.Fatalf("seed service: %v", err)
	}
	return svc, citizen.ID
}

func TestSessionHiddenOutsideDepartment(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()

	admCitizen := e.register("adm", "adm@example.org")
	rec := e.do(http.MethodPost, "/manager/administrator/", managerToken, map[string]any{
		"Citizen": admCitizen.ID, "UserName": "adm-role",
		"FirstEmail": "adm@example.org", "password": "admin-pw1",
		"GranteeLimit": directory.MinGranteeLimit,
	})
	e.mustStatus(rec, http.StatusCreated)
	var admin directory.Administrator
	e.decode(rec, &admin)
	rec = e.do(http.MethodPost, "/manager/department/", managerToken, map[string]any{
		"Administrator": admin.ID, "Title": "Interior", "Email": "interior@example.org",
	})
	e.mustStatus(rec, http.StatusCreated)
	adminToken := e.login("/api/admin/login/", map[string]any{
		"Email": "adm@example.org", "password": "password-1",
		"AdministratorUserName": "adm-role", "AdministratorPassword": "admin-pw1",
	})

	otherSvc, otherCitizen := e.seedSubtree("other", true)
	sess, err := e.svc.Store().Sessions().Upsert(context.Background(),
		otherCitizen, otherSvc.ID, "172.16.0.9", apiNow)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	// A foreign department's session id answers as absent.
	rec = e.do(http.MethodGet, "/admin/session/"+sess.ID+"/", adminToken, nil)
	e.mustStatus(rec, http.StatusNotFound)

	// The site manager still reaches it.
	rec = e.do(http.MethodGet, "/manager/session/"+sess.ID+"/", managerToken, nil)
	e.mustStatus(rec, http.StatusOK)
}

func TestSessionListingsReportExpiry(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()
	svc, citizenID := e.seedSubtree("exp", true)

	stale := apiNow.Add(-2 * time.Hour)
	if _, err := e.svc.Store().Sessions().Upsert(context.Background(),
		citizenID, svc.ID, "172.16.0.9", stale); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	rec := e.do(http.MethodGet, "/manager/session/", managerToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var sessions []struct {
		ID      string `json:"id"`
		Expired bool   `json:"Expired"`
	}
	e.decode(rec, &sessions)
	if len(sessions) != 1 || !sessions[0].Expired {
		t.Fatalf("stale session not reported expired: %+v", sessions)
	}

	// A refresh brings the session back inside the window.
	if _, err := e.svc.Store().Sessions().Upsert(context.Background(),
		citizenID, svc.ID, "172.16.0.9", apiNow); err != nil {
		t.Fatalf("refresh session: %v", err)
	}
	rec = e.do(http.MethodGet, "/manager/session/", managerToken, nil)
	e.mustStatus(rec, http.StatusOK)
	e.decode(rec, &sessions)
	if len(sessions) != 1 || sessions[0].Expired {
		t.Fatalf("refreshed session still expired: %+v", sessions)
	}
}

func TestCitizenAmendsAndWithdrawsOwnRequest(t *testing.T) {
	e := newEnv(t)
	svc, _ := e.seedSubtree("tree", false)

	e.register("alice", "alice@example.org")
	aliceToken := e.login("/api/auth/login/", map[string]any{
		"Email": "alice@example.org", "password": "password-1",
	})

	rec := e.do(http.MethodPost, "/request/", aliceToken, map[string]any{
		"PublicService": svc.ID, "Subject": "First wording",
	})
	e.mustStatus(rec, http.StatusCreated)
	var request directory.Request
	e.decode(rec, &request)

	rec = e.do(http.MethodPatch, "/request/"+request.ID+"/", aliceToken, map[string]any{
		"Subject": "Revised wording",
	})
	e.mustStatus(rec, http.StatusOK)
	var updated directory.Request
	e.decode(rec, &updated)
	if updated.Subject != "Revised wording" {
		t.Fatalf("subject after patch = %q", updated.Subject)
	}

	// Another citizen cannot touch the record at all.
	e.register("bob", "bob@example.org")
	bobToken := e.login("/api/auth/login/", map[string]any{
		"Email": "bob@example.org", "password": "password-1",
	})
	rec = e.do(http.MethodPatch, "/request/"+request.ID+"/", bobToken, map[string]any{
		"Subject": "Hijacked",
	})
	e.mustStatus(rec, http.StatusNotFound)
	rec = e.do(http.MethodDelete, "/request/"+request.ID+"/", bobToken, nil)
	e.mustStatus(rec, http.StatusNotFound)

	// Withdrawal removes the request and its paired grant.
	rec = e.do(http.MethodDelete, "/request/"+request.ID+"/", aliceToken, nil)
	e.mustStatus(rec, http.StatusNoContent)

	rec = e.do(http.MethodGet, "/request/", aliceToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var requests []directory.Request
	e.decode(rec, &requests)
	if len(requests) != 0 {
		t.Fatalf("withdrawn request still listed: %+v", requests)
	}
	rec = e.do(http.MethodGet, "/grant/", aliceToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var grants []directory.Grant
	e.decode(rec, &grants)
	if len(grants) != 0 {
		t.Fatalf("paired grant survived the withdrawal: %+v", grants)
	}
}

func TestEmptyListingsMarshalAsArrays(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()

	for _, path := range []string{"/manager/grant/", "/manager/cron/", "/manager/session/",
		"/manager/association/"} {
		rec := e.do(http.MethodGet, path, managerToken, nil)
		e.mustStatus(rec, http.StatusOK)
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Fatalf("%s empty listing = %q, want []", path, body)
		}
	}
}

func TestAuditTrailReachesManagerLogs(t *testing.T) {
	e := newEnv(t)
	managerToken := e.bootstrapManager()
	e.register("alice", "alice@example.org")
	_ = e.login("/api/auth/login/", map[string]any{
		"Email": "alice@example.org", "password": "password-1",
	})

	if err := e.recorder.Ingest(context.Background(), e.svc); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	rec := e.do(http.MethodGet, "/manager/log/citizen/", managerToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var logs []directory.SystemLog
	e.decode(rec, &logs)
	if len(logs) == 0 {
		t.Fatal("citizen log stream is empty after ingestion")
	}

	rec = e.do(http.MethodGet, "/manager/cron/", managerToken, nil)
	e.mustStatus(rec, http.StatusOK)
	var crons []directory.SystemCron
	e.decode(rec, &crons)
	if len(crons) != 1 {
		t.Fatalf("crons = %+v", crons)
	}
}
