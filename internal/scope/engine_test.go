package scope_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
	"accessgov.org/internal/scope"
	"accessgov.org/internal/store/memory"
)

var engineNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// fixture wires a minimal hierarchy directly through the store: the engine
// only reads, so hashed credentials are unnecessary.
type fixture struct {
	store   *memory.Store
	engine  *scope.Engine
	citizen *directory.Citizen
	dept    *directory.Department
	assoc   *directory.Association
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	citizen := &directory.Citizen{
		ID: ids.New(), UserName: "cit", FirstName: "C", Surname: "Zen",
		NationalID: "1", Email: "cit@example.org", Active: true,
		Created: engineNow, Updated: engineNow,
	}
	if err := store.Citizens().Create(ctx, citizen); err != nil {
		t.Fatalf("citizen: %v", err)
	}
	adminCitizen := &directory.Citizen{
		ID: ids.New(), UserName: "adm", FirstName: "A", Surname: "Dmin",
		NationalID: "2", Email: "adm@example.org", Active: true,
		Created: engineNow, Updated: engineNow,
	}
	if err := store.Citizens().Create(ctx, adminCitizen); err != nil {
		t.Fatalf("admin citizen: %v", err)
	}
	admin := &directory.Administrator{
		ID: ids.New(), CitizenID: adminCitizen.ID, AdministratorUserName: "adm",
		FirstEmail: "adm@example.org", GranteeLimit: directory.MinGranteeLimit,
		Created: engineNow, Updated: engineNow,
	}
	if err := store.Administrators().Create(ctx, admin); err != nil {
		t.Fatalf("administrator: %v", err)
	}
	dept := &directory.Department{
		ID: ids.New(), AdministratorID: admin.ID, Title: "Interior",
		Email: "interior@example.org", Created: engineNow, Updated: engineNow,
	}
	if err := store.Departments().Create(ctx, dept); err != nil {
		t.Fatalf("department: %v", err)
	}
	assoc := &directory.Association{
		ID: ids.New(), DepartmentID: dept.ID, Title: "Registry",
		Email: "registry@example.org", Created: engineNow, Updated: engineNow,
	}
	if err := store.Associations().Create(ctx, assoc); err != nil {
		t.Fatalf("association: %v", err)
	}

	return &fixture{
		store:   store,
		engine:  scope.NewEngine(store, func() time.Time { return engineNow }),
		citizen: citizen,
		dept:    dept,
		assoc:   assoc,
	}
}

func (f *fixture) addService(t *testing.T, title string, restricted, visible bool) *directory.PublicService {
	t.Helper()
	svc := &directory.PublicService{
		ID: ids.New(), AssociationID: f.assoc.ID, Title: title,
		MachineName: title, Email: "svc@example.org", URL: "https://example.org",
		Restricted: restricted, Visibility: visible,
		Created: engineNow, Updated: engineNow,
	}
	if err := f.store.Services().Create(context.Background(), svc); err != nil {
		t.Fatalf("service %q: %v", title, err)
	}
	return svc
}

func (f *fixture) addPermission(t *testing.T, kind directory.PermissionKind, target string, start, end time.Time) {
	t.Helper()
	perm := &directory.Permission{
		ID: ids.New(), Kind: kind, TargetID: target, Name: "window",
		CitizenIDs: []string{f.citizen.ID}, StartTime: start, EndTime: end,
		Created: engineNow, Updated: engineNow,
	}
	if err := f.store.Permissions().Create(context.Background(), perm); err != nil {
		t.Fatalf("permission: %v", err)
	}
}

func (f *fixture) addGrant(t *testing.T, serviceID string, start, end *time.Time, decline bool) {
	t.Helper()
	ctx := context.Background()
	req := &directory.Request{
		ID: ids.New(), CitizenID: f.citizen.ID, PublicServiceID: serviceID,
		Subject: "s", GrantID: ids.New(), Created: engineNow, Updated: engineNow,
	}
	if err := f.store.Requests().Create(ctx, req); err != nil {
		t.Fatalf("request: %v", err)
	}
	grant := &directory.Grant{
		ID: req.GrantID, RequestID: req.ID, Decline: decline,
		StartDate: start, EndDate: end, Created: engineNow, Updated: engineNow,
	}
	if err := f.store.Grants().Create(ctx, grant); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func listIDs(t *testing.T, f *fixture) map[string]bool {
	t.Helper()
	services, err := f.engine.ListServices(context.Background(), f.citizen, nil, "10.0.0.1")
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	out := make(map[string]bool, len(services))
	for _, s := range services {
		out[s.ID] = true
	}
	return out
}

func TestListServicesPublicCatalogue(t *testing.T) {
	f := newFixture(t)
	open := f.addService(t, "open", false, true)
	restricted := f.addService(t, "restricted", true, true)
	hidden := f.addService(t, "hidden", false, false)

	got := listIDs(t, f)
	if !got[open.ID] {
		t.Fatal("open service missing from catalogue")
	}
	if got[restricted.ID] {
		t.Fatal("restricted service leaked without a channel")
	}
	if got[hidden.ID] {
		t.Fatal("hidden service leaked")
	}
}

func TestListServicesPermissionChannels(t *testing.T) {
	f := newFixture(t)
	direct := f.addService(t, "direct", true, true)
	viaAssoc := f.addService(t, "via-assoc", true, true)

	f.addPermission(t, directory.PermissionService, direct.ID,
		engineNow.Add(-time.Hour), engineNow.Add(time.Hour))
	f.addPermission(t, directory.PermissionAssociation, f.assoc.ID,
		engineNow.Add(-time.Hour), engineNow.Add(time.Hour))

	got := listIDs(t, f)
	if !got[direct.ID] || !got[viaAssoc.ID] {
		t.Fatalf("permission channels missing: %v", got)
	}

	// Both arrivals refresh a session.
	sessions, err := f.store.Sessions().List(context.Background(), directory.Everything())
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
}

func TestListServicesDepartmentWindow(t *testing.T) {
	f := newFixture(t)
	svc := f.addService(t, "dept-window", true, true)
	f.addPermission(t, directory.PermissionDepartment, f.dept.ID,
		engineNow.Add(-time.Hour), engineNow.Add(time.Hour))

	if got := listIDs(t, f); !got[svc.ID] {
		t.Fatal("department window did not surface the service")
	}
}

func TestListServicesClosedWindow(t *testing.T) {
	f := newFixture(t)
	svc := f.addService(t, "expired-window", true, true)
	f.addPermission(t, directory.PermissionService, svc.ID,
		engineNow.Add(-2*time.Hour), engineNow.Add(-time.Hour))

	if got := listIDs(t, f); got[svc.ID] {
		t.Fatal("closed window still surfaces the service")
	}
}

func TestWindowBoundariesInclusive(t *testing.T) {
	f := newFixture(t)
	svc := f.addService(t, "boundary", true, true)
	f.addPermission(t, directory.PermissionService, svc.ID,
		engineNow, engineNow)

	if got := listIDs(t, f); !got[svc.ID] {
		t.Fatal("window whose boundary equals now must be open")
	}
}

func TestGrantChannel(t *testing.T) {
	f := newFixture(t)
	granted := f.addService(t, "granted", true, true)
	declined := f.addService(t, "declined", true, true)
	pending := f.addService(t, "pending", true, true)

	start := engineNow.AddDate(0, 0, -1)
	f.addGrant(t, granted.ID, &start, nil, false)
	f.addGrant(t, declined.ID, &start, nil, true)
	f.addGrant(t, pending.ID, nil, nil, false)

	got := listIDs(t, f)
	if !got[granted.ID] {
		t.Fatal("effective grant did not surface the service")
	}
	if got[declined.ID] {
		t.Fatal("declined grant surfaced the service")
	}
	if got[pending.ID] {
		t.Fatal("never-activated grant surfaced the service")
	}
}

func TestGetServiceRestricted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.addService(t, "restricted", true, true)

	if _, err := f.engine.GetService(ctx, f.citizen, svc.ID, "10.0.0.1"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("uncovered restricted service: got %v, want ErrNotFound", err)
	}

	start := engineNow.AddDate(0, 0, -1)
	f.addGrant(t, svc.ID, &start, nil, false)

	got, err := f.engine.GetService(ctx, f.citizen, svc.ID, "10.0.0.1")
	if err != nil {
		t.Fatalf("covered restricted service: %v", err)
	}
	if got.ID != svc.ID {
		t.Fatalf("got service %s, want %s", got.ID, svc.ID)
	}

	sessions, err := f.store.Sessions().List(ctx, directory.Everything())
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
}

func TestGetServiceHidden(t *testing.T) {
	f := newFixture(t)
	svc := f.addService(t, "hidden", false, false)
	_, err := f.engine.GetService(context.Background(), f.citizen, svc.ID, "10.0.0.1")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("hidden service: got %v, want ErrNotFound", err)
	}
}

func TestSessionUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.addService(t, "restricted", true, true)
	start := engineNow.AddDate(0, 0, -1)
	f.addGrant(t, svc.ID, &start, nil, false)

	for i := 0; i < 3; i++ {
		if _, err := f.engine.GetService(ctx, f.citizen, svc.ID, "10.0.0.2"); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	sessions, err := f.store.Sessions().List(ctx, directory.Everything())
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("repeated reads produced %d sessions, want 1", len(sessions))
	}
	if sessions[0].IPAddress != "10.0.0.2" {
		t.Fatalf("session ip = %s, want refreshed value", sessions[0].IPAddress)
	}
}

func TestForFacet(t *testing.T) {
	dept := &directory.Department{ID: "d1"}
	cases := []struct {
		name  string
		facet directory.Facet
		want  directory.Scope
	}{
		{"manager", directory.Facet{Role: directory.RoleManager}, directory.ScopeEverything()},
		{"admin with department", directory.Facet{Role: directory.RoleAdministrator, Department: dept}, directory.UnderDepartment("d1")},
		{"admin without department", directory.Facet{Role: directory.RoleAdministrator}, directory.ScopeNothing()},
		{"grantee", directory.Facet{Role: directory.RoleGrantee, Grantee: &directory.Grantee{AssociationID: "a1"}}, directory.UnderAssociation("a1")},
		{"citizen", directory.Facet{Role: directory.RoleCitizen}, directory.ScopeNothing()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scope.ForFacet(tc.facet)
			if got.Kind != tc.want.Kind || got.DepartmentID != tc.want.DepartmentID || got.AssociationID != tc.want.AssociationID {
				t.Fatalf("ForFacet = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCanWrite(t *testing.T) {
	if scope.CanWrite(directory.Facet{Role: directory.RoleAdministrator}) {
		t.Fatal("administrator without a department may not write")
	}
	if !scope.CanWrite(directory.Facet{Role: directory.RoleAdministrator, Department: &directory.Department{ID: "d"}}) {
		t.Fatal("administrator with a department must write")
	}
	if !scope.CanWrite(directory.Facet{Role: directory.RoleManager}) {
		t.Fatal("manager must write")
	}
}

// brokenServices simulates a storage outage on the service table while the
// rest of the store keeps working.
type brokenServices struct {
	directory.Store
	err error
}

func (b brokenServices) Services() directory.ServiceStore {
	return failingServiceStore{err: b.err}
}

type failingServiceStore struct {
	directory.ServiceStore
	err error
}

func (f failingServiceStore) GetByID(context.Context, string) (*directory.PublicService, error) {
	return nil, f.err
}

func TestGetServiceStoreFailureIsNotNotFound(t *testing.T) {
	f := newFixture(t)
	outage := errors.New("connection reset")
	engine := scope.NewEngine(brokenServices{Store: f.store, err: outage},
		func() time.Time { return engineNow })

	_, err := engine.GetService(context.Background(), f.citizen, ids.New(), "10.0.0.1")
	if !errors.Is(err, outage) {
		t.Fatalf("got %v, want the storage error", err)
	}
	if errors.Is(err, directory.ErrNotFound) {
		t.Fatal("storage outage must not masquerade as a missing record")
	}
}
