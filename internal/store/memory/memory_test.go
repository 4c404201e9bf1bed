package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newCitizen(name string) *directory.Citizen {
	return &directory.Citizen{
		ID: ids.New(), UserName: name, FirstName: "F", Surname: "S",
		NationalID: "1", Email: name + "@example.org", Active: true,
		Created: testNow, Updated: testNow,
	}
}

func TestCitizenUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := newCitizen("alice")
	if err := store.Citizens().Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dupName := newCitizen("bob")
	dupName.UserName = "alice"
	if err := store.Citizens().Create(ctx, dupName); !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("duplicate username: got %v, want ErrConflict", err)
	}

	dupEmail := newCitizen("carol")
	dupEmail.Email = first.Email
	if err := store.Citizens().Create(ctx, dupEmail); !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("duplicate email: got %v, want ErrConflict", err)
	}
}

func TestSiteManagerSingleton(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	c1 := newCitizen("one")
	c2 := newCitizen("two")
	for _, c := range []*directory.Citizen{c1, c2} {
		if err := store.Citizens().Create(ctx, c); err != nil {
			t.Fatalf("citizen: %v", err)
		}
	}
	first := &directory.SiteManager{ID: ids.New(), CitizenID: c1.ID, ManagerUserName: "m1",
		FirstEmail: "m1@example.org", Created: testNow, Updated: testNow}
	if err := store.SiteManagers().Create(ctx, first); err != nil {
		t.Fatalf("first manager: %v", err)
	}
	second := &directory.SiteManager{ID: ids.New(), CitizenID: c2.ID, ManagerUserName: "m2",
		FirstEmail: "m2@example.org", Created: testNow, Updated: testNow}
	if err := store.SiteManagers().Create(ctx, second); !errors.Is(err, directory.ErrPermissionDenied) {
		t.Fatalf("second manager: got %v, want ErrPermissionDenied", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx directory.Store) error {
		if err := tx.Citizens().Create(ctx, newCitizen("ghost")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	citizens, err := store.Citizens().List(ctx, directory.Everything())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(citizens) != 0 {
		t.Fatalf("rolled-back create left %d citizens", len(citizens))
	}
}

func TestInTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.InTx(ctx, func(tx directory.Store) error {
		return tx.Citizens().Create(ctx, newCitizen("kept"))
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	citizens, err := store.Citizens().List(ctx, directory.Everything())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(citizens) != 1 {
		t.Fatalf("committed create missing, got %d citizens", len(citizens))
	}
}

func TestUpdateDoesNotMutateEarlierReads(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	c := newCitizen("alice")
	if err := store.Citizens().Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, err := store.Citizens().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	newName := "renamed"
	if _, err := store.Citizens().Update(ctx, c.ID, directory.CitizenUpdate{FirstName: &newName}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if before.FirstName != "F" {
		t.Fatal("update mutated a record returned before the write")
	}
	after, err := store.Citizens().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get after: %v", err)
	}
	if after.FirstName != "renamed" {
		t.Fatalf("FirstName = %q after update", after.FirstName)
	}
}

// seedTree builds admin -> department -> association -> service and a
// second department subtree for scope tests.
type tree struct {
	store  *Store
	deptA  *directory.Department
	deptB  *directory.Department
	assocA *directory.Association
	assocB *directory.Association
	svcA   *directory.PublicService
	svcB   *directory.PublicService
}

func seedTree(t *testing.T) tree {
	t.Helper()
	ctx := context.Background()
	store := NewStore()

	mk := func(name string) (admin *directory.Administrator, dept *directory.Department, assoc *directory.Association, svc *directory.PublicService) {
		c := newCitizen(name)
		if err := store.Citizens().Create(ctx, c); err != nil {
			t.Fatalf("citizen: %v", err)
		}
		admin = &directory.Administrator{ID: ids.New(), CitizenID: c.ID,
			AdministratorUserName: name + "-adm", FirstEmail: name + "@example.org",
			GranteeLimit: directory.MinGranteeLimit, Created: testNow, Updated: testNow}
		if err := store.Administrators().Create(ctx, admin); err != nil {
			t.Fatalf("administrator: %v", err)
		}
		dept = &directory.Department{ID: ids.New(), AdministratorID: admin.ID,
			Title: name + "-dept", Email: name + "@example.org", Created: testNow, Updated: testNow}
		if err := store.Departments().Create(ctx, dept); err != nil {
			t.Fatalf("department: %v", err)
		}
		assoc = &directory.Association{ID: ids.New(), DepartmentID: dept.ID,
			Title: name + "-assoc", Email: name + "@example.org", Created: testNow, Updated: testNow}
		if err := store.Associations().Create(ctx, assoc); err != nil {
			t.Fatalf("association: %v", err)
		}
		svc = &directory.PublicService{ID: ids.New(), AssociationID: assoc.ID,
			Title: name + "-svc", MachineName: name + "_svc", Email: name + "@example.org",
			URL: "https://example.org", Visibility: true, Created: testNow, Updated: testNow}
		if err := store.Services().Create(ctx, svc); err != nil {
			t.Fatalf("service: %v", err)
		}
		return admin, dept, assoc, svc
	}

	_, deptA, assocA, svcA := mk("aa")
	_, deptB, assocB, svcB := mk("bb")
	return tree{store: store, deptA: deptA, deptB: deptB, assocA: assocA, assocB: assocB, svcA: svcA, svcB: svcB}
}

func TestServiceListUnderDepartmentScope(t *testing.T) {
	tr := seedTree(t)
	ctx := context.Background()

	services, err := tr.store.Services().List(ctx, directory.Scoped(directory.UnderDepartment(tr.deptA.ID)))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(services) != 1 || services[0].ID != tr.svcA.ID {
		t.Fatalf("department scope returned %d services", len(services))
	}

	services, err = tr.store.Services().List(ctx, directory.Scoped(directory.ScopeNothing()))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(services) != 0 {
		t.Fatalf("empty scope returned %d services", len(services))
	}
}

func TestServiceListRelationFilter(t *testing.T) {
	tr := seedTree(t)
	services, err := tr.store.Services().List(context.Background(), directory.Query{
		Scope:   directory.ScopeEverything(),
		Filters: []directory.Filter{{Field: "Association__Department", Values: []string{tr.deptB.ID}}},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(services) != 1 || services[0].ID != tr.svcB.ID {
		t.Fatalf("relation filter returned %d services", len(services))
	}
}

func TestRequestListScopedThroughService(t *testing.T) {
	tr := seedTree(t)
	ctx := context.Background()

	citizen := newCitizen("applicant")
	if err := tr.store.Citizens().Create(ctx, citizen); err != nil {
		t.Fatalf("citizen: %v", err)
	}
	req := &directory.Request{ID: ids.New(), CitizenID: citizen.ID,
		PublicServiceID: tr.svcA.ID, Subject: "s", GrantID: ids.New(),
		Created: testNow, Updated: testNow}
	if err := tr.store.Requests().Create(ctx, req); err != nil {
		t.Fatalf("request: %v", err)
	}

	got, err := tr.store.Requests().List(ctx, directory.Scoped(directory.UnderDepartment(tr.deptA.ID)))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("in-scope listing returned %d requests", len(got))
	}
	got, err = tr.store.Requests().List(ctx, directory.Scoped(directory.UnderDepartment(tr.deptB.ID)))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("out-of-scope listing returned %d requests", len(got))
	}
}

func TestRequestDeleteCascadesToGrant(t *testing.T) {
	tr := seedTree(t)
	ctx := context.Background()

	citizen := newCitizen("applicant")
	if err := tr.store.Citizens().Create(ctx, citizen); err != nil {
		t.Fatalf("citizen: %v", err)
	}
	req := &directory.Request{ID: ids.New(), CitizenID: citizen.ID,
		PublicServiceID: tr.svcA.ID, Subject: "s", GrantID: ids.New(),
		Created: testNow, Updated: testNow}
	if err := tr.store.Requests().Create(ctx, req); err != nil {
		t.Fatalf("request: %v", err)
	}
	grant := &directory.Grant{ID: req.GrantID, RequestID: req.ID,
		Created: testNow, Updated: testNow}
	if err := tr.store.Grants().Create(ctx, grant); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := tr.store.Requests().Delete(ctx, req.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tr.store.Grants().GetByID(ctx, grant.ID); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("paired grant after delete: got %v, want ErrNotFound", err)
	}
}

func TestSessionUpsert(t *testing.T) {
	tr := seedTree(t)
	ctx := context.Background()

	citizen := newCitizen("visitor")
	if err := tr.store.Citizens().Create(ctx, citizen); err != nil {
		t.Fatalf("citizen: %v", err)
	}

	first, err := tr.store.Sessions().Upsert(ctx, citizen.ID, tr.svcA.ID, "10.0.0.1", testNow)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	later := testNow.Add(time.Hour)
	second, err := tr.store.Sessions().Upsert(ctx, citizen.ID, tr.svcA.ID, "10.0.0.2", later)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("upsert created a second row for the same pair")
	}
	if second.IPAddress != "10.0.0.2" || !second.LastSeen.Equal(later) {
		t.Fatalf("upsert did not refresh: %+v", second)
	}

	// A different service makes a distinct row.
	third, err := tr.store.Sessions().Upsert(ctx, citizen.ID, tr.svcB.ID, "10.0.0.1", later)
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("distinct pair shares a session row")
	}
}

func TestLogListStratifiedByRole(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for _, role := range []directory.Role{directory.RoleCitizen, directory.RoleGrantee, directory.RoleCitizen} {
		entry := &directory.SystemLog{ID: ids.New(), Role: role, Method: "GET",
			Object: "PublicService", StatusCode: 200, Created: testNow, Updated: testNow}
		if err := store.Logs().Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	citizenLogs, err := store.Logs().List(ctx, directory.RoleCitizen, directory.Everything())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(citizenLogs) != 2 {
		t.Fatalf("citizen logs = %d, want 2", len(citizenLogs))
	}
	granteeLogs, err := store.Logs().List(ctx, directory.RoleGrantee, directory.Everything())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(granteeLogs) != 1 {
		t.Fatalf("grantee logs = %d, want 1", len(granteeLogs))
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Citizens().GetByID(context.Background(), ids.New()); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("missing id: got %v, want ErrNotFound", err)
	}
}
