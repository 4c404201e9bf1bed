package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"accessgov.org/internal/directory"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestTranslateErr(t *testing.T) {
	if translateErr(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if !errors.Is(translateErr(sql.ErrNoRows), directory.ErrNotFound) {
		t.Fatal("ErrNoRows must map to ErrNotFound")
	}
	unique := &pgconn.PgError{Code: "23505"}
	if !errors.Is(translateErr(unique), directory.ErrConflict) {
		t.Fatal("23505 must map to ErrConflict")
	}
	fk := &pgconn.PgError{Code: "23503"}
	if !errors.Is(translateErr(fk), directory.ErrConflict) {
		t.Fatal("23503 must map to ErrConflict")
	}
	other := errors.New("timeout")
	if translateErr(other) != other {
		t.Fatal("unrelated errors must pass through")
	}
}

func TestCondBuilder(t *testing.T) {
	var c cond
	c.add("a.department_id = ?", "d1")
	c.addIn("s.id", []string{"s1", "s2"})
	want := " WHERE a.department_id = $1 AND s.id IN ($2, $3)"
	if got := c.where(); got != want {
		t.Fatalf("where = %q, want %q", got, want)
	}
	if len(c.args) != 3 {
		t.Fatalf("args = %v", c.args)
	}

	var empty cond
	empty.addIn("s.id", nil)
	if got := empty.where(); got != " WHERE false" {
		t.Fatalf("empty IN list = %q, want impossible clause", got)
	}
}

func TestCondApplyScope(t *testing.T) {
	cases := []struct {
		name  string
		scope directory.Scope
		want  string
	}{
		{"all", directory.ScopeEverything(), ""},
		{"none", directory.ScopeNothing(), " WHERE false"},
		{"department", directory.UnderDepartment("d1"), " WHERE a.department_id = $1"},
		{"association", directory.UnderAssociation("a1"), " WHERE s.association_id = $1"},
		{"ids", directory.AmongIDs([]string{"x", "y"}), " WHERE s.id IN ($1, $2)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c cond
			c.applyScope(tc.scope, "a.department_id", "s.association_id", "s.id")
			if got := c.where(); got != tc.want {
				t.Fatalf("where = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCondApplyFiltersUnknownFieldYieldsNothing(t *testing.T) {
	var c cond
	c.applyFilters([]directory.Filter{{Field: "Bogus", Values: []string{"v"}}},
		map[string]string{"Title": "s.title"})
	if got := c.where(); got != " WHERE false" {
		t.Fatalf("unknown field clause = %q", got)
	}
}

func TestSetClauseBuild(t *testing.T) {
	title := "New Title"
	restricted := true
	set := newSetClause()
	set.maybe("title", &title)
	set.maybeBool("restricted", &restricted)
	set.maybe("description", nil)
	query, args := set.build("public_services", "svc-1")

	if !strings.HasPrefix(query, "UPDATE public_services SET title = $1, restricted = $2, updated = $3") {
		t.Fatalf("query = %q", query)
	}
	if !strings.HasSuffix(query, "WHERE id = $4") {
		t.Fatalf("query = %q", query)
	}
	if len(args) != 4 || args[0] != "New Title" || args[1] != true || args[3] != "svc-1" {
		t.Fatalf("args = %v", args)
	}
}

func TestSetClauseNullString(t *testing.T) {
	cleared := ""
	set := newSetClause()
	set.maybeNullString("grantee_id", &cleared)
	set.maybeNullString("message", nil)
	query, args := set.build("grants", "g1")

	if !strings.Contains(query, "grantee_id = $1") {
		t.Fatalf("query = %q", query)
	}
	if strings.Contains(query, "message") {
		t.Fatalf("untouched column rendered: %q", query)
	}
	if args[0] != nil {
		t.Fatalf("cleared reference arg = %v, want SQL NULL", args[0])
	}

	assigned := "gr-1"
	set = newSetClause()
	set.maybeNullString("grantee_id", &assigned)
	_, args = set.build("grants", "g1")
	if args[0] != "gr-1" {
		t.Fatalf("assigned reference arg = %v", args[0])
	}
}

func TestSetClauseNullTime(t *testing.T) {
	var cleared *time.Time
	set := newSetClause()
	set.maybeNullTime("start_date", &cleared)
	set.maybeNullTime("end_date", nil)
	query, args := set.build("grants", "g1")

	if !strings.Contains(query, "start_date = $1") {
		t.Fatalf("query = %q", query)
	}
	if strings.Contains(query, "end_date") {
		t.Fatalf("untouched column rendered: %q", query)
	}
	if args[0] != nil {
		t.Fatalf("cleared date arg = %v, want SQL NULL", args[0])
	}
}

func TestCitizenGetByID(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_name", "first_name", "second_name", "surname",
		"national_id", "dob", "email", "email_verified", "is_active", "password_hash",
		"created", "updated"}).
		AddRow("c1", "alice", "Alice", "", "Smith", "123", now, "alice@example.org",
			true, true, "hash", now, now)
	mock.ExpectQuery(`SELECT .+ FROM citizens c WHERE c\.id = \$1`).
		WithArgs("c1").WillReturnRows(rows)

	c, err := store.Citizens().GetByID(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.UserName != "alice" || !c.Active {
		t.Fatalf("citizen = %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCitizenGetByIDNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM citizens c WHERE c\.id = \$1`).
		WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.Citizens().GetByID(context.Background(), "missing")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSessionUpsertSQL(t *testing.T) {
	store, mock := newMock(t)
	seen := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "citizen_id", "service_id", "ip_address",
		"last_seen", "enforce_expiry", "created", "updated"}).
		AddRow("s1", "c1", "svc1", "10.0.0.1", seen, false, seen, seen)
	mock.ExpectQuery(`INSERT INTO service_sessions .+ ON CONFLICT \(citizen_id, service_id\) DO UPDATE`).
		WillReturnRows(rows)

	sess, err := store.Sessions().Upsert(context.Background(), "c1", "svc1", "10.0.0.1", seen)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if sess.CitizenID != "c1" || sess.ServiceID != "svc1" {
		t.Fatalf("session = %+v", sess)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSiteManagerCreateSingleton(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM site_managers\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	m := &directory.SiteManager{ID: "m2", CitizenID: "c2", ManagerUserName: "root2"}
	err := store.SiteManagers().Create(context.Background(), m)
	if !errors.Is(err, directory.ErrPermissionDenied) {
		t.Fatalf("got %v, want ErrPermissionDenied", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestExecDeleteMissingRow(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM departments WHERE id = $1")).
		WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Departments().Delete(context.Background(), "missing")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestInTxCommitsAndRollsBack(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM departments").
		WithArgs("d1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(ctx, func(tx directory.Store) error {
		return tx.Departments().Delete(ctx, "d1")
	})
	if err != nil {
		t.Fatalf("commit path: %v", err)
	}

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = store.InTx(ctx, func(directory.Store) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("rollback path: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
