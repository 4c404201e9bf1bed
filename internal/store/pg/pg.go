// Package pg implements the directory store on PostgreSQL through the
// pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"accessgov.org/internal/directory"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the production directory store.
type Store struct {
	db *sql.DB
	q  querier
}

// Open connects to the database behind the DSN and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing handle; tests hand in a mocked one.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// DB exposes the pool for readiness probing.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Citizens() directory.CitizenStore             { return citizenStore{s.q} }
func (s *Store) SiteManagers() directory.SiteManagerStore     { return managerStore{s.q} }
func (s *Store) Administrators() directory.AdministratorStore { return adminStore{s.q} }
func (s *Store) Departments() directory.DepartmentStore       { return departmentStore{s.q} }
func (s *Store) Associations() directory.AssociationStore     { return associationStore{s.q} }
func (s *Store) Services() directory.ServiceStore             { return serviceStore{s.q} }
func (s *Store) Grantees() directory.GranteeStore             { return granteeStore{s.q} }
func (s *Store) Requests() directory.RequestStore             { return requestStore{s.q} }
func (s *Store) Grants() directory.GrantStore                 { return grantStore{s.q} }
func (s *Store) Permissions() directory.PermissionStore       { return permissionStore{s.q} }
func (s *Store) Sessions() directory.SessionStore             { return sessionStore{s.q} }
func (s *Store) Logs() directory.LogStore                     { return logStore{s.q} }
func (s *Store) Crons() directory.CronStore                   { return cronStore{s.q} }

// InTx runs fn inside one database transaction. A nested call reuses the
// transaction already in flight.
func (s *Store) InTx(ctx context.Context, fn func(directory.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback()
	txStore := &Store{db: s.db, q: tx}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateErr(err)
	}
	return nil
}

// translateErr maps storage failures onto the directory sentinels.
// 23505 is unique_violation, 23503 is foreign_key_violation.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return directory.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return directory.ErrConflict
		}
	}
	return err
}

// placeholders renders $from..$from+n-1 for an IN list.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

// cond accumulates a WHERE clause with positional args.
type cond struct {
	clauses []string
	args    []any
}

func (c *cond) add(expr string, args ...any) {
	n := len(c.args)
	for i := range args {
		expr = strings.Replace(expr, "?", fmt.Sprintf("$%d", n+i+1), 1)
	}
	c.clauses = append(c.clauses, expr)
	c.args = append(c.args, args...)
}

func (c *cond) addIn(expr string, values []string) {
	if len(values) == 0 {
		c.clauses = append(c.clauses, "false")
		return
	}
	ph := placeholders(len(c.args)+1, len(values))
	c.clauses = append(c.clauses, fmt.Sprintf("%s IN (%s)", expr, ph))
	for _, v := range values {
		c.args = append(c.args, v)
	}
}

func (c *cond) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// applyScope renders the hierarchy restriction using per-entity column
// expressions. deptExpr and assocExpr locate the owning department and
// association from the query's FROM clause; idExpr is the entity's id.
func (c *cond) applyScope(sc directory.Scope, deptExpr, assocExpr, idExpr string) {
	switch sc.Kind {
	case directory.ScopeAll:
	case directory.ScopeNone:
		c.clauses = append(c.clauses, "false")
	case directory.ScopeDepartment:
		c.add(deptExpr+" = ?", sc.DepartmentID)
	case directory.ScopeAssociation:
		c.add(assocExpr+" = ?", sc.AssociationID)
	case directory.ScopeIDs:
		c.addIn(idExpr, sc.IDs)
	}
}

// applyFilters renders declared-field filters through the entity's
// field-to-column map. A field with no mapping yields no rows rather than
// all rows.
func (c *cond) applyFilters(filters []directory.Filter, columns map[string]string) {
	for _, f := range filters {
		col, ok := columns[f.Field]
		if !ok {
			c.clauses = append(c.clauses, "false")
			continue
		}
		if len(f.Values) == 1 {
			c.add(col+" = ?", f.Values[0])
		} else {
			c.addIn(col, f.Values)
		}
	}
}
