package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"accessgov.org/internal/directory"
)

// ---- citizens ----

type citizenStore struct{ q querier }

var citizenColumns = map[string]string{
	"UserName":      "c.user_name",
	"Email":         "c.email",
	"FirstName":     "c.first_name",
	"Surname":       "c.surname",
	"NationalId":    "c.national_id",
	"EmailVerified": "c.email_verified::text",
}

const citizenSelect = `SELECT c.id, c.user_name, c.first_name, c.second_name, c.surname,
	c.national_id, c.dob, c.email, c.email_verified, c.is_active, c.password_hash,
	c.created, c.updated FROM citizens c`

func scanCitizen(row interface{ Scan(...any) error }) (*directory.Citizen, error) {
	var c directory.Citizen
	err := row.Scan(&c.ID, &c.UserName, &c.FirstName, &c.SecondName, &c.Surname,
		&c.NationalID, &c.DOB, &c.Email, &c.EmailVerified, &c.Active, &c.PasswordHash,
		&c.Created, &c.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

func (cs citizenStore) Create(ctx context.Context, c *directory.Citizen) error {
	_, err := cs.q.ExecContext(ctx, `INSERT INTO citizens
		(id, user_name, first_name, second_name, surname, national_id, dob, email,
		 email_verified, is_active, password_hash, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, c.UserName, c.FirstName, c.SecondName, c.Surname, c.NationalID, c.DOB,
		c.Email, c.EmailVerified, c.Active, c.PasswordHash, c.Created, c.Updated)
	return translateErr(err)
}

func (cs citizenStore) GetByID(ctx context.Context, id string) (*directory.Citizen, error) {
	return scanCitizen(cs.q.QueryRowContext(ctx, citizenSelect+` WHERE c.id = $1`, id))
}

func (cs citizenStore) GetByEmail(ctx context.Context, email string) (*directory.Citizen, error) {
	return scanCitizen(cs.q.QueryRowContext(ctx, citizenSelect+` WHERE lower(c.email) = lower($1)`, email))
}

func (cs citizenStore) List(ctx context.Context, q directory.Query) ([]*directory.Citizen, error) {
	var c cond
	// Citizens are the shared identity pool; only the empty scope and
	// explicit id sets restrict the listing.
	switch q.Scope.Kind {
	case directory.ScopeNone:
		c.clauses = append(c.clauses, "false")
	case directory.ScopeIDs:
		c.addIn("c.id", q.Scope.IDs)
	}
	c.applyFilters(q.Filters, citizenColumns)
	rows, err := cs.q.QueryContext(ctx, citizenSelect+c.where()+` ORDER BY c.created, c.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Citizen
	for rows.Next() {
		item, err := scanCitizen(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (cs citizenStore) Update(ctx context.Context, id string, upd directory.CitizenUpdate) (*directory.Citizen, error) {
	set := newSetClause()
	set.maybe("user_name", upd.UserName)
	set.maybe("first_name", upd.FirstName)
	set.maybe("second_name", upd.SecondName)
	set.maybe("surname", upd.Surname)
	set.maybe("email", upd.Email)
	set.maybeBool("email_verified", upd.EmailVerified)
	set.maybeBool("is_active", upd.Active)
	set.maybe("password_hash", upd.PasswordHash)
	query, args := set.build("citizens", id)
	if _, err := cs.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return cs.GetByID(ctx, id)
}

func (cs citizenStore) Delete(ctx context.Context, id string) error {
	return execDelete(ctx, cs.q, "citizens", id)
}

// ---- site manager ----

type managerStore struct{ q querier }

const managerSelect = `SELECT m.id, m.citizen_id, m.manager_user_name, m.first_email,
	m.second_email, m.password_hash, m.created, m.updated FROM site_managers m`

func scanManager(row interface{ Scan(...any) error }) (*directory.SiteManager, error) {
	var m directory.SiteManager
	err := row.Scan(&m.ID, &m.CitizenID, &m.ManagerUserName, &m.FirstEmail,
		&m.SecondEmail, &m.PasswordHash, &m.Created, &m.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &m, nil
}

func (ms managerStore) Create(ctx context.Context, m *directory.SiteManager) error {
	// The singleton unique index turns a racing second insert into a
	// conflict, surfaced as a permission failure rather than a conflict.
	var exists bool
	if err := ms.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM site_managers)`).Scan(&exists); err != nil {
		return translateErr(err)
	}
	if exists {
		return directory.ErrPermissionDenied
	}
	_, err := ms.q.ExecContext(ctx, `INSERT INTO site_managers
		(id, citizen_id, manager_user_name, first_email, second_email, password_hash, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.CitizenID, m.ManagerUserName, m.FirstEmail, m.SecondEmail,
		m.PasswordHash, m.Created, m.Updated)
	if err := translateErr(err); err != nil {
		if err == directory.ErrConflict {
			return directory.ErrPermissionDenied
		}
		return err
	}
	return nil
}

func (ms managerStore) Get(ctx context.Context) (*directory.SiteManager, error) {
	return scanManager(ms.q.QueryRowContext(ctx, managerSelect+` LIMIT 1`))
}

func (ms managerStore) GetByCitizen(ctx context.Context, citizenID string) (*directory.SiteManager, error) {
	return scanManager(ms.q.QueryRowContext(ctx, managerSelect+` WHERE m.citizen_id = $1`, citizenID))
}

func (ms managerStore) Update(ctx context.Context, id string, upd directory.StaffUpdate) (*directory.SiteManager, error) {
	set := newSetClause()
	set.maybe("manager_user_name", upd.UserName)
	set.maybe("first_email", upd.FirstEmail)
	set.maybe("second_email", upd.SecondEmail)
	set.maybe("password_hash", upd.PasswordHash)
	query, args := set.build("site_managers", id)
	if _, err := ms.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return scanManager(ms.q.QueryRowContext(ctx, managerSelect+` WHERE m.id = $1`, id))
}

// ---- administrators ----

type adminStore struct{ q querier }

var adminColumns = map[string]string{
	"AdministratorUserName": "a.administrator_user_name",
	"FirstEmail":            "a.first_email",
	"Citizen":               "a.citizen_id",
	"GranteeLimit":          "a.grantee_limit::text",
}

const adminSelect = `SELECT a.id, a.citizen_id, a.administrator_user_name, a.first_email,
	a.second_email, a.grantee_limit, a.password_hash, a.created, a.updated
	FROM administrators a`

func scanAdmin(row interface{ Scan(...any) error }) (*directory.Administrator, error) {
	var a directory.Administrator
	err := row.Scan(&a.ID, &a.CitizenID, &a.AdministratorUserName, &a.FirstEmail,
		&a.SecondEmail, &a.GranteeLimit, &a.PasswordHash, &a.Created, &a.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (as adminStore) Create(ctx context.Context, a *directory.Administrator) error {
	_, err := as.q.ExecContext(ctx, `INSERT INTO administrators
		(id, citizen_id, administrator_user_name, first_email, second_email,
		 grantee_limit, password_hash, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.CitizenID, a.AdministratorUserName, a.FirstEmail, a.SecondEmail,
		a.GranteeLimit, a.PasswordHash, a.Created, a.Updated)
	return translateErr(err)
}

func (as adminStore) GetByID(ctx context.Context, id string) (*directory.Administrator, error) {
	return scanAdmin(as.q.QueryRowContext(ctx, adminSelect+` WHERE a.id = $1`, id))
}

func (as adminStore) GetByCitizen(ctx context.Context, citizenID string) (*directory.Administrator, error) {
	return scanAdmin(as.q.QueryRowContext(ctx, adminSelect+` WHERE a.citizen_id = $1`, citizenID))
}

func (as adminStore) List(ctx context.Context, q directory.Query) ([]*directory.Administrator, error) {
	var c cond
	// An administrator falls inside a department scope when they own the
	// department, and inside an association scope when they own the
	// association's department.
	switch q.Scope.Kind {
	case directory.ScopeNone:
		c.clauses = append(c.clauses, "false")
	case directory.ScopeDepartment:
		c.add(`EXISTS (SELECT 1 FROM departments d WHERE d.id = ? AND d.administrator_id = a.id)`, q.Scope.DepartmentID)
	case directory.ScopeAssociation:
		c.add(`EXISTS (SELECT 1 FROM associations ad JOIN departments d ON ad.department_id = d.id
			WHERE ad.id = ? AND d.administrator_id = a.id)`, q.Scope.AssociationID)
	case directory.ScopeIDs:
		c.addIn("a.id", q.Scope.IDs)
	}
	c.applyFilters(q.Filters, adminColumns)
	rows, err := as.q.QueryContext(ctx, adminSelect+c.where()+` ORDER BY a.created, a.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Administrator
	for rows.Next() {
		item, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (as adminStore) Update(ctx context.Context, id string, upd directory.AdministratorUpdate) (*directory.Administrator, error) {
	set := newSetClause()
	set.maybe("administrator_user_name", upd.UserName)
	set.maybe("first_email", upd.FirstEmail)
	set.maybe("second_email", upd.SecondEmail)
	set.maybe("password_hash", upd.PasswordHash)
	set.maybeInt("grantee_limit", upd.GranteeLimit)
	query, args := set.build("administrators", id)
	if _, err := as.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return as.GetByID(ctx, id)
}

func (as adminStore) Delete(ctx context.Context, id string) error {
	return execDelete(ctx, as.q, "administrators", id)
}

// ---- departments ----

type departmentStore struct{ q querier }

var departmentColumns = map[string]string{
	"Title":         "d.title",
	"Email":         "d.email",
	"Telephone":     "d.telephone",
	"Administrator": "d.administrator_id",
}

const departmentSelect = `SELECT d.id, d.administrator_id, d.title, d.description,
	d.email, d.telephone, d.website, d.created, d.updated FROM departments d`

func scanDepartment(row interface{ Scan(...any) error }) (*directory.Department, error) {
	var d directory.Department
	err := row.Scan(&d.ID, &d.AdministratorID, &d.Title, &d.Description,
		&d.Email, &d.Telephone, &d.Website, &d.Created, &d.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &d, nil
}

func (ds departmentStore) Create(ctx context.Context, d *directory.Department) error {
	_, err := ds.q.ExecContext(ctx, `INSERT INTO departments
		(id, administrator_id, title, description, email, telephone, website, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.AdministratorID, d.Title, d.Description, d.Email, d.Telephone,
		d.Website, d.Created, d.Updated)
	return translateErr(err)
}

func (ds departmentStore) GetByID(ctx context.Context, id string) (*directory.Department, error) {
	return scanDepartment(ds.q.QueryRowContext(ctx, departmentSelect+` WHERE d.id = $1`, id))
}

func (ds departmentStore) GetByAdministrator(ctx context.Context, administratorID string) (*directory.Department, error) {
	return scanDepartment(ds.q.QueryRowContext(ctx, departmentSelect+` WHERE d.administrator_id = $1`, administratorID))
}

func (ds departmentStore) List(ctx context.Context, q directory.Query) ([]*directory.Department, error) {
	var c cond
	switch q.Scope.Kind {
	case directory.ScopeNone:
		c.clauses = append(c.clauses, "false")
	case directory.ScopeDepartment:
		c.add("d.id = ?", q.Scope.DepartmentID)
	case directory.ScopeAssociation:
		c.add(`EXISTS (SELECT 1 FROM associations ad WHERE ad.id = ? AND ad.department_id = d.id)`, q.Scope.AssociationID)
	case directory.ScopeIDs:
		c.addIn("d.id", q.Scope.IDs)
	}
	c.applyFilters(q.Filters, departmentColumns)
	rows, err := ds.q.QueryContext(ctx, departmentSelect+c.where()+` ORDER BY d.created, d.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Department
	for rows.Next() {
		item, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (ds departmentStore) Update(ctx context.Context, id string, upd directory.DepartmentUpdate) (*directory.Department, error) {
	set := newSetClause()
	set.maybe("title", upd.Title)
	set.maybe("description", upd.Description)
	set.maybe("email", upd.Email)
	set.maybe("telephone", upd.Telephone)
	set.maybe("website", upd.Website)
	query, args := set.build("departments", id)
	if _, err := ds.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return ds.GetByID(ctx, id)
}

func (ds departmentStore) Delete(ctx context.Context, id string) error {
	return execDelete(ctx, ds.q, "departments", id)
}

// ---- shared update/delete helpers ----

type setClause struct {
	cols []string
	args []any
}

func newSetClause() *setClause { return &setClause{} }

func (s *setClause) maybe(col string, v *string) {
	if v != nil {
		s.cols = append(s.cols, col)
		s.args = append(s.args, *v)
	}
}

func (s *setClause) maybeBool(col string, v *bool) {
	if v != nil {
		s.cols = append(s.cols, col)
		s.args = append(s.args, *v)
	}
}

func (s *setClause) maybeInt(col string, v *int) {
	if v != nil {
		s.cols = append(s.cols, col)
		s.args = append(s.args, *v)
	}
}

func (s *setClause) maybeTime(col string, v *time.Time) {
	if v != nil {
		s.cols = append(s.cols, col)
		s.args = append(s.args, *v)
	}
}

// maybeNullString writes NULL for the empty string so cleared references
// do not trip foreign keys.
func (s *setClause) maybeNullString(col string, v *string) {
	if v != nil {
		s.cols = append(s.cols, col)
		if *v == "" {
			s.args = append(s.args, nil)
		} else {
			s.args = append(s.args, *v)
		}
	}
}

// maybeNullTime writes the column even when the new value is NULL; the
// outer pointer distinguishes "leave alone" from "clear".
func (s *setClause) maybeNullTime(col string, v **time.Time) {
	if v != nil {
		s.cols = append(s.cols, col)
		if *v == nil {
			s.args = append(s.args, nil)
		} else {
			s.args = append(s.args, **v)
		}
	}
}

func (s *setClause) build(table, id string) (string, []any) {
	parts := make([]string, 0, len(s.cols)+1)
	for i, col := range s.cols {
		parts = append(parts, fmt.Sprintf("%s = $%d", col, i+1))
	}
	parts = append(parts, fmt.Sprintf("updated = $%d", len(s.cols)+1))
	args := append(s.args, time.Now().UTC())
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(parts, ", "), len(args)+1)
	return query, append(args, id)
}

func execDelete(ctx context.Context, q querier, table string, id string) error {
	res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return translateErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return directory.ErrNotFound
	}
	return nil
}
