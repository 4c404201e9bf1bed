package pg

import (
	"context"
	"strings"

	"accessgov.org/internal/directory"
)

// ---- associations ----

type associationStore struct{ q querier }

var associationColumns = map[string]string{
	"Title":      "a.title",
	"Email":      "a.email",
	"Department": "a.department_id",
}

const associationSelect = `SELECT a.id, a.department_id, a.title, a.email, a.website,
	a.created, a.updated FROM associations a`

func scanAssociation(row interface{ Scan(...any) error }) (*directory.Association, error) {
	var a directory.Association
	err := row.Scan(&a.ID, &a.DepartmentID, &a.Title, &a.Email, &a.Website, &a.Created, &a.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (as associationStore) Create(ctx context.Context, a *directory.Association) error {
	_, err := as.q.ExecContext(ctx, `INSERT INTO associations
		(id, department_id, title, email, website, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.DepartmentID, a.Title, a.Email, a.Website, a.Created, a.Updated)
	return translateErr(err)
}

func (as associationStore) GetByID(ctx context.Context, id string) (*directory.Association, error) {
	return scanAssociation(as.q.QueryRowContext(ctx, associationSelect+` WHERE a.id = $1`, id))
}

func (as associationStore) List(ctx context.Context, q directory.Query) ([]*directory.Association, error) {
	var c cond
	c.applyScope(q.Scope, "a.department_id", "a.id", "a.id")
	c.applyFilters(q.Filters, associationColumns)
	rows, err := as.q.QueryContext(ctx, associationSelect+c.where()+` ORDER BY a.created, a.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Association
	for rows.Next() {
		item, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (as associationStore) Update(ctx context.Context, id string, upd directory.AssociationUpdate) (*directory.Association, error) {
	set := newSetClause()
	set.maybe("title", upd.Title)
	set.maybe("email", upd.Email)
	set.maybe("website", upd.Website)
	query, args := set.build("associations", id)
	if _, err := as.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return as.GetByID(ctx, id)
}

func (as associationStore) Delete(ctx context.Context, id string) error {
	return execDelete(ctx, as.q, "associations", id)
}

// ---- public services ----

type serviceStore struct{ q querier }

var serviceColumns = map[string]string{
	"Title":                   "s.title",
	"MachineName":             "s.machine_name",
	"Email":                   "s.email",
	"Restricted":              "s.restricted::text",
	"Visibility":              "s.visibility::text",
	"Association":             "s.association_id",
	"Association__Department": "a.department_id",
	"Grantee":                 "sg.grantee_id",
}

// The grantee membership list rides along as a comma-joined aggregate; the
// driver has no array scanning under database/sql.
const serviceSelect = `SELECT s.id, s.association_id, s.title, s.machine_name,
	s.description, s.email, s.url, s.restricted, s.visibility,
	COALESCE(string_agg(DISTINCT sg2.grantee_id, ','), '') AS grantee_ids,
	s.created, s.updated
	FROM public_services s
	JOIN associations a ON s.association_id = a.id
	LEFT JOIN service_grantees sg ON sg.service_id = s.id
	LEFT JOIN service_grantees sg2 ON sg2.service_id = s.id`

const serviceGroup = ` GROUP BY s.id, s.association_id, s.title, s.machine_name,
	s.description, s.email, s.url, s.restricted, s.visibility, s.created, s.updated`

func scanService(row interface{ Scan(...any) error }) (*directory.PublicService, error) {
	var s directory.PublicService
	var granteeIDs string
	err := row.Scan(&s.ID, &s.AssociationID, &s.Title, &s.MachineName, &s.Description,
		&s.Email, &s.URL, &s.Restricted, &s.Visibility, &granteeIDs, &s.Created, &s.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	if granteeIDs != "" {
		s.GranteeIDs = strings.Split(granteeIDs, ",")
	}
	return &s, nil
}

func (ss serviceStore) Create(ctx context.Context, s *directory.PublicService) error {
	_, err := ss.q.ExecContext(ctx, `INSERT INTO public_services
		(id, association_id, title, machine_name, description, email, url,
		 restricted, visibility, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.AssociationID, s.Title, s.MachineName, s.Description, s.Email, s.URL,
		s.Restricted, s.Visibility, s.Created, s.Updated)
	if err != nil {
		return translateErr(err)
	}
	for _, gid := range s.GranteeIDs {
		if _, err := ss.q.ExecContext(ctx,
			`INSERT INTO service_grantees (service_id, grantee_id) VALUES ($1,$2)`,
			s.ID, gid); err != nil {
			return translateErr(err)
		}
	}
	return nil
}

func (ss serviceStore) GetByID(ctx context.Context, id string) (*directory.PublicService, error) {
	return scanService(ss.q.QueryRowContext(ctx, serviceSelect+` WHERE s.id = $1`+serviceGroup, id))
}

func (ss serviceStore) List(ctx context.Context, q directory.Query) ([]*directory.PublicService, error) {
	var c cond
	c.applyScope(q.Scope, "a.department_id", "s.association_id", "s.id")
	c.applyFilters(q.Filters, serviceColumns)
	rows, err := ss.q.QueryContext(ctx, serviceSelect+c.where()+serviceGroup+` ORDER BY s.created, s.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.PublicService
	for rows.Next() {
		item, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (ss serviceStore) Update(ctx context.Context, id string, upd directory.ServiceUpdate) (*directory.PublicService, error) {
	set := newSetClause()
	set.maybe("title", upd.Title)
	set.maybe("description", upd.Description)
	set.maybe("email", upd.Email)
	set.maybe("url", upd.URL)
	set.maybeBool("restricted", upd.Restricted)
	set.maybeBool("visibility", upd.Visibility)
	query, args := set.build("public_services", id)
	if _, err := ss.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	if upd.GranteeIDs != nil {
		if _, err := ss.q.ExecContext(ctx, `DELETE FROM service_grantees WHERE service_id = $1`, id); err != nil {
			return nil, translateErr(err)
		}
		for _, gid := range upd.GranteeIDs {
			if _, err := ss.q.ExecContext(ctx,
				`INSERT INTO service_grantees (service_id, grantee_id) VALUES ($1,$2)`,
				id, gid); err != nil {
				return nil, translateErr(err)
			}
		}
	}
	return ss.GetByID(ctx, id)
}

func (ss serviceStore) Delete(ctx context.Context, id string) error {
	return execDelete(ctx, ss.q, "public_services", id)
}

// ---- grantees ----

type granteeStore struct{ q querier }

var granteeColumns = map[string]string{
	"GranteeUserName": "g.grantee_user_name",
	"FirstEmail":      "g.first_email",
	"Citizen":         "g.citizen_id",
	"Administrator":   "g.administrator_id",
	"Association":     "g.association_id",
}

const granteeSelect = `SELECT g.id, g.citizen_id, g.administrator_id, g.association_id,
	g.grantee_user_name, g.first_email, g.second_email, g.password_hash,
	g.created, g.updated FROM grantees g`

func scanGrantee(row interface{ Scan(...any) error }) (*directory.Grantee, error) {
	var g directory.Grantee
	err := row.Scan(&g.ID, &g.CitizenID, &g.AdministratorID, &g.AssociationID,
		&g.GranteeUserName, &g.FirstEmail, &g.SecondEmail, &g.PasswordHash,
		&g.Created, &g.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &g, nil
}

func (gs granteeStore) Create(ctx context.Context, g *directory.Grantee) error {
	_, err := gs.q.ExecContext(ctx, `INSERT INTO grantees
		(id, citizen_id, administrator_id, association_id, grantee_user_name,
		 first_email, second_email, password_hash, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		g.ID, g.CitizenID, g.AdministratorID, g.AssociationID, g.GranteeUserName,
		g.FirstEmail, g.SecondEmail, g.PasswordHash, g.Created, g.Updated)
	return translateErr(err)
}

func (gs granteeStore) GetByID(ctx context.Context, id string) (*directory.Grantee, error) {
	return scanGrantee(gs.q.QueryRowContext(ctx, granteeSelect+` WHERE g.id = $1`, id))
}

func (gs granteeStore) GetByCitizen(ctx context.Context, citizenID string) (*directory.Grantee, error) {
	return scanGrantee(gs.q.QueryRowContext(ctx, granteeSelect+` WHERE g.citizen_id = $1`, citizenID))
}

func (gs granteeStore) List(ctx context.Context, q directory.Query) ([]*directory.Grantee, error) {
	var c cond
	switch q.Scope.Kind {
	case directory.ScopeNone:
		c.clauses = append(c.clauses, "false")
	case directory.ScopeDepartment:
		c.add(`EXISTS (SELECT 1 FROM associations a WHERE a.id = g.association_id AND a.department_id = ?)`, q.Scope.DepartmentID)
	case directory.ScopeAssociation:
		c.add("g.association_id = ?", q.Scope.AssociationID)
	case directory.ScopeIDs:
		c.addIn("g.id", q.Scope.IDs)
	}
	c.applyFilters(q.Filters, granteeColumns)
	rows, err := gs.q.QueryContext(ctx, granteeSelect+c.where()+` ORDER BY g.created, g.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Grantee
	for rows.Next() {
		item, err := scanGrantee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (gs granteeStore) CountByAdministrator(ctx context.Context, administratorID string) (int, error) {
	var n int
	err := gs.q.QueryRowContext(ctx,
		`SELECT count(*) FROM grantees WHERE administrator_id = $1`, administratorID).Scan(&n)
	return n, translateErr(err)
}

func (gs granteeStore) Update(ctx context.Context, id string, upd directory.StaffUpdate) (*directory.Grantee, error) {
	set := newSetClause()
	set.maybe("grantee_user_name", upd.UserName)
	set.maybe("first_email", upd.FirstEmail)
	set.maybe("second_email", upd.SecondEmail)
	set.maybe("password_hash", upd.PasswordHash)
	query, args := set.build("grantees", id)
	if _, err := gs.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return gs.GetByID(ctx, id)
}

func (gs granteeStore) Delete(ctx context.Context, id string) error {
	return execDelete(ctx, gs.q, "grantees", id)
}
