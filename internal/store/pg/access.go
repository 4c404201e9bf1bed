package pg

import (
	"context"
	"strings"
	"time"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
)

// newSessionID feeds the upsert's insert arm; a conflicting row keeps its
// original id.
func newSessionID() string { return ids.New() }

// ---- requests ----

type requestStore struct{ q querier }

var requestColumns = map[string]string{
	"Subject":                    "r.subject",
	"Citizen":                    "r.citizen_id",
	"PublicService":              "r.public_service_id",
	"PublicService__Association": "s.association_id",
}

const requestSelect = `SELECT r.id, r.citizen_id, r.public_service_id, r.subject,
	r.message, r.grant_id, r.created, r.updated
	FROM requests r
	JOIN public_services s ON r.public_service_id = s.id
	JOIN associations a ON s.association_id = a.id`

func scanRequest(row interface{ Scan(...any) error }) (*directory.Request, error) {
	var r directory.Request
	err := row.Scan(&r.ID, &r.CitizenID, &r.PublicServiceID, &r.Subject,
		&r.Message, &r.GrantID, &r.Created, &r.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &r, nil
}

func (rs requestStore) Create(ctx context.Context, r *directory.Request) error {
	_, err := rs.q.ExecContext(ctx, `INSERT INTO requests
		(id, citizen_id, public_service_id, subject, message, grant_id, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.CitizenID, r.PublicServiceID, r.Subject, r.Message, r.GrantID,
		r.Created, r.Updated)
	return translateErr(err)
}

func (rs requestStore) GetByID(ctx context.Context, id string) (*directory.Request, error) {
	return scanRequest(rs.q.QueryRowContext(ctx, requestSelect+` WHERE r.id = $1`, id))
}

func (rs requestStore) List(ctx context.Context, q directory.Query) ([]*directory.Request, error) {
	var c cond
	c.applyScope(q.Scope, "a.department_id", "s.association_id", "r.id")
	c.applyFilters(q.Filters, requestColumns)
	rows, err := rs.q.QueryContext(ctx, requestSelect+c.where()+` ORDER BY r.created, r.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Request
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (rs requestStore) Update(ctx context.Context, id string, upd directory.RequestUpdate) (*directory.Request, error) {
	set := newSetClause()
	set.maybe("subject", upd.Subject)
	set.maybe("message", upd.Message)
	query, args := set.build("requests", id)
	if _, err := rs.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return rs.GetByID(ctx, id)
}

func (rs requestStore) Delete(ctx context.Context, id string) error {
	return execDelete(ctx, rs.q, "requests", id)
}

// ---- grants ----

type grantStore struct{ q querier }

var grantColumns = map[string]string{
	"Request": "g.request_id",
	"Grantee": "g.grantee_id",
	"Decline": "g.decline::text",
}

const grantSelect = `SELECT g.id, g.request_id, COALESCE(g.grantee_id, ''), g.message,
	g.decline, g.start_date, g.end_date, g.created, g.updated
	FROM grants g
	JOIN requests r ON g.request_id = r.id
	JOIN public_services s ON r.public_service_id = s.id
	JOIN associations a ON s.association_id = a.id`

func scanGrant(row interface{ Scan(...any) error }) (*directory.Grant, error) {
	var g directory.Grant
	err := row.Scan(&g.ID, &g.RequestID, &g.GranteeID, &g.Message,
		&g.Decline, &g.StartDate, &g.EndDate, &g.Created, &g.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &g, nil
}

func (gs grantStore) Create(ctx context.Context, g *directory.Grant) error {
	var granteeID any
	if g.GranteeID != "" {
		granteeID = g.GranteeID
	}
	_, err := gs.q.ExecContext(ctx, `INSERT INTO grants
		(id, request_id, grantee_id, message, decline, start_date, end_date, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, g.RequestID, granteeID, g.Message, g.Decline, g.StartDate, g.EndDate,
		g.Created, g.Updated)
	return translateErr(err)
}

func (gs grantStore) GetByID(ctx context.Context, id string) (*directory.Grant, error) {
	return scanGrant(gs.q.QueryRowContext(ctx, grantSelect+` WHERE g.id = $1`, id))
}

func (gs grantStore) GetByRequest(ctx context.Context, requestID string) (*directory.Grant, error) {
	return scanGrant(gs.q.QueryRowContext(ctx, grantSelect+` WHERE g.request_id = $1`, requestID))
}

func (gs grantStore) List(ctx context.Context, q directory.Query) ([]*directory.Grant, error) {
	var c cond
	c.applyScope(q.Scope, "a.department_id", "s.association_id", "g.id")
	c.applyFilters(q.Filters, grantColumns)
	rows, err := gs.q.QueryContext(ctx, grantSelect+c.where()+` ORDER BY g.created, g.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Grant
	for rows.Next() {
		item, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (gs grantStore) ListGrantedServiceIDs(ctx context.Context, citizenID string, now time.Time) ([]string, error) {
	// The effectiveness predicate inlined: not declined, started, not yet
	// ended, boundaries inclusive.
	rows, err := gs.q.QueryContext(ctx, `SELECT DISTINCT r.public_service_id
		FROM grants g
		JOIN requests r ON g.request_id = r.id
		WHERE r.citizen_id = $1
		  AND g.decline = false
		  AND g.start_date IS NOT NULL AND g.start_date <= $2
		  AND (g.end_date IS NULL OR g.end_date >= $2)`,
		citizenID, now)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, id)
	}
	return out, translateErr(rows.Err())
}

func (gs grantStore) Update(ctx context.Context, id string, upd directory.GrantUpdate) (*directory.Grant, error) {
	set := newSetClause()
	set.maybeNullString("grantee_id", upd.GranteeID)
	set.maybe("message", upd.Message)
	set.maybeBool("decline", upd.Decline)
	set.maybeNullTime("start_date", upd.StartDate)
	set.maybeNullTime("end_date", upd.EndDate)
	query, args := set.build("grants", id)
	if _, err := gs.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	return gs.GetByID(ctx, id)
}

// ---- permissions ----

type permissionStore struct{ q querier }

var permissionColumns = map[string]string{
	"Name":     "p.name",
	"Target":   "p.target_id",
	"Citizens": "pc.citizen_id",
}

const permissionSelect = `SELECT p.id, p.kind, p.target_id, p.name, p.description,
	COALESCE(string_agg(DISTINCT pc2.citizen_id, ','), '') AS citizen_ids,
	p.start_time, p.end_time, p.created, p.updated
	FROM permissions p
	LEFT JOIN permission_citizens pc ON pc.permission_id = p.id
	LEFT JOIN permission_citizens pc2 ON pc2.permission_id = p.id`

const permissionGroup = ` GROUP BY p.id, p.kind, p.target_id, p.name, p.description,
	p.start_time, p.end_time, p.created, p.updated`

func scanPermission(row interface{ Scan(...any) error }) (*directory.Permission, error) {
	var p directory.Permission
	var citizenIDs string
	err := row.Scan(&p.ID, &p.Kind, &p.TargetID, &p.Name, &p.Description,
		&citizenIDs, &p.StartTime, &p.EndTime, &p.Created, &p.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	if citizenIDs != "" {
		p.CitizenIDs = strings.Split(citizenIDs, ",")
	}
	return &p, nil
}

func (ps permissionStore) Create(ctx context.Context, p *directory.Permission) error {
	_, err := ps.q.ExecContext(ctx, `INSERT INTO permissions
		(id, kind, target_id, name, description, start_time, end_time, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, string(p.Kind), p.TargetID, p.Name, p.Description, p.StartTime, p.EndTime,
		p.Created, p.Updated)
	if err != nil {
		return translateErr(err)
	}
	for _, cid := range p.CitizenIDs {
		if _, err := ps.q.ExecContext(ctx,
			`INSERT INTO permission_citizens (permission_id, citizen_id) VALUES ($1,$2)`,
			p.ID, cid); err != nil {
			return translateErr(err)
		}
	}
	return nil
}

func (ps permissionStore) GetByID(ctx context.Context, kind directory.PermissionKind, id string) (*directory.Permission, error) {
	return scanPermission(ps.q.QueryRowContext(ctx,
		permissionSelect+` WHERE p.id = $1 AND p.kind = $2`+permissionGroup, id, string(kind)))
}

// permissionScope restricts by the target's position per kind.
func permissionScope(c *cond, kind directory.PermissionKind, sc directory.Scope) {
	switch sc.Kind {
	case directory.ScopeAll:
		return
	case directory.ScopeNone:
		c.clauses = append(c.clauses, "false")
		return
	case directory.ScopeIDs:
		c.addIn("p.id", sc.IDs)
		return
	}
	if sc.Kind != directory.ScopeDepartment {
		c.clauses = append(c.clauses, "false")
		return
	}
	switch kind {
	case directory.PermissionService:
		c.add(`EXISTS (SELECT 1 FROM public_services s JOIN associations a ON s.association_id = a.id
			WHERE s.id = p.target_id AND a.department_id = ?)`, sc.DepartmentID)
	case directory.PermissionAssociation:
		c.add(`EXISTS (SELECT 1 FROM associations a WHERE a.id = p.target_id AND a.department_id = ?)`, sc.DepartmentID)
	case directory.PermissionDepartment:
		c.add("p.target_id = ?", sc.DepartmentID)
	}
}

func (ps permissionStore) List(ctx context.Context, kind directory.PermissionKind, q directory.Query) ([]*directory.Permission, error) {
	var c cond
	c.add("p.kind = ?", string(kind))
	permissionScope(&c, kind, q.Scope)
	c.applyFilters(q.Filters, permissionColumns)
	rows, err := ps.q.QueryContext(ctx, permissionSelect+c.where()+permissionGroup+` ORDER BY p.created, p.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.Permission
	for rows.Next() {
		item, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

func (ps permissionStore) OpenTargetIDs(ctx context.Context, kind directory.PermissionKind, citizenID string, now time.Time) ([]string, error) {
	rows, err := ps.q.QueryContext(ctx, `SELECT DISTINCT p.target_id
		FROM permissions p
		JOIN permission_citizens pc ON pc.permission_id = p.id
		WHERE p.kind = $1 AND pc.citizen_id = $2
		  AND p.start_time <= $3 AND p.end_time >= $3`,
		string(kind), citizenID, now)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, id)
	}
	return out, translateErr(rows.Err())
}

func (ps permissionStore) Update(ctx context.Context, kind directory.PermissionKind, id string, upd directory.PermissionUpdate) (*directory.Permission, error) {
	if _, err := ps.GetByID(ctx, kind, id); err != nil {
		return nil, err
	}
	set := newSetClause()
	set.maybe("name", upd.Name)
	set.maybe("description", upd.Description)
	set.maybeTime("start_time", upd.StartTime)
	set.maybeTime("end_time", upd.EndTime)
	query, args := set.build("permissions", id)
	if _, err := ps.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	if upd.CitizenIDs != nil {
		if _, err := ps.q.ExecContext(ctx, `DELETE FROM permission_citizens WHERE permission_id = $1`, id); err != nil {
			return nil, translateErr(err)
		}
		for _, cid := range upd.CitizenIDs {
			if _, err := ps.q.ExecContext(ctx,
				`INSERT INTO permission_citizens (permission_id, citizen_id) VALUES ($1,$2)`,
				id, cid); err != nil {
				return nil, translateErr(err)
			}
		}
	}
	return ps.GetByID(ctx, kind, id)
}

func (ps permissionStore) Delete(ctx context.Context, kind directory.PermissionKind, id string) error {
	res, err := ps.q.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1 AND kind = $2`, id, string(kind))
	if err != nil {
		return translateErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// ---- service sessions ----

type sessionStore struct{ q querier }

var sessionColumns = map[string]string{
	"Citizen":       "ss.citizen_id",
	"Service":       "ss.service_id",
	"IpAddress":     "ss.ip_address",
	"EnforceExpiry": "ss.enforce_expiry::text",
}

const sessionSelect = `SELECT ss.id, ss.citizen_id, ss.service_id, ss.ip_address,
	ss.last_seen, ss.enforce_expiry, ss.created, ss.updated
	FROM service_sessions ss
	JOIN public_services s ON ss.service_id = s.id
	JOIN associations a ON s.association_id = a.id`

func scanSession(row interface{ Scan(...any) error }) (*directory.ServiceSession, error) {
	var s directory.ServiceSession
	err := row.Scan(&s.ID, &s.CitizenID, &s.ServiceID, &s.IPAddress,
		&s.LastSeen, &s.EnforceExpiry, &s.Created, &s.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &s, nil
}

func (ss sessionStore) Upsert(ctx context.Context, citizenID, serviceID, ip string, seen time.Time) (*directory.ServiceSession, error) {
	// The (citizen, service) unique key makes this race-free.
	row := ss.q.QueryRowContext(ctx, `INSERT INTO service_sessions
		(id, citizen_id, service_id, ip_address, last_seen, enforce_expiry, created, updated)
		VALUES ($1,$2,$3,$4,$5,false,$5,$5)
		ON CONFLICT (citizen_id, service_id) DO UPDATE
		SET ip_address = EXCLUDED.ip_address, last_seen = EXCLUDED.last_seen, updated = EXCLUDED.updated
		RETURNING id, citizen_id, service_id, ip_address, last_seen, enforce_expiry, created, updated`,
		newSessionID(), citizenID, serviceID, ip, seen)
	return scanSession(row)
}

func (ss sessionStore) GetByID(ctx context.Context, id string) (*directory.ServiceSession, error) {
	return scanSession(ss.q.QueryRowContext(ctx, sessionSelect+` WHERE ss.id = $1`, id))
}

func (ss sessionStore) List(ctx context.Context, q directory.Query) ([]*directory.ServiceSession, error) {
	var c cond
	c.applyScope(q.Scope, "a.department_id", "s.association_id", "ss.id")
	c.applyFilters(q.Filters, sessionColumns)
	rows, err := ss.q.QueryContext(ctx, sessionSelect+c.where()+` ORDER BY ss.created, ss.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.ServiceSession
	for rows.Next() {
		item, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, translateErr(rows.Err())
}

// ---- system logs ----

type logStore struct{ q querier }

var logColumns = map[string]string{
	"Citizen":    "l.citizen_id",
	"Method":     "l.method",
	"Object":     "l.object",
	"RecordId":   "l.record_id",
	"StatusCode": "l.status_code::text",
}

const logSelect = `SELECT l.id, l.role, l.citizen_id, l.actor_name, l.method, l.object,
	l.record_id, l.status_code, l.message, l.ip_address, l.created, l.updated
	FROM system_logs l`

func (ls logStore) Append(ctx context.Context, entry *directory.SystemLog) error {
	_, err := ls.q.ExecContext(ctx, `INSERT INTO system_logs
		(id, role, citizen_id, actor_name, method, object, record_id, status_code,
		 message, ip_address, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		entry.ID, string(entry.Role), entry.CitizenID, entry.ActorName, entry.Method,
		entry.Object, entry.RecordID, entry.StatusCode, entry.Message, entry.IPAddress,
		entry.Created, entry.Updated)
	return translateErr(err)
}

func (ls logStore) List(ctx context.Context, role directory.Role, q directory.Query) ([]*directory.SystemLog, error) {
	var c cond
	c.add("l.role = ?", string(role))
	if q.Scope.Kind == directory.ScopeNone {
		c.clauses = append(c.clauses, "false")
	}
	c.applyFilters(q.Filters, logColumns)
	rows, err := ls.q.QueryContext(ctx, logSelect+c.where()+` ORDER BY l.created, l.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.SystemLog
	for rows.Next() {
		var l directory.SystemLog
		if err := rows.Scan(&l.ID, &l.Role, &l.CitizenID, &l.ActorName, &l.Method,
			&l.Object, &l.RecordID, &l.StatusCode, &l.Message, &l.IPAddress,
			&l.Created, &l.Updated); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, &l)
	}
	return out, translateErr(rows.Err())
}

// ---- crons ----

type cronStore struct{ q querier }

const cronSelect = `SELECT c.id, c.cron_name, c.message, c.finished_at, c.success,
	c.failure, c.created, c.updated FROM system_crons c`

func (cs cronStore) Create(ctx context.Context, c *directory.SystemCron) error {
	_, err := cs.q.ExecContext(ctx, `INSERT INTO system_crons
		(id, cron_name, message, finished_at, success, failure, created, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.CronName, c.Message, c.FinishedAt, c.Success, c.Failure,
		c.Created, c.Updated)
	return translateErr(err)
}

func (cs cronStore) List(ctx context.Context, q directory.Query) ([]*directory.SystemCron, error) {
	var c cond
	if q.Scope.Kind == directory.ScopeNone {
		c.clauses = append(c.clauses, "false")
	}
	rows, err := cs.q.QueryContext(ctx, cronSelect+c.where()+` ORDER BY c.created, c.id`, c.args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*directory.SystemCron
	for rows.Next() {
		var item directory.SystemCron
		if err := rows.Scan(&item.ID, &item.CronName, &item.Message, &item.FinishedAt,
			&item.Success, &item.Failure, &item.Created, &item.Updated); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, &item)
	}
	return out, translateErr(rows.Err())
}

func (cs cronStore) Update(ctx context.Context, id string, upd directory.CronUpdate) (*directory.SystemCron, error) {
	set := newSetClause()
	set.maybe("message", upd.Message)
	set.maybeTime("finished_at", upd.FinishedAt)
	set.maybeBool("success", upd.Success)
	set.maybeBool("failure", upd.Failure)
	query, args := set.build("system_crons", id)
	if _, err := cs.q.ExecContext(ctx, query, args...); err != nil {
		return nil, translateErr(err)
	}
	var item directory.SystemCron
	err := cs.q.QueryRowContext(ctx, cronSelect+` WHERE c.id = $1`, id).
		Scan(&item.ID, &item.CronName, &item.Message, &item.FinishedAt,
			&item.Success, &item.Failure, &item.Created, &item.Updated)
	if err != nil {
		return nil, translateErr(err)
	}
	return &item, nil
}
