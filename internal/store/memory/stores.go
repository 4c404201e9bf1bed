package memory

import (
	"context"
	"strings"
	"time"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
)

func nowUTC() time.Time { return time.Now().UTC() }

// ---- citizens ----

type citizenStore struct{ v *view }

func (cs citizenStore) Create(ctx context.Context, c *directory.Citizen) error {
	unlock := cs.v.lock()
	defer unlock()
	st := *cs.v.st
	for _, other := range st.citizens {
		if strings.EqualFold(other.UserName, c.UserName) || strings.EqualFold(other.Email, c.Email) {
			return directory.ErrConflict
		}
	}
	cp := *c
	st.citizens[c.ID] = &cp
	return nil
}

func (cs citizenStore) GetByID(ctx context.Context, id string) (*directory.Citizen, error) {
	unlock := cs.v.lock()
	defer unlock()
	c, ok := (*cs.v.st).citizens[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (cs citizenStore) GetByEmail(ctx context.Context, email string) (*directory.Citizen, error) {
	unlock := cs.v.lock()
	defer unlock()
	for _, c := range (*cs.v.st).citizens {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (cs citizenStore) List(ctx context.Context, q directory.Query) ([]*directory.Citizen, error) {
	unlock := cs.v.lock()
	defer unlock()
	st := *cs.v.st
	var out []*directory.Citizen
	for _, c := range st.citizens {
		switch q.Scope.Kind {
		case directory.ScopeNone:
			continue
		case directory.ScopeIDs:
			if !containsID(q.Scope.IDs, c.ID) {
				continue
			}
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.citizenField(c, f) }) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sortByCreated(out, func(c *directory.Citizen) time.Time { return c.Created }, func(c *directory.Citizen) string { return c.ID })
	return out, nil
}

func (cs citizenStore) Update(ctx context.Context, id string, upd directory.CitizenUpdate) (*directory.Citizen, error) {
	unlock := cs.v.lock()
	defer unlock()
	st := *cs.v.st
	c, ok := st.citizens[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *c
	if upd.UserName != nil {
		cp.UserName = *upd.UserName
	}
	if upd.FirstName != nil {
		cp.FirstName = *upd.FirstName
	}
	if upd.SecondName != nil {
		cp.SecondName = *upd.SecondName
	}
	if upd.Surname != nil {
		cp.Surname = *upd.Surname
	}
	if upd.Email != nil {
		cp.Email = *upd.Email
	}
	if upd.EmailVerified != nil {
		cp.EmailVerified = *upd.EmailVerified
	}
	if upd.Active != nil {
		cp.Active = *upd.Active
	}
	if upd.PasswordHash != nil {
		cp.PasswordHash = *upd.PasswordHash
	}
	cp.Updated = nowUTC()
	st.citizens[id] = &cp
	out := cp
	return &out, nil
}

func (cs citizenStore) Delete(ctx context.Context, id string) error {
	unlock := cs.v.lock()
	defer unlock()
	st := *cs.v.st
	if _, ok := st.citizens[id]; !ok {
		return directory.ErrNotFound
	}
	delete(st.citizens, id)
	return nil
}

// ---- site manager ----

type managerStore struct{ v *view }

func (ms managerStore) Create(ctx context.Context, m *directory.SiteManager) error {
	unlock := ms.v.lock()
	defer unlock()
	st := *ms.v.st
	if len(st.managers) > 0 {
		return directory.ErrPermissionDenied
	}
	cp := *m
	st.managers[m.ID] = &cp
	return nil
}

func (ms managerStore) Get(ctx context.Context) (*directory.SiteManager, error) {
	unlock := ms.v.lock()
	defer unlock()
	for _, m := range (*ms.v.st).managers {
		cp := *m
		return &cp, nil
	}
	return nil, directory.ErrNotFound
}

func (ms managerStore) GetByCitizen(ctx context.Context, citizenID string) (*directory.SiteManager, error) {
	unlock := ms.v.lock()
	defer unlock()
	for _, m := range (*ms.v.st).managers {
		if m.CitizenID == citizenID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (ms managerStore) Update(ctx context.Context, id string, upd directory.StaffUpdate) (*directory.SiteManager, error) {
	unlock := ms.v.lock()
	defer unlock()
	st := *ms.v.st
	m, ok := st.managers[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *m
	if upd.UserName != nil {
		cp.ManagerUserName = *upd.UserName
	}
	if upd.FirstEmail != nil {
		cp.FirstEmail = *upd.FirstEmail
	}
	if upd.SecondEmail != nil {
		cp.SecondEmail = *upd.SecondEmail
	}
	if upd.PasswordHash != nil {
		cp.PasswordHash = *upd.PasswordHash
	}
	cp.Updated = nowUTC()
	st.managers[id] = &cp
	out := cp
	return &out, nil
}

// ---- administrators ----

type adminStore struct{ v *view }

func (as adminStore) Create(ctx context.Context, a *directory.Administrator) error {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	for _, other := range st.admins {
		if strings.EqualFold(other.AdministratorUserName, a.AdministratorUserName) || other.CitizenID == a.CitizenID {
			return directory.ErrConflict
		}
	}
	cp := *a
	st.admins[a.ID] = &cp
	return nil
}

func (as adminStore) GetByID(ctx context.Context, id string) (*directory.Administrator, error) {
	unlock := as.v.lock()
	defer unlock()
	a, ok := (*as.v.st).admins[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (as adminStore) GetByCitizen(ctx context.Context, citizenID string) (*directory.Administrator, error) {
	unlock := as.v.lock()
	defer unlock()
	for _, a := range (*as.v.st).admins {
		if a.CitizenID == citizenID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

// adminInScope: an administrator is inside a department scope when they
// own that department, and inside an association scope when they own the
// association's department.
func (st *state) adminInScope(a *directory.Administrator, sc directory.Scope) bool {
	switch sc.Kind {
	case directory.ScopeAll:
		return true
	case directory.ScopeNone:
		return false
	case directory.ScopeDepartment:
		if d, ok := st.departments[sc.DepartmentID]; ok {
			return d.AdministratorID == a.ID
		}
		return false
	case directory.ScopeAssociation:
		if assoc, ok := st.assocs[sc.AssociationID]; ok {
			if d, ok := st.departments[assoc.DepartmentID]; ok {
				return d.AdministratorID == a.ID
			}
		}
		return false
	case directory.ScopeIDs:
		return containsID(sc.IDs, a.ID)
	default:
		return false
	}
}

func (as adminStore) List(ctx context.Context, q directory.Query) ([]*directory.Administrator, error) {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	var out []*directory.Administrator
	for _, a := range st.admins {
		if !st.adminInScope(a, q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.adminField(a, f) }) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sortByCreated(out, func(a *directory.Administrator) time.Time { return a.Created }, func(a *directory.Administrator) string { return a.ID })
	return out, nil
}

func (as adminStore) Update(ctx context.Context, id string, upd directory.AdministratorUpdate) (*directory.Administrator, error) {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	a, ok := st.admins[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *a
	if upd.UserName != nil {
		cp.AdministratorUserName = *upd.UserName
	}
	if upd.FirstEmail != nil {
		cp.FirstEmail = *upd.FirstEmail
	}
	if upd.SecondEmail != nil {
		cp.SecondEmail = *upd.SecondEmail
	}
	if upd.PasswordHash != nil {
		cp.PasswordHash = *upd.PasswordHash
	}
	if upd.GranteeLimit != nil {
		cp.GranteeLimit = *upd.GranteeLimit
	}
	cp.Updated = nowUTC()
	st.admins[id] = &cp
	out := cp
	return &out, nil
}

func (as adminStore) Delete(ctx context.Context, id string) error {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	if _, ok := st.admins[id]; !ok {
		return directory.ErrNotFound
	}
	delete(st.admins, id)
	return nil
}

// ---- departments ----

type departmentStore struct{ v *view }

func (ds departmentStore) Create(ctx context.Context, d *directory.Department) error {
	unlock := ds.v.lock()
	defer unlock()
	st := *ds.v.st
	for _, other := range st.departments {
		if strings.EqualFold(other.Title, d.Title) || other.AdministratorID == d.AdministratorID {
			return directory.ErrConflict
		}
	}
	cp := *d
	st.departments[d.ID] = &cp
	return nil
}

func (ds departmentStore) GetByID(ctx context.Context, id string) (*directory.Department, error) {
	unlock := ds.v.lock()
	defer unlock()
	d, ok := (*ds.v.st).departments[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (ds departmentStore) GetByAdministrator(ctx context.Context, administratorID string) (*directory.Department, error) {
	unlock := ds.v.lock()
	defer unlock()
	for _, d := range (*ds.v.st).departments {
		if d.AdministratorID == administratorID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (st *state) departmentInScope(d *directory.Department, sc directory.Scope) bool {
	switch sc.Kind {
	case directory.ScopeAll:
		return true
	case directory.ScopeNone:
		return false
	case directory.ScopeDepartment:
		return d.ID == sc.DepartmentID
	case directory.ScopeAssociation:
		if assoc, ok := st.assocs[sc.AssociationID]; ok {
			return d.ID == assoc.DepartmentID
		}
		return false
	case directory.ScopeIDs:
		return containsID(sc.IDs, d.ID)
	default:
		return false
	}
}

func (ds departmentStore) List(ctx context.Context, q directory.Query) ([]*directory.Department, error) {
	unlock := ds.v.lock()
	defer unlock()
	st := *ds.v.st
	var out []*directory.Department
	for _, d := range st.departments {
		if !st.departmentInScope(d, q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.departmentField(d, f) }) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sortByCreated(out, func(d *directory.Department) time.Time { return d.Created }, func(d *directory.Department) string { return d.ID })
	return out, nil
}

func (ds departmentStore) Update(ctx context.Context, id string, upd directory.DepartmentUpdate) (*directory.Department, error) {
	unlock := ds.v.lock()
	defer unlock()
	st := *ds.v.st
	d, ok := st.departments[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *d
	if upd.Title != nil {
		cp.Title = *upd.Title
	}
	if upd.Description != nil {
		cp.Description = *upd.Description
	}
	if upd.Email != nil {
		cp.Email = *upd.Email
	}
	if upd.Telephone != nil {
		cp.Telephone = *upd.Telephone
	}
	if upd.Website != nil {
		cp.Website = *upd.Website
	}
	cp.Updated = nowUTC()
	st.departments[id] = &cp
	out := cp
	return &out, nil
}

func (ds departmentStore) Delete(ctx context.Context, id string) error {
	unlock := ds.v.lock()
	defer unlock()
	st := *ds.v.st
	if _, ok := st.departments[id]; !ok {
		return directory.ErrNotFound
	}
	delete(st.departments, id)
	return nil
}

// ---- associations ----

type associationStore struct{ v *view }

func (as associationStore) Create(ctx context.Context, a *directory.Association) error {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	for _, other := range st.assocs {
		if strings.EqualFold(other.Title, a.Title) {
			return directory.ErrConflict
		}
	}
	cp := *a
	st.assocs[a.ID] = &cp
	return nil
}

func (as associationStore) GetByID(ctx context.Context, id string) (*directory.Association, error) {
	unlock := as.v.lock()
	defer unlock()
	a, ok := (*as.v.st).assocs[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (st *state) assocInScope(a *directory.Association, sc directory.Scope) bool {
	switch sc.Kind {
	case directory.ScopeAll:
		return true
	case directory.ScopeNone:
		return false
	case directory.ScopeDepartment:
		return a.DepartmentID == sc.DepartmentID
	case directory.ScopeAssociation:
		return a.ID == sc.AssociationID
	case directory.ScopeIDs:
		return containsID(sc.IDs, a.ID)
	default:
		return false
	}
}

func (as associationStore) List(ctx context.Context, q directory.Query) ([]*directory.Association, error) {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	var out []*directory.Association
	for _, a := range st.assocs {
		if !st.assocInScope(a, q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.associationField(a, f) }) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sortByCreated(out, func(a *directory.Association) time.Time { return a.Created }, func(a *directory.Association) string { return a.ID })
	return out, nil
}

func (as associationStore) Update(ctx context.Context, id string, upd directory.AssociationUpdate) (*directory.Association, error) {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	a, ok := st.assocs[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *a
	if upd.Title != nil {
		cp.Title = *upd.Title
	}
	if upd.Email != nil {
		cp.Email = *upd.Email
	}
	if upd.Website != nil {
		cp.Website = *upd.Website
	}
	cp.Updated = nowUTC()
	st.assocs[id] = &cp
	out := cp
	return &out, nil
}

func (as associationStore) Delete(ctx context.Context, id string) error {
	unlock := as.v.lock()
	defer unlock()
	st := *as.v.st
	if _, ok := st.assocs[id]; !ok {
		return directory.ErrNotFound
	}
	delete(st.assocs, id)
	return nil
}

// ---- services ----

type serviceStore struct{ v *view }

func (ss serviceStore) Create(ctx context.Context, s *directory.PublicService) error {
	unlock := ss.v.lock()
	defer unlock()
	st := *ss.v.st
	for _, other := range st.services {
		if strings.EqualFold(other.Title, s.Title) || strings.EqualFold(other.MachineName, s.MachineName) {
			return directory.ErrConflict
		}
	}
	cp := *s
	cp.GranteeIDs = append([]string(nil), s.GranteeIDs...)
	st.services[s.ID] = &cp
	return nil
}

func (ss serviceStore) GetByID(ctx context.Context, id string) (*directory.PublicService, error) {
	unlock := ss.v.lock()
	defer unlock()
	s, ok := (*ss.v.st).services[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *s
	cp.GranteeIDs = append([]string(nil), s.GranteeIDs...)
	return &cp, nil
}

func (ss serviceStore) List(ctx context.Context, q directory.Query) ([]*directory.PublicService, error) {
	unlock := ss.v.lock()
	defer unlock()
	st := *ss.v.st
	var out []*directory.PublicService
	for _, s := range st.services {
		if !st.inServiceScope(s, q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.serviceField(s, f) }) {
			continue
		}
		cp := *s
		cp.GranteeIDs = append([]string(nil), s.GranteeIDs...)
		out = append(out, &cp)
	}
	sortByCreated(out, func(s *directory.PublicService) time.Time { return s.Created }, func(s *directory.PublicService) string { return s.ID })
	return out, nil
}

func (ss serviceStore) Update(ctx context.Context, id string, upd directory.ServiceUpdate) (*directory.PublicService, error) {
	unlock := ss.v.lock()
	defer unlock()
	st := *ss.v.st
	s, ok := st.services[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *s
	cp.GranteeIDs = append([]string(nil), s.GranteeIDs...)
	if upd.Title != nil {
		cp.Title = *upd.Title
	}
	if upd.Description != nil {
		cp.Description = *upd.Description
	}
	if upd.Email != nil {
		cp.Email = *upd.Email
	}
	if upd.URL != nil {
		cp.URL = *upd.URL
	}
	if upd.Restricted != nil {
		cp.Restricted = *upd.Restricted
	}
	if upd.Visibility != nil {
		cp.Visibility = *upd.Visibility
	}
	if upd.GranteeIDs != nil {
		cp.GranteeIDs = append([]string(nil), upd.GranteeIDs...)
	}
	cp.Updated = nowUTC()
	st.services[id] = &cp
	out := cp
	return &out, nil
}

func (ss serviceStore) Delete(ctx context.Context, id string) error {
	unlock := ss.v.lock()
	defer unlock()
	st := *ss.v.st
	if _, ok := st.services[id]; !ok {
		return directory.ErrNotFound
	}
	delete(st.services, id)
	return nil
}

// ---- grantees ----

type granteeStore struct{ v *view }

func (gs granteeStore) Create(ctx context.Context, g *directory.Grantee) error {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	for _, other := range st.grantees {
		if strings.EqualFold(other.GranteeUserName, g.GranteeUserName) || other.CitizenID == g.CitizenID {
			return directory.ErrConflict
		}
	}
	cp := *g
	st.grantees[g.ID] = &cp
	return nil
}

func (gs granteeStore) GetByID(ctx context.Context, id string) (*directory.Grantee, error) {
	unlock := gs.v.lock()
	defer unlock()
	g, ok := (*gs.v.st).grantees[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (gs granteeStore) GetByCitizen(ctx context.Context, citizenID string) (*directory.Grantee, error) {
	unlock := gs.v.lock()
	defer unlock()
	for _, g := range (*gs.v.st).grantees {
		if g.CitizenID == citizenID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (st *state) granteeInScope(g *directory.Grantee, sc directory.Scope) bool {
	switch sc.Kind {
	case directory.ScopeAll:
		return true
	case directory.ScopeNone:
		return false
	case directory.ScopeDepartment:
		if assoc, ok := st.assocs[g.AssociationID]; ok {
			return assoc.DepartmentID == sc.DepartmentID
		}
		return false
	case directory.ScopeAssociation:
		return g.AssociationID == sc.AssociationID
	case directory.ScopeIDs:
		return containsID(sc.IDs, g.ID)
	default:
		return false
	}
}

func (gs granteeStore) List(ctx context.Context, q directory.Query) ([]*directory.Grantee, error) {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	var out []*directory.Grantee
	for _, g := range st.grantees {
		if !st.granteeInScope(g, q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.granteeField(g, f) }) {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sortByCreated(out, func(g *directory.Grantee) time.Time { return g.Created }, func(g *directory.Grantee) string { return g.ID })
	return out, nil
}

func (gs granteeStore) CountByAdministrator(ctx context.Context, administratorID string) (int, error) {
	unlock := gs.v.lock()
	defer unlock()
	n := 0
	for _, g := range (*gs.v.st).grantees {
		if g.AdministratorID == administratorID {
			n++
		}
	}
	return n, nil
}

func (gs granteeStore) Update(ctx context.Context, id string, upd directory.StaffUpdate) (*directory.Grantee, error) {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	g, ok := st.grantees[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *g
	if upd.UserName != nil {
		cp.GranteeUserName = *upd.UserName
	}
	if upd.FirstEmail != nil {
		cp.FirstEmail = *upd.FirstEmail
	}
	if upd.SecondEmail != nil {
		cp.SecondEmail = *upd.SecondEmail
	}
	if upd.PasswordHash != nil {
		cp.PasswordHash = *upd.PasswordHash
	}
	cp.Updated = nowUTC()
	st.grantees[id] = &cp
	out := cp
	return &out, nil
}

func (gs granteeStore) Delete(ctx context.Context, id string) error {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	if _, ok := st.grantees[id]; !ok {
		return directory.ErrNotFound
	}
	delete(st.grantees, id)
	return nil
}

// ---- requests ----

type requestStore struct{ v *view }

func (rs requestStore) Create(ctx context.Context, r *directory.Request) error {
	unlock := rs.v.lock()
	defer unlock()
	st := *rs.v.st
	if _, ok := st.services[r.PublicServiceID]; !ok {
		return directory.ErrConflict
	}
	cp := *r
	st.requests[r.ID] = &cp
	return nil
}

func (rs requestStore) GetByID(ctx context.Context, id string) (*directory.Request, error) {
	unlock := rs.v.lock()
	defer unlock()
	r, ok := (*rs.v.st).requests[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (rs requestStore) List(ctx context.Context, q directory.Query) ([]*directory.Request, error) {
	unlock := rs.v.lock()
	defer unlock()
	st := *rs.v.st
	var out []*directory.Request
	for _, r := range st.requests {
		if q.Scope.Kind == directory.ScopeIDs {
			if !containsID(q.Scope.IDs, r.ID) {
				continue
			}
		} else if !st.inServiceScope(st.requestService(r), q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.requestField(r, f) }) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortByCreated(out, func(r *directory.Request) time.Time { return r.Created }, func(r *directory.Request) string { return r.ID })
	return out, nil
}

func (rs requestStore) Update(ctx context.Context, id string, upd directory.RequestUpdate) (*directory.Request, error) {
	unlock := rs.v.lock()
	defer unlock()
	st := *rs.v.st
	r, ok := st.requests[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *r
	if upd.Subject != nil {
		cp.Subject = *upd.Subject
	}
	if upd.Message != nil {
		cp.Message = *upd.Message
	}
	cp.Updated = nowUTC()
	st.requests[id] = &cp
	out := cp
	return &out, nil
}

func (rs requestStore) Delete(ctx context.Context, id string) error {
	unlock := rs.v.lock()
	defer unlock()
	st := *rs.v.st
	if _, ok := st.requests[id]; !ok {
		return directory.ErrNotFound
	}
	delete(st.requests, id)
	// The paired grant follows the request, mirroring the cascade the
	// relational schema declares.
	for gid, g := range st.grants {
		if g.RequestID == id {
			delete(st.grants, gid)
		}
	}
	return nil
}

// ---- grants ----

type grantStore struct{ v *view }

func (gs grantStore) Create(ctx context.Context, g *directory.Grant) error {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	if _, ok := st.requests[g.RequestID]; !ok {
		return directory.ErrConflict
	}
	cp := *g
	st.grants[g.ID] = &cp
	return nil
}

func (gs grantStore) GetByID(ctx context.Context, id string) (*directory.Grant, error) {
	unlock := gs.v.lock()
	defer unlock()
	g, ok := (*gs.v.st).grants[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (gs grantStore) GetByRequest(ctx context.Context, requestID string) (*directory.Grant, error) {
	unlock := gs.v.lock()
	defer unlock()
	for _, g := range (*gs.v.st).grants {
		if g.RequestID == requestID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (gs grantStore) List(ctx context.Context, q directory.Query) ([]*directory.Grant, error) {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	var out []*directory.Grant
	for _, g := range st.grants {
		if q.Scope.Kind == directory.ScopeIDs {
			if !containsID(q.Scope.IDs, g.ID) {
				continue
			}
		} else if !st.inServiceScope(st.grantService(g), q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.grantField(g, f) }) {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sortByCreated(out, func(g *directory.Grant) time.Time { return g.Created }, func(g *directory.Grant) string { return g.ID })
	return out, nil
}

func (gs grantStore) ListGrantedServiceIDs(ctx context.Context, citizenID string, now time.Time) ([]string, error) {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	seen := map[string]struct{}{}
	var out []string
	for _, g := range st.grants {
		if !g.GrantedAt(now) {
			continue
		}
		req, ok := st.requests[g.RequestID]
		if !ok || req.CitizenID != citizenID {
			continue
		}
		if _, dup := seen[req.PublicServiceID]; dup {
			continue
		}
		seen[req.PublicServiceID] = struct{}{}
		out = append(out, req.PublicServiceID)
	}
	return out, nil
}

func (gs grantStore) Update(ctx context.Context, id string, upd directory.GrantUpdate) (*directory.Grant, error) {
	unlock := gs.v.lock()
	defer unlock()
	st := *gs.v.st
	g, ok := st.grants[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *g
	if upd.GranteeID != nil {
		cp.GranteeID = *upd.GranteeID
	}
	if upd.Message != nil {
		cp.Message = *upd.Message
	}
	if upd.Decline != nil {
		cp.Decline = *upd.Decline
	}
	if upd.StartDate != nil {
		cp.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		cp.EndDate = *upd.EndDate
	}
	cp.Updated = nowUTC()
	st.grants[id] = &cp
	out := cp
	return &out, nil
}

// ---- permissions ----

type permissionStore struct{ v *view }

func (ps permissionStore) Create(ctx context.Context, p *directory.Permission) error {
	unlock := ps.v.lock()
	defer unlock()
	st := *ps.v.st
	cp := *p
	cp.CitizenIDs = append([]string(nil), p.CitizenIDs...)
	st.permissions[p.ID] = &cp
	return nil
}

func (ps permissionStore) GetByID(ctx context.Context, kind directory.PermissionKind, id string) (*directory.Permission, error) {
	unlock := ps.v.lock()
	defer unlock()
	p, ok := (*ps.v.st).permissions[id]
	if !ok || p.Kind != kind {
		return nil, directory.ErrNotFound
	}
	cp := *p
	cp.CitizenIDs = append([]string(nil), p.CitizenIDs...)
	return &cp, nil
}

// permissionInScope answers whether the permission's target falls inside
// the caller's hierarchy, per target kind.
func (st *state) permissionInScope(p *directory.Permission, sc directory.Scope) bool {
	switch sc.Kind {
	case directory.ScopeAll:
		return true
	case directory.ScopeNone:
		return false
	case directory.ScopeIDs:
		return containsID(sc.IDs, p.ID)
	}
	switch p.Kind {
	case directory.PermissionService:
		return st.inServiceScope(st.services[p.TargetID], sc)
	case directory.PermissionAssociation:
		if assoc, ok := st.assocs[p.TargetID]; ok {
			return st.assocInScope(assoc, sc)
		}
		return false
	case directory.PermissionDepartment:
		if d, ok := st.departments[p.TargetID]; ok {
			return st.departmentInScope(d, sc)
		}
		return false
	default:
		return false
	}
}

func (ps permissionStore) List(ctx context.Context, kind directory.PermissionKind, q directory.Query) ([]*directory.Permission, error) {
	unlock := ps.v.lock()
	defer unlock()
	st := *ps.v.st
	var out []*directory.Permission
	for _, p := range st.permissions {
		if p.Kind != kind {
			continue
		}
		if !st.permissionInScope(p, q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.permissionField(p, f) }) {
			continue
		}
		cp := *p
		cp.CitizenIDs = append([]string(nil), p.CitizenIDs...)
		out = append(out, &cp)
	}
	sortByCreated(out, func(p *directory.Permission) time.Time { return p.Created }, func(p *directory.Permission) string { return p.ID })
	return out, nil
}

func (ps permissionStore) OpenTargetIDs(ctx context.Context, kind directory.PermissionKind, citizenID string, now time.Time) ([]string, error) {
	unlock := ps.v.lock()
	defer unlock()
	st := *ps.v.st
	seen := map[string]struct{}{}
	var out []string
	for _, p := range st.permissions {
		if p.Kind != kind || !p.OpenAt(now) {
			continue
		}
		if !containsID(p.CitizenIDs, citizenID) {
			continue
		}
		if _, dup := seen[p.TargetID]; dup {
			continue
		}
		seen[p.TargetID] = struct{}{}
		out = append(out, p.TargetID)
	}
	return out, nil
}

func (ps permissionStore) Update(ctx context.Context, kind directory.PermissionKind, id string, upd directory.PermissionUpdate) (*directory.Permission, error) {
	unlock := ps.v.lock()
	defer unlock()
	st := *ps.v.st
	p, ok := st.permissions[id]
	if !ok || p.Kind != kind {
		return nil, directory.ErrNotFound
	}
	cp := *p
	cp.CitizenIDs = append([]string(nil), p.CitizenIDs...)
	if upd.Name != nil {
		cp.Name = *upd.Name
	}
	if upd.Description != nil {
		cp.Description = *upd.Description
	}
	if upd.CitizenIDs != nil {
		cp.CitizenIDs = append([]string(nil), upd.CitizenIDs...)
	}
	if upd.StartTime != nil {
		cp.StartTime = *upd.StartTime
	}
	if upd.EndTime != nil {
		cp.EndTime = *upd.EndTime
	}
	cp.Updated = nowUTC()
	st.permissions[id] = &cp
	out := cp
	return &out, nil
}

func (ps permissionStore) Delete(ctx context.Context, kind directory.PermissionKind, id string) error {
	unlock := ps.v.lock()
	defer unlock()
	st := *ps.v.st
	p, ok := st.permissions[id]
	if !ok || p.Kind != kind {
		return directory.ErrNotFound
	}
	delete(st.permissions, id)
	return nil
}

// ---- sessions ----

type sessionStore struct{ v *view }

func (ss sessionStore) Upsert(ctx context.Context, citizenID, serviceID, ip string, seen time.Time) (*directory.ServiceSession, error) {
	unlock := ss.v.lock()
	defer unlock()
	st := *ss.v.st
	for _, s := range st.sessions {
		if s.CitizenID == citizenID && s.ServiceID == serviceID {
			cp := *s
			cp.IPAddress = ip
			cp.LastSeen = seen
			cp.Updated = seen
			st.sessions[s.ID] = &cp
			out := cp
			return &out, nil
		}
	}
	sess := &directory.ServiceSession{
		ID:        ids.New(),
		CitizenID: citizenID,
		ServiceID: serviceID,
		IPAddress: ip,
		LastSeen:  seen,
		Created:   seen,
		Updated:   seen,
	}
	st.sessions[sess.ID] = sess
	out := *sess
	return &out, nil
}

func (ss sessionStore) GetByID(ctx context.Context, id string) (*directory.ServiceSession, error) {
	unlock := ss.v.lock()
	defer unlock()
	s, ok := (*ss.v.st).sessions[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (ss sessionStore) List(ctx context.Context, q directory.Query) ([]*directory.ServiceSession, error) {
	unlock := ss.v.lock()
	defer unlock()
	st := *ss.v.st
	var out []*directory.ServiceSession
	for _, s := range st.sessions {
		if q.Scope.Kind == directory.ScopeIDs {
			if !containsID(q.Scope.IDs, s.ID) {
				continue
			}
		} else if !st.inServiceScope(st.services[s.ServiceID], q.Scope) {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.sessionField(s, f) }) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sortByCreated(out, func(s *directory.ServiceSession) time.Time { return s.Created }, func(s *directory.ServiceSession) string { return s.ID })
	return out, nil
}

// ---- system logs ----

type logStore struct{ v *view }

func (ls logStore) Append(ctx context.Context, entry *directory.SystemLog) error {
	unlock := ls.v.lock()
	defer unlock()
	st := *ls.v.st
	cp := *entry
	st.logs = append(st.logs, &cp)
	return nil
}

func (ls logStore) List(ctx context.Context, role directory.Role, q directory.Query) ([]*directory.SystemLog, error) {
	unlock := ls.v.lock()
	defer unlock()
	st := *ls.v.st
	if q.Scope.Kind == directory.ScopeNone {
		return nil, nil
	}
	var out []*directory.SystemLog
	for _, l := range st.logs {
		if l.Role != role {
			continue
		}
		if !applyFilters(q.Filters, func(f string) []string { return st.logField(l, f) }) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

// ---- crons ----

type cronStore struct{ v *view }

func (cs cronStore) Create(ctx context.Context, c *directory.SystemCron) error {
	unlock := cs.v.lock()
	defer unlock()
	st := *cs.v.st
	cp := *c
	st.crons[c.ID] = &cp
	return nil
}

func (cs cronStore) List(ctx context.Context, q directory.Query) ([]*directory.SystemCron, error) {
	unlock := cs.v.lock()
	defer unlock()
	st := *cs.v.st
	if q.Scope.Kind == directory.ScopeNone {
		return nil, nil
	}
	var out []*directory.SystemCron
	for _, c := range st.crons {
		cp := *c
		out = append(out, &cp)
	}
	sortByCreated(out, func(c *directory.SystemCron) time.Time { return c.Created }, func(c *directory.SystemCron) string { return c.ID })
	return out, nil
}

func (cs cronStore) Update(ctx context.Context, id string, upd directory.CronUpdate) (*directory.SystemCron, error) {
	unlock := cs.v.lock()
	defer unlock()
	st := *cs.v.st
	c, ok := st.crons[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *c
	if upd.Message != nil {
		cp.Message = *upd.Message
	}
	if upd.FinishedAt != nil {
		t := *upd.FinishedAt
		cp.FinishedAt = &t
	}
	if upd.Success != nil {
		cp.Success = *upd.Success
	}
	if upd.Failure != nil {
		cp.Failure = *upd.Failure
	}
	cp.Updated = nowUTC()
	st.crons[id] = &cp
	out := cp
	return &out, nil
}
