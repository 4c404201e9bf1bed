// Package memory implements the directory store in process memory. It
// backs tests and local development; the postgres store is the production
// implementation of the same interface.
//
// Stored structs are copy-on-write: updates replace the stored pointer
// with a modified copy, never mutate in place. Transactions exploit this
// by snapshotting the maps and restoring them on rollback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"accessgov.org/internal/directory"
)

type state struct {
	citizens    map[string]*directory.Citizen
	managers    map[string]*directory.SiteManager
	admins      map[string]*directory.Administrator
	departments map[string]*directory.Department
	assocs      map[string]*directory.Association
	services    map[string]*directory.PublicService
	grantees    map[string]*directory.Grantee
	requests    map[string]*directory.Request
	grants      map[string]*directory.Grant
	permissions map[string]*directory.Permission
	sessions    map[string]*directory.ServiceSession
	logs        []*directory.SystemLog
	crons       map[string]*directory.SystemCron
}

func newState() *state {
	return &state{
		citizens:    map[string]*directory.Citizen{},
		managers:    map[string]*directory.SiteManager{},
		admins:      map[string]*directory.Administrator{},
		departments: map[string]*directory.Department{},
		assocs:      map[string]*directory.Association{},
		services:    map[string]*directory.PublicService{},
		grantees:    map[string]*directory.Grantee{},
		requests:    map[string]*directory.Request{},
		grants:      map[string]*directory.Grant{},
		permissions: map[string]*directory.Permission{},
		sessions:    map[string]*directory.ServiceSession{},
		crons:       map[string]*directory.SystemCron{},
	}
}

// clone copies the maps, not the records. Safe because records are never
// mutated in place.
func (st *state) clone() *state {
	c := newState()
	for k, v := range st.citizens {
		c.citizens[k] = v
	}
	for k, v := range st.managers {
		c.managers[k] = v
	}
	for k, v := range st.admins {
		c.admins[k] = v
	}
	for k, v := range st.departments {
		c.departments[k] = v
	}
	for k, v := range st.assocs {
		c.assocs[k] = v
	}
	for k, v := range st.services {
		c.services[k] = v
	}
	for k, v := range st.grantees {
		c.grantees[k] = v
	}
	for k, v := range st.requests {
		c.requests[k] = v
	}
	for k, v := range st.grants {
		c.grants[k] = v
	}
	for k, v := range st.permissions {
		c.permissions[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	c.logs = append([]*directory.SystemLog(nil), st.logs...)
	for k, v := range st.crons {
		c.crons[k] = v
	}
	return c
}

// view pairs the state with a lock strategy: the root store takes the
// mutex, a transactional view runs lock-free under the transaction's hold.
type view struct {
	st   **state
	lock func() func()
}

// Store is the root, concurrency-safe store.
type Store struct {
	mu sync.Mutex
	st *state
	v  view
}

// NewStore builds an empty in-memory store.
func NewStore() *Store {
	s := &Store{st: newState()}
	s.v = view{
		st: &s.st,
		lock: func() func() {
			s.mu.Lock()
			return s.mu.Unlock
		},
	}
	return s
}

func (s *Store) Citizens() directory.CitizenStore             { return citizenStore{&s.v} }
func (s *Store) SiteManagers() directory.SiteManagerStore     { return managerStore{&s.v} }
func (s *Store) Administrators() directory.AdministratorStore { return adminStore{&s.v} }
func (s *Store) Departments() directory.DepartmentStore       { return departmentStore{&s.v} }
func (s *Store) Associations() directory.AssociationStore     { return associationStore{&s.v} }
func (s *Store) Services() directory.ServiceStore             { return serviceStore{&s.v} }
func (s *Store) Grantees() directory.GranteeStore             { return granteeStore{&s.v} }
func (s *Store) Requests() directory.RequestStore             { return requestStore{&s.v} }
func (s *Store) Grants() directory.GrantStore                 { return grantStore{&s.v} }
func (s *Store) Permissions() directory.PermissionStore       { return permissionStore{&s.v} }
func (s *Store) Sessions() directory.SessionStore             { return sessionStore{&s.v} }
func (s *Store) Logs() directory.LogStore                     { return logStore{&s.v} }
func (s *Store) Crons() directory.CronStore                   { return cronStore{&s.v} }

// InTx snapshots the state, runs fn under the lock, and restores the
// snapshot when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(directory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.st.clone()
	tx := &txStore{v: view{st: &s.st, lock: func() func() { return func() {} }}}
	if err := fn(tx); err != nil {
		s.st = snap
		return err
	}
	return nil
}

// txStore is the lock-free view handed to InTx callbacks.
type txStore struct {
	v view
}

func (t *txStore) Citizens() directory.CitizenStore             { return citizenStore{&t.v} }
func (t *txStore) SiteManagers() directory.SiteManagerStore     { return managerStore{&t.v} }
func (t *txStore) Administrators() directory.AdministratorStore { return adminStore{&t.v} }
func (t *txStore) Departments() directory.DepartmentStore       { return departmentStore{&t.v} }
func (t *txStore) Associations() directory.AssociationStore     { return associationStore{&t.v} }
func (t *txStore) Services() directory.ServiceStore             { return serviceStore{&t.v} }
func (t *txStore) Grantees() directory.GranteeStore             { return granteeStore{&t.v} }
func (t *txStore) Requests() directory.RequestStore             { return requestStore{&t.v} }
func (t *txStore) Grants() directory.GrantStore                 { return grantStore{&t.v} }
func (t *txStore) Permissions() directory.PermissionStore       { return permissionStore{&t.v} }
func (t *txStore) Sessions() directory.SessionStore             { return sessionStore{&t.v} }
func (t *txStore) Logs() directory.LogStore                     { return logStore{&t.v} }
func (t *txStore) Crons() directory.CronStore                   { return cronStore{&t.v} }

// InTx nests flatly: the outer transaction already owns the lock and the
// snapshot, so the inner callback just runs.
func (t *txStore) InTx(ctx context.Context, fn func(directory.Store) error) error {
	return fn(t)
}

func sortByCreated[T any](items []*T, created func(*T) time.Time, id func(*T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci.Equal(cj) {
			return id(items[i]) < id(items[j])
		}
		return ci.Before(cj)
	})
}
