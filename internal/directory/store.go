package directory

import (
	"context"
	"time"
)

// Store describes the persistence operations the directory needs. Both the
// postgres store and the in-memory store used by tests implement it.
type Store interface {
	Citizens() CitizenStore
	SiteManagers() SiteManagerStore
	Administrators() AdministratorStore
	Departments() DepartmentStore
	Associations() AssociationStore
	Services() ServiceStore
	Grantees() GranteeStore
	Requests() RequestStore
	Grants() GrantStore
	Permissions() PermissionStore
	Sessions() SessionStore
	Logs() LogStore
	Crons() CronStore

	// InTx runs fn against a transactional view of the store. Any error
	// rolls the whole sequence back. Reads within fn see a consistent
	// snapshot.
	InTx(ctx context.Context, fn func(Store) error) error
}

// CitizenUpdate carries the patchable citizen fields; nil means unchanged.
type CitizenUpdate struct {
	UserName      *string
	FirstName     *string
	SecondName    *string
	Surname       *string
	Email         *string
	EmailVerified *bool
	Active        *bool
	PasswordHash  *string
}

type CitizenStore interface {
	Create(ctx context.Context, c *Citizen) error
	GetByID(ctx context.Context, id string) (*Citizen, error)
	GetByEmail(ctx context.Context, email string) (*Citizen, error)
	List(ctx context.Context, q Query) ([]*Citizen, error)
	Update(ctx context.Context, id string, upd CitizenUpdate) (*Citizen, error)
	Delete(ctx context.Context, id string) error
}

type SiteManagerStore interface {
	// Create fails with ErrPermissionDenied when a manager already exists;
	// the existence check and the insert share one transaction.
	Create(ctx context.Context, m *SiteManager) error
	Get(ctx context.Context) (*SiteManager, error)
	GetByCitizen(ctx context.Context, citizenID string) (*SiteManager, error)
	Update(ctx context.Context, id string, upd StaffUpdate) (*SiteManager, error)
}

// StaffUpdate is shared by the three staff wrappers; they patch the same
// credential and contact fields.
type StaffUpdate struct {
	UserName     *string
	FirstEmail   *string
	SecondEmail  *string
	PasswordHash *string
}

type AdministratorUpdate struct {
	StaffUpdate
	GranteeLimit *int
}

type AdministratorStore interface {
	Create(ctx context.Context, a *Administrator) error
	GetByID(ctx context.Context, id string) (*Administrator, error)
	GetByCitizen(ctx context.Context, citizenID string) (*Administrator, error)
	List(ctx context.Context, q Query) ([]*Administrator, error)
	Update(ctx context.Context, id string, upd AdministratorUpdate) (*Administrator, error)
	Delete(ctx context.Context, id string) error
}

type DepartmentUpdate struct {
	Title       *string
	Description *string
	Email       *string
	Telephone   *string
	Website     *string
}

type DepartmentStore interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id string) (*Department, error)
	GetByAdministrator(ctx context.Context, administratorID string) (*Department, error)
	List(ctx context.Context, q Query) ([]*Department, error)
	Update(ctx context.Context, id string, upd DepartmentUpdate) (*Department, error)
	Delete(ctx context.Context, id string) error
}

type AssociationUpdate struct {
	Title   *string
	Email   *string
	Website *string
}

type AssociationStore interface {
	Create(ctx context.Context, a *Association) error
	GetByID(ctx context.Context, id string) (*Association, error)
	List(ctx context.Context, q Query) ([]*Association, error)
	Update(ctx context.Context, id string, upd AssociationUpdate) (*Association, error)
	Delete(ctx context.Context, id string) error
}

type ServiceUpdate struct {
	Title       *string
	Description *string
	Email       *string
	URL         *string
	Restricted  *bool
	Visibility  *bool
	GranteeIDs  []string
}

type ServiceStore interface {
	// Create persists the service together with its grantee links; a
	// failure on the links leaves no service row behind.
	Create(ctx context.Context, s *PublicService) error
	GetByID(ctx context.Context, id string) (*PublicService, error)
	List(ctx context.Context, q Query) ([]*PublicService, error)
	Update(ctx context.Context, id string, upd ServiceUpdate) (*PublicService, error)
	Delete(ctx context.Context, id string) error
}

type GranteeStore interface {
	Create(ctx context.Context, g *Grantee) error
	GetByID(ctx context.Context, id string) (*Grantee, error)
	GetByCitizen(ctx context.Context, citizenID string) (*Grantee, error)
	List(ctx context.Context, q Query) ([]*Grantee, error)
	CountByAdministrator(ctx context.Context, administratorID string) (int, error)
	Update(ctx context.Context, id string, upd StaffUpdate) (*Grantee, error)
	Delete(ctx context.Context, id string) error
}

type RequestUpdate struct {
	Subject *string
	Message *string
}

type RequestStore interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, q Query) ([]*Request, error)
	Update(ctx context.Context, id string, upd RequestUpdate) (*Request, error)
	Delete(ctx context.Context, id string) error
}

type GrantUpdate struct {
	GranteeID *string
	Message   *string
	Decline   *bool
	StartDate **time.Time
	EndDate   **time.Time
}

type GrantStore interface {
	Create(ctx context.Context, g *Grant) error
	GetByID(ctx context.Context, id string) (*Grant, error)
	GetByRequest(ctx context.Context, requestID string) (*Grant, error)
	List(ctx context.Context, q Query) ([]*Grant, error)
	// ListGrantedServiceIDs returns the service ids behind grants held by
	// the citizen that are effective at now.
	ListGrantedServiceIDs(ctx context.Context, citizenID string, now time.Time) ([]string, error)
	Update(ctx context.Context, id string, upd GrantUpdate) (*Grant, error)
}

type PermissionUpdate struct {
	Name        *string
	Description *string
	CitizenIDs  []string
	StartTime   *time.Time
	EndTime     *time.Time
}

type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	GetByID(ctx context.Context, kind PermissionKind, id string) (*Permission, error)
	List(ctx context.Context, kind PermissionKind, q Query) ([]*Permission, error)
	// OpenTargetIDs returns target ids of permissions of the given kind
	// naming the citizen whose window covers now.
	OpenTargetIDs(ctx context.Context, kind PermissionKind, citizenID string, now time.Time) ([]string, error)
	Update(ctx context.Context, kind PermissionKind, id string, upd PermissionUpdate) (*Permission, error)
	Delete(ctx context.Context, kind PermissionKind, id string) error
}

type SessionStore interface {
	// Upsert refreshes LastSeen and IP for the (citizen, service) pair,
	// creating the row on first contact. Never produces duplicates.
	Upsert(ctx context.Context, citizenID, serviceID, ip string, seen time.Time) (*ServiceSession, error)
	GetByID(ctx context.Context, id string) (*ServiceSession, error)
	List(ctx context.Context, q Query) ([]*ServiceSession, error)
}

type LogStore interface {
	Append(ctx context.Context, entry *SystemLog) error
	List(ctx context.Context, role Role, q Query) ([]*SystemLog, error)
}

type CronUpdate struct {
	Message    *string
	FinishedAt *time.Time
	Success    *bool
	Failure    *bool
}

type CronStore interface {
	Create(ctx context.Context, c *SystemCron) error
	List(ctx context.Context, q Query) ([]*SystemCron, error)
	Update(ctx context.Context, id string, upd CronUpdate) (*SystemCron, error)
}
