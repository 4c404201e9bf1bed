package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accessgov.org/internal/auth"
	"accessgov.org/internal/ids"
)

// Service implements the directory's business rules on top of a Store.
// The clock is injectable so time-dependent predicates can be pinned in
// tests. SessionTTL of zero means session expiry is not enforced.
type Service struct {
	store      Store
	now        func() time.Time
	sessionTTL time.Duration
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionTTL sets the service-session expiry window. Zero disables
// expiry rather than failing.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// NewService constructs the directory service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read paths that apply their own
// scope, such as the visibility engine.
func (s *Service) Store() Store { return s.store }

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.now().UTC() }

// SessionTTL returns the configured session expiry window (zero when
// expiry is not enforced).
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// SessionExpired evaluates the session expiry predicate under the
// configured TTL.
func (s *Service) SessionExpired(sess *ServiceSession) bool {
	return sess.ExpiredAt(s.Now(), s.sessionTTL)
}

// ---- identity & role resolution ----

// ResolveFacet loads the citizen behind a verified token subject and
// attaches the facet the handler requires. Every failure is the uniform
// ErrAuthenticationFailed; callers learn nothing about which facet exists.
func (s *Service) ResolveFacet(ctx context.Context, citizenID string, role Role) (Facet, error) {
	citizen, err := s.store.Citizens().GetByID(ctx, citizenID)
	if err != nil || !citizen.Active {
		return Facet{}, ErrAuthenticationFailed
	}
	facet := Facet{Role: role, Citizen: citizen}
	switch role {
	case RoleCitizen:
		return facet, nil
	case RoleGrantee:
		grantee, err := s.store.Grantees().GetByCitizen(ctx, citizenID)
		if err != nil {
			return Facet{}, ErrAuthenticationFailed
		}
		facet.Grantee = grantee
		return facet, nil
	case RoleAdministrator:
		admin, err := s.store.Administrators().GetByCitizen(ctx, citizenID)
		if err != nil {
			return Facet{}, ErrAuthenticationFailed
		}
		facet.Administrator = admin
		if dept, err := s.store.Departments().GetByAdministrator(ctx, admin.ID); err == nil {
			facet.Department = dept
		}
		return facet, nil
	case RoleManager:
		manager, err := s.store.SiteManagers().GetByCitizen(ctx, citizenID)
		if err != nil {
			return Facet{}, ErrAuthenticationFailed
		}
		facet.SiteManager = manager
		return facet, nil
	default:
		return Facet{}, ErrAuthenticationFailed
	}
}

// AuthenticateCitizen checks the primary credential. Failures are uniform.
func (s *Service) AuthenticateCitizen(ctx context.Context, email, password string) (*Citizen, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrAuthenticationFailed
	}
	citizen, err := s.store.Citizens().GetByEmail(ctx, email)
	if err != nil || !citizen.Active {
		return nil, ErrAuthenticationFailed
	}
	if err := auth.VerifyPassword(citizen.PasswordHash, password); err != nil {
		return nil, ErrAuthenticationFailed
	}
	return citizen, nil
}

// AuthenticateStaff checks the primary credential and then the
// role-specific secondary credential pair. Any mismatch, including an
// absent facet, yields the same ErrAuthenticationFailed.
func (s *Service) AuthenticateStaff(ctx context.Context, role Role, email, password, roleUserName, rolePassword string) (Facet, error) {
	citizen, err := s.AuthenticateCitizen(ctx, email, password)
	if err != nil {
		return Facet{}, ErrAuthenticationFailed
	}
	facet, err := s.ResolveFacet(ctx, citizen.ID, role)
	if err != nil {
		return Facet{}, ErrAuthenticationFailed
	}
	var wantName, wantHash string
	switch role {
	case RoleGrantee:
		wantName, wantHash = facet.Grantee.GranteeUserName, facet.Grantee.PasswordHash
	case RoleAdministrator:
		wantName, wantHash = facet.Administrator.AdministratorUserName, facet.Administrator.PasswordHash
	case RoleManager:
		wantName, wantHash = facet.SiteManager.ManagerUserName, facet.SiteManager.PasswordHash
	default:
		return Facet{}, ErrAuthenticationFailed
	}
	if strings.TrimSpace(roleUserName) != wantName {
		return Facet{}, ErrAuthenticationFailed
	}
	if err := auth.VerifyPassword(wantHash, rolePassword); err != nil {
		return Facet{}, ErrAuthenticationFailed
	}
	return facet, nil
}

// ---- registration and staff creation ----

// RegisterCitizenInput is the self-registration payload.
type RegisterCitizenInput struct {
	UserName   string
	FirstName  string
	SecondName string
	Surname    string
	NationalID string
	DOB        time.Time
	Email      string
	Password   string
}

// RegisterCitizen creates the root identity.
func (s *Service) RegisterCitizen(ctx context.Context, in RegisterCitizenInput) (*Citizen, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Surname = strings.TrimSpace(in.Surname)
	in.NationalID = strings.TrimSpace(in.NationalID)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	switch {
	case in.UserName == "":
		return nil, fmt.Errorf("%w: UserName is required", ErrValidation)
	case in.FirstName == "":
		return nil, fmt.Errorf("%w: FirstName is required", ErrValidation)
	case in.Surname == "":
		return nil, fmt.Errorf("%w: Surname is required", ErrValidation)
	case in.NationalID == "":
		return nil, fmt.Errorf("%w: NationalId is required", ErrValidation)
	case in.DOB.IsZero():
		return nil, fmt.Errorf("%w: DOB is required", ErrValidation)
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return nil, fmt.Errorf("%w: valid Email is required", ErrValidation)
	case len(in.Password) < 8:
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	citizen := &Citizen{
		ID:           ids.New(),
		UserName:     in.UserName,
		FirstName:    in.FirstName,
		SecondName:   strings.TrimSpace(in.SecondName),
		Surname:      in.Surname,
		NationalID:   in.NationalID,
		DOB:          in.DOB,
		Email:        in.Email,
		Active:       true,
		PasswordHash: hash,
		Created:      now,
		Updated:      now,
	}
	if err := s.store.Citizens().Create(ctx, citizen); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: UserName or Email already taken", ErrValidation)
		}
		return nil, err
	}
	return citizen, nil
}

// StaffInput is the shared creation payload for the three staff wrappers.
type StaffInput struct {
	CitizenID   string
	UserName    string
	FirstEmail  string
	SecondEmail string
	Password    string
}

func (s *Service) staffCommon(ctx context.Context, in *StaffInput) (string, error) {
	in.CitizenID = strings.TrimSpace(in.CitizenID)
	in.UserName = strings.TrimSpace(in.UserName)
	in.FirstEmail = strings.TrimSpace(strings.ToLower(in.FirstEmail))
	switch {
	case in.CitizenID == "":
		return "", fmt.Errorf("%w: Citizen is required", ErrValidation)
	case in.UserName == "":
		return "", fmt.Errorf("%w: role username is required", ErrValidation)
	case in.FirstEmail == "" || !strings.Contains(in.FirstEmail, "@"):
		return "", fmt.Errorf("%w: valid FirstEmail is required", ErrValidation)
	case len(in.Password) < 8:
		return "", fmt.Errorf("%w: role password must be at least 8 characters", ErrValidation)
	}
	if _, err := s.store.Citizens().GetByID(ctx, in.CitizenID); err != nil {
		return "", fmt.Errorf("%w: Citizen not found", ErrValidation)
	}
	return auth.HashPassword(in.Password)
}

// CreateSiteManager creates the single site manager. A second attempt is
// rejected with ErrPermissionDenied by the store, whose existence check
// shares the insert transaction.
func (s *Service) CreateSiteManager(ctx context.Context, in StaffInput) (*SiteManager, error) {
	hash, err := s.staffCommon(ctx, &in)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	manager := &SiteManager{
		ID:              ids.New(),
		CitizenID:       in.CitizenID,
		ManagerUserName: in.UserName,
		FirstEmail:      in.FirstEmail,
		SecondEmail:     strings.TrimSpace(in.SecondEmail),
		PasswordHash:    hash,
		Created:         now,
		Updated:         now,
	}
	if err := s.store.SiteManagers().Create(ctx, manager); err != nil {
		return nil, err
	}
	return manager, nil
}

// AdministratorInput extends StaffInput with the grantee budget.
type AdministratorInput struct {
	StaffInput
	GranteeLimit int
}

// CreateAdministrator creates an administrator wrapper. Site manager only;
// the handler gates the role.
func (s *Service) CreateAdministrator(ctx context.Context, in AdministratorInput) (*Administrator, error) {
	if in.GranteeLimit < MinGranteeLimit || in.GranteeLimit > MaxGranteeLimit {
		return nil, fmt.Errorf("%w: GranteeLimit must be between %d and %d", ErrValidation, MinGranteeLimit, MaxGranteeLimit)
	}
	hash, err := s.staffCommon(ctx, &in.StaffInput)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	admin := &Administrator{
		ID:                    ids.New(),
		CitizenID:             in.CitizenID,
		AdministratorUserName: in.UserName,
		FirstEmail:            in.FirstEmail,
		SecondEmail:           strings.TrimSpace(in.SecondEmail),
		GranteeLimit:          in.GranteeLimit,
		PasswordHash:          hash,
		Created:               now,
		Updated:               now,
	}
	if err := s.store.Administrators().Create(ctx, admin); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: administrator username or email already taken", ErrValidation)
		}
		return nil, err
	}
	return admin, nil
}

// DepartmentInput is the department creation payload.
type DepartmentInput struct {
	AdministratorID string
	Title           string
	Description     string
	Email           string
	Telephone       string
	Website         string
}

// CreateDepartment assigns a department to an administrator. One
// department per administrator; the duplicate surfaces as a validation
// failure.
func (s *Service) CreateDepartment(ctx context.Context, in DepartmentInput) (*Department, error) {
	in.AdministratorID = strings.TrimSpace(in.AdministratorID)
	in.Title = strings.TrimSpace(in.Title)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	switch {
	case in.AdministratorID == "":
		return nil, fmt.Errorf("%w: Administrator is required", ErrValidation)
	case in.Title == "":
		return nil, fmt.Errorf("%w: Title is required", ErrValidation)
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return nil, fmt.Errorf("%w: valid Email is required", ErrValidation)
	}
	if _, err := s.store.Administrators().GetByID(ctx, in.AdministratorID); err != nil {
		return nil, fmt.Errorf("%w: Administrator not found", ErrValidation)
	}
	now := s.Now()
	dept := &Department{
		ID:              ids.New(),
		AdministratorID: in.AdministratorID,
		Title:           in.Title,
		Description:     strings.TrimSpace(in.Description),
		Email:           in.Email,
		Telephone:       strings.TrimSpace(in.Telephone),
		Website:         strings.TrimSpace(in.Website),
		Created:         now,
		Updated:         now,
	}
	if err := s.store.Departments().Create(ctx, dept); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: department title taken or administrator already owns one", ErrValidation)
		}
		return nil, err
	}
	return dept, nil
}

// AssociationInput carries either an existing department reference or an
// inline department to create first.
type AssociationInput struct {
	DepartmentID     string
	InlineDepartment *DepartmentInput
	Title            string
	Email            string
	Website          string
}

// CreateAssociation creates an association under a department. An
// administrator caller is pinned to their own department; a site manager
// may reference any department or create one inline. The inline create and
// the association insert share one transaction.
func (s *Service) CreateAssociation(ctx context.Context, facet Facet, in AssociationInput) (*Association, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: Title is required", ErrValidation)
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return nil, fmt.Errorf("%w: valid Email is required", ErrValidation)
	}

	if facet.Role == RoleAdministrator {
		if facet.Department == nil {
			return nil, ErrMethodNotAllowed
		}
		in.DepartmentID = facet.Department.ID
		in.InlineDepartment = nil
	}

	var created *Association
	err := s.store.InTx(ctx, func(tx Store) error {
		txSvc := s.withStore(tx)
		deptID := strings.TrimSpace(in.DepartmentID)
		if deptID == "" && in.InlineDepartment != nil {
			dept, err := txSvc.CreateDepartment(ctx, *in.InlineDepartment)
			if err != nil {
				return err
			}
			deptID = dept.ID
		}
		if deptID == "" {
			return fmt.Errorf("%w: Department is required", ErrValidation)
		}
		if _, err := tx.Departments().GetByID(ctx, deptID); err != nil {
			return fmt.Errorf("%w: Department not found", ErrValidation)
		}
		now := s.Now()
		assoc := &Association{
			ID:           ids.New(),
			DepartmentID: deptID,
			Title:        in.Title,
			Email:        in.Email,
			Website:      strings.TrimSpace(in.Website),
			Created:      now,
			Updated:      now,
		}
		if err := tx.Associations().Create(ctx, assoc); err != nil {
			if errors.Is(err, ErrConflict) {
				return fmt.Errorf("%w: association title already taken", ErrValidation)
			}
			return err
		}
		created = assoc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GranteeInput is the grantee creation payload.
type GranteeInput struct {
	StaffInput
	AdministratorID string
	AssociationID   string
}

// CreateGrantee creates a grantee under an administrator and association.
// An administrator caller is pinned to themselves. Enforced here: the
// association's department must match the administrator's department, and
// the administrator's GranteeLimit caps how many grantees they own.
func (s *Service) CreateGrantee(ctx context.Context, facet Facet, in GranteeInput) (*Grantee, error) {
	if facet.Role == RoleAdministrator {
		in.AdministratorID = facet.Administrator.ID
	}
	in.AdministratorID = strings.TrimSpace(in.AdministratorID)
	in.AssociationID = strings.TrimSpace(in.AssociationID)
	if in.AdministratorID == "" {
		return nil, fmt.Errorf("%w: Administrator is required", ErrValidation)
	}
	if in.AssociationID == "" {
		return nil, fmt.Errorf("%w: Association is required", ErrValidation)
	}
	hash, err := s.staffCommon(ctx, &in.StaffInput)
	if err != nil {
		return nil, err
	}

	var created *Grantee
	err = s.store.InTx(ctx, func(tx Store) error {
		admin, err := tx.Administrators().GetByID(ctx, in.AdministratorID)
		if err != nil {
			return fmt.Errorf("%w: Administrator not found", ErrValidation)
		}
		assoc, err := tx.Associations().GetByID(ctx, in.AssociationID)
		if err != nil {
			return fmt.Errorf("%w: Association not found", ErrValidation)
		}
		dept, err := tx.Departments().GetByAdministrator(ctx, admin.ID)
		if err != nil {
			return ErrMethodNotAllowed
		}
		if assoc.DepartmentID != dept.ID {
			return fmt.Errorf("%w: Association department %s does not match Administrator department %s", ErrValidation, assoc.DepartmentID, dept.ID)
		}
		count, err := tx.Grantees().CountByAdministrator(ctx, admin.ID)
		if err != nil {
			return err
		}
		if count >= admin.GranteeLimit {
			return fmt.Errorf("%w: grantee limit of %d reached", ErrValidation, admin.GranteeLimit)
		}
		now := s.Now()
		grantee := &Grantee{
			ID:              ids.New(),
			CitizenID:       in.CitizenID,
			AdministratorID: admin.ID,
			AssociationID:   assoc.ID,
			GranteeUserName: in.UserName,
			FirstEmail:      in.FirstEmail,
			SecondEmail:     strings.TrimSpace(in.SecondEmail),
			PasswordHash:    hash,
			Created:         now,
			Updated:         now,
		}
		if err := tx.Grantees().Create(ctx, grantee); err != nil {
			if errors.Is(err, ErrConflict) {
				return fmt.Errorf("%w: grantee username or email already taken", ErrValidation)
			}
			return err
		}
		created = grantee
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ServiceInput carries the public service payload. Association and the
// grantee set may arrive as references or as inline objects to create
// first; everything lands in one transaction.
type ServiceInput struct {
	AssociationID     string
	InlineAssociation *AssociationInput
	Title             string
	MachineName       string
	Description       string
	Email             string
	URL               string
	Restricted        bool
	Visibility        bool
	GranteeIDs        []string
	InlineGrantee     *GranteeInput
}

// CreateService creates a public service with its grantee links. Every
// referenced grantee must belong to the service's association; a mismatch
// aborts the whole transaction so no partial service survives.
func (s *Service) CreateService(ctx context.Context, facet Facet, in ServiceInput) (*PublicService, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.MachineName = strings.TrimSpace(in.MachineName)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.URL = strings.TrimSpace(in.URL)
	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: Title is required", ErrValidation)
	case in.MachineName == "":
		return nil, fmt.Errorf("%w: MachineName is required", ErrValidation)
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return nil, fmt.Errorf("%w: valid Email is required", ErrValidation)
	case in.URL == "":
		return nil, fmt.Errorf("%w: URL is required", ErrValidation)
	}
	if facet.Role == RoleAdministrator && facet.Department == nil {
		return nil, ErrMethodNotAllowed
	}

	var created *PublicService
	err := s.store.InTx(ctx, func(tx Store) error {
		txSvc := s.withStore(tx)

		assocID := strings.TrimSpace(in.AssociationID)
		if assocID == "" && in.InlineAssociation != nil {
			assoc, err := txSvc.CreateAssociation(ctx, facet, *in.InlineAssociation)
			if err != nil {
				return err
			}
			assocID = assoc.ID
		}
		if assocID == "" {
			return fmt.Errorf("%w: Association is required", ErrValidation)
		}
		assoc, err := tx.Associations().GetByID(ctx, assocID)
		if err != nil {
			return fmt.Errorf("%w: Association not found", ErrValidation)
		}
		if facet.Role == RoleAdministrator && assoc.DepartmentID != facet.Department.ID {
			return fmt.Errorf("%w: Association is outside your department", ErrValidation)
		}

		granteeIDs := append([]string(nil), in.GranteeIDs...)
		if in.InlineGrantee != nil {
			inline := *in.InlineGrantee
			inline.AssociationID = assoc.ID
			grantee, err := txSvc.CreateGrantee(ctx, facet, inline)
			if err != nil {
				return err
			}
			granteeIDs = append(granteeIDs, grantee.ID)
		}
		for _, gid := range granteeIDs {
			grantee, err := tx.Grantees().GetByID(ctx, gid)
			if err != nil {
				return fmt.Errorf("%w: Grantee %s not found", ErrValidation, gid)
			}
			if grantee.AssociationID != assoc.ID {
				return fmt.Errorf("%w: Grantee %s does not belong to Association %s", ErrValidation, grantee.GranteeUserName, assoc.Title)
			}
		}

		now := s.Now()
		svc := &PublicService{
			ID:            ids.New(),
			AssociationID: assoc.ID,
			Title:         in.Title,
			MachineName:   in.MachineName,
			Description:   strings.TrimSpace(in.Description),
			Email:         in.Email,
			URL:           in.URL,
			Restricted:    in.Restricted,
			Visibility:    in.Visibility,
			GranteeIDs:    granteeIDs,
			Created:       now,
			Updated:       now,
		}
		if err := tx.Services().Create(ctx, svc); err != nil {
			if errors.Is(err, ErrConflict) {
				return fmt.Errorf("%w: service title or machine name already taken", ErrValidation)
			}
			return err
		}
		created = svc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RequestInput is the citizen's access application payload.
type RequestInput struct {
	PublicServiceID string
	Subject         string
	Message         string
}

// CreateRequest creates the request and its paired pending grant in one
// transaction. If either insert fails the other is rolled back and the
// caller sees a generic internal error, not the storage detail.
func (s *Service) CreateRequest(ctx context.Context, citizen *Citizen, in RequestInput) (*Request, error) {
	in.PublicServiceID = strings.TrimSpace(in.PublicServiceID)
	in.Subject = strings.TrimSpace(in.Subject)
	switch {
	case in.PublicServiceID == "":
		return nil, fmt.Errorf("%w: PublicService is required", ErrValidation)
	case in.Subject == "":
		return nil, fmt.Errorf("%w: Subject is required", ErrValidation)
	}
	if _, err := s.store.Services().GetByID(ctx, in.PublicServiceID); err != nil {
		return nil, ErrNotFound
	}

	now := s.Now()
	request := &Request{
		ID:              ids.New(),
		CitizenID:       citizen.ID,
		PublicServiceID: in.PublicServiceID,
		Subject:         in.Subject,
		Message:         strings.TrimSpace(in.Message),
		GrantID:         ids.New(),
		Created:         now,
		Updated:         now,
	}
	grant := &Grant{
		ID:        request.GrantID,
		RequestID: request.ID,
		Created:   now,
		Updated:   now,
	}
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Requests().Create(ctx, request); err != nil {
			return err
		}
		return tx.Grants().Create(ctx, grant)
	})
	if err != nil {
		return nil, ErrInternal
	}
	return request, nil
}

// coversService reports whether the facet's hierarchical position covers
// the service's association. Site managers cover everything.
func (s *Service) coversService(ctx context.Context, facet Facet, svc *PublicService) (bool, error) {
	switch facet.Role {
	case RoleManager:
		return true, nil
	case RoleAdministrator:
		if facet.Department == nil {
			return false, nil
		}
		assoc, err := s.store.Associations().GetByID(ctx, svc.AssociationID)
		if err != nil {
			return false, err
		}
		return assoc.DepartmentID == facet.Department.ID, nil
	case RoleGrantee:
		return facet.Grantee.AssociationID == svc.AssociationID, nil
	default:
		return false, nil
	}
}

// UpdateGrant applies a staff mutation to a grant: assign a grantee, set
// the date window, or decline. Declined is terminal; reactivation means a
// new request. The assigned grantee must belong to the same association as
// the request's service; an empty Grantee clears the assignment.
func (s *Service) UpdateGrant(ctx context.Context, facet Facet, grantID string, upd GrantUpdate) (*Grant, error) {
	grant, err := s.store.Grants().GetByID(ctx, grantID)
	if err != nil {
		return nil, ErrNotFound
	}
	request, err := s.store.Requests().GetByID(ctx, grant.RequestID)
	if err != nil {
		return nil, ErrInternal
	}
	svc, err := s.store.Services().GetByID(ctx, request.PublicServiceID)
	if err != nil {
		return nil, ErrInternal
	}
	covered, err := s.coversService(ctx, facet, svc)
	if err != nil {
		return nil, err
	}
	if !covered {
		// Out-of-scope ids are indistinguishable from missing ones.
		return nil, ErrNotFound
	}
	if grant.Decline {
		return nil, fmt.Errorf("%w: grant is declined; submit a new request", ErrValidation)
	}
	if upd.GranteeID != nil && *upd.GranteeID != "" {
		grantee, err := s.store.Grantees().GetByID(ctx, *upd.GranteeID)
		if err != nil {
			return nil, fmt.Errorf("%w: Grantee not found", ErrValidation)
		}
		if grantee.AssociationID != svc.AssociationID {
			return nil, fmt.Errorf("%w: Grantee %s does not belong to Association of service %s", ErrValidation, grantee.GranteeUserName, svc.Title)
		}
	}
	if upd.StartDate != nil && *upd.StartDate != nil && upd.EndDate != nil && *upd.EndDate != nil {
		if (*upd.EndDate).Before(**upd.StartDate) {
			return nil, fmt.Errorf("%w: EndDate precedes StartDate", ErrValidation)
		}
	}
	return s.store.Grants().Update(ctx, grantID, upd)
}

// PermissionInput is the time-windowed visibility grant payload.
type PermissionInput struct {
	Kind        PermissionKind
	TargetID    string
	Name        string
	Description string
	CitizenIDs  []string
	StartTime   time.Time
	EndTime     time.Time
}

// CreatePermission creates a permission window. An administrator may only
// target entities under their own department; the handler resolves the
// facet, this method enforces the reach.
func (s *Service) CreatePermission(ctx context.Context, facet Facet, in PermissionInput) (*Permission, error) {
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return nil, fmt.Errorf("%w: Name is required", ErrValidation)
	case in.TargetID == "":
		return nil, fmt.Errorf("%w: Target is required", ErrValidation)
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return nil, fmt.Errorf("%w: StartTime and EndTime are required", ErrValidation)
	case in.EndTime.Before(in.StartTime):
		return nil, fmt.Errorf("%w: EndTime precedes StartTime", ErrValidation)
	case len(in.CitizenIDs) == 0:
		return nil, fmt.Errorf("%w: Citizens is required", ErrValidation)
	}
	for _, cid := range in.CitizenIDs {
		if _, err := s.store.Citizens().GetByID(ctx, cid); err != nil {
			return nil, fmt.Errorf("%w: Citizen %s not found", ErrValidation, cid)
		}
	}
	if err := s.checkPermissionTarget(ctx, facet, in.Kind, in.TargetID); err != nil {
		return nil, err
	}
	now := s.Now()
	perm := &Permission{
		ID:          ids.New(),
		Kind:        in.Kind,
		TargetID:    in.TargetID,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		CitizenIDs:  dedupe(in.CitizenIDs),
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Created:     now,
		Updated:     now,
	}
	if err := s.store.Permissions().Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

func (s *Service) checkPermissionTarget(ctx context.Context, facet Facet, kind PermissionKind, targetID string) error {
	switch kind {
	case PermissionService:
		svc, err := s.store.Services().GetByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("%w: target service not found", ErrValidation)
		}
		covered, err := s.coversService(ctx, facet, svc)
		if err != nil {
			return err
		}
		if !covered {
			return ErrNotFound
		}
	case PermissionAssociation:
		assoc, err := s.store.Associations().GetByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("%w: target association not found", ErrValidation)
		}
		if facet.Role == RoleAdministrator {
			if facet.Department == nil || assoc.DepartmentID != facet.Department.ID {
				return ErrNotFound
			}
		}
	case PermissionDepartment:
		if _, err := s.store.Departments().GetByID(ctx, targetID); err != nil {
			return fmt.Errorf("%w: target department not found", ErrValidation)
		}
		if facet.Role == RoleAdministrator {
			if facet.Department == nil || facet.Department.ID != targetID {
				return ErrNotFound
			}
		}
	default:
		return fmt.Errorf("%w: unknown permission kind", ErrValidation)
	}
	return nil
}

// RecordCronRun books a batch log-ingestion run and closes it with the
// outcome.
func (s *Service) RecordCronRun(ctx context.Context, name string, run func() error) (*SystemCron, error) {
	now := s.Now()
	cron := &SystemCron{
		ID:       ids.New(),
		CronName: name,
		Created:  now,
		Updated:  now,
	}
	if err := s.store.Crons().Create(ctx, cron); err != nil {
		return nil, err
	}
	runErr := run()
	finished := s.Now()
	ok := runErr == nil
	failed := !ok
	msg := "processed"
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.store.Crons().Update(ctx, cron.ID, CronUpdate{
		Message:    &msg,
		FinishedAt: &finished,
		Success:    &ok,
		Failure:    &failed,
	})
}

// withStore clones the service over a transactional store view.
func (s *Service) withStore(store Store) *Service {
	clone := *s
	clone.store = store
	return &clone
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
