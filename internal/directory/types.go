package directory

import "time"

// Citizen is the root identity. Every staff role wraps a Citizen; the
// citizen record itself carries the primary login credential.
type Citizen struct {
	ID            string    `json:"id"`
	UserName      string    `json:"UserName"`
	FirstName     string    `json:"FirstName"`
	SecondName    string    `json:"SecondName,omitempty"`
	Surname       string    `json:"Surname"`
	NationalID    string    `json:"NationalId"`
	DOB           time.Time `json:"DOB"`
	Email         string    `json:"Email"`
	EmailVerified bool      `json:"EmailVerified"`
	Active        bool      `json:"is_active"`
	PasswordHash  string    `json:"-"`
	Created       time.Time `json:"Created"`
	Updated       time.Time `json:"Updated"`
}

// SiteManager wraps exactly one Citizen. At most one row may ever exist;
// the store enforces the cardinality inside the insert transaction.
type SiteManager struct {
	ID              string    `json:"id"`
	CitizenID       string    `json:"Citizen"`
	ManagerUserName string    `json:"ManagerUserName"`
	FirstEmail      string    `json:"FirstEmail"`
	SecondEmail     string    `json:"SecondEmail,omitempty"`
	PasswordHash    string    `json:"-"`
	Created         time.Time `json:"Created"`
	Updated         time.Time `json:"Updated"`
}

// GranteeLimit bounds for administrators.
const (
	MinGranteeLimit = 10
	MaxGranteeLimit = 100
)

// Administrator wraps one Citizen and may own one Department.
type Administrator struct {
	ID                    string    `json:"id"`
	CitizenID             string    `json:"Citizen"`
	AdministratorUserName string    `json:"AdministratorUserName"`
	FirstEmail            string    `json:"FirstEmail"`
	SecondEmail           string    `json:"SecondEmail,omitempty"`
	GranteeLimit          int       `json:"GranteeLimit"`
	PasswordHash          string    `json:"-"`
	Created               time.Time `json:"Created"`
	Updated               time.Time `json:"Updated"`
}

// Department is owned by exactly one Administrator and aggregates
// Associations.
type Department struct {
	ID              string    `json:"id"`
	AdministratorID string    `json:"Administrator"`
	Title           string    `json:"Title"`
	Description     string    `json:"Description"`
	Email           string    `json:"Email"`
	Telephone       string    `json:"Telephone"`
	Website         string    `json:"Website"`
	Created         time.Time `json:"Created"`
	Updated         time.Time `json:"Updated"`
}

// Association belongs to one Department and aggregates PublicServices.
type Association struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"Department"`
	Title        string    `json:"Title"`
	Email        string    `json:"Email"`
	Website      string    `json:"Website,omitempty"`
	Created      time.Time `json:"Created"`
	Updated      time.Time `json:"Updated"`
}

// PublicService belongs to one Association. GranteeIDs is the set of
// grantees authorized to work its requests; all of them must belong to the
// same Association as the service.
type PublicService struct {
	ID            string    `json:"id"`
	AssociationID string    `json:"Association"`
	Title         string    `json:"Title"`
	MachineName   string    `json:"MachineName"`
	Description   string    `json:"Description"`
	Email         string    `json:"Email"`
	URL           string    `json:"URL"`
	Restricted    bool      `json:"Restricted"`
	Visibility    bool      `json:"Visibility"`
	GranteeIDs    []string  `json:"Grantee"`
	Created       time.Time `json:"Created"`
	Updated       time.Time `json:"Updated"`
}

// Grantee wraps one Citizen and belongs to one Administrator and one
// Association. The Association's Department must match the
// Administrator's Department.
type Grantee struct {
	ID              string    `json:"id"`
	CitizenID       string    `json:"Citizen"`
	AdministratorID string    `json:"Administrator"`
	AssociationID   string    `json:"Association"`
	GranteeUserName string    `json:"GranteeUserName"`
	FirstEmail      string    `json:"FirstEmail"`
	SecondEmail     string    `json:"SecondEmail,omitempty"`
	PasswordHash    string    `json:"-"`
	Created         time.Time `json:"Created"`
	Updated         time.Time `json:"Updated"`
}

// Request is a citizen's application for access to a PublicService. It
// owns exactly one Grant, created in the same transaction.
type Request struct {
	ID              string    `json:"id"`
	CitizenID       string    `json:"Citizen"`
	PublicServiceID string    `json:"PublicService"`
	Subject         string    `json:"Subject"`
	Message         string    `json:"Message"`
	GrantID         string    `json:"Grant"`
	Created         time.Time `json:"Created"`
	Updated         time.Time `json:"Updated"`
}

// Grant tracks the authorization outcome of a Request. Whether the grant
// is currently effective is never stored; see GrantedAt.
type Grant struct {
	ID        string     `json:"id"`
	RequestID string     `json:"Request"`
	GranteeID string     `json:"Grantee,omitempty"`
	Message   string     `json:"Message"`
	Decline   bool       `json:"Decline"`
	StartDate *time.Time `json:"StartDate"`
	EndDate   *time.Time `json:"EndDate"`
	Created   time.Time  `json:"Created"`
	Updated   time.Time  `json:"Updated"`
}

// PermissionKind selects which entity a time-windowed permission targets.
type PermissionKind string

const (
	PermissionService     PermissionKind = "service"
	PermissionAssociation PermissionKind = "association"
	PermissionDepartment  PermissionKind = "department"
)

// Permission is an explicit, citizen-addressed, time-windowed visibility
// grant over one target entity, independent of hierarchy.
type Permission struct {
	ID          string         `json:"id"`
	Kind        PermissionKind `json:"-"`
	TargetID    string         `json:"Target"`
	Name        string         `json:"Name"`
	Description string         `json:"Description"`
	CitizenIDs  []string       `json:"Citizens"`
	StartTime   time.Time      `json:"StartTime"`
	EndTime     time.Time      `json:"EndTime"`
	Created     time.Time      `json:"Created"`
	Updated     time.Time      `json:"Updated"`
}

// ServiceSession records a citizen's last access to a PublicService. One
// row per (Citizen, Service) pair; reads refresh LastSeen in place.
type ServiceSession struct {
	ID            string    `json:"id"`
	CitizenID     string    `json:"Citizen"`
	ServiceID     string    `json:"Service"`
	IPAddress     string    `json:"IpAddress"`
	LastSeen      time.Time `json:"LastSeen"`
	EnforceExpiry bool      `json:"EnforceExpiry"`
	Created       time.Time `json:"Created"`
	Updated       time.Time `json:"Updated"`
}

// SystemCron is the bookkeeping record for one batch log-ingestion run.
type SystemCron struct {
	ID         string     `json:"id"`
	CronName   string     `json:"CronName"`
	Message    string     `json:"Message,omitempty"`
	FinishedAt *time.Time `json:"FinishedAt"`
	Success    bool       `json:"Success"`
	Failure    bool       `json:"Failure"`
	Created    time.Time  `json:"Created"`
	Updated    time.Time  `json:"Updated"`
}

// CronSystemLog names the ingestion job recorded by SystemCron rows.
const CronSystemLog = "SaveSystemLog"

// SystemLog is one ingested access-log record, stratified by the acting
// role. ActorName holds the role username when Role is not citizen.
type SystemLog struct {
	ID         string    `json:"id"`
	Role       Role      `json:"-"`
	CitizenID  string    `json:"Citizen"`
	ActorName  string    `json:"Actor,omitempty"`
	Method     string    `json:"Method"`
	Object     string    `json:"Object"`
	RecordID   string    `json:"RecordId,omitempty"`
	StatusCode int       `json:"StatusCode"`
	Message    string    `json:"Message"`
	IPAddress  string    `json:"IpAddress"`
	Created    time.Time `json:"Created"`
	Updated    time.Time `json:"Updated"`
}
