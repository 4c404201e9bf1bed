package directory

// ScopeKind discriminates how a Scope restricts a listing.
type ScopeKind int

const (
	// ScopeAll imposes no restriction (site manager).
	ScopeAll ScopeKind = iota
	// ScopeNone yields the empty set.
	ScopeNone
	// ScopeDepartment restricts to records under one department.
	ScopeDepartment
	// ScopeAssociation restricts to records under one association.
	ScopeAssociation
	// ScopeIDs restricts to an explicit candidate id set (permission
	// window unions).
	ScopeIDs
)

// Scope is the hierarchical restriction applied to a listing or lookup.
// How a department or association restriction reaches a given entity is
// the store's business: for services it is the owning association's
// department, for requests and grants it runs through the target service,
// and so on down the containment chain.
type Scope struct {
	Kind          ScopeKind
	DepartmentID  string
	AssociationID string
	IDs           []string
}

// ScopeEverything returns the unrestricted scope.
func ScopeEverything() Scope { return Scope{Kind: ScopeAll} }

// ScopeNothing returns the empty scope.
func ScopeNothing() Scope { return Scope{Kind: ScopeNone} }

// UnderDepartment restricts to records under the given department.
func UnderDepartment(id string) Scope {
	return Scope{Kind: ScopeDepartment, DepartmentID: id}
}

// UnderAssociation restricts to records under the given association.
func UnderAssociation(id string) Scope {
	return Scope{Kind: ScopeAssociation, AssociationID: id}
}

// AmongIDs restricts to the given explicit id set.
func AmongIDs(ids []string) Scope {
	return Scope{Kind: ScopeIDs, IDs: ids}
}

// Filter is one parsed querystring condition: Field is the entity's
// canonical field name (possibly a relation traversal such as
// "Association__Department") and Values carries one value, or several for
// set membership.
type Filter struct {
	Field  string
	Values []string
}

// Query is what list operations receive: the caller's hierarchical scope
// intersected with the parsed querystring filters.
type Query struct {
	Scope   Scope
	Filters []Filter
}

// Everything is the unfiltered, unrestricted query.
func Everything() Query { return Query{Scope: ScopeEverything()} }

// Scoped wraps a bare scope in a filterless query.
func Scoped(s Scope) Query { return Query{Scope: s} }

// Declared filterable field names per entity. Querystring keys are matched
// case-insensitively as substrings against these; keys that match nothing
// are ignored.
var (
	CitizenFields = []string{
		"UserName", "Email", "FirstName", "Surname", "NationalId", "EmailVerified",
	}
	AdministratorFields = []string{
		"AdministratorUserName", "FirstEmail", "Citizen", "GranteeLimit",
	}
	GranteeFields = []string{
		"GranteeUserName", "FirstEmail", "Citizen", "Administrator", "Association",
	}
	DepartmentFields = []string{
		"Title", "Email", "Telephone", "Administrator",
	}
	AssociationFields = []string{
		"Title", "Email", "Department",
	}
	PublicServiceFields = []string{
		"Title", "MachineName", "Email", "Restricted", "Visibility",
		"Association", "Association__Department", "Grantee",
	}
	RequestFields = []string{
		"Subject", "Citizen", "PublicService", "PublicService__Association",
	}
	GrantFields = []string{
		"Request", "Grantee", "Decline",
	}
	PermissionFields = []string{
		"Name", "Target", "Citizens",
	}
	SessionFields = []string{
		"Citizen", "Service", "IpAddress", "EnforceExpiry",
	}
	SystemLogFields = []string{
		"Citizen", "Method", "Object", "RecordId", "StatusCode",
	}
)
