package directory

// Role identifies which facet a request is acting as. Precedence when a
// citizen holds several facets is SiteManager > Administrator > Grantee >
// Citizen, but call sites always name the facet they require; nothing is
// inherited implicitly.
type Role string

const (
	RoleCitizen       Role = "citizen"
	RoleGrantee       Role = "grantee"
	RoleAdministrator Role = "administrator"
	RoleManager       Role = "manager"
)

func (r Role) rank() int {
	switch r {
	case RoleManager:
		return 3
	case RoleAdministrator:
		return 2
	case RoleGrantee:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r sits at or above min in the precedence order.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// Facet is the resolved acting identity for one request: the base citizen
// plus whichever role wrapper the handler required. Pointers beyond the
// required role are nil; Department is populated for administrators that
// own one.
type Facet struct {
	Role          Role
	Citizen       *Citizen
	Grantee       *Grantee
	Administrator *Administrator
	SiteManager   *SiteManager
	Department    *Department
}
