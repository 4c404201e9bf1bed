// Package scope derives the hierarchical reach of an acting facet and
// computes citizen-side service visibility. Scopes are recomputed from the
// facet on every request and never cached.
package scope

import "accessgov.org/internal/directory"

// ForFacet maps the acting facet onto a listing scope. A site manager sees
// everything, an administrator sees their department's subtree, a grantee
// sees their association's subtree. An administrator without a department
// has no subtree and resolves to the empty scope; write handlers reject
// such callers before getting here.
func ForFacet(facet directory.Facet) directory.Scope {
	switch facet.Role {
	case directory.RoleManager:
		return directory.ScopeEverything()
	case directory.RoleAdministrator:
		if facet.Department == nil {
			return directory.ScopeNothing()
		}
		return directory.UnderDepartment(facet.Department.ID)
	case directory.RoleGrantee:
		return directory.UnderAssociation(facet.Grantee.AssociationID)
	default:
		return directory.ScopeNothing()
	}
}

// CanWrite reports whether the facet may perform staff mutations at all.
// The one deny case is an administrator that owns no department yet.
func CanWrite(facet directory.Facet) bool {
	if facet.Role == directory.RoleAdministrator {
		return facet.Department != nil
	}
	return facet.Role == directory.RoleManager || facet.Role == directory.RoleGrantee
}
