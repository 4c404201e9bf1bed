package memory

import (
	"strconv"
	"strings"

	"accessgov.org/internal/directory"
)

func matchValues(got []string, want []string) bool {
	for _, w := range want {
		for _, g := range got {
			if strings.EqualFold(g, w) {
				return true
			}
		}
	}
	return false
}

func boolStr(b bool) string { return strconv.FormatBool(b) }

// serviceDepartment resolves the department owning the service through its
// association. Empty when the association is gone.
func (st *state) serviceDepartment(svc *directory.PublicService) string {
	if assoc, ok := st.assocs[svc.AssociationID]; ok {
		return assoc.DepartmentID
	}
	return ""
}

func (st *state) requestService(r *directory.Request) *directory.PublicService {
	return st.services[r.PublicServiceID]
}

func (st *state) grantService(g *directory.Grant) *directory.PublicService {
	if req, ok := st.requests[g.RequestID]; ok {
		return st.services[req.PublicServiceID]
	}
	return nil
}

// inServiceScope answers scope membership for a service and for every
// entity whose scope runs through its owning service.
func (st *state) inServiceScope(svc *directory.PublicService, sc directory.Scope) bool {
	if svc == nil {
		return false
	}
	switch sc.Kind {
	case directory.ScopeAll:
		return true
	case directory.ScopeNone:
		return false
	case directory.ScopeDepartment:
		return st.serviceDepartment(svc) == sc.DepartmentID
	case directory.ScopeAssociation:
		return svc.AssociationID == sc.AssociationID
	case directory.ScopeIDs:
		return containsID(sc.IDs, svc.ID)
	default:
		return false
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// applyFilters checks every filter against the entity's field reader.
// Unknown field names match nothing; the gateway only emits declared
// fields, so an unknown name here is an empty result, not a bug.
func applyFilters(filters []directory.Filter, read func(field string) []string) bool {
	for _, f := range filters {
		got := read(f.Field)
		if !matchValues(got, f.Values) {
			return false
		}
	}
	return true
}

func (st *state) citizenField(c *directory.Citizen, field string) []string {
	switch field {
	case "UserName":
		return []string{c.UserName}
	case "Email":
		return []string{c.Email}
	case "FirstName":
		return []string{c.FirstName}
	case "Surname":
		return []string{c.Surname}
	case "NationalId":
		return []string{c.NationalID}
	case "EmailVerified":
		return []string{boolStr(c.EmailVerified)}
	default:
		return nil
	}
}

func (st *state) adminField(a *directory.Administrator, field string) []string {
	switch field {
	case "AdministratorUserName":
		return []string{a.AdministratorUserName}
	case "FirstEmail":
		return []string{a.FirstEmail}
	case "Citizen":
		return []string{a.CitizenID}
	case "GranteeLimit":
		return []string{strconv.Itoa(a.GranteeLimit)}
	default:
		return nil
	}
}

func (st *state) granteeField(g *directory.Grantee, field string) []string {
	switch field {
	case "GranteeUserName":
		return []string{g.GranteeUserName}
	case "FirstEmail":
		return []string{g.FirstEmail}
	case "Citizen":
		return []string{g.CitizenID}
	case "Administrator":
		return []string{g.AdministratorID}
	case "Association":
		return []string{g.AssociationID}
	default:
		return nil
	}
}

func (st *state) departmentField(d *directory.Department, field string) []string {
	switch field {
	case "Title":
		return []string{d.Title}
	case "Email":
		return []string{d.Email}
	case "Telephone":
		return []string{d.Telephone}
	case "Administrator":
		return []string{d.AdministratorID}
	default:
		return nil
	}
}

func (st *state) associationField(a *directory.Association, field string) []string {
	switch field {
	case "Title":
		return []string{a.Title}
	case "Email":
		return []string{a.Email}
	case "Department":
		return []string{a.DepartmentID}
	default:
		return nil
	}
}

func (st *state) serviceField(s *directory.PublicService, field string) []string {
	switch field {
	case "Title":
		return []string{s.Title}
	case "MachineName":
		return []string{s.MachineName}
	case "Email":
		return []string{s.Email}
	case "Restricted":
		return []string{boolStr(s.Restricted)}
	case "Visibility":
		return []string{boolStr(s.Visibility)}
	case "Association":
		return []string{s.AssociationID}
	case "Association__Department":
		return []string{st.serviceDepartment(s)}
	case "Grantee":
		return s.GranteeIDs
	default:
		return nil
	}
}

func (st *state) requestField(r *directory.Request, field string) []string {
	switch field {
	case "Subject":
		return []string{r.Subject}
	case "Citizen":
		return []string{r.CitizenID}
	case "PublicService":
		return []string{r.PublicServiceID}
	case "PublicService__Association":
		if svc := st.requestService(r); svc != nil {
			return []string{svc.AssociationID}
		}
		return nil
	default:
		return nil
	}
}

func (st *state) grantField(g *directory.Grant, field string) []string {
	switch field {
	case "Request":
		return []string{g.RequestID}
	case "Grantee":
		return []string{g.GranteeID}
	case "Decline":
		return []string{boolStr(g.Decline)}
	default:
		return nil
	}
}

func (st *state) permissionField(p *directory.Permission, field string) []string {
	switch field {
	case "Name":
		return []string{p.Name}
	case "Target":
		return []string{p.TargetID}
	case "Citizens":
		return p.CitizenIDs
	default:
		return nil
	}
}

func (st *state) sessionField(s *directory.ServiceSession, field string) []string {
	switch field {
	case "Citizen":
		return []string{s.CitizenID}
	case "Service":
		return []string{s.ServiceID}
	case "IpAddress":
		return []string{s.IPAddress}
	case "EnforceExpiry":
		return []string{boolStr(s.EnforceExpiry)}
	default:
		return nil
	}
}

func (st *state) logField(l *directory.SystemLog, field string) []string {
	switch field {
	case "Citizen":
		return []string{l.CitizenID}
	case "Method":
		return []string{l.Method}
	case "Object":
		return []string{l.Object}
	case "RecordId":
		return []string{l.RecordID}
	case "StatusCode":
		return []string{strconv.Itoa(l.StatusCode)}
	default:
		return nil
	}
}
