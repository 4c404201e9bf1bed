package httpapi

import (
	"encoding/json"
	"errors"

	"accessgov.org/internal/directory"
)

// Reference fields accept either an id string or a nested object to
// create first. refOrObject splits the two without committing to a shape.
func refOrObject(raw json.RawMessage) (id string, obj json.RawMessage, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}
	switch raw[0] {
	case '"':
		err = json.Unmarshal(raw, &id)
		return id, nil, err
	case '{':
		return "", raw, nil
	default:
		return "", nil, errors.New("reference must be an id or an object")
	}
}

type departmentPayload struct {
	Administrator string `json:"Administrator"`
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Email         string `json:"Email"`
	Telephone     string `json:"Telephone"`
	Website       string `json:"Website"`
}

func (p departmentPayload) input() directory.DepartmentInput {
	return directory.DepartmentInput{
		AdministratorID: p.Administrator,
		Title:           p.Title,
		Description:     p.Description,
		Email:           p.Email,
		Telephone:       p.Telephone,
		Website:         p.Website,
	}
}

type associationPayload struct {
	Department json.RawMessage `json:"Department"`
	Title      string          `json:"Title"`
	Email      string          `json:"Email"`
	Website    string          `json:"Website"`
}

func (p associationPayload) input() (directory.AssociationInput, error) {
	in := directory.AssociationInput{
		Title:   p.Title,
		Email:   p.Email,
		Website: p.Website,
	}
	id, obj, err := refOrObject(p.Department)
	if err != nil {
		return in, err
	}
	in.DepartmentID = id
	if obj != nil {
		var dept departmentPayload
		if err := json.Unmarshal(obj, &dept); err != nil {
			return in, err
		}
		inline := dept.input()
		in.InlineDepartment = &inline
	}
	return in, nil
}

type staffPayload struct {
	Citizen     string `json:"Citizen"`
	UserName    string `json:"UserName"`
	FirstEmail  string `json:"FirstEmail"`
	SecondEmail string `json:"SecondEmail"`
	Password    string `json:"password"`
}

func (p staffPayload) input() directory.StaffInput {
	return directory.StaffInput{
		CitizenID:   p.Citizen,
		UserName:    p.UserName,
		FirstEmail:  p.FirstEmail,
		SecondEmail: p.SecondEmail,
		Password:    p.Password,
	}
}

type granteePayload struct {
	staffPayload
	Administrator string `json:"Administrator"`
	Association   string `json:"Association"`
}

func (p granteePayload) input() directory.GranteeInput {
	return directory.GranteeInput{
		StaffInput:      p.staffPayload.input(),
		AdministratorID: p.Administrator,
		AssociationID:   p.Association,
	}
}

type servicePayload struct {
	Association json.RawMessage `json:"Association"`
	Title       string          `json:"Title"`
	MachineName string          `json:"MachineName"`
	Description string          `json:"Description"`
	Email       string          `json:"Email"`
	URL         string          `json:"URL"`
	Restricted  bool            `json:"Restricted"`
	Visibility  bool            `json:"Visibility"`
	Grantee     json.RawMessage `json:"Grantee"`
}

func (p servicePayload) input() (directory.ServiceInput, error) {
	in := directory.ServiceInput{
		Title:       p.Title,
		MachineName: p.MachineName,
		Description: p.Description,
		Email:       p.Email,
		URL:         p.URL,
		Restricted:  p.Restricted,
		Visibility:  p.Visibility,
	}
	assocID, assocObj, err := refOrObject(p.Association)
	if err != nil {
		return in, err
	}
	in.AssociationID = assocID
	if assocObj != nil {
		var assoc associationPayload
		if err := json.Unmarshal(assocObj, &assoc); err != nil {
			return in, err
		}
		inline, err := assoc.input()
		if err != nil {
			return in, err
		}
		in.InlineAssociation = &inline
	}
	if len(p.Grantee) > 0 && string(p.Grantee) != "null" {
		switch p.Grantee[0] {
		case '[':
			if err := json.Unmarshal(p.Grantee, &in.GranteeIDs); err != nil {
				return in, err
			}
		case '{':
			var grantee granteePayload
			if err := json.Unmarshal(p.Grantee, &grantee); err != nil {
				return in, err
			}
			inline := grantee.input()
			in.InlineGrantee = &inline
		default:
			return in, errors.New("Grantee must be a list of ids or an object")
		}
	}
	return in, nil
}

type associationPatch struct {
	Title   *string `json:"Title"`
	Email   *string `json:"Email"`
	Website *string `json:"Website"`
}

type departmentPatch struct {
	Title       *string `json:"Title"`
	Description *string `json:"Description"`
	Email       *string `json:"Email"`
	Telephone   *string `json:"Telephone"`
	Website     *string `json:"Website"`
}

type servicePatch struct {
	Title       *string  `json:"Title"`
	Description *string  `json:"Description"`
	Email       *string  `json:"Email"`
	URL         *string  `json:"URL"`
	Restricted  *bool    `json:"Restricted"`
	Visibility  *bool    `json:"Visibility"`
	Grantee     []string `json:"Grantee"`
}

type staffPatch struct {
	UserName    *string `json:"UserName"`
	FirstEmail  *string `json:"FirstEmail"`
	SecondEmail *string `json:"SecondEmail"`
}
