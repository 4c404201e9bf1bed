package httpapi

import (
	"net/http"
	"time"

	"accessgov.org/internal/auth"
	"accessgov.org/internal/directory"
)

type registerRequest struct {
	UserName   string `json:"UserName"`
	FirstName  string `json:"FirstName"`
	SecondName string `json:"SecondName"`
	Surname    string `json:"Surname"`
	NationalID string `json:"NationalId"`
	DOB        string `json:"DOB"`
	Email      string `json:"Email"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"Email"`
	Password string `json:"password"`

	// Secondary credential pair, present on staff logins only.
	ManagerUserName       string `json:"ManagerUserName,omitempty"`
	ManagerPassword       string `json:"ManagerPassword,omitempty"`
	AdministratorUserName string `json:"AdministratorUserName,omitempty"`
	AdministratorPassword string `json:"AdministratorPassword,omitempty"`
	GranteeUserName       string `json:"GranteeUserName,omitempty"`
	GranteePassword       string `json:"GranteePassword,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type sessionResponse struct {
	User    *directory.Citizen `json:"user"`
	Access  string             `json:"access"`
	Refresh string             `json:"refresh"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dob, err := time.Parse("2006-01-02", req.DOB)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "DOB must be YYYY-MM-DD")
		return
	}
	citizen, err := a.svc.RegisterCitizen(r.Context(), directory.RegisterCitizenInput{
		UserName:   req.UserName,
		FirstName:  req.FirstName,
		SecondName: req.SecondName,
		Surname:    req.Surname,
		NationalID: req.NationalID,
		DOB:        dob,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	a.record(r, directory.Facet{Role: directory.RoleCitizen, Citizen: citizen},
		"Citizen", citizen.ID, http.StatusCreated, "registered")
	writeJSON(w, http.StatusCreated, citizen)
}

func (a *API) handleCitizenLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	citizen, err := a.svc.AuthenticateCitizen(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return
	}
	a.issueSession(w, r, directory.Facet{Role: directory.RoleCitizen, Citizen: citizen})
}

// staffLogin builds the handler for one staff role; the payload carries
// the role's secondary credential pair on top of the citizen credential.
func (a *API) staffLogin(role directory.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var roleUser, rolePass string
		switch role {
		case directory.RoleManager:
			roleUser, rolePass = req.ManagerUserName, req.ManagerPassword
		case directory.RoleAdministrator:
			roleUser, rolePass = req.AdministratorUserName, req.AdministratorPassword
		case directory.RoleGrantee:
			roleUser, rolePass = req.GranteeUserName, req.GranteePassword
		}
		facet, err := a.svc.AuthenticateStaff(r.Context(), role, req.Email, req.Password, roleUser, rolePass)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication failed")
			return
		}
		a.issueSession(w, r, facet)
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claims, err := auth.ParseAndValidate(req.Refresh, auth.TokenTypeRefresh)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return
	}
	facet, err := a.svc.ResolveFacet(r.Context(), claims.Subject, directory.RoleCitizen)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return
	}
	a.issueSession(w, r, facet)
}

func (a *API) issueSession(w http.ResponseWriter, r *http.Request, facet directory.Facet) {
	pair, err := auth.IssuePair(facet.Citizen.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.record(r, facet, "Session", facet.Citizen.ID, http.StatusOK, "login")
	writeJSON(w, http.StatusOK, sessionResponse{
		User:    facet.Citizen,
		Access:  pair.Access,
		Refresh: pair.Refresh,
	})
}
