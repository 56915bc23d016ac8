package httpapi

import (
	"net/http"
	"time"

	"corevault.org/internal/access"
	"corevault.org/internal/audit"
	"corevault.org/internal/entity"
	"corevault.org/internal/identity"
	"corevault.org/internal/obs"
)

func (a *API) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	acct, err := a.deps.Identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	token, expires, err := a.deps.Tokens.Issue(acct.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expires.UTC().Format(time.RFC3339),
	})
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": principal.Account,
		"profile": principal.Profile,
	})
}

func (a *API) CreateOrganisation(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequireRole(r.Context(), identity.RoleAdmin)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	org, err := a.deps.Identity.CreateOrganisation(r.Context(), req.Name, identity.OrganisationMode(req.Mode))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := a.recordAudit(r, principal, audit.ActionCreate,
		entity.Ref{Kind: entity.KindOrganisation, ID: org.ID}, "organisation created"); err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) ListOrganisations(w http.ResponseWriter, r *http.Request) {
	if _, err := access.RequirePrincipal(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	orgs, err := a.deps.Identity.ListOrganisations(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organisations": orgs})
}

func (a *API) GetOrganisation(w http.ResponseWriter, r *http.Request) {
	if _, err := access.RequirePrincipal(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	org, err := a.deps.Identity.GetOrganisation(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// ListOrganisationProfiles is visible to admins and to members of the same
// organisation.
func (a *API) ListOrganisationProfiles(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	orgID := r.PathValue("id")
	if principal.Profile.Role != identity.RoleAdmin && principal.Profile.OrganisationID != orgID {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	profiles, err := a.deps.Identity.ListProfilesByOrganisation(r.Context(), orgID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (a *API) CreateIdentity(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequireRole(r.Context(), identity.RoleAdmin)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var req struct {
		Username         string `json:"username"`
		Email            string `json:"email"`
		Password         string `json:"password"`
		OrganisationID   string `json:"organisation_id"`
		Role             string `json:"role"`
		Clearance        string `json:"clearance_level"`
		Department       string `json:"department"`
		EmployeeID       string `json:"employee_id"`
		CanApproveJORC   bool   `json:"can_approve_jorc"`
		CanApproveVALMIN bool   `json:"can_approve_valmin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	acct, profile, err := a.deps.Identity.CreateIdentity(r.Context(), identity.NewIdentity{
		Username:         req.Username,
		Email:            req.Email,
		Password:         req.Password,
		OrganisationID:   req.OrganisationID,
		Role:             identity.Role(req.Role),
		Clearance:        identity.Clearance(req.Clearance),
		Department:       req.Department,
		EmployeeID:       req.EmployeeID,
		CanApproveJORC:   req.CanApproveJORC,
		CanApproveVALMIN: req.CanApproveVALMIN,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := a.recordAudit(r, principal, audit.ActionCreate,
		entity.Ref{Kind: entity.KindProfile, ID: acct.ID}, "identity created"); err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"account": acct,
		"profile": profile,
	})
}

// GetIdentity returns the profile. Admins may read anyone; everyone else
// only themselves.
func (a *API) GetIdentity(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	accountID := r.PathValue("id")
	if principal.Profile.Role != identity.RoleAdmin && principal.Account.ID != accountID {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	profile, err := a.deps.Identity.GetProfile(r.Context(), accountID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) UpdateIdentity(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequireRole(r.Context(), identity.RoleAdmin)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var req struct {
		OrganisationID   *string `json:"organisation_id"`
		Role             *string `json:"role"`
		Clearance        *string `json:"clearance_level"`
		Department       *string `json:"department"`
		Phone            *string `json:"phone"`
		EmployeeID       *string `json:"employee_id"`
		CanApproveJORC   *bool   `json:"can_approve_jorc"`
		CanApproveVALMIN *bool   `json:"can_approve_valmin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	upd := identity.ProfileUpdate{
		OrganisationID:   req.OrganisationID,
		Department:       req.Department,
		Phone:            req.Phone,
		EmployeeID:       req.EmployeeID,
		CanApproveJORC:   req.CanApproveJORC,
		CanApproveVALMIN: req.CanApproveVALMIN,
	}
	if req.Role != nil {
		role := identity.Role(*req.Role)
		upd.Role = &role
	}
	if req.Clearance != nil {
		clearance := identity.Clearance(*req.Clearance)
		upd.Clearance = &clearance
	}
	accountID := r.PathValue("id")
	profile, err := a.deps.Identity.UpdateProfile(r.Context(), accountID, upd)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := a.recordAudit(r, principal, audit.ActionEdit,
		entity.Ref{Kind: entity.KindProfile, ID: accountID}, "profile updated"); err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// recordAudit appends one trail entry for a completed action. The caller
// fails the request on error: an unaudited sensitive action must not look
// successful.
func (a *API) recordAudit(r *http.Request, principal identity.Principal, action audit.Action, target entity.Ref, description string) error {
	_, err := a.deps.Trail.Append(r.Context(), audit.Entry{
		ActorID:     principal.Account.ID,
		Action:      action,
		Target:      target,
		Description: description,
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		obs.CountAuditWrite("error")
		return err
	}
	obs.CountAuditWrite("ok")
	return nil
}
