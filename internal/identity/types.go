package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
	// ErrProfileMissing marks an authenticated account without a profile row.
	// It is a data-integrity fault, distinct from an authorization failure.
	ErrProfileMissing = errors.New("user profile not found")
)

// OrganisationMode distinguishes exploration tenants from mining tenants.
type OrganisationMode string

const (
	ModeExploration OrganisationMode = "EXPLORATION"
	ModeMining      OrganisationMode = "MINING"
)

// Organisation is the tenant boundary for documents and profiles.
type Organisation struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Mode      OrganisationMode `json:"mode"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ValidateOrganisation is the explicit per-entity validation run by the
// storage write path.
func ValidateOrganisation(org Organisation) error {
	switch org.Mode {
	case ModeExploration, ModeMining:
		return nil
	default:
		return fmt.Errorf("%w: unsupported organisation mode %q", ErrInvalidInput, org.Mode)
	}
}

// Role is a governance role carried on a profile.
type Role string

const (
	// Exploration roles.
	RoleGeologistExpl Role = "GEOLOGIST_EXPL"
	RoleFieldLead     Role = "FIELD_LEAD"
	RoleDataManager   Role = "DATA_MANAGER"

	// Mining roles.
	RoleGeologistMine Role = "GEOLOGIST_MINE"
	RoleMetallurgist  Role = "METALLURGIST"
	RoleOpsManager    Role = "OPS_MANAGER"

	RoleAdmin  Role = "ADMIN"
	RoleViewer Role = "VIEWER"
)

var allRoles = map[Role]struct{}{
	RoleGeologistExpl: {}, RoleFieldLead: {}, RoleDataManager: {},
	RoleGeologistMine: {}, RoleMetallurgist: {}, RoleOpsManager: {},
	RoleAdmin: {}, RoleViewer: {},
}

// Valid reports whether the role is one of the enumerated governance roles.
func (r Role) Valid() bool {
	_, ok := allRoles[r]
	return ok
}

// IsExploration reports whether the role belongs to the exploration side.
func (r Role) IsExploration() bool {
	return r == RoleGeologistExpl || r == RoleFieldLead || r == RoleDataManager
}

// IsMining reports whether the role belongs to the mining side.
func (r Role) IsMining() bool {
	return r == RoleGeologistMine || r == RoleMetallurgist || r == RoleOpsManager
}

// Clearance is an ordered level; higher ordinal sees more.
type Clearance string

const (
	ClearancePublic       Clearance = "PUBLIC"
	ClearanceInternal     Clearance = "INTERNAL"
	ClearanceConfidential Clearance = "CONFIDENTIAL"
	ClearanceJORCApproved Clearance = "JORC_APPROVED"
)

var clearanceOrdinals = map[Clearance]int{
	ClearancePublic:       0,
	ClearanceInternal:     1,
	ClearanceConfidential: 2,
	ClearanceJORCApproved: 3,
}

// Ordinal maps the clearance onto the shared comparison scale. Unknown
// clearances rank lowest.
func (c Clearance) Ordinal() int {
	return clearanceOrdinals[c]
}

// Valid reports whether the clearance is one of the enumerated levels.
func (c Clearance) Valid() bool {
	_, ok := clearanceOrdinals[c]
	return ok
}

// Account is an authenticated identity. Session mechanics live in the web
// layer; the kernel only needs the stable ID and credentials for token issue.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile carries the governance attributes access decisions are made from.
// Every account has exactly one.
type Profile struct {
	AccountID      string    `json:"account_id"`
	OrganisationID string    `json:"organisation_id,omitempty"`
	Role           Role      `json:"role"`
	Clearance      Clearance `json:"clearance_level"`

	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`

	// Independent approval entitlements; neither is implied by role.
	CanApproveJORC   bool `json:"can_approve_jorc"`
	CanApproveVALMIN bool `json:"can_approve_valmin"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateProfile is the explicit per-entity validation run by the storage
// write path.
func ValidateProfile(p Profile) error {
	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, p.Role)
	}
	if !p.Clearance.Valid() {
		return fmt.Errorf("%w: unsupported clearance level %q", ErrInvalidInput, p.Clearance)
	}
	return nil
}
