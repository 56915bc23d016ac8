package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"corevault.org/internal/entity"
	"corevault.org/internal/identity"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// ErrInvalidStateTransition means the workflow was no longer PENDING when
	// a resolution was attempted. One resolution per workflow, ever.
	ErrInvalidStateTransition = errors.New("workflow is not pending")

	// ErrUnauthorizedApproval means the approver lacks the entitlement or
	// role the workflow type demands.
	ErrUnauthorizedApproval = errors.New("not authorized to approve this workflow type")
)

// Type names the compliance standard the approval is gated by.
type Type string

const (
	TypeJORC    Type = "JORC"
	TypeVALMIN  Type = "VALMIN"
	TypeGeneral Type = "GENERAL"
)

// Valid reports whether the workflow type is one of the enumerated kinds.
func (t Type) Valid() bool {
	return t == TypeJORC || t == TypeVALMIN || t == TypeGeneral
}

// Status of one approval cycle. PENDING is the only non-terminal state. A
// REVISION_REQUIRED item comes back as a brand new submission; the record
// itself never returns to PENDING.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusRevisionRequired Status = "REVISION_REQUIRED"
)

// Decision values accepted by Resolve.
var terminalStatuses = map[Status]struct{}{
	StatusApproved: {}, StatusRejected: {}, StatusRevisionRequired: {},
}

// ValidDecision reports whether the status is an acceptable resolution.
func ValidDecision(s Status) bool {
	_, ok := terminalStatuses[s]
	return ok
}

// Workflow is one approval cycle for one target entity.
type Workflow struct {
	ID     string     `json:"id"`
	Target entity.Ref `json:"target"`
	Type   Type       `json:"workflow_type"`
	Status Status     `json:"status"`

	SubmittedBy string `json:"submitted_by"`
	// ApprovedBy is empty until the workflow is resolved.
	ApprovedBy string `json:"approved_by,omitempty"`

	SubmissionNotes string `json:"submission_notes,omitempty"`
	ApprovalNotes   string `json:"approval_notes,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	// ReviewedAt is set if and only if Status != PENDING.
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// Validate is the explicit validation run by the submission write path.
func Validate(w Workflow) error {
	if strings.TrimSpace(w.Target.ID) == "" || w.Target.Kind == "" {
		return fmt.Errorf("%w: target reference is required", ErrInvalidInput)
	}
	if !w.Type.Valid() {
		return fmt.Errorf("%w: unsupported workflow type %q", ErrInvalidInput, w.Type)
	}
	if strings.TrimSpace(w.SubmittedBy) == "" {
		return fmt.Errorf("%w: submitter is required", ErrInvalidInput)
	}
	return nil
}

// generalApprovalRoles may resolve GENERAL workflows. JORC and VALMIN ignore
// role entirely; only the explicit entitlement flags count.
var generalApprovalRoles = map[identity.Role]struct{}{
	identity.RoleFieldLead:   {},
	identity.RoleDataManager: {},
	identity.RoleOpsManager:  {},
	identity.RoleAdmin:       {},
}

// CanApprove reports whether the profile may resolve workflows of this type.
func CanApprove(profile identity.Profile, t Type) bool {
	switch t {
	case TypeJORC:
		return profile.CanApproveJORC
	case TypeVALMIN:
		return profile.CanApproveVALMIN
	case TypeGeneral:
		_, ok := generalApprovalRoles[profile.Role]
		return ok
	default:
		return false
	}
}
