package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"corevault.org/internal/audit"
	"corevault.org/internal/entity"
	"corevault.org/internal/identity"
)

// Service runs the approval state machine over a Store.
type Service struct {
	store Store
}

// NewService constructs the workflow service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("workflow store is required")
	}
	return &Service{store: store}, nil
}

// Submit opens a new approval cycle. Submission always succeeds for a valid
// request and always starts PENDING.
func (s *Service) Submit(ctx context.Context, target entity.Ref, t Type, submitter identity.Principal, notes string) (Workflow, error) {
	w := Workflow{
		Target:          target,
		Type:            t,
		Status:          StatusPending,
		SubmittedBy:     submitter.Account.ID,
		SubmissionNotes: strings.TrimSpace(notes),
	}
	if err := Validate(w); err != nil {
		return Workflow{}, err
	}
	return s.store.Create(ctx, w)
}

// RequestContext carries best-effort enrichment for the audit trace.
type RequestContext struct {
	IP        string
	UserAgent string
}

// Resolve applies one terminal decision to a pending workflow.
//
// The entitlement check runs first and independent of the workflow's current
// status: an unauthorized approver learns nothing about whether the workflow
// was still open. The PENDING check itself happens inside the store's
// compare-and-swap, together with the audit append.
func (s *Service) Resolve(ctx context.Context, id string, approver identity.Principal, decision Status, notes string, req RequestContext) (Workflow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Workflow{}, fmt.Errorf("%w: workflow id is required", ErrInvalidInput)
	}
	if !ValidDecision(decision) {
		return Workflow{}, fmt.Errorf("%w: unsupported decision %q", ErrInvalidInput, decision)
	}

	w, err := s.store.Get(ctx, id)
	if err != nil {
		return Workflow{}, err
	}
	if !CanApprove(approver.Profile, w.Type) {
		return Workflow{}, fmt.Errorf("%w: %s", ErrUnauthorizedApproval, w.Type)
	}

	trace := audit.Entry{
		ActorID:     approver.Account.ID,
		Action:      auditAction(decision),
		Target:      w.Target,
		Description: fmt.Sprintf("%s workflow %s resolved %s", w.Type, w.ID, decision),
		IP:          req.IP,
		UserAgent:   req.UserAgent,
	}
	res := Resolution{
		Status:     decision,
		ApprovedBy: approver.Account.ID,
		Notes:      strings.TrimSpace(notes),
	}
	return s.store.Resolve(ctx, id, res, trace)
}

func (s *Service) Get(ctx context.Context, id string) (Workflow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Workflow{}, fmt.Errorf("%w: workflow id is required", ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ListByTarget(ctx context.Context, target entity.Ref) ([]Workflow, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("%w: target reference is required", ErrInvalidInput)
	}
	return s.store.ListByTarget(ctx, target)
}

func (s *Service) ListPending(ctx context.Context) ([]Workflow, error) {
	return s.store.ListPending(ctx)
}

// auditAction maps the decision onto the audit action enum. A revision
// request is a refusal of the submitted item, so it audits as REJECT.
func auditAction(decision Status) audit.Action {
	if decision == StatusApproved {
		return audit.ActionApprove
	}
	return audit.ActionReject
}
