package pg

import (
	"context"
	"database/sql"
	"errors"

	"corevault.org/internal/audit"
	"corevault.org/internal/entity"
	"corevault.org/internal/ids"
	"corevault.org/internal/workflow"
)

// WorkflowStore adapts Store to workflow.Store. It exists because
// document.Store also declares Create and Get with different signatures, so
// one receiver type cannot implement both interfaces; everything except the
// two colliding methods is promoted from the embedded Store.
type WorkflowStore struct{ *Store }

// Workflows exposes the workflow.Store view of the shared pool.
func (s *Store) Workflows() WorkflowStore { return WorkflowStore{s} }

var _ workflow.Store = WorkflowStore{}

const workflowColumns = `id, target_kind, target_id, workflow_type, status,
	submitted_by, coalesce(approved_by, ''), coalesce(submission_notes, ''),
	coalesce(approval_notes, ''), submitted_at, reviewed_at`

func scanWorkflow(row rowScanner) (workflow.Workflow, error) {
	var (
		w        workflow.Workflow
		reviewed sql.NullTime
	)
	err := row.Scan(&w.ID, &w.Target.Kind, &w.Target.ID, &w.Type, &w.Status,
		&w.SubmittedBy, &w.ApprovedBy, &w.SubmissionNotes,
		&w.ApprovalNotes, &w.SubmittedAt, &reviewed)
	if reviewed.Valid {
		t := reviewed.Time
		w.ReviewedAt = &t
	}
	return w, err
}

func (s WorkflowStore) Create(ctx context.Context, w workflow.Workflow) (workflow.Workflow, error) {
	if w.ID == "" {
		w.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into approval_workflows (
			id, target_kind, target_id, workflow_type, status,
			submitted_by, submission_notes
		)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+workflowColumns,
		w.ID, w.Target.Kind, w.Target.ID, w.Type, workflow.StatusPending,
		w.SubmittedBy, nullIfEmpty(w.SubmissionNotes))
	out, err := scanWorkflow(row)
	if err != nil {
		return workflow.Workflow{}, err
	}
	return out, nil
}

func (s WorkflowStore) Get(ctx context.Context, id string) (workflow.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, `
		select `+workflowColumns+`
		from approval_workflows
		where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Workflow{}, workflow.ErrNotFound
	}
	if err != nil {
		return workflow.Workflow{}, err
	}
	return w, nil
}

func (s *Store) ListByTarget(ctx context.Context, target entity.Ref) ([]workflow.Workflow, error) {
	return s.listWorkflows(ctx, `
		select `+workflowColumns+`
		from approval_workflows
		where target_kind = $1 and target_id = $2
		order by submitted_at desc
	`, target.Kind, target.ID)
}

func (s *Store) ListPending(ctx context.Context) ([]workflow.Workflow, error) {
	return s.listWorkflows(ctx, `
		select `+workflowColumns+`
		from approval_workflows
		where status = $1
		order by submitted_at desc
	`, workflow.StatusPending)
}

func (s *Store) listWorkflows(ctx context.Context, query string, args ...any) ([]workflow.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// Resolve runs the conditional transition and the audit append in one
// transaction. The update's "status = PENDING" predicate is the
// compare-and-swap: zero rows updated means some other resolver won, and the
// whole transaction, audit entry included, rolls back.
func (s *Store) Resolve(ctx context.Context, id string, res workflow.Resolution, trace audit.Entry) (workflow.Workflow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workflow.Workflow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		update approval_workflows
		set status = $2, approved_by = $3, approval_notes = $4, reviewed_at = now()
		where id = $1 and status = $5
		returning `+workflowColumns,
		id, res.Status, nullIfEmpty(res.ApprovedBy), nullIfEmpty(res.Notes), workflow.StatusPending)
	out, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the workflow does not exist or it is already resolved.
		var status workflow.Status
		probe := tx.QueryRowContext(ctx, `select status from approval_workflows where id = $1`, id).Scan(&status)
		if errors.Is(probe, sql.ErrNoRows) {
			return workflow.Workflow{}, workflow.ErrNotFound
		}
		if probe != nil {
			return workflow.Workflow{}, probe
		}
		return workflow.Workflow{}, workflow.ErrInvalidStateTransition
	}
	if err != nil {
		return workflow.Workflow{}, err
	}

	if trace.ID == "" {
		trace.ID = ids.New()
	}
	if _, err := tx.ExecContext(ctx, `
		insert into audit_logs (id, actor_id, action, target_kind, target_id, description, ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, trace.ID, nullIfEmpty(trace.ActorID), trace.Action, trace.Target.Kind, trace.Target.ID,
		nullIfEmpty(trace.Description), nullIfEmpty(trace.IP), nullIfEmpty(trace.UserAgent)); err != nil {
		return workflow.Workflow{}, err
	}

	if err := tx.Commit(); err != nil {
		return workflow.Workflow{}, err
	}
	return out, nil
}
