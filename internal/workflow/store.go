package workflow

import (
	"context"

	"corevault.org/internal/audit"
	"corevault.org/internal/entity"
)

// Store describes persistence for approval workflows.
type Store interface {
	Create(ctx context.Context, w Workflow) (Workflow, error)
	Get(ctx context.Context, id string) (Workflow, error)
	ListByTarget(ctx context.Context, target entity.Ref) ([]Workflow, error)
	ListPending(ctx context.Context) ([]Workflow, error)

	// Resolve transitions the workflow out of PENDING and appends the audit
	// entry as one atomic unit. The transition is conditional on the current
	// status being PENDING (compare-and-swap): when the row is already
	// resolved, the store returns ErrInvalidStateTransition and the audit
	// entry is not written. There is no state where the workflow shows
	// resolved without its audit trace, or the reverse.
	Resolve(ctx context.Context, id string, res Resolution, trace audit.Entry) (Workflow, error)
}

// Resolution carries the terminal state a resolve applies.
type Resolution struct {
	Status     Status
	ApprovedBy string
	Notes      string
}
