package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"corevault.org/internal/audit"
	"corevault.org/internal/entity"
	"corevault.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. The status
// compare-and-swap and the audit append happen under one lock, mirroring the
// pg store's single transaction.
type InMemory struct {
	mu        sync.RWMutex
	workflows map[string]Workflow
	trail     audit.Recorder
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty workflow store writing traces to the recorder.
func NewInMemory(trail audit.Recorder) *InMemory {
	return &InMemory{
		workflows: make(map[string]Workflow),
		trail:     trail,
	}
}

func (s *InMemory) Create(ctx context.Context, w Workflow) (Workflow, error) {
	if err := Validate(w); err != nil {
		return Workflow{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = ids.New()
	}
	w.Status = StatusPending
	w.SubmittedAt = time.Now().UTC()
	w.ReviewedAt = nil
	s.workflows[w.ID] = w
	return w, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return Workflow{}, ErrNotFound
	}
	return w, nil
}

func (s *InMemory) ListByTarget(ctx context.Context, target entity.Ref) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, w := range s.workflows {
		if w.Target == target {
			out = append(out, w)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) ListPending(ctx context.Context) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, w := range s.workflows {
		if w.Status == StatusPending {
			out = append(out, w)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) Resolve(ctx context.Context, id string, res Resolution, trace audit.Entry) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return Workflow{}, ErrNotFound
	}
	if w.Status != StatusPending {
		return Workflow{}, ErrInvalidStateTransition
	}

	// Audit first: if the trace cannot be written, the transition must not
	// happen either.
	trace.Description = descriptionWithID(trace.Description, id)
	if _, err := s.trail.Append(ctx, trace); err != nil {
		return Workflow{}, err
	}

	now := time.Now().UTC()
	w.Status = res.Status
	w.ApprovedBy = res.ApprovedBy
	w.ApprovalNotes = res.Notes
	w.ReviewedAt = &now
	s.workflows[id] = w
	return w, nil
}

// descriptionWithID fills the workflow id into a trace prepared before the
// store assigned one (services build the trace from the loaded row, which
// already has its id; this is a no-op then).
func descriptionWithID(desc, id string) string {
	if desc != "" {
		return desc
	}
	return "workflow " + id + " resolved"
}

func sortNewestFirst(ws []Workflow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].SubmittedAt.Equal(ws[j].SubmittedAt) {
			return ws[i].ID > ws[j].ID
		}
		return ws[i].SubmittedAt.After(ws[j].SubmittedAt)
	})
}
