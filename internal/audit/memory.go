package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"corevault.org/internal/ids"
)

// InMemory implements Recorder and ViewLedger with in-process concurrency
// safety. Entries are stored by value; nothing handed out aliases internal
// state, so the append-only contract holds even against careless callers.
type InMemory struct {
	mu      sync.RWMutex
	entries []Entry
	views   []ViewEntry
}

var (
	_ Recorder   = (*InMemory)(nil)
	_ ViewLedger = (*InMemory)(nil)
)

// NewInMemory creates an empty audit store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ValidateEntry(e); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	e.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *InMemory) Query(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	// Entries append in creation order; walk backwards for newest-first.
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !q.Target.IsZero() && e.Target != q.Target {
			continue
		}
		if q.ActorID != "" && e.ActorID != q.ActorID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if !q.Since.IsZero() && e.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.CreatedAt.After(q.Until) {
			continue
		}
		matched = append(matched, e)
	}
	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemory) RecordView(ctx context.Context, v ViewEntry) (ViewEntry, error) {
	if strings.TrimSpace(v.ViewerID) == "" || strings.TrimSpace(v.DocumentID) == "" {
		return ViewEntry{}, fmt.Errorf("%w: viewer and document are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		v.ID = ids.New()
	}
	v.ViewedAt = time.Now().UTC()
	s.views = append(s.views, v)
	return v, nil
}

func (s *InMemory) QueryViews(ctx context.Context, documentID string) ([]ViewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ViewEntry
	for i := len(s.views) - 1; i >= 0; i-- {
		if s.views[i].DocumentID == documentID {
			out = append(out, s.views[i])
		}
	}
	return out, nil
}

func (s *InMemory) HasViewed(ctx context.Context, viewerID, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.views {
		if v.ViewerID == viewerID && v.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}
