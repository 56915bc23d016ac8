package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"corevault.org/internal/entity"
)

func docRef(id string) entity.Ref {
	return entity.Ref{Kind: entity.KindDocument, ID: id}
}

func TestAppendAndQueryOrdering(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	for _, action := range []Action{ActionCreate, ActionView, ActionEdit} {
		if _, err := s.Append(ctx, Entry{ActorID: "u1", Action: action, Target: docRef("d1")}); err != nil {
			t.Fatalf("Append(%s): %v", action, err)
		}
	}

	got, err := s.Query(ctx, Query{Target: docRef("d1")})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// Reverse-chronological default.
	if got[0].Action != ActionEdit || got[2].Action != ActionCreate {
		t.Fatalf("unexpected ordering: %v %v %v", got[0].Action, got[1].Action, got[2].Action)
	}
	for _, e := range got {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatalf("entry missing id/timestamp: %+v", e)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	s.Append(ctx, Entry{ActorID: "u1", Action: ActionView, Target: docRef("d1")})
	s.Append(ctx, Entry{ActorID: "u2", Action: ActionView, Target: docRef("d1")})
	s.Append(ctx, Entry{ActorID: "u1", Action: ActionDelete, Target: docRef("d2")})

	byActor, _ := s.Query(ctx, Query{ActorID: "u1"})
	if len(byActor) != 2 {
		t.Fatalf("actor filter: got %d", len(byActor))
	}
	byAction, _ := s.Query(ctx, Query{Action: ActionDelete})
	if len(byAction) != 1 || byAction[0].Target.ID != "d2" {
		t.Fatalf("action filter: %+v", byAction)
	}
	future, _ := s.Query(ctx, Query{Since: time.Now().Add(time.Hour)})
	if len(future) != 0 {
		t.Fatalf("time filter: got %d", len(future))
	}
}

func TestQueryPagination(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, Entry{Action: ActionView, Target: docRef("d1")})
	}

	page, _ := s.Query(ctx, Query{Limit: 2})
	if len(page) != 2 {
		t.Fatalf("limit: got %d", len(page))
	}
	rest, _ := s.Query(ctx, Query{Limit: 10, Offset: 3})
	if len(rest) != 2 {
		t.Fatalf("offset: got %d", len(rest))
	}
	none, _ := s.Query(ctx, Query{Offset: 99})
	if len(none) != 0 {
		t.Fatalf("past-end offset: got %d", len(none))
	}
}

func TestAppendValidation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.Append(ctx, Entry{Action: "SHRED", Target: docRef("d1")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad action, got %v", err)
	}
	if _, err := s.Append(ctx, Entry{Action: ActionView}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing target, got %v", err)
	}
	// Actor, IP and user agent are best-effort enrichment.
	if _, err := s.Append(ctx, Entry{Action: ActionView, Target: docRef("d1")}); err != nil {
		t.Fatalf("anonymous entry should append: %v", err)
	}
}

func TestEntriesAreImmutableCopies(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	appended, _ := s.Append(ctx, Entry{ActorID: "u1", Action: ActionView, Target: docRef("d1")})

	// Mutating what Append returned must not touch the stored entry.
	appended.Description = "tampered"
	appended.ActorID = "someone-else"

	got, _ := s.Query(ctx, Query{Target: docRef("d1")})
	if len(got) != 1 || got[0].Description != "" || got[0].ActorID != "u1" {
		t.Fatalf("stored entry was mutated: %+v", got[0])
	}

	// Same for query results.
	got[0].Description = "tampered again"
	again, _ := s.Query(ctx, Query{Target: docRef("d1")})
	if again[0].Description != "" {
		t.Fatalf("query result aliased internal state")
	}
}

func TestViewLedger(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.RecordView(ctx, ViewEntry{ViewerID: "u1", DocumentID: "d1", IP: "10.0.0.1"}); err != nil {
		t.Fatalf("RecordView: %v", err)
	}
	if _, err := s.RecordView(ctx, ViewEntry{ViewerID: "u2", DocumentID: "d1"}); err != nil {
		t.Fatalf("RecordView: %v", err)
	}
	if _, err := s.RecordView(ctx, ViewEntry{ViewerID: "u1", DocumentID: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	views, err := s.QueryViews(ctx, "d1")
	if err != nil || len(views) != 2 {
		t.Fatalf("QueryViews: %v, n=%d", err, len(views))
	}
	// Newest first.
	if views[0].ViewerID != "u2" {
		t.Fatalf("unexpected ordering: %+v", views)
	}

	seen, _ := s.HasViewed(ctx, "u1", "d1")
	if !seen {
		t.Fatal("u1 should have seen d1")
	}
	seen, _ = s.HasViewed(ctx, "u3", "d1")
	if seen {
		t.Fatal("u3 has not seen d1")
	}
}
