package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"corevault.org/internal/entity"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Action classifies what the actor did to the target entity.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionView     Action = "VIEW"
	ActionEdit     Action = "EDIT"
	ActionApprove  Action = "APPROVE"
	ActionReject   Action = "REJECT"
	ActionDelete   Action = "DELETE"
	ActionDownload Action = "DOWNLOAD"
)

var allActions = map[Action]struct{}{
	ActionCreate: {}, ActionView: {}, ActionEdit: {}, ActionApprove: {},
	ActionReject: {}, ActionDelete: {}, ActionDownload: {},
}

// Valid reports whether the action is one of the enumerated kinds.
func (a Action) Valid() bool {
	_, ok := allActions[a]
	return ok
}

// Entry is one immutable audit fact. Once appended it is never updated or
// deleted; the compliance record is the point.
type Entry struct {
	ID string `json:"id"`
	// ActorID is empty when the acting identity was later removed.
	ActorID     string     `json:"actor_id,omitempty"`
	Action      Action     `json:"action"`
	Target      entity.Ref `json:"target"`
	Description string     `json:"description,omitempty"`
	IP          string     `json:"ip_address,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ValidateEntry is the explicit validation run by the append path. IP and
// user agent are best-effort enrichment and may be empty.
func ValidateEntry(e Entry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidInput, e.Action)
	}
	if strings.TrimSpace(e.Target.ID) == "" || e.Target.Kind == "" {
		return fmt.Errorf("%w: target reference is required", ErrInvalidInput)
	}
	return nil
}

// Query filters the audit stream. Zero values mean "any". Results come back
// reverse-chronological; Limit/Offset page through them.
type Query struct {
	Target  entity.Ref
	ActorID string
	Action  Action
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// ViewEntry is one immutable document-view fact: the denormalised fast path
// for "who has seen this document" without scanning the generic stream.
type ViewEntry struct {
	ID         string    `json:"id"`
	ViewerID   string    `json:"viewer_id"`
	DocumentID string    `json:"document_id"`
	IP         string    `json:"ip_address,omitempty"`
	ViewedAt   time.Time `json:"viewed_at"`
}
