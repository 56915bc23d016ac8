// Package audit is the append-only trail of sensitive actions. The interfaces
// deliberately expose no update or delete: read-only after creation is a
// contract enforced at the boundary, not a convention.
package audit

import "context"

// Recorder appends and queries immutable audit entries.
type Recorder interface {
	// Append persists the entry. When an audit write is the only trace of a
	// sensitive action, the caller must fail that action on error here.
	Append(ctx context.Context, e Entry) (Entry, error)
	Query(ctx context.Context, q Query) ([]Entry, error)
}

// ViewLedger appends and queries immutable document-view entries.
type ViewLedger interface {
	RecordView(ctx context.Context, v ViewEntry) (ViewEntry, error)
	// QueryViews returns views of one document, newest first.
	QueryViews(ctx context.Context, documentID string) ([]ViewEntry, error)
	HasViewed(ctx context.Context, viewerID, documentID string) (bool, error)
}
