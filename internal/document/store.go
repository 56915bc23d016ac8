package document

import "context"

// Store describes persistence for documents. Create must enforce at-most-one
// row per non-empty checksum atomically with the insert; an application-level
// check-then-insert loses the race between concurrent identical uploads.
type Store interface {
	Create(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, id string) (Document, error)
	ListByOrganisation(ctx context.Context, organisationID string) ([]Document, error)
	ListByProcess(ctx context.Context, processID string) ([]Document, error)
	// ChecksumExists is the pure read behind duplicate pre-checks. A false
	// answer is advisory only; Create remains the arbiter.
	ChecksumExists(ctx context.Context, digest string) (bool, error)
	Delete(ctx context.Context, id string) error
}
