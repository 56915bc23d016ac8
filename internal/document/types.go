package document

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// ErrDuplicateContent is the sentinel every duplicate-digest failure
	// unwraps to. The concrete error carries the conflicting digest.
	ErrDuplicateContent = errors.New("duplicate content")
)

// DuplicateContentError reports a content digest that already exists in the
// store. Callers reject the upload; they never overwrite the survivor.
type DuplicateContentError struct {
	Digest string
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("duplicate content (digest %s)", e.Digest)
}

func (e *DuplicateContentError) Unwrap() error { return ErrDuplicateContent }

// Confidentiality labels recognised on documents. The column is free text for
// compatibility with legacy rows; unknown labels rank as internal.
const (
	ConfidentialityPublic         = "public"
	ConfidentialityInternal       = "internal"
	ConfidentialityConfidential   = "confidential"
	ConfidentialityJORCRestricted = "jorc_restricted"
)

// Document is the protected resource: an uploaded artifact's metadata row.
// The artifact bytes themselves live in the object store, outside this kernel.
type Document struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	OrganisationID  string    `json:"organisation_id,omitempty"`
	ProcessID       string    `json:"process_id,omitempty"`
	DocType         string    `json:"doc_type,omitempty"`
	Confidentiality string    `json:"confidentiality"`
	Checksum        string    `json:"checksum"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate is the explicit per-entity validation run by the storage write
// path.
func Validate(doc Document) error {
	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return nil
}
