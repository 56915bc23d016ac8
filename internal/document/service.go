package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Service handles document ingest with content deduplication.
type Service struct {
	store Store
	alg   Algorithm
}

// Option configures Service.
type Option func(*Service)

// WithAlgorithm selects the content digest algorithm.
func WithAlgorithm(alg Algorithm) Option {
	return func(s *Service) {
		if alg != "" {
			s.alg = alg
		}
	}
}

// NewService constructs the document service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	s := &Service{store: store, alg: DefaultAlgorithm}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Algorithm reports the digest algorithm the service fingerprints with.
func (s *Service) Algorithm() Algorithm { return s.alg }

// Ingest fingerprints the content and persists the document row. The store's
// uniqueness constraint decides duplicates; a losing concurrent upload comes
// back as DuplicateContentError.
func (s *Service) Ingest(ctx context.Context, doc Document, content io.Reader) (Document, error) {
	doc.Title = strings.TrimSpace(doc.Title)
	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	if content == nil {
		return Document{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	digest, err := ComputeDigest(s.alg, content)
	if err != nil {
		return Document{}, err
	}
	doc.Checksum = digest
	if doc.Confidentiality == "" {
		doc.Confidentiality = ConfidentialityInternal
	}
	return s.store.Create(ctx, doc)
}

// CheckDuplicate reports whether content with this digest is already stored.
// Pure read; the write path re-checks under the storage constraint.
func (s *Service) CheckDuplicate(ctx context.Context, digest string) (bool, error) {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return false, nil
	}
	return s.store.ChecksumExists(ctx, digest)
}

func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Document{}, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ListByOrganisation(ctx context.Context, organisationID string) ([]Document, error) {
	organisationID = strings.TrimSpace(organisationID)
	if organisationID == "" {
		return nil, fmt.Errorf("%w: organisation_id is required", ErrInvalidInput)
	}
	return s.store.ListByOrganisation(ctx, organisationID)
}

func (s *Service) ListByProcess(ctx context.Context, processID string) ([]Document, error) {
	processID = strings.TrimSpace(processID)
	if processID == "" {
		return nil, fmt.Errorf("%w: process_id is required", ErrInvalidInput)
	}
	return s.store.ListByProcess(ctx, processID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}
