package document

import (
	"context"
	"sort"
	"sync"
	"time"

	"corevault.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. The checksum
// index lives under the same lock as the row map, mirroring the pg store's
// unique partial index.
type InMemory struct {
	mu         sync.RWMutex
	docs       map[string]Document
	byChecksum map[string]string // digest -> document id
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty document store.
func NewInMemory() *InMemory {
	return &InMemory{
		docs:       make(map[string]Document),
		byChecksum: make(map[string]string),
	}
}

func (s *InMemory) Create(ctx context.Context, doc Document) (Document, error) {
	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.Checksum != "" {
		if _, exists := s.byChecksum[doc.Checksum]; exists {
			return Document{}, &DuplicateContentError{Digest: doc.Checksum}
		}
	}

	if doc.ID == "" {
		doc.ID = ids.New()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.docs[doc.ID] = doc
	if doc.Checksum != "" {
		s.byChecksum[doc.Checksum] = doc.ID
	}
	return doc, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *InMemory) ListByOrganisation(ctx context.Context, organisationID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, doc := range s.docs {
		if doc.OrganisationID == organisationID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) ListByProcess(ctx context.Context, processID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, doc := range s.docs {
		if doc.ProcessID == processID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) ChecksumExists(ctx context.Context, digest string) (bool, error) {
	if digest == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byChecksum[digest]
	return ok, nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.docs, id)
	if doc.Checksum != "" {
		delete(s.byChecksum, doc.Checksum)
	}
	return nil
}
