package kvstore

import (
	"context"
	"sync"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
)

// MemoryStore keeps records in process memory. Records do not survive a
// restart, which is acceptable for a pipeline whose files are ephemeral
// by contract. It is the default backend.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.FileRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*domain.FileRecord),
	}
}

// Put stores a record, replacing any existing record with the same ID.
func (s *MemoryStore) Put(_ context.Context, rec *domain.FileRecord) error {
	cp := *rec
	s.mu.Lock()
	s.records[rec.ID] = &cp
	s.mu.Unlock()
	return nil
}

// Get returns the record for id, or port.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.FileRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Delete removes the record for id. Deleting a missing record is a no-op.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

// Keys returns the IDs of all stored records.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for id := range s.records {
		keys = append(keys, id)
	}
	return keys, nil
}

// Close releases the store. It is a no-op for the memory backend.
func (s *MemoryStore) Close() error { return nil }
