package ledger

import (
	"context"
	"sync"

	"provenance/internal/evidence"
	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

// MemoryStore keeps the initial implementation lightweight and testable. It
// intentionally favors clarity over performance: one mutex, deep copies on
// every boundary crossing.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.EvidenceID]*evidence.EvidenceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[domain.EvidenceID]*evidence.EvidenceRecord)}
}

func (s *MemoryStore) Create(_ context.Context, record *evidence.EvidenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := record.Clone()
	stored.Version = 1
	s.records[record.ID] = stored
	record.Version = 1
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.EvidenceID) (*evidence.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, id domain.EvidenceID, expectedVersion int64, mutate Mutator) (*evidence.EvidenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, sentinel.ErrConflict
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1
	s.records[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Scan(_ context.Context, match Predicate) ([]*evidence.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.EvidenceRecord
	for _, record := range s.records {
		if match == nil || match(record) {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}
