package audit

import (
	"context"
	"sync"

	"provenance/pkg/domain"
)

// MemoryStore keeps audit events in memory, grouped by record.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]Event)}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RecordID] = append(s.events[event.RecordID], event)
	return nil
}

func (s *MemoryStore) ListByRecord(_ context.Context, recordID domain.EvidenceID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[recordID.String()]...), nil
}
