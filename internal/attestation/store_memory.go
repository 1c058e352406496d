package attestation

import (
	"context"
	"sync"

	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

// MemoryTokenStore keeps attestation tokens in memory for development and
// tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[domain.EvidenceID]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[domain.EvidenceID]string)}
}

func (s *MemoryTokenStore) Save(_ context.Context, id domain.EvidenceID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[id] = token
	return nil
}

func (s *MemoryTokenStore) Find(_ context.Context, id domain.EvidenceID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[id]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return token, nil
}
