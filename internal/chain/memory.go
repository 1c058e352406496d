package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

// MemoryClient anchors records into process memory. Anchoring is idempotent
// and references are deterministic per (id, hash) so repeated calls and
// restarts of a test harness agree on the reference.
type MemoryClient struct {
	mu      sync.RWMutex
	anchors map[domain.EvidenceID]Anchor

	// confirmAfter delays confirmation to simulate finality lag; zero means
	// anchors are final immediately.
	confirmAfter time.Duration
	now          func() time.Time
}

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithConfirmDelay makes Confirm report false until the anchor has aged past d.
func WithConfirmDelay(d time.Duration) MemoryOption {
	return func(c *MemoryClient) {
		c.confirmAfter = d
	}
}

// WithNow injects the time source used for anchor timestamps.
func WithNow(now func() time.Time) MemoryOption {
	return func(c *MemoryClient) {
		if now != nil {
			c.now = now
		}
	}
}

func NewMemoryClient(opts ...MemoryOption) *MemoryClient {
	c := &MemoryClient{
		anchors: make(map[domain.EvidenceID]Anchor),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryClient) Anchor(_ context.Context, id domain.EvidenceID, dataHash string) (Anchor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.anchors[id]; ok {
		return existing, nil
	}
	anchor := Anchor{
		Reference:  referenceFor(id, dataHash),
		DataHash:   dataHash,
		AnchoredAt: c.now(),
	}
	c.anchors[id] = anchor
	return anchor, nil
}

func (c *MemoryClient) GetAnchor(_ context.Context, id domain.EvidenceID) (Anchor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	anchor, ok := c.anchors[id]
	if !ok {
		return Anchor{}, sentinel.ErrNotFound
	}
	return anchor, nil
}

func (c *MemoryClient) Confirm(_ context.Context, reference string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, anchor := range c.anchors {
		if anchor.Reference == reference {
			return c.now().Sub(anchor.AnchoredAt) >= c.confirmAfter, nil
		}
	}
	return false, nil
}

func referenceFor(id domain.EvidenceID, dataHash string) string {
	sum := sha256.Sum256([]byte(id.String() + ":" + dataHash))
	return "anchor:" + hex.EncodeToString(sum[:16])
}
