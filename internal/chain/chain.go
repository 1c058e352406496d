// Package chain defines the contract for the external anchoring collaborator
// and ships an in-memory implementation for development and tests. Production
// deployments inject a real client satisfying Client.
package chain

import (
	"context"
	"time"

	"provenance/pkg/domain"
)

// Anchor is a committed record hash on the external ledger.
type Anchor struct {
	Reference  string
	DataHash   string
	AnchoredAt time.Time
}

// Client is the anchoring collaborator. Anchor must be idempotent per id:
// repeated calls return the existing reference rather than creating a
// duplicate. GetAnchor returns sentinel.ErrNotFound when no anchor exists —
// the lifecycle service uses it to reconcile a crash between a successful
// anchor call and the local commit.
type Client interface {
	Anchor(ctx context.Context, id domain.EvidenceID, dataHash string) (Anchor, error)
	GetAnchor(ctx context.Context, id domain.EvidenceID) (Anchor, error)
	Confirm(ctx context.Context, reference string) (bool, error)
}
