// Package ledger provides durable, concurrency-safe storage for evidence
// records. It is the only shared mutable resource in the engine; all other
// components are stateless. Per-record concurrency is scoped through
// CompareAndSwap on the record's version — there is no global lock.
package ledger

import (
	"context"

	"provenance/internal/evidence"
	"provenance/pkg/domain"
)

// Mutator applies an in-place change to a record inside CompareAndSwap. It
// runs under the record's lock; returning an error aborts the swap without
// persisting anything. Mutators must not touch Version — the store owns it.
type Mutator func(*evidence.EvidenceRecord) error

// Predicate selects records during a Scan.
type Predicate func(*evidence.EvidenceRecord) bool

// Store is interface-driven to keep the lifecycle service testable and to
// allow swapping in-memory and PostgreSQL persistence without rewiring
// business code. Implementations return pkg/platform/sentinel errors:
// ErrNotFound for unknown ids, ErrConflict for stale versions or duplicate
// creates.
type Store interface {
	// Create persists a new record. The record's Version is forced to 1.
	Create(ctx context.Context, record *evidence.EvidenceRecord) error

	// Get returns a copy of the record.
	Get(ctx context.Context, id domain.EvidenceID) (*evidence.EvidenceRecord, error)

	// CompareAndSwap applies mutate to the record iff its current version
	// equals expectedVersion, increments the version, and persists the result
	// atomically. A stale expectedVersion fails with ErrConflict and leaves
	// the record untouched. The returned record reflects the persisted state.
	CompareAndSwap(ctx context.Context, id domain.EvidenceID, expectedVersion int64, mutate Mutator) (*evidence.EvidenceRecord, error)

	// Scan streams copies of all records matching the predicate. Used by the
	// retention/freeze sweeper; ordering is unspecified.
	Scan(ctx context.Context, match Predicate) ([]*evidence.EvidenceRecord, error)
}
