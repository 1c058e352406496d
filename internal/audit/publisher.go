package audit

import (
	"context"
	"time"

	"provenance/pkg/domain"
)

// Store is an append-only sink for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRecord(ctx context.Context, recordID domain.EvidenceID) ([]Event, error)
}

// Publisher is the contract lifecycle code emits through. Implementations are
// the store-backed publisher below and the Kafka publisher in the kafka
// subpackage.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// StorePublisher captures structured audit events into a Store. It is
// append-only and uses the storage layer for persistence so tests can swap
// sinks easily.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

func (p *StorePublisher) List(ctx context.Context, recordID domain.EvidenceID) ([]Event, error) {
	return p.store.ListByRecord(ctx, recordID)
}

// Fanout emits to every publisher. All sinks are attempted; the first error is
// returned so callers still learn about a failing sink.
type Fanout []Publisher

func (f Fanout) Emit(ctx context.Context, event Event) error {
	var first error
	for _, p := range f {
		if err := p.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
