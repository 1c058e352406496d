// Package scheduler scans the ledger for time-triggered work: records whose
// freeze window has elapsed and records past their retention deadline. The
// sweeper only observes and signals; acting on a signal belongs to the handler
// so the scan loop stays cheap and side-effect free.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"provenance/internal/evidence"
	"provenance/internal/ledger"
	"provenance/internal/policy"
	"provenance/pkg/domain"
	"provenance/pkg/platform/clock"
)

// SignalKind identifies what a swept record is eligible for.
type SignalKind string

const (
	SignalMintEligible  SignalKind = "mint_eligible"
	SignalPurgeEligible SignalKind = "purge_eligible"
)

// Signal is one eligibility finding from a sweep.
type Signal struct {
	Kind     SignalKind
	RecordID domain.EvidenceID
	State    evidence.State
	// Due is the instant the record became eligible.
	Due time.Time
}

// Handler receives signals. Handler errors abort the sweep so a failing
// downstream is noticed rather than flooded.
type Handler interface {
	Handle(ctx context.Context, signal Signal) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, signal Signal) error

func (f HandlerFunc) Handle(ctx context.Context, signal Signal) error {
	return f(ctx, signal)
}

// Sweeper scans the ledger on demand or on an interval.
type Sweeper struct {
	store   ledger.Store
	handler Handler
	clock   clock.Clock
	logger  *slog.Logger

	freezeWindow    time.Duration
	includeDisputed bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) {
		s.clock = c
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithFreezeWindow overrides the mint eligibility window.
func WithFreezeWindow(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.freezeWindow = d
		}
	}
}

// WithIncludeDisputed lets expired disputed records surface as purge eligible.
// Off by default: a dispute freezes retention handling until an operator
// resolves it.
func WithIncludeDisputed() Option {
	return func(s *Sweeper) {
		s.includeDisputed = true
	}
}

func NewSweeper(store ledger.Store, handler Handler, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:        store,
		handler:      handler,
		clock:        clock.NewSystem(),
		logger:       slog.Default(),
		freezeWindow: policy.FreezeWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one scan and hands every eligible record to the handler. Both
// eligibility checks are inclusive at the boundary instant. Returns the number
// of signals handled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()

	records, err := s.store.Scan(ctx, func(r *evidence.EvidenceRecord) bool {
		return s.mintEligible(r, now) || s.purgeEligible(r, now)
	})
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, record := range records {
		if s.mintEligible(record, now) {
			signal := Signal{
				Kind:     SignalMintEligible,
				RecordID: record.ID,
				State:    record.State,
				Due:      record.FreezeAt.Add(s.freezeWindow),
			}
			if err := s.handler.Handle(ctx, signal); err != nil {
				return handled, err
			}
			handled++
		}
		if s.purgeEligible(record, now) {
			signal := Signal{
				Kind:     SignalPurgeEligible,
				RecordID: record.ID,
				State:    record.State,
				Due:      record.RetentionUntil,
			}
			if err := s.handler.Handle(ctx, signal); err != nil {
				return handled, err
			}
			handled++
		}
	}
	return handled, nil
}

func (s *Sweeper) mintEligible(r *evidence.EvidenceRecord, now time.Time) bool {
	return r.State == evidence.StateFrozen &&
		r.FreezeAt != nil &&
		!now.Before(r.FreezeAt.Add(s.freezeWindow))
}

func (s *Sweeper) purgeEligible(r *evidence.EvidenceRecord, now time.Time) bool {
	if now.Before(r.RetentionUntil) {
		return false
	}
	if r.State == evidence.StateDisputed && !s.includeDisputed {
		return false
	}
	return true
}

// Run sweeps on the given interval until the context is cancelled. Sweep
// errors are logged and the loop continues; a transient store outage must not
// kill the scheduler.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			handled, err := s.Sweep(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
				continue
			}
			if handled > 0 {
				s.logger.InfoContext(ctx, "sweep complete", "signals", handled)
			}
		}
	}
}
