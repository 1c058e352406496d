// Package verification aggregates chain, trust, and identity checks into a
// compliance classification. The three checks are independent reads and run
// concurrently under an aggregate timeout; a check that cannot complete counts
// as failed for classification but is logged and metered distinctly from an
// explicit negative.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"provenance/internal/chain"
	"provenance/internal/evidence"
	"provenance/internal/trust"
	"provenance/internal/verification/metrics"
	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

// AttestationVerifier is the identity collaborator contract.
type AttestationVerifier interface {
	VerifyAttestation(ctx context.Context, id domain.EvidenceID) (bool, error)
}

// Check is the outcome of one verification source. Err is non-nil only for
// transient failures; an explicit negative has Passed=false, Err=nil.
type Check struct {
	Passed bool
	Err    error
}

// Result is a full verification pass over one record.
type Result struct {
	Level       evidence.ComplianceLevel
	Chain       Check
	Trust       Check
	Identity    Check
	TrustScore  float64
	EvaluatedAt time.Time
}

// Aggregator queries the three collaborators and classifies the combined
// outcome. It never mutates records; persisting the computed level is the
// lifecycle service's job.
type Aggregator struct {
	chain    chain.Client
	trust    *trust.Calculator
	identity AttestationVerifier
	logger   *slog.Logger
	metrics  *metrics.Metrics

	timeout           time.Duration
	adequateThreshold float64
	fullThreshold     float64
}

// Config wires an Aggregator.
type Config struct {
	Chain    chain.Client
	Trust    *trust.Calculator
	Identity AttestationVerifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Timeout bounds the whole pass. Zero means 5s.
	Timeout time.Duration
	// AdequateThreshold and FullThreshold are the trust score cutoffs for
	// partial and full classification. Zero means 40 and 80.
	AdequateThreshold float64
	FullThreshold     float64
}

func NewAggregator(cfg Config) *Aggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.AdequateThreshold <= 0 {
		cfg.AdequateThreshold = 40
	}
	if cfg.FullThreshold <= 0 {
		cfg.FullThreshold = 80
	}
	return &Aggregator{
		chain:             cfg.Chain,
		trust:             cfg.Trust,
		identity:          cfg.Identity,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		timeout:           cfg.Timeout,
		adequateThreshold: cfg.AdequateThreshold,
		fullThreshold:     cfg.FullThreshold,
	}
}

// Verify runs the three checks for the record and classifies the result. The
// record is read-only input; callers pass the current copy so the hash
// comparison and trust signals reflect persisted state.
func (a *Aggregator) Verify(ctx context.Context, record *evidence.EvidenceRecord) *Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result := &Result{EvaluatedAt: time.Now()}

	// errgroup for shared-context fan-out; check failures are captured in the
	// result rather than returned, so one failing source never cancels the
	// others.
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		result.Chain = a.checkChain(ctx, record)
		a.metrics.ObserveCheckLatency("chain", time.Since(start))
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		result.TrustScore = a.trust.Score(ctx, record)
		result.Trust = Check{Passed: result.TrustScore >= a.adequateThreshold}
		a.metrics.ObserveCheckLatency("trust", time.Since(start))
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		result.Identity = a.checkIdentity(ctx, record.ID)
		a.metrics.ObserveCheckLatency("identity", time.Since(start))
		return nil
	})

	_ = g.Wait()

	a.recordFailure(ctx, record.ID, "chain", result.Chain)
	a.recordFailure(ctx, record.ID, "trust", result.Trust)
	a.recordFailure(ctx, record.ID, "identity", result.Identity)

	result.Level = Classify(result.Chain.Passed, result.TrustScore, result.Identity.Passed,
		a.adequateThreshold, a.fullThreshold)
	a.metrics.IncrementClassification(string(result.Level))
	return result
}

// checkChain verifies an anchor exists for the record and that its stored
// hash matches the record's data hash. No anchor is an explicit negative;
// collaborator unreachability is a transient failure.
func (a *Aggregator) checkChain(ctx context.Context, record *evidence.EvidenceRecord) Check {
	anchor, err := a.chain.GetAnchor(ctx, record.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Check{Passed: false}
		}
		return Check{Passed: false, Err: err}
	}
	return Check{Passed: anchor.DataHash == record.DataHash}
}

func (a *Aggregator) checkIdentity(ctx context.Context, id domain.EvidenceID) Check {
	verified, err := a.identity.VerifyAttestation(ctx, id)
	if err != nil {
		return Check{Passed: false, Err: err}
	}
	return Check{Passed: verified}
}

func (a *Aggregator) recordFailure(ctx context.Context, id domain.EvidenceID, name string, check Check) {
	if check.Passed {
		return
	}
	if check.Err != nil {
		a.metrics.IncrementCheckFailure(name, "transient")
		if a.logger != nil {
			a.logger.WarnContext(ctx, "verification check unavailable",
				"record_id", id,
				"check", name,
				"error", check.Err,
			)
		}
		return
	}
	a.metrics.IncrementCheckFailure(name, "negative")
	if a.logger != nil {
		a.logger.DebugContext(ctx, "verification check negative",
			"record_id", id,
			"check", name,
		)
	}
}

// Classify is the pure classification rule. Kept exact and table-driven so the
// compliance level is a function of the three outcomes and nothing else:
//
//	full:    chain ∧ score ≥ fullThreshold ∧ identity
//	partial: chain ∧ score ≥ adequateThreshold
//	minimal: any single check succeeded, conditions above not met
//	none:    otherwise
func Classify(chainOK bool, score float64, identityOK bool, adequateThreshold, fullThreshold float64) evidence.ComplianceLevel {
	trustOK := score >= adequateThreshold
	switch {
	case chainOK && score >= fullThreshold && identityOK:
		return evidence.ComplianceFull
	case chainOK && trustOK:
		return evidence.CompliancePartial
	case chainOK || trustOK || identityOK:
		return evidence.ComplianceMinimal
	default:
		return evidence.ComplianceNone
	}
}
