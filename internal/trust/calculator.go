// Package trust computes trust scores for evidence records. The baseline is a
// pure, deterministic rule chain; an optional higher-fidelity scorer (an
// external AI collaborator) is injected as a strategy and only wins when it is
// more confident than the baseline.
package trust

import (
	"context"
	"log/slog"

	"provenance/internal/evidence"
)

// Metadata keys the baseline inspects. Submissions use these to carry
// valuation and identification signals.
const (
	KeyPurchaseValue    = "purchase_value"
	KeyAcquisitionValue = "acquisition_value"
	KeyCurrentValue     = "current_value"
	KeySerialNumber     = "serial_number"
	KeyModelNumber      = "model_number"
)

// BaselineConfidence is the fixed confidence of the deterministic baseline.
// An override scorer must beat it to replace the baseline score.
const BaselineConfidence = 0.8

// Scorer is the external scoring collaborator contract.
type Scorer interface {
	Score(ctx context.Context, record *evidence.EvidenceRecord) (score, confidence float64, err error)
}

// Calculator pairs the baseline with an optional override strategy.
type Calculator struct {
	override Scorer
	logger   *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithOverride injects the higher-fidelity scorer.
func WithOverride(scorer Scorer) Option {
	return func(c *Calculator) {
		c.override = scorer
	}
}

// WithLogger attaches a logger for fallback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) {
		c.logger = logger
	}
}

func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score returns the trust score for a record in [0,100]. The override scorer,
// when present and successful, replaces the baseline only if its confidence is
// strictly greater than BaselineConfidence. Override failures never propagate:
// the engine must keep functioning when the collaborator is down.
func (c *Calculator) Score(ctx context.Context, record *evidence.EvidenceRecord) float64 {
	baseline := Baseline(record)
	if c.override == nil {
		return baseline
	}

	score, confidence, err := c.override.Score(ctx, record)
	if err != nil {
		if c.logger != nil {
			c.logger.DebugContext(ctx, "override scorer unavailable, using baseline",
				"record_id", record.ID,
				"error", err,
			)
		}
		return baseline
	}
	if confidence > BaselineConfidence {
		return clamp(score)
	}
	return baseline
}

// Baseline computes the deterministic score. Rule chain:
// start at 50; +15 when both an acquisition value and a current value are
// present; +10 for a unique identifier; +10 for at least one linked
// supporting evidence item; +15 when a prior verification pass classified the
// record full. Clamped to [0,100].
func Baseline(record *evidence.EvidenceRecord) float64 {
	score := 50.0

	_, hasPurchase := record.Metadata.Get(KeyPurchaseValue)
	if !hasPurchase {
		_, hasPurchase = record.Metadata.Get(KeyAcquisitionValue)
	}
	_, hasCurrent := record.Metadata.Get(KeyCurrentValue)
	if hasPurchase && hasCurrent {
		score += 15
	}

	if _, ok := record.Metadata.Get(KeySerialNumber); ok {
		score += 10
	} else if _, ok := record.Metadata.Get(KeyModelNumber); ok {
		score += 10
	}

	if len(record.LinkedEvidence) > 0 {
		score += 10
	}

	if record.ComplianceLevel != nil && *record.ComplianceLevel == evidence.ComplianceFull {
		score += 15
	}

	return clamp(score)
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
