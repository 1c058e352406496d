package trust

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"provenance/internal/evidence"
	"provenance/pkg/domain"
)

type stubScorer struct {
	score      float64
	confidence float64
	err        error
}

func (s *stubScorer) Score(context.Context, *evidence.EvidenceRecord) (float64, float64, error) {
	return s.score, s.confidence, s.err
}

func record(md evidence.Metadata, linked int, level *evidence.ComplianceLevel) *evidence.EvidenceRecord {
	r := &evidence.EvidenceRecord{
		ID:              domain.NewEvidenceID(),
		Metadata:        md,
		ComplianceLevel: level,
	}
	for i := 0; i < linked; i++ {
		r.LinkedEvidence = append(r.LinkedEvidence, domain.NewEvidenceID())
	}
	return r
}

func TestBaseline(t *testing.T) {
	full := evidence.ComplianceFull
	partial := evidence.CompliancePartial

	tests := []struct {
		name string
		rec  *evidence.EvidenceRecord
		want float64
	}{
		{
			name: "bare record",
			rec:  record(nil, 0, nil),
			want: 50,
		},
		{
			name: "valuation pair",
			rec: record(evidence.Metadata{
				{Key: KeyPurchaseValue, Value: "1000"},
				{Key: KeyCurrentValue, Value: "900"},
			}, 0, nil),
			want: 65,
		},
		{
			name: "acquisition value counts as purchase",
			rec: record(evidence.Metadata{
				{Key: KeyAcquisitionValue, Value: "500"},
				{Key: KeyCurrentValue, Value: "450"},
			}, 0, nil),
			want: 65,
		},
		{
			name: "purchase value alone scores nothing",
			rec: record(evidence.Metadata{
				{Key: KeyPurchaseValue, Value: "1000"},
			}, 0, nil),
			want: 50,
		},
		{
			name: "serial number",
			rec: record(evidence.Metadata{
				{Key: KeySerialNumber, Value: "SN-1"},
			}, 0, nil),
			want: 60,
		},
		{
			name: "model number when no serial",
			rec: record(evidence.Metadata{
				{Key: KeyModelNumber, Value: "M-1"},
			}, 0, nil),
			want: 60,
		},
		{
			name: "serial and model do not stack",
			rec: record(evidence.Metadata{
				{Key: KeySerialNumber, Value: "SN-1"},
				{Key: KeyModelNumber, Value: "M-1"},
			}, 0, nil),
			want: 60,
		},
		{
			name: "linked evidence",
			rec:  record(nil, 2, nil),
			want: 60,
		},
		{
			name: "prior full compliance",
			rec:  record(nil, 0, &full),
			want: 65,
		},
		{
			name: "prior partial compliance scores nothing",
			rec:  record(nil, 0, &partial),
			want: 50,
		},
		{
			name: "everything",
			rec: record(evidence.Metadata{
				{Key: KeyPurchaseValue, Value: "1000"},
				{Key: KeyCurrentValue, Value: "900"},
				{Key: KeySerialNumber, Value: "SN-1"},
			}, 1, &full),
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Baseline(tt.rec))
		})
	}
}

func TestScoreWithoutOverride(t *testing.T) {
	c := NewCalculator()
	assert.Equal(t, 50.0, c.Score(context.Background(), record(nil, 0, nil)))
}

func TestScoreOverride(t *testing.T) {
	tests := []struct {
		name   string
		scorer *stubScorer
		want   float64
	}{
		{
			name:   "wins on higher confidence",
			scorer: &stubScorer{score: 92, confidence: 0.95},
			want:   92,
		},
		{
			name:   "loses at baseline confidence",
			scorer: &stubScorer{score: 92, confidence: 0.8},
			want:   50,
		},
		{
			name:   "loses below baseline confidence",
			scorer: &stubScorer{score: 92, confidence: 0.5},
			want:   50,
		},
		{
			name:   "failure falls back to baseline",
			scorer: &stubScorer{err: errors.New("model unavailable")},
			want:   50,
		},
		{
			name:   "winning score is clamped",
			scorer: &stubScorer{score: 140, confidence: 0.99},
			want:   100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCalculator(WithOverride(tt.scorer))
			assert.Equal(t, tt.want, c.Score(context.Background(), record(nil, 0, nil)))
		})
	}
}

func TestBaselineIsDeterministic(t *testing.T) {
	rec := record(evidence.Metadata{
		{Key: KeySerialNumber, Value: "SN-1"},
	}, 1, nil)

	first := Baseline(rec)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Baseline(rec))
	}
}
