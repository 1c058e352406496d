package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Per-check latencies
	CheckLatency *prometheus.HistogramVec

	// Classification outcomes by level
	Classifications *prometheus.CounterVec

	// Check failures split by kind so operators can tell "not verifiable
	// right now" (transient) from "verifiably inauthentic" (negative)
	CheckFailures *prometheus.CounterVec
}

// New creates a Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		CheckLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provenance_verification_check_duration_seconds",
			Help:    "Duration of verification checks by source",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"check"}), // check: "chain", "trust", "identity"

		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_verification_classifications_total",
			Help: "Total compliance classifications by level",
		}, []string{"level"}),

		CheckFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_verification_check_failures_total",
			Help: "Verification check failures by check and kind (transient or negative)",
		}, []string{"check", "kind"}),
	}
}

// ObserveCheckLatency records the duration of a single verification check.
func (m *Metrics) ObserveCheckLatency(check string, d time.Duration) {
	if m != nil {
		m.CheckLatency.WithLabelValues(check).Observe(d.Seconds())
	}
}

// IncrementClassification records a classification outcome.
func (m *Metrics) IncrementClassification(level string) {
	if m != nil {
		m.Classifications.WithLabelValues(level).Inc()
	}
}

// IncrementCheckFailure records a failed check with its failure kind.
func (m *Metrics) IncrementCheckFailure(check, kind string) {
	if m != nil {
		m.CheckFailures.WithLabelValues(check, kind).Inc()
	}
}
