package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the lifecycle module.
type Metrics struct {
	// Transition attempts by operation and outcome (the outcome is the domain
	// error code, or "ok")
	Transitions *prometheus.CounterVec

	// Anchor calls against the chain collaborator by outcome
	AnchorCalls *prometheus.CounterVec

	// End-to-end operation latency
	OperationLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_lifecycle_transitions_total",
			Help: "Total lifecycle operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		AnchorCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_lifecycle_anchor_calls_total",
			Help: "Chain anchor calls by outcome (ok, reconciled, error)",
		}, []string{"outcome"}),

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provenance_lifecycle_operation_duration_seconds",
			Help:    "Duration of lifecycle operations including collaborator calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
	}
}

// IncrementTransition records an operation outcome.
func (m *Metrics) IncrementTransition(operation, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(operation, outcome).Inc()
	}
}

// IncrementAnchorCall records a chain anchor call outcome.
func (m *Metrics) IncrementAnchorCall(outcome string) {
	if m != nil {
		m.AnchorCalls.WithLabelValues(outcome).Inc()
	}
}

// ObserveOperation records the duration of a lifecycle operation.
func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
