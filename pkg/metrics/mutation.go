package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MutationMetrics records how optimistic mutations settle.
type MutationMetrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMutationMetrics registers the mutation metrics on the provided registerer.
func NewMutationMetrics(reg prometheus.Registerer) *MutationMetrics {
	if reg == nil {
		return &MutationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimistic_mutations_total",
		Help: "Optimistic mutations by collection, operation and outcome.",
	}, []string{"collection", "op", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optimistic_mutation_duration_seconds",
		Help:    "Time from local apply to server settlement.",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection", "op"})
	reg.MustRegister(outcomes, duration)
	return &MutationMetrics{outcomes: outcomes, duration: duration}
}

// Observe records one settled mutation.
func (m *MutationMetrics) Observe(collection, op, outcome string, took time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	collection = normalizeLabel(collection)
	op = normalizeLabel(op)
	m.outcomes.WithLabelValues(collection, op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(collection, op).Observe(took.Seconds())
}
