package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RealtimeMetrics records connection manager activity per stream.
type RealtimeMetrics struct {
	transitions *prometheus.CounterVec
	reconnects  *prometheus.CounterVec
	polls       *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
}

// NewRealtimeMetrics registers the realtime metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_state_transitions_total",
		Help: "Connection state transitions per stream.",
	}, []string{"stream", "state"})
	reconnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_reconnect_attempts_total",
		Help: "Real-time connection attempts scheduled after a failure.",
	}, []string{"stream"})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_polls_total",
		Help: "Fallback polls per stream by result.",
	}, []string{"stream", "result"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_dropped_frames_total",
		Help: "Frames discarded before reaching subscribers.",
	}, []string{"stream", "reason"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_duplicate_events_total",
		Help: "Events suppressed by the dedup window.",
	}, []string{"stream"})
	reg.MustRegister(transitions, reconnects, polls, dropped, duplicates)
	return &RealtimeMetrics{
		transitions: transitions,
		reconnects:  reconnects,
		polls:       polls,
		dropped:     dropped,
		duplicates:  duplicates,
	}
}

// ObserveTransition counts entry into state for the stream.
func (r *RealtimeMetrics) ObserveTransition(stream, state string) {
	if r == nil || r.transitions == nil {
		return
	}
	r.transitions.WithLabelValues(normalizeLabel(stream), normalizeLabel(state)).Inc()
}

func (r *RealtimeMetrics) IncReconnect(stream string) {
	if r == nil || r.reconnects == nil {
		return
	}
	r.reconnects.WithLabelValues(normalizeLabel(stream)).Inc()
}

// IncPoll records a poll; ok=false labels it as an error.
func (r *RealtimeMetrics) IncPoll(stream string, ok bool) {
	if r == nil || r.polls == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.polls.WithLabelValues(normalizeLabel(stream), result).Inc()
}

func (r *RealtimeMetrics) IncDropped(stream, reason string) {
	if r == nil || r.dropped == nil {
		return
	}
	r.dropped.WithLabelValues(normalizeLabel(stream), normalizeLabel(reason)).Inc()
}

func (r *RealtimeMetrics) IncDuplicate(stream string) {
	if r == nil || r.duplicates == nil {
		return
	}
	r.duplicates.WithLabelValues(normalizeLabel(stream)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
