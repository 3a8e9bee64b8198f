package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the client's interactions with the session backend.
// A nil *Metrics is valid and records nothing, so wiring stays optional.
type Metrics struct {
	refreshes   *prometheus.CounterVec
	submits     *prometheus.CounterVec
	advances    *prometheus.CounterVec
	stallAborts prometheus.Counter
}

// New registers the metric set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_snapshot_refreshes_total",
			Help: "Snapshot refreshes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		submits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_answer_submits_total",
			Help: "Answer submissions by outcome.",
		}, []string{"outcome"}),
		advances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_advance_attempts_total",
			Help: "Question-advance attempts by path and outcome.",
		}, []string{"path", "outcome"}),
		stallAborts: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_loading_stall_aborts_total",
			Help: "Aborts to menu caused by an unresolvable current question.",
		}),
	}
}

// Refresh records one snapshot refresh attempt.
func (m *Metrics) Refresh(trigger, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(trigger, outcome).Inc()
}

// Submit records one answer submission outcome.
func (m *Metrics) Submit(outcome string) {
	if m == nil {
		return
	}
	m.submits.WithLabelValues(outcome).Inc()
}

// Advance records one advance attempt.
func (m *Metrics) Advance(path, outcome string) {
	if m == nil {
		return
	}
	m.advances.WithLabelValues(path, outcome).Inc()
}

// StallAbort records one loading-stall abort.
func (m *Metrics) StallAbort() {
	if m == nil {
		return
	}
	m.stallAborts.Inc()
}
