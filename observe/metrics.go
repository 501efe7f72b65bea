// Package observe provides Prometheus metrics for ConvoMesh.
package observe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the routing and orchestration
// core.
type Metrics struct {
	// Admission metrics
	AdmissionDecisionsTotal  *prometheus.CounterVec
	CapacityRaceLossesTotal  prometheus.Counter
	RulesDeactivatedTotal    prometheus.Counter
	LedgerEntriesPrunedTotal prometheus.Counter

	// Dispatch metrics
	DispatchesTotal          *prometheus.CounterVec
	DispatchDuration         *prometheus.HistogramVec
	EscalationsTotal         *prometheus.CounterVec
	ConversationsClosedTotal *prometheus.CounterVec

	// Reasoner metrics
	ReasonerCallsTotal   *prometheus.CounterVec
	ReasonerCallDuration *prometheus.HistogramVec

	// Engine metrics
	EventsQueuedTotal prometheus.Counter
	EventsInFlight    prometheus.Gauge
	QueueDepth        prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them on reg. Tests pass a
// fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.AdmissionDecisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convomesh_admission_decisions_total",
			Help: "Total number of admission decisions by outcome",
		},
		[]string{"outcome"},
	)

	m.CapacityRaceLossesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "convomesh_capacity_race_losses_total",
			Help: "Total number of lost capacity compare-and-increment attempts",
		},
	)

	m.RulesDeactivatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "convomesh_rules_deactivated_total",
			Help: "Total number of rules deactivated after capacity exhaustion",
		},
	)

	m.LedgerEntriesPrunedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "convomesh_ledger_entries_pruned_total",
			Help: "Total number of expired idempotency ledger entries removed",
		},
	)

	m.DispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convomesh_dispatches_total",
			Help: "Total number of orchestrator dispatches by agent and result status",
		},
		[]string{"agent", "status"},
	)

	m.DispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convomesh_dispatch_duration_seconds",
			Help:    "Duration of orchestrator dispatches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	m.EscalationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convomesh_escalations_total",
			Help: "Total number of conversations escalated to humans",
		},
		[]string{"agent"},
	)

	m.ConversationsClosedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convomesh_conversations_closed_total",
			Help: "Total number of conversations closed by reason",
		},
		[]string{"reason"},
	)

	m.ReasonerCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convomesh_reasoner_calls_total",
			Help: "Total number of reasoner calls by agent and status",
		},
		[]string{"agent", "status"},
	)

	m.ReasonerCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convomesh_reasoner_call_duration_seconds",
			Help:    "Duration of reasoner calls in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	m.EventsQueuedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "convomesh_events_queued_total",
			Help: "Total number of inbound events accepted by the engine",
		},
	)

	m.EventsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "convomesh_events_in_flight",
			Help: "Number of events currently being processed",
		},
	)

	m.QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "convomesh_queue_depth",
			Help: "Number of events waiting in per-conversation queues",
		},
	)

	return m
}

// RecordAdmission records one admission decision. All record methods are
// safe to call on a nil receiver so components can take metrics as an
// optional dependency.
func (m *Metrics) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.AdmissionDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCapacityRaceLoss records one lost compare-and-increment attempt.
func (m *Metrics) RecordCapacityRaceLoss() {
	if m == nil {
		return
	}
	m.CapacityRaceLossesTotal.Inc()
}

// RecordRuleDeactivated records one rule deactivated on exhaustion.
func (m *Metrics) RecordRuleDeactivated() {
	if m == nil {
		return
	}
	m.RulesDeactivatedTotal.Inc()
}

// RecordLedgerPruned records expired ledger entries removed by a sweep.
func (m *Metrics) RecordLedgerPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LedgerEntriesPrunedTotal.Add(float64(n))
}

// RecordConversationClosed records one conversation closed with its reason.
func (m *Metrics) RecordConversationClosed(reason string) {
	if m == nil {
		return
	}
	m.ConversationsClosedTotal.WithLabelValues(reason).Inc()
}

// RecordEventQueued records one inbound event accepted by the engine.
func (m *Metrics) RecordEventQueued() {
	if m == nil {
		return
	}
	m.EventsQueuedTotal.Inc()
	m.QueueDepth.Inc()
}

// RecordEventStarted marks one event leaving its queue for processing.
func (m *Metrics) RecordEventStarted() {
	if m == nil {
		return
	}
	m.QueueDepth.Dec()
	m.EventsInFlight.Inc()
}

// RecordEventFinished marks one event done processing.
func (m *Metrics) RecordEventFinished() {
	if m == nil {
		return
	}
	m.EventsInFlight.Dec()
}

// RecordDispatch records one orchestrator dispatch with its final status.
func (m *Metrics) RecordDispatch(agent, status string, escalated bool, duration time.Duration) {
	if m == nil {
		return
	}
	if agent == "" {
		agent = "none"
	}
	m.DispatchesTotal.WithLabelValues(agent, status).Inc()
	m.DispatchDuration.WithLabelValues(agent).Observe(duration.Seconds())
	if escalated {
		m.EscalationsTotal.WithLabelValues(agent).Inc()
	}
}

// RecordReasonerCall records one reasoner call.
func (m *Metrics) RecordReasonerCall(agent string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.ReasonerCallsTotal.WithLabelValues(agent, status).Inc()
	m.ReasonerCallDuration.WithLabelValues(agent).Observe(duration.Seconds())
}
