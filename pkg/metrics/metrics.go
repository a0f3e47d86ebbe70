package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors shared by all services. Every method is safe
// on a nil receiver so components can run without instrumentation in tests.
type Metrics struct {
	sagasStarted       prometheus.Counter
	sagasFinished      *prometheus.CounterVec
	sagasStuck         prometheus.Gauge
	stuckAlerts        prometheus.Counter
	outboxPublished    *prometheus.CounterVec
	outboxFailures     *prometheus.CounterVec
	deadLetters        *prometheus.CounterVec
	projectionsApplied *prometheus.CounterVec
	projectionsBuffer  prometheus.Gauge
	projectionRebuilds *prometheus.CounterVec
}

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return reg
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sagasStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saga_started_total",
			Help: "Checkout sagas started.",
		}),
		sagasFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_finished_total",
			Help: "Checkout sagas that reached a terminal state, by state.",
		}, []string{"state"}),
		sagasStuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "saga_stuck",
			Help: "Sagas whose compensation exhausted its retries and wait for an operator.",
		}),
		stuckAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saga_stuck_alerts_total",
			Help: "Stuck saga alerts raised.",
		}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox records delivered to the channel.",
		}, []string{"topic"}),
		outboxFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Failed outbox publish attempts.",
		}, []string{"topic"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_dead_letters_total",
			Help: "Messages moved to a dead-letter topic.",
		}, []string{"topic"}),
		projectionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projector_events_applied_total",
			Help: "Events applied to read models.",
		}, []string{"view"}),
		projectionsBuffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "projector_buffered_events",
			Help: "Out-of-order events waiting for their predecessors.",
		}),
		projectionRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projector_rebuilds_total",
			Help: "Read-model rows rebuilt from write-side snapshots.",
		}, []string{"view"}),
	}

	reg.MustRegister(
		m.sagasStarted,
		m.sagasFinished,
		m.sagasStuck,
		m.stuckAlerts,
		m.outboxPublished,
		m.outboxFailures,
		m.deadLetters,
		m.projectionsApplied,
		m.projectionsBuffer,
		m.projectionRebuilds,
	)

	return m
}

func (m *Metrics) SagaStarted() {
	if m == nil {
		return
	}
	m.sagasStarted.Inc()
}

func (m *Metrics) SagaFinished(state string) {
	if m == nil {
		return
	}
	m.sagasFinished.WithLabelValues(state).Inc()
}

func (m *Metrics) SagaStuck() {
	if m == nil {
		return
	}
	m.stuckAlerts.Inc()
	m.sagasStuck.Inc()
}

func (m *Metrics) SagaUnstuck() {
	if m == nil {
		return
	}
	m.sagasStuck.Dec()
}

func (m *Metrics) OutboxPublished(topic string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) OutboxFailed(topic string) {
	if m == nil {
		return
	}
	m.outboxFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) DeadLettered(topic string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(topic).Inc()
}

func (m *Metrics) ProjectionApplied(view string) {
	if m == nil {
		return
	}
	m.projectionsApplied.WithLabelValues(view).Inc()
}

func (m *Metrics) ProjectionBuffered(delta int) {
	if m == nil {
		return
	}
	m.projectionsBuffer.Add(float64(delta))
}

func (m *Metrics) ProjectionRebuilt(view string) {
	if m == nil {
		return
	}
	m.projectionRebuilds.WithLabelValues(view).Inc()
}
