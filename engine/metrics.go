package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/guildflow/metric"
)

// engineMetrics tracks pipeline throughput and outcomes. A nil receiver
// disables recording, so callers never branch on whether metrics are
// configured.
type engineMetrics struct {
	eventsReceived   *prometheus.CounterVec
	rulesEvaluated   *prometheus.CounterVec
	actionsExecuted  *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
}

func newEngineMetrics(registry *metric.MetricsRegistry) *engineMetrics {
	if registry == nil {
		return nil
	}

	m := &engineMetrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildflow_engine_events_received_total",
			Help: "Inbound events handled by the engine, by event kind.",
		}, []string{"kind"}),
		rulesEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildflow_engine_rules_evaluated_total",
			Help: "Rules that matched an event, by outcome.",
		}, []string{"outcome"}),
		actionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildflow_engine_actions_executed_total",
			Help: "Action executions, by action kind and status.",
		}, []string{"action", "status"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guildflow_engine_pipeline_duration_seconds",
			Help:    "End-to-end pipeline latency per event, by event kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	registry.MustRegister("engine",
		m.eventsReceived, m.rulesEvaluated, m.actionsExecuted, m.pipelineDuration)
	return m
}

func (m *engineMetrics) recordEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(kind).Inc()
}

func (m *engineMetrics) recordRule(outcome string) {
	if m == nil {
		return
	}
	m.rulesEvaluated.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) recordAction(action, status string) {
	if m == nil {
		return
	}
	m.actionsExecuted.WithLabelValues(action, status).Inc()
}

func (m *engineMetrics) observePipeline(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
