// Package metrics provides Prometheus metrics for the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	SessionsStarted prometheus.Counter
	SessionsKilled  prometheus.Counter
	MessagesRouted  *prometheus.CounterVec
	StageAdvances   *prometheus.CounterVec
	GitOutcomes     *prometheus.CounterVec
	ProvisionsTotal *prometheus.CounterVec
	AdvanceDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_sessions_started_total",
				Help: "Total number of assistant sessions started.",
			},
		),
		SessionsKilled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_sessions_killed_total",
				Help: "Total number of assistant sessions torn down.",
			},
		),
		MessagesRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_messages_routed_total",
				Help: "Messages routed into sessions by result.",
			},
			[]string{"result"},
		),
		StageAdvances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_stage_advances_total",
				Help: "Stage transitions by target stage and result.",
			},
			[]string{"to", "result"},
		),
		GitOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_git_outcomes_total",
				Help: "Stage commit sequences by outcome.",
			},
			[]string{"outcome"},
		),
		ProvisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_provisions_total",
				Help: "Development workspace provisionings by result.",
			},
			[]string{"result"},
		),
		AdvanceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bridge_advance_duration_seconds",
				Help:    "Stage advance duration including git and provisioning.",
				Buckets: prometheus.DefBuckets,
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.SessionsStarted)
	reg.MustRegister(m.SessionsKilled)
	reg.MustRegister(m.MessagesRouted)
	reg.MustRegister(m.StageAdvances)
	reg.MustRegister(m.GitOutcomes)
	reg.MustRegister(m.ProvisionsTotal)
	reg.MustRegister(m.AdvanceDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
