package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planwalk/planwalk/pkg/domain"
)

// PromMetrics holds Prometheus metrics for hosts that expose a scrape
// endpoint instead of (or in addition to) OTLP export. Each instance owns
// its registry, so embedded runs never collide on metric registration.
type PromMetrics struct {
	stepsTotal       *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	stallsTotal      *prometheus.CounterVec
	terminalTotal    *prometheus.CounterVec
	activeTraversals prometheus.Gauge

	registry *prometheus.Registry
}

// NewPromMetrics creates a metrics instance with its own registry.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()

	m := &PromMetrics{
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planwalk_steps_total",
				Help: "Total engine steps by graph and resulting status",
			},
			[]string{"graph_id", "status"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planwalk_retries_total",
				Help: "Total retry cycles triggered by failed verification",
			},
			[]string{"graph_id", "node_id"},
		),

		stallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planwalk_stalls_total",
				Help: "Total steps where no edge matched the node outcome",
			},
			[]string{"graph_id", "node_id"},
		),

		terminalTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planwalk_terminal_total",
				Help: "Total traversals reaching a terminal status",
			},
			[]string{"graph_id", "status"},
		),

		activeTraversals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "planwalk_active_traversals",
				Help: "Number of currently active traversals",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.stepsTotal,
		m.retriesTotal,
		m.stallsTotal,
		m.terminalTotal,
		m.activeTraversals,
	)

	return m
}

// RecordStep records metrics for one engine step.
func (m *PromMetrics) RecordStep(graphID string, metrics StepMetrics) {
	m.stepsTotal.WithLabelValues(graphID, string(metrics.Status)).Inc()
	if metrics.Retried {
		m.retriesTotal.WithLabelValues(graphID, metrics.NodeID).Inc()
	}
	if metrics.Stalled {
		m.stallsTotal.WithLabelValues(graphID, metrics.NodeID).Inc()
	}
	if metrics.Status.Terminal() {
		m.terminalTotal.WithLabelValues(graphID, string(metrics.Status)).Inc()
	}
}

// TraversalStarted increments the active traversal gauge.
func (m *PromMetrics) TraversalStarted() {
	m.activeTraversals.Inc()
}

// TraversalFinished decrements the active traversal gauge.
func (m *PromMetrics) TraversalFinished(domain.TraversalStatus) {
	m.activeTraversals.Dec()
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *PromMetrics) Registry() *prometheus.Registry {
	return m.registry
}
