package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/planwalk/planwalk/pkg/domain"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	stepCounter          metric.Int64Counter
	retryCounter         metric.Int64Counter
	stallCounter         metric.Int64Counter
	terminalCounter      metric.Int64Counter
	turnsToTerminalHisto metric.Int64Histogram
)

// StepMetrics captures the fields needed to record one engine step.
type StepMetrics struct {
	GraphID      string
	NodeID       string
	NodeKind     domain.NodeKind
	Status       domain.TraversalStatus
	Transitioned bool
	Stalled      bool
	Retried      bool
}

// RecordStep emits counters describing one traversal step. Terminal
// statuses additionally record the turn count it took to get there.
func RecordStep(ctx context.Context, m StepMetrics, turn int) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("graph.id", m.GraphID),
		attribute.String("node.id", m.NodeID),
		attribute.String("node.kind", string(m.NodeKind)),
		attribute.String("traversal.status", string(m.Status)),
	}

	stepCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Retried {
		retryCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.Stalled {
		stallCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.Status.Terminal() {
		terminalCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		turnsToTerminalHisto.Record(ctx, int64(turn), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("planwalk.engine")

		stepCounter, metricsInitErr = meter.Int64Counter(
			"planwalk.steps_total",
			metric.WithDescription("Engine steps partitioned by graph, node and resulting status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		retryCounter, metricsInitErr = meter.Int64Counter(
			"planwalk.retries_total",
			metric.WithDescription("Retry cycles triggered by failed verification"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stallCounter, metricsInitErr = meter.Int64Counter(
			"planwalk.stalls_total",
			metric.WithDescription("Steps where no edge matched the node outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		terminalCounter, metricsInitErr = meter.Int64Counter(
			"planwalk.terminal_total",
			metric.WithDescription("Traversals reaching a terminal status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		turnsToTerminalHisto, metricsInitErr = meter.Int64Histogram(
			"planwalk.turns_to_terminal",
			metric.WithDescription("Turns a traversal took to reach a terminal status"),
			metric.WithUnit("{turn}"),
		)
	})

	return metricsInitErr
}
