package mysequel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments of a Handle.
type Metrics struct {
	connectionsAcquired  metric.Int64Counter
	connectionsReleased  metric.Int64Counter
	connectionsDestroyed metric.Int64Counter
	connectionsActive    metric.Int64UpDownCounter

	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram

	sweepsTotal   metric.Int64Counter
	pingFailures  metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

// EnableMetrics enables or disables metrics collection for this handle.
func (h *Handle) EnableMetrics(enabled bool) {
	if h == nil {
		return
	}
	h.updateInstr(func(in *instrumentation) {
		in.metricsEnabled = enabled
		if enabled && in.metrics == nil {
			in.metrics = newMetrics(in.meterProvider)
		}
	})
}

// SetMeterProvider sets a custom meter provider for metrics.
func (h *Handle) SetMeterProvider(provider metric.MeterProvider) {
	if h == nil {
		return
	}
	h.updateInstr(func(in *instrumentation) {
		in.meterProvider = provider
		if in.metricsEnabled {
			in.metrics = newMetrics(provider)
		}
	})
}

func newMetrics(provider metric.MeterProvider) *Metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)

	m := &Metrics{}
	m.connectionsAcquired, _ = meter.Int64Counter(
		"mysequel_connections_acquired_total",
		metric.WithDescription("Connections acquired from the underlying pool"),
	)
	m.connectionsReleased, _ = meter.Int64Counter(
		"mysequel_connections_released_total",
		metric.WithDescription("Connections returned to the pool for reuse"),
	)
	m.connectionsDestroyed, _ = meter.Int64Counter(
		"mysequel_connections_destroyed_total",
		metric.WithDescription("Connections discarded after a failure"),
	)
	m.connectionsActive, _ = meter.Int64UpDownCounter(
		"mysequel_connections_active",
		metric.WithDescription("Connections currently borrowed"),
	)
	m.queriesTotal, _ = meter.Int64Counter(
		"mysequel_queries_total",
		metric.WithDescription("Executions of the query primitive"),
	)
	m.queryDuration, _ = meter.Float64Histogram(
		"mysequel_query_duration_seconds",
		metric.WithDescription("Duration of query primitive executions"),
		metric.WithUnit("s"),
	)
	m.sweepsTotal, _ = meter.Int64Counter(
		"mysequel_health_sweeps_total",
		metric.WithDescription("Completed health sweeps"),
	)
	m.pingFailures, _ = meter.Int64Counter(
		"mysequel_ping_failures_total",
		metric.WithDescription("Connections that failed a health sweep"),
	)
	m.sweepDuration, _ = meter.Float64Histogram(
		"mysequel_health_sweep_duration_seconds",
		metric.WithDescription("Duration of health sweeps"),
		metric.WithUnit("s"),
	)
	return m
}

func (h *Handle) metricsOn() *Metrics {
	in := h.instr()
	if !in.metricsEnabled {
		return nil
	}
	return in.metrics
}

func (h *Handle) recordAcquired(ctx context.Context) {
	m := h.metricsOn()
	if m == nil {
		return
	}
	m.connectionsAcquired.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

func (h *Handle) recordReturned(ctx context.Context, destroyed bool) {
	m := h.metricsOn()
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, -1)
	if destroyed {
		m.connectionsDestroyed.Add(ctx, 1)
		return
	}
	m.connectionsReleased.Add(ctx, 1)
}

func (h *Handle) recordQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	m := h.metricsOn()
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	m.queriesTotal.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, duration.Seconds(), attrs)
}

func (h *Handle) recordSweep(ctx context.Context, failures []error, duration time.Duration) {
	m := h.metricsOn()
	if m == nil {
		return
	}
	m.sweepsTotal.Add(ctx, 1)
	m.sweepDuration.Record(ctx, duration.Seconds())
	for _, err := range failures {
		kind := PingTransportFailure
		if IsPingAssertion(err) {
			kind = PingAssertionFailure
		}
		m.pingFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
	}
}
