// Package telemetry wires OpenTelemetry metrics through the memory engines
// and the SQL executor (spec §4.B domain stack), promoting the teacher's
// declared-but-unwired otel dependencies to actual instrumentation.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/antigravity/cogmem"

// Metrics holds the instruments shared across engines and the SQL executor.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	engineCalls     metric.Int64Counter
	executorLatency metric.Float64Histogram
}

// New builds a MeterProvider with a default (exporter-less) reader and
// registers the counters/histograms the rest of the service records
// against. Callers wanting real export (OTLP, Prometheus, ...) construct
// their own sdkmetric.Reader and pass it via NewWithReader.
func New() (*Metrics, error) {
	return NewWithReader(nil)
}

// NewWithReader builds a MeterProvider using the given reader, or a
// no-export default when reader is nil.
func NewWithReader(reader sdkmetric.Reader) (*Metrics, error) {
	var opts []sdkmetric.Option
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)
	meter := provider.Meter(meterName)

	engineCalls, err := meter.Int64Counter(
		"cogmem.engine.calls",
		metric.WithDescription("count of engine store/search calls, by kind and operation"),
	)
	if err != nil {
		return nil, err
	}

	executorLatency, err := meter.Float64Histogram(
		"cogmem.sqlexec.attempt_latency_ms",
		metric.WithDescription("latency of each SQL executor attempt (primary + fallback steps), in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		provider:        provider,
		meter:           meter,
		engineCalls:     engineCalls,
		executorLatency: executorLatency,
	}, nil
}

// RecordEngineCall increments the per-kind call counter.
func (m *Metrics) RecordEngineCall(ctx context.Context, kind, operation string) {
	if m == nil {
		return
	}
	m.engineCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("operation", operation),
	))
}

// RecordExecutorAttempt records one SQL executor attempt's latency.
func (m *Metrics) RecordExecutorAttempt(ctx context.Context, strategy string, success bool, latencyMS float64) {
	if m == nil {
		return
	}
	m.executorLatency.Record(ctx, latencyMS, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", success),
	))
}

// Shutdown flushes and stops the underlying MeterProvider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
