package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache and origin metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup counts one cached call by outcome.
	RecordLookup(ctx context.Context, name string, outcome Outcome)

	// RecordCompute records one target invocation behind the cache.
	RecordCompute(ctx context.Context, name string, duration time.Duration, err error)

	// RecordStoreError counts a failed store operation (op is get, put or claim).
	RecordStoreError(ctx context.Context, name, op string)

	// RecordOrigin records one outbound origin request.
	RecordOrigin(ctx context.Context, call OriginCall, duration time.Duration, err error)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	lookups       metric.Int64Counter
	computes      metric.Int64Counter
	computeErrors metric.Int64Counter
	computeHist   metric.Float64Histogram
	storeErrors   metric.Int64Counter
	originCount   metric.Int64Counter
	originErrors  metric.Int64Counter
	originHist    metric.Float64Histogram
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.lookups, err = meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cached accessor calls by outcome"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.computes, err = meter.Int64Counter(
		"cache.computes",
		metric.WithDescription("Target invocations behind the cache"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.computeErrors, err = meter.Int64Counter(
		"cache.compute.errors",
		metric.WithDescription("Failed target invocations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.computeHist, err = meter.Float64Histogram(
		"cache.compute.duration_ms",
		metric.WithDescription("Target invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.storeErrors, err = meter.Int64Counter(
		"cache.store.errors",
		metric.WithDescription("Failed store operations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.originCount, err = meter.Int64Counter(
		"origin.requests",
		metric.WithDescription("Outbound origin requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.originErrors, err = meter.Int64Counter(
		"origin.errors",
		metric.WithDescription("Failed outbound origin requests"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.originHist, err = meter.Float64Histogram(
		"origin.request.duration_ms",
		metric.WithDescription("Origin request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, name string, outcome Outcome) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.name", name),
		attribute.String("cache.outcome", string(outcome)),
	))
}

func (m *metricsImpl) RecordCompute(ctx context.Context, name string, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("cache.name", name))

	m.computes.Add(ctx, 1, opt)
	if err != nil {
		m.computeErrors.Add(ctx, 1, opt)
	}
	m.computeHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordStoreError(ctx context.Context, name, op string) {
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.name", name),
		attribute.String("cache.store.op", op),
	))
}

func (m *metricsImpl) RecordOrigin(ctx context.Context, call OriginCall, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("origin.name", call.Origin),
		attribute.String("origin.endpoint", call.Endpoint),
	)

	m.originCount.Add(ctx, 1, opt)
	if err != nil {
		m.originErrors.Add(ctx, 1, opt)
	}
	m.originHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, string, Outcome)                  {}
func (noopMetrics) RecordCompute(context.Context, string, time.Duration, error)    {}
func (noopMetrics) RecordStoreError(context.Context, string, string)               {}
func (noopMetrics) RecordOrigin(context.Context, OriginCall, time.Duration, error) {}
