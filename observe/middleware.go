package observe

import (
	"context"
	"time"
)

// OriginFunc performs one outbound origin request.
type OriginFunc func(ctx context.Context, call OriginCall) error

// OriginMiddleware wraps origin requests with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe OriginFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped function are recorded and propagated unchanged.
type OriginMiddleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewOriginMiddleware creates middleware from instruments. Nil members are
// replaced with no-ops.
func NewOriginMiddleware(in Instruments) *OriginMiddleware {
	if in.Tracer == nil {
		in.Tracer = NopTracer()
	}
	if in.Metrics == nil {
		in.Metrics = NopMetrics()
	}
	if in.Logger == nil {
		in.Logger = NopLogger()
	}
	return &OriginMiddleware{
		tracer:  in.Tracer,
		metrics: in.Metrics,
		logger:  in.Logger,
	}
}

// Wrap wraps an OriginFunc with tracing, metrics, and logging.
func (m *OriginMiddleware) Wrap(fn OriginFunc) OriginFunc {
	return func(ctx context.Context, call OriginCall) error {
		ctx, span := m.tracer.StartSpan(ctx, call)

		start := time.Now()
		err := fn(ctx, call)
		duration := time.Since(start)

		m.tracer.EndSpan(span, err)
		m.metrics.RecordOrigin(ctx, call, duration, err)

		fields := []Field{
			{Key: "origin", Value: call.Origin},
			{Key: "endpoint", Value: call.Endpoint},
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}

		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			m.logger.Warn(ctx, "origin request failed", fields...)
		} else {
			m.logger.Debug(ctx, "origin request completed", fields...)
		}

		return err
	}
}

// OriginMiddlewareFromObserver creates an OriginMiddleware from an Observer.
func OriginMiddlewareFromObserver(obs Observer) (*OriginMiddleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewOriginMiddleware(obs.Instruments()), nil
}
