package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Outcome classifies how a cached call was served.
type Outcome string

const (
	// OutcomeHit means the value came from the store.
	OutcomeHit Outcome = "hit"
	// OutcomeMiss means this caller led a fresh computation.
	OutcomeMiss Outcome = "miss"
	// OutcomeShared means the result came from a computation another caller led.
	OutcomeShared Outcome = "shared"
	// OutcomeBypass means ttl was zero and the store was skipped.
	OutcomeBypass Outcome = "bypass"
	// OutcomeError means the call returned an error.
	OutcomeError Outcome = "error"
)

// SpanMeta describes what a span covers.
type SpanMeta interface {
	SpanName() string
	Attributes() []attribute.KeyValue
}

// CacheMeta describes one cached accessor call.
type CacheMeta struct {
	Name string        // accessor name, e.g. movie-details
	Key  string        // derived cache key (may be empty for bypass calls)
	TTL  time.Duration // effective ttl
}

// SpanName returns cache.<name>.
func (m CacheMeta) SpanName() string {
	return "cache." + m.Name
}

// Attributes returns the span attributes for the call.
func (m CacheMeta) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("cache.name", m.Name),
		attribute.Int64("cache.ttl_s", int64(m.TTL/time.Second)),
	}
	if m.Key != "" {
		attrs = append(attrs, attribute.String("cache.key", m.Key))
	}
	return attrs
}

// OriginCall describes one outbound request to a slow or rate-limited origin.
type OriginCall struct {
	Origin   string // e.g. tmdb
	Endpoint string // route template, e.g. /movie/{id}
	Method   string
}

// SpanName returns origin.<origin> <method> <endpoint>.
func (c OriginCall) SpanName() string {
	name := "origin." + c.Origin
	if c.Method != "" {
		name += " " + c.Method
	}
	if c.Endpoint != "" {
		name += " " + c.Endpoint
	}
	return name
}

// Attributes returns the span attributes for the request.
func (c OriginCall) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("origin.name", c.Origin),
		attribute.String("origin.endpoint", c.Endpoint),
	}
	if c.Method != "" {
		attrs = append(attrs, attribute.String("http.request.method", c.Method))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing for cache and origin spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span described by meta.
	StartSpan(ctx context.Context, meta SpanMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// SetOutcome records how a cached call was served on its span.
func SetOutcome(span trace.Span, outcome Outcome) {
	span.SetAttributes(attribute.String("cache.outcome", string(outcome)))
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta SpanMeta) (context.Context, trace.Span) {
	kind := trace.SpanKindInternal
	if _, ok := meta.(OriginCall); ok {
		kind = trace.SpanKindClient
	}
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.Attributes()...),
		trace.WithSpanKind(kind),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta SpanMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
