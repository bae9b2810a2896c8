package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/cinecache/observe"
)

// Target computes the value for one set of parameters, typically by calling
// a slow or rate-limited origin.
type Target[P, R any] func(ctx context.Context, params P) (R, error)

// Facade is the cache-aside entry point shared by every accessor in a
// process. Construct one per process and pass it to the accessors; the
// Store it wraps is what makes results visible to other instances.
type Facade struct {
	store   Store
	keyer   Keyer
	codec   Codec
	policy  Policy
	group   *Group
	tracer  observe.Tracer
	metrics observe.Metrics
	logger  observe.Logger
}

// Option configures a Facade.
type Option func(*Facade)

// WithKeyer replaces the DefaultKeyer.
func WithKeyer(k Keyer) Option {
	return func(f *Facade) {
		if k != nil {
			f.keyer = k
		}
	}
}

// WithCodec replaces the MsgpackCodec.
func WithCodec(c Codec) Option {
	return func(f *Facade) {
		if c != nil {
			f.codec = c
		}
	}
}

// WithPolicy replaces DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(f *Facade) {
		f.policy = p
	}
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l observe.Logger) Option {
	return func(f *Facade) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observe.Metrics) Option {
	return func(f *Facade) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithTracer sets the tracer. Default: no-op.
func WithTracer(t observe.Tracer) Option {
	return func(f *Facade) {
		if t != nil {
			f.tracer = t
		}
	}
}

// WithInstruments sets tracer, metrics and logger together.
func WithInstruments(in observe.Instruments) Option {
	return func(f *Facade) {
		WithTracer(in.Tracer)(f)
		WithMetrics(in.Metrics)(f)
		WithLogger(in.Logger)(f)
	}
}

// WithObserver takes tracer, metrics and logger from an Observer.
func WithObserver(obs observe.Observer) Option {
	return func(f *Facade) {
		if obs != nil {
			WithInstruments(obs.Instruments())(f)
		}
	}
}

// New creates a Facade over store.
func New(store Store, opts ...Option) (*Facade, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	f := &Facade{
		store:   store,
		keyer:   NewDefaultKeyer(),
		codec:   MsgpackCodec{},
		policy:  DefaultPolicy(),
		tracer:  observe.NopTracer(),
		metrics: observe.NopMetrics(),
		logger:  observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := f.policy.Validate(); err != nil {
		return nil, err
	}
	f.group = NewGroup(f.policy.ComputeTimeout)

	return f, nil
}

// Store returns the backing store.
func (f *Facade) Store() Store { return f.store }

// Policy returns the active policy.
func (f *Facade) Policy() Policy { return f.policy }

// Pending returns the number of shared computations running in this process.
func (f *Facade) Pending() int { return f.group.Pending() }

// Minutes converts a call-site TTL expressed in minutes.
func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// Cached returns target(params), serving it from the store while a result
// computed within the last ttl exists.
//
//   - ttl == 0 calls target directly and touches neither store nor
//     single-flight (live data).
//   - Concurrent misses for the same (name, params) in this process run
//     target once; every caller receives that one result or error.
//   - Errors from target are returned unchanged and never stored.
//   - Store failures are logged and treated as a miss unless the policy
//     fails closed.
func Cached[P, R any](ctx context.Context, f *Facade, name string, target Target[P, R], params P, ttl time.Duration) (R, error) {
	var zero R
	if f == nil {
		return zero, ErrNilFacade
	}
	if ttl < 0 {
		return zero, ErrInvalidTTL
	}

	ttl = f.policy.EffectiveTTL(ttl)
	if ttl == 0 {
		return bypass(ctx, f, name, target, params)
	}

	key, err := f.keyer.Key(name, params)
	if err != nil {
		f.metrics.RecordLookup(ctx, name, observe.OutcomeError)
		return zero, err
	}

	ctx, span := f.tracer.StartSpan(ctx, observe.CacheMeta{Name: name, Key: key, TTL: ttl})
	result, outcome, err := lookupOrFill(ctx, f, name, key, target, params, ttl)
	if err != nil {
		outcome = observe.OutcomeError
	}
	observe.SetOutcome(span, outcome)
	f.tracer.EndSpan(span, err)
	f.metrics.RecordLookup(ctx, name, outcome)

	return result, err
}

func bypass[P, R any](ctx context.Context, f *Facade, name string, target Target[P, R], params P) (R, error) {
	ctx, span := f.tracer.StartSpan(ctx, observe.CacheMeta{Name: name})
	result, err := target(ctx, params)

	outcome := observe.OutcomeBypass
	if err != nil {
		outcome = observe.OutcomeError
	}
	observe.SetOutcome(span, outcome)
	f.tracer.EndSpan(span, err)
	f.metrics.RecordLookup(ctx, name, outcome)

	return result, err
}

func lookupOrFill[P, R any](ctx context.Context, f *Facade, name, key string, target Target[P, R], params P, ttl time.Duration) (R, observe.Outcome, error) {
	var zero R

	hit, ok, err := read[R](ctx, f, name, key)
	if err != nil {
		return zero, observe.OutcomeError, err
	}
	if ok {
		return hit, observe.OutcomeHit, nil
	}

	res, shared, err := Run(ctx, f.group, key, func(ctx context.Context) (filled[R], error) {
		return fill(ctx, f, name, key, target, params, ttl)
	})
	switch {
	case err != nil:
		return zero, observe.OutcomeError, err
	case res.stored:
		return res.value, observe.OutcomeHit, nil
	case shared:
		return res.value, observe.OutcomeShared, nil
	}
	return res.value, observe.OutcomeMiss, nil
}

// filled is the result of one flight. stored reports that the flight found
// the value already in the store and did not compute.
type filled[R any] struct {
	value  R
	stored bool
}

// recheck reads key again from inside the flight. A previous flight may
// have stored the value after this caller's first read missed. Errors are
// ignored here; read already logged and counted them.
func recheck[R any](ctx context.Context, f *Facade, key string) (R, bool) {
	var out R
	entry, ok, err := f.store.Get(ctx, key)
	if err != nil || !ok {
		return out, false
	}
	if err := f.codec.Unmarshal(entry.Value, &out); err != nil {
		return out, false
	}
	return out, true
}

// read consults the store. A backend error is a miss unless the policy
// fails closed; an entry that does not decode is a miss.
func read[R any](ctx context.Context, f *Facade, name, key string) (R, bool, error) {
	var zero R
	logger := f.logger.WithCache(name)

	entry, ok, err := f.store.Get(ctx, key)
	if err != nil {
		f.metrics.RecordStoreError(ctx, name, "get")
		if f.policy.FailClosed {
			return zero, false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		logger.Warn(ctx, "store read failed, treating as miss",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return zero, false, nil
	}
	if !ok {
		return zero, false, nil
	}

	var out R
	if err := f.codec.Unmarshal(entry.Value, &out); err != nil {
		logger.Warn(ctx, "discarding undecodable entry",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return zero, false, nil
	}
	return out, true, nil
}

// fill runs inside the single-flight group: recheck, compute, persist.
// The returned value is the decoded form of what was stored, so the caller
// that computed sees exactly what later hits will see.
func fill[P, R any](ctx context.Context, f *Facade, name, key string, target Target[P, R], params P, ttl time.Duration) (filled[R], error) {
	logger := f.logger.WithCache(name)

	if v, ok := recheck[R](ctx, f, key); ok {
		return filled[R]{value: v, stored: true}, nil
	}

	if release, peer, ok := awaitClaim[R](ctx, f, name, key); ok {
		return filled[R]{value: peer}, nil
	} else if release != nil {
		defer release()
	}

	start := time.Now()
	result, err := target(ctx, params)
	f.metrics.RecordCompute(ctx, name, time.Since(start), err)
	if err != nil {
		logger.Debug(ctx, "compute failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return filled[R]{}, err
	}

	data, err := f.codec.Marshal(result)
	if err != nil {
		return filled[R]{}, fmt.Errorf("cache: failed to encode %q result: %w", name, err)
	}
	var decoded R
	if err := f.codec.Unmarshal(data, &decoded); err != nil {
		return filled[R]{}, fmt.Errorf("cache: %q result does not decode: %w", name, err)
	}

	if err := f.store.Put(ctx, name, key, data, ttl); err != nil {
		f.metrics.RecordStoreError(ctx, name, "put")
		logger.Warn(ctx, "store write failed, result not cached",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}

	return filled[R]{value: decoded}, nil
}

// Accessor binds a name, ttl and target once so call sites only pass params.
type Accessor[P, R any] struct {
	facade *Facade
	name   string
	ttl    time.Duration
	target Target[P, R]
}

// NewAccessor validates name and ttl and returns a bound accessor.
func NewAccessor[P, R any](f *Facade, name string, ttl time.Duration, target Target[P, R]) (*Accessor[P, R], error) {
	if f == nil {
		return nil, ErrNilFacade
	}
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %q", err, name)
	}
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}
	if target == nil {
		return nil, errors.New("cache: target is nil")
	}
	return &Accessor[P, R]{facade: f, name: name, ttl: ttl, target: target}, nil
}

// Name returns the accessor name.
func (a *Accessor[P, R]) Name() string { return a.name }

// TTL returns the call-site ttl (zero means bypass).
func (a *Accessor[P, R]) TTL() time.Duration { return a.ttl }

// Get returns the cached or freshly computed result for params.
func (a *Accessor[P, R]) Get(ctx context.Context, params P) (R, error) {
	return Cached(ctx, a.facade, a.name, a.target, params, a.ttl)
}
