package resilience

import (
	"context"
	"time"
)

// Executor composes the patterns guarding one origin.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// OriginConfig describes the limits of one origin. Zero fields take the
// defaults of the corresponding pattern.
type OriginConfig struct {
	Name            string        `yaml:"name"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	Burst           int           `yaml:"burst"`
	MaxWait         time.Duration `yaml:"max_wait"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// NewOriginExecutor builds the full stack for an origin: breaker, retry with
// exponential backoff and jitter, a waiting rate limiter, a bulkhead and a
// per-attempt timeout. onStateChange may be nil.
func NewOriginExecutor(cfg OriginConfig, onStateChange func(name string, from, to State)) *Executor {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return NewExecutor(
		WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			Name:          cfg.Name,
			MaxFailures:   cfg.BreakerFailures,
			ResetTimeout:  cfg.BreakerReset,
			OnStateChange: onStateChange,
		})),
		WithRetry(NewRetry(RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryBaseDelay,
			Strategy:     BackoffExponential,
			Jitter:       true,
		})),
		WithRateLimiter(NewRateLimiter(RateLimiterConfig{
			Rate:        cfg.RatePerSecond,
			Burst:       cfg.Burst,
			WaitOnLimit: true,
			MaxWait:     maxWait,
		})),
		WithBulkhead(NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       maxWait,
		})),
		WithTimeout(cfg.AttemptTimeout),
	)
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.circuitBreaker }

// Execute runs op through the configured patterns, outermost first:
//
//  1. Circuit breaker: fail fast while the origin is down; a request that
//     exhausts its retries counts as one failure.
//  2. Retry: re-run transient failures with backoff.
//  3. Rate limiter: every attempt spends a token.
//  4. Bulkhead: every attempt holds a concurrency slot.
//  5. Timeout: bounds a single attempt.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}

	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.rateLimiter.Execute(ctx, inner)
		}
	}

	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.retry.Execute(ctx, inner)
		}
	}

	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}
