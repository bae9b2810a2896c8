// Package resilience guards calls to slow or rate-limited origins.
//
// A cache miss ends in an origin request; these patterns decide how that
// request behaves when the origin is busy or failing:
//
//   - Circuit Breaker: stops calling an origin after consecutive failures
//     and probes it again after a cool-down.
//   - Retry: re-runs transient failures with constant, linear or
//     exponential backoff. Errors wrapped with Permanent are never retried;
//     errors wrapped with RetryAfter set the next delay.
//   - Rate Limiter: a token bucket matching the origin's published quota.
//   - Bulkhead: caps concurrent requests to one origin.
//   - Timeout: bounds a single attempt.
//
// NewOriginExecutor composes all five from an OriginConfig:
//
//	exec := resilience.NewOriginExecutor(resilience.OriginConfig{
//	    Name:          "tmdb",
//	    RatePerSecond: 40,
//	    Burst:         20,
//	    MaxAttempts:   3,
//	}, nil)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return fetchMovie(ctx, id)
//	})
//
// Retry on its own also drives polling loops, for example waiting for
// another instance to publish a result.
package resilience
