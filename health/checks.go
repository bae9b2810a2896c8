package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/resilience"
)

// StoreChecker reports whether the cache store answers. A store without a
// Ping method is assumed reachable (it lives in process).
type StoreChecker struct {
	store cache.Store
}

// NewStoreChecker creates a checker for store.
func NewStoreChecker(store cache.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

// Name returns "store".
func (c *StoreChecker) Name() string { return "store" }

// Check pings the store.
func (c *StoreChecker) Check(ctx context.Context) Result {
	pinger, ok := c.store.(cache.Pinger)
	if !ok {
		return Healthy("in-process store").WithDetails(map[string]any{
			"backend": fmt.Sprintf("%T", c.store),
		})
	}
	if err := pinger.Ping(ctx); err != nil {
		return Unhealthy("store unreachable", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	return Healthy("store reachable").WithDetails(map[string]any{
		"backend": fmt.Sprintf("%T", c.store),
	})
}

// OriginChecker reports the circuit state of an origin. An open circuit is
// degraded, not unhealthy: cached entries are still served.
type OriginChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewOriginChecker creates a checker named origin:<name>.
func NewOriginChecker(name string, breaker *resilience.CircuitBreaker) *OriginChecker {
	return &OriginChecker{name: name, breaker: breaker}
}

// Name returns origin:<name>.
func (c *OriginChecker) Name() string { return "origin:" + c.name }

// Check reads the breaker without calling the origin.
func (c *OriginChecker) Check(ctx context.Context) Result {
	if c.breaker == nil {
		return Healthy("no circuit breaker configured")
	}

	m := c.breaker.Metrics()
	details := map[string]any{
		"circuit":  m.State.String(),
		"failures": m.Failures,
	}
	if !m.LastFailure.IsZero() {
		details["last_failure"] = m.LastFailure.UTC().Format(time.RFC3339)
	}

	switch m.State {
	case resilience.StateOpen:
		return Degraded("circuit open, serving cached data only").WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open, trying origin").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}

// FlightChecker reports degraded when more than max shared computations are
// running at once, which usually means the origin is slow.
type FlightChecker struct {
	facade *cache.Facade
	max    int
}

// NewFlightChecker creates a checker over facade.Pending().
func NewFlightChecker(facade *cache.Facade, max int) *FlightChecker {
	if max <= 0 {
		max = 100
	}
	return &FlightChecker{facade: facade, max: max}
}

// Name returns "inflight".
func (c *FlightChecker) Name() string { return "inflight" }

// Check compares the pending count to the threshold.
func (c *FlightChecker) Check(ctx context.Context) Result {
	pending := c.facade.Pending()
	details := map[string]any{"pending": pending, "max": c.max}
	if pending > c.max {
		return Degraded(fmt.Sprintf("%d computations in flight", pending)).WithDetails(details)
	}
	return Healthy("computations within limit").WithDetails(details)
}

var (
	_ Checker = (*StoreChecker)(nil)
	_ Checker = (*OriginChecker)(nil)
	_ Checker = (*FlightChecker)(nil)
)
