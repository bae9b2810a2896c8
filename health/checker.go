package health

import (
	"context"
	"net/http"
	"time"
)

// Status is the state of one dependency of the cache path, or of the
// service as a whole.
type Status int

const (
	StatusHealthy Status = iota
	// StatusDegraded means requests are still answered, for example from
	// the origin while the store is down or from the store while the
	// origin's circuit is open.
	StatusDegraded
	// StatusUnhealthy means the service cannot answer requests.
	StatusUnhealthy
)

var statusNames = [...]string{
	StatusHealthy:   "healthy",
	StatusDegraded:  "degraded",
	StatusUnhealthy: "unhealthy",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// httpCode keeps a degraded service in the load balancer: it still answers.
func (s Status) httpCode() int {
	switch s {
	case StatusHealthy, StatusDegraded:
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// Result is what one check observed.
type Result struct {
	Status  Status
	Message string
	// Details carries checker-specific fields such as the circuit state or
	// the number of computations in flight.
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func newResult(s Status, message string, err error) Result {
	return Result{Status: s, Message: message, Error: err, Timestamp: time.Now()}
}

// Healthy, Degraded and Unhealthy build results stamped with the current time.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

func Unhealthy(message string, err error) Result { return newResult(StatusUnhealthy, message, err) }

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// WithDuration returns r with d as its duration.
func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}

// Checker inspects one dependency. Check must not block past ctx.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type funcChecker struct {
	name string
	fn   func(context.Context) Result
}

func (c funcChecker) Name() string                     { return c.name }
func (c funcChecker) Check(ctx context.Context) Result { return c.fn(ctx) }

// NewCheckerFunc adapts fn to a Checker named name.
func NewCheckerFunc(name string, fn func(context.Context) Result) Checker {
	return funcChecker{name: name, fn: fn}
}
