package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Group collapses concurrent computations for the same key into one.
//
// The shared computation runs on a context detached from any single caller:
// a waiter whose ctx is cancelled stops waiting, but the computation keeps
// running for the remaining waiters. The in-flight marker is dropped as soon
// as the computation settles, successfully or not, so the next call for the
// key starts fresh work.
type Group struct {
	sf      singleflight.Group
	timeout time.Duration
	pending atomic.Int64
}

// NewGroup creates a Group. A positive timeout bounds every shared
// computation; zero leaves bounding to the computation itself.
func NewGroup(timeout time.Duration) *Group {
	return &Group{timeout: timeout}
}

// Do runs fn once per key among concurrent callers and returns its result to
// each of them. shared reports whether the result was delivered to more than
// one caller.
func (g *Group) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (v any, shared bool, err error) {
	ch := g.sf.DoChan(key, func() (any, error) {
		return g.call(ctx, fn)
	})

	select {
	case r := <-ch:
		return r.Val, r.Shared, r.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Pending returns the number of computations currently running.
func (g *Group) Pending() int {
	return int(g.pending.Load())
}

func (g *Group) call(ctx context.Context, fn func(context.Context) (any, error)) (v any, err error) {
	g.pending.Add(1)
	defer g.pending.Add(-1)

	// DoChan re-panics on a separate goroutine, which would take the
	// process down; turn panics into an error every waiter receives.
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("%w: %v", ErrComputePanicked, r)
		}
	}()

	runCtx := context.WithoutCancel(ctx)
	if g.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, g.timeout)
		defer cancel()
	}

	return fn(runCtx)
}

// Run is the typed form of Group.Do.
func Run[T any](ctx context.Context, g *Group, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T

	v, shared, err := g.Do(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, shared, err
	}
	if v == nil {
		return zero, shared, nil
	}

	typed, ok := v.(T)
	if !ok {
		return zero, shared, fmt.Errorf("cache: in-flight result for %q is %T, not %T", key, v, zero)
	}
	return typed, shared, nil
}
