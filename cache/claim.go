package cache

import (
	"context"
	"errors"

	"github.com/jonwraymond/cinecache/observe"
	"github.com/jonwraymond/cinecache/resilience"
)

var errPeerPending = errors.New("cache: peer result not yet stored")

// awaitClaim coordinates with other instances sharing the store.
//
// When the policy enables claims and the store is a Claimer, the first
// instance to claim key computes; the others poll the store until its result
// lands or the lease runs out, then compute themselves. ok reports that a
// peer's result was found. A non-nil release must be called once the caller
// has finished computing and storing.
func awaitClaim[R any](ctx context.Context, f *Facade, name, key string) (release func(), peer R, ok bool) {
	lease := f.policy.ClaimLease
	claimer, isClaimer := f.store.(Claimer)
	if lease <= 0 || !isClaimer {
		return nil, peer, false
	}
	logger := f.logger.WithCache(name)

	claimed, err := claimer.Claim(ctx, key, lease)
	if err != nil {
		f.metrics.RecordStoreError(ctx, name, "claim")
		logger.Warn(ctx, "claim failed, computing without it",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, peer, false
	}
	if claimed {
		return releaser(ctx, f, claimer, name, key), peer, false
	}

	poll := f.policy.claimPoll()
	attempts := int(lease/poll) + 1
	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: poll,
		MaxDelay:     poll,
		Strategy:     resilience.BackoffConstant,
		RetryIf:      func(err error) bool { return errors.Is(err, errPeerPending) },
	})

	err = retry.Execute(ctx, func(ctx context.Context) error {
		v, hit, rerr := read[R](ctx, f, name, key)
		if rerr != nil || !hit {
			return errPeerPending
		}
		peer = v
		return nil
	})
	if err == nil {
		logger.Debug(ctx, "served result computed by peer", observe.Field{Key: "key", Value: key})
		return nil, peer, true
	}

	logger.Info(ctx, "claim holder did not deliver, computing",
		observe.Field{Key: "key", Value: key},
		observe.Field{Key: "lease_ms", Value: lease.Milliseconds()},
	)
	if claimed, err := claimer.Claim(ctx, key, lease); err == nil && claimed {
		return releaser(ctx, f, claimer, name, key), peer, false
	}
	return nil, peer, false
}

func releaser(ctx context.Context, f *Facade, claimer Claimer, name, key string) func() {
	ctx = context.WithoutCancel(ctx)
	return func() {
		if err := claimer.Release(ctx, key); err != nil {
			f.metrics.RecordStoreError(ctx, name, "release")
			f.logger.WithCache(name).Warn(ctx, "claim release failed",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}
}
