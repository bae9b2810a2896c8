package cache

import (
	"errors"
	"time"
)

// DefaultClaimPoll is how often a process that lost a cross-instance claim
// re-reads the store while waiting for the holder's result.
const DefaultClaimPoll = 100 * time.Millisecond

// Policy configures caching behavior shared by every accessor on a Facade.
// TTLs themselves are chosen per call site.
type Policy struct {
	// MaxTTL is the maximum allowed TTL. Call-site TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// Disabled turns every call into a bypass, as if ttl were zero.
	Disabled bool

	// FailClosed returns ErrStoreUnavailable when the store cannot be read.
	// The default (false) treats a store read failure as a miss.
	FailClosed bool

	// ComputeTimeout bounds each shared computation. Zero leaves the
	// timeout to the target.
	ComputeTimeout time.Duration

	// ClaimLease enables cross-instance single-flight when positive and the
	// store implements Claimer: one process computes while the others wait
	// up to ClaimLease for its result to land in the store.
	ClaimLease time.Duration

	// ClaimPoll is the store re-read interval while waiting on a claim.
	// Default: DefaultClaimPoll
	ClaimPoll time.Duration
}

// DefaultPolicy returns the default caching policy.
// MaxTTL: 7 days, fail open, in-process single-flight only.
func DefaultPolicy() Policy {
	return Policy{
		MaxTTL: 7 * 24 * time.Hour,
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{
		Disabled: true,
	}
}

// Validate checks the policy for impossible settings.
func (p Policy) Validate() error {
	if p.MaxTTL < 0 {
		return errors.New("cache: max ttl must not be negative")
	}
	if p.ComputeTimeout < 0 {
		return errors.New("cache: compute timeout must not be negative")
	}
	if p.ClaimLease < 0 || p.ClaimPoll < 0 {
		return errors.New("cache: claim lease and poll must not be negative")
	}
	return nil
}

// ShouldCache returns true if caching is enabled by this policy.
func (p Policy) ShouldCache() bool {
	return !p.Disabled
}

// EffectiveTTL returns the TTL to use for a call site, applying the policy.
// A zero result means bypass.
func (p Policy) EffectiveTTL(ttl time.Duration) time.Duration {
	if p.Disabled || ttl <= 0 {
		return 0
	}

	// Clamp to MaxTTL if set
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

// claimPoll returns the effective poll interval, never longer than the lease.
func (p Policy) claimPoll() time.Duration {
	poll := p.ClaimPoll
	if poll <= 0 {
		poll = DefaultClaimPoll
	}
	if p.ClaimLease > 0 && poll > p.ClaimLease {
		poll = p.ClaimLease
	}
	return poll
}
