package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// MaxNameLength is the maximum allowed length for an accessor name.
// A derived key is the name, a separator and a 64 character digest, so
// any valid name yields a valid key.
const MaxNameLength = MaxKeyLength - 65

// Sentinel errors for cache operations.
var (
	ErrNilStore         = errors.New("cache: store is nil")
	ErrNilFacade        = errors.New("cache: facade is nil")
	ErrInvalidKey       = errors.New("cache: key is invalid")
	ErrKeyTooLong       = errors.New("cache: key exceeds max length")
	ErrInvalidName      = errors.New("cache: name is invalid")
	ErrInvalidTTL       = errors.New("cache: ttl must be positive to persist")
	ErrUnsupportedValue = errors.New("cache: value is not canonically serializable")
	ErrStoreUnavailable = errors.New("cache: store unavailable")
	ErrComputePanicked  = errors.New("cache: computation panicked")
)

// Entry is one persisted computation result. Entries are never mutated in
// place: a recompute writes a whole new Entry over the old one.
type Entry struct {
	Name      string
	Key       string
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store is the shared key to entry table behind the Facade.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use, across
//     goroutines and, for shared backends, across processes.
//   - Get: returns (Entry{}, false, nil) when the key is absent or expired.
//     A non-nil error means the backend could not be consulted.
//   - Put: upserts with last-write-wins semantics and sets
//     ExpiresAt = now + ttl. ttl <= 0 must return ErrInvalidTTL and must
//     not persist anything.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, name, key string, value []byte, ttl time.Duration) error
}

// Claimer is implemented by stores that can coordinate a single computation
// per key across processes. A claim is a lease: it lapses on its own if the
// holder dies without releasing it.
type Claimer interface {
	// Claim reports whether the caller now holds the lease for key.
	Claim(ctx context.Context, key string, lease time.Duration) (bool, error)

	// Release gives up a lease held by this process. Idempotent.
	Release(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Pruner is implemented by stores that keep expired rows until removed.
type Pruner interface {
	// Prune deletes expired entries and returns how many were removed.
	Prune(ctx context.Context) (int64, error)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// ValidateName checks if an accessor name can prefix a derived key.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > MaxNameLength {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "\n\r") {
		return ErrInvalidName
	}
	return nil
}
