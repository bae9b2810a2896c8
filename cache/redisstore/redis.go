// Package redisstore implements cache.Store on Redis so that every server
// instance sees the same entries and claims.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/cinecache/cache"
)

// DefaultQueryTimeout bounds each Redis round trip.
const DefaultQueryTimeout = 2 * time.Second

// Hash fields of a stored entry.
const (
	fieldValue   = "v"
	fieldName    = "n"
	fieldCreated = "c"
	fieldExpires = "e"
)

// releaseScript deletes a claim only if this store still owns it, so a
// holder whose lease lapsed cannot release a newer holder's claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store is a cache.Store backed by a Redis hash per entry. Expiry is
// delegated to Redis with PEXPIRE.
type Store struct {
	client       redis.UniversalClient
	prefix       string
	queryTimeout time.Duration
	owner        string
	clock        cache.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key as <prefix>:<key>.
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithQueryTimeout sets the per-command timeout. Default: DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithClock sets the clock used for entry timestamps.
func WithClock(c cache.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// New returns a Store using client. The caller owns the client lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:       client,
		queryTimeout: DefaultQueryTimeout,
		owner:        uuid.NewString(),
		clock:        cache.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.queryTimeout)
}

func (s *Store) entryKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *Store) claimKey(key string) string {
	return s.entryKey("claim:" + key)
}

// Get returns the live entry for key.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(qctx, s.entryKey(key)).Result()
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	value, ok := fields[fieldValue]
	if !ok {
		return cache.Entry{}, false, nil
	}

	entry := cache.Entry{
		Name:      fields[fieldName],
		Key:       key,
		Value:     []byte(value),
		CreatedAt: parseMillis(fields[fieldCreated]),
		ExpiresAt: parseMillis(fields[fieldExpires]),
	}
	// PEXPIRE already evicts; this guards against clock skew between
	// the writer and Redis.
	if !entry.ExpiresAt.IsZero() && entry.Expired(s.clock.Now()) {
		return cache.Entry{}, false, nil
	}
	return entry, true, nil
}

// Put writes the entry and its expiry in one transaction.
func (s *Store) Put(ctx context.Context, name, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return cache.ErrInvalidTTL
	}
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	now := s.clock.Now()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	k := s.entryKey(key)
	_, err := s.client.TxPipelined(qctx, func(pipe redis.Pipeliner) error {
		pipe.Del(qctx, k)
		pipe.HSet(qctx, k,
			fieldValue, value,
			fieldName, name,
			fieldCreated, now.UnixMilli(),
			fieldExpires, now.Add(ttl).UnixMilli(),
		)
		pipe.PExpire(qctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: put %q: %w", key, err)
	}
	return nil
}

// Claim takes the lease for key with SET NX PX.
func (s *Store) Claim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	ok, err := s.client.SetNX(qctx, s.claimKey(key), s.owner, lease).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: claim %q: %w", key, err)
	}
	return ok, nil
}

// Release drops the lease for key if this store holds it.
func (s *Store) Release(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	err := releaseScript.Run(qctx, s.client, []string{s.claimKey(key)}, s.owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redisstore: release %q: %w", key, err)
	}
	return nil
}

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Ping(qctx).Err()
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

var (
	_ cache.Store   = (*Store)(nil)
	_ cache.Claimer = (*Store)(nil)
	_ cache.Pinger  = (*Store)(nil)
)
