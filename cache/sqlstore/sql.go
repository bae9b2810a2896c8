// Package sqlstore implements cache.Store on a SQL database. SQLite (via
// modernc.org/sqlite) works out of the box; Postgres works with any
// registered driver and the Postgres dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/cinecache/cache"
)

// Dialect selects placeholder and column type syntax.
type Dialect int

const (
	// SQLite uses ? placeholders.
	SQLite Dialect = iota
	// Postgres uses $n placeholders.
	Postgres
)

// ParseDialect maps a config value to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("sqlstore: unknown dialect %q", s)
	}
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) blobType() string {
	if d == Postgres {
		return "BYTEA"
	}
	return "BLOB"
}

// Store is a cache.Store over database/sql. Timestamps are stored as Unix
// nanoseconds so comparisons stay in SQL.
type Store struct {
	db      *sql.DB
	dialect Dialect
	owner   string
	clock   cache.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithDialect sets the SQL dialect. Default: SQLite.
func WithDialect(d Dialect) Option {
	return func(s *Store) { s.dialect = d }
}

// WithClock sets the clock used for timestamps and expiry.
func WithClock(c cache.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// New returns a Store over db. Call Migrate before first use.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		owner: uuid.NewString(),
		clock: cache.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the configured dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Migrate creates the entry and claim tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key  TEXT PRIMARY KEY,
			cache_name TEXT NOT NULL,
			value      ` + s.dialect.blobType() + ` NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)`,
		`CREATE TABLE IF NOT EXISTS cache_claims (
			cache_key  TEXT PRIMARY KEY,
			owner      TEXT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

// Get returns the live entry for key. Expired rows are left for Prune.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		name               string
		value              []byte
		createdAt, expires int64
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT cache_name, value, created_at, expires_at FROM cache_entries WHERE cache_key = ?`,
	), key).Scan(&name, &value, &createdAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("sqlstore: get %q: %w", key, err)
	}

	entry := cache.Entry{
		Name:      name,
		Key:       key,
		Value:     value,
		CreatedAt: time.Unix(0, createdAt),
		ExpiresAt: time.Unix(0, expires),
	}
	if entry.Expired(s.clock.Now()) {
		return cache.Entry{}, false, nil
	}
	return entry, true, nil
}

// Put upserts the entry; the last writer wins.
func (s *Store) Put(ctx context.Context, name, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return cache.ErrInvalidTTL
	}
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	now := s.clock.Now()
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO cache_entries (cache_key, cache_name, value, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			cache_name = excluded.cache_name,
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
	), key, name, value, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("sqlstore: put %q: %w", key, err)
	}
	return nil
}

// Claim inserts a claim row, or takes over one whose lease has lapsed.
func (s *Store) Claim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO cache_claims (cache_key, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE cache_claims.expires_at <= ?`,
	), key, s.owner, now.Add(lease).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("sqlstore: claim %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: claim %q: %w", key, err)
	}
	return n == 1, nil
}

// Release deletes the claim for key if this store owns it.
func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`DELETE FROM cache_claims WHERE cache_key = ? AND owner = ?`,
	), key, s.owner)
	if err != nil {
		return fmt.Errorf("sqlstore: release %q: %w", key, err)
	}
	return nil
}

// Prune deletes expired entries and lapsed claims. It returns the number
// of entries removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	now := s.clock.Now().UnixNano()

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`DELETE FROM cache_entries WHERE expires_at < ?`,
	), now)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: prune: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: prune: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`DELETE FROM cache_claims WHERE expires_at <= ?`,
	), now); err != nil {
		return removed, fmt.Errorf("sqlstore: prune claims: %w", err)
	}
	return removed, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunJanitor prunes every interval until ctx is done. onErr, if non-nil,
// receives prune failures.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration, onErr func(error)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil && onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
		}
	}
}

var (
	_ cache.Store   = (*Store)(nil)
	_ cache.Claimer = (*Store)(nil)
	_ cache.Pinger  = (*Store)(nil)
	_ cache.Pruner  = (*Store)(nil)
)
