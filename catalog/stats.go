package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/cache/sqlstore"
)

// TasteStats summarizes what a user watched in a window.
type TasteStats struct {
	UserID    string           `json:"user_id" msgpack:"user_id"`
	Days      int              `json:"days" msgpack:"days"`
	Views     int64            `json:"views" msgpack:"views"`
	Titles    int64            `json:"titles" msgpack:"titles"`
	Minutes   int64            `json:"minutes" msgpack:"minutes"`
	TopGenres []GenreShare     `json:"top_genres" msgpack:"top_genres"`
	ByKind    map[string]int64 `json:"by_kind" msgpack:"by_kind"`
}

// GenreShare is one genre's part of a user's viewing.
type GenreShare struct {
	Genre   string  `json:"genre" msgpack:"genre"`
	Views   int64   `json:"views" msgpack:"views"`
	Minutes int64   `json:"minutes" msgpack:"minutes"`
	Share   float64 `json:"share" msgpack:"share"`
}

// StatsQuerier computes taste statistics. It is the slow analytical
// query behind the user-taste-stats accessor.
type StatsQuerier interface {
	TasteStats(ctx context.Context, userID string, days int) (TasteStats, error)
}

// SQLStats runs taste queries against a watch_events table:
//
//	user_id TEXT, title_id BIGINT, kind TEXT, genre TEXT,
//	minutes INTEGER, watched_at BIGINT (Unix seconds)
//
// One row is written per (view, genre), so a title with two genres
// contributes to both.
type SQLStats struct {
	db        *sql.DB
	dialect   sqlstore.Dialect
	clock     cache.Clock
	topGenres int
}

// StatsOption configures SQLStats.
type StatsOption func(*SQLStats)

// WithStatsClock sets the clock that anchors the window.
func WithStatsClock(c cache.Clock) StatsOption {
	return func(s *SQLStats) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTopGenres sets how many genres are returned. Default: 5
func WithTopGenres(n int) StatsOption {
	return func(s *SQLStats) {
		if n > 0 {
			s.topGenres = n
		}
	}
}

// NewSQLStats creates a querier over db.
func NewSQLStats(db *sql.DB, dialect sqlstore.Dialect, opts ...StatsOption) *SQLStats {
	s := &SQLStats{db: db, dialect: dialect, clock: cache.SystemClock{}, topGenres: 5}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MigrateWatchEvents creates the watch_events table and its index.
func (s *SQLStats) MigrateWatchEvents(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watch_events (
			user_id    TEXT    NOT NULL,
			title_id   BIGINT  NOT NULL,
			kind       TEXT    NOT NULL,
			genre      TEXT    NOT NULL,
			minutes    INTEGER NOT NULL,
			watched_at BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_events_user ON watch_events (user_id, watched_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: migrate watch_events: %w", err)
		}
	}
	return nil
}

// TasteStats aggregates the user's events newer than days days ago.
func (s *SQLStats) TasteStats(ctx context.Context, userID string, days int) (TasteStats, error) {
	out := TasteStats{UserID: userID, Days: days, ByKind: map[string]int64{}}
	since := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	// One row per (view, genre): collapse to views first.
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT COUNT(*), COUNT(DISTINCT title_id), COALESCE(SUM(minutes), 0) FROM (
			SELECT title_id, watched_at, MAX(minutes) AS minutes
			FROM watch_events WHERE user_id = ? AND watched_at >= ?
			GROUP BY title_id, watched_at
		) views`),
		userID, since,
	).Scan(&out.Views, &out.Titles, &out.Minutes)
	if err != nil {
		return out, fmt.Errorf("catalog: taste totals: %w", err)
	}

	if err := s.byKind(ctx, &out, userID, since); err != nil {
		return out, err
	}
	if err := s.genres(ctx, &out, userID, since); err != nil {
		return out, err
	}
	return out, nil
}

func (s *SQLStats) byKind(ctx context.Context, out *TasteStats, userID string, since int64) error {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT kind, COUNT(*) FROM (
			SELECT DISTINCT kind, title_id, watched_at
			FROM watch_events WHERE user_id = ? AND watched_at >= ?
		) views GROUP BY kind`),
		userID, since,
	)
	if err != nil {
		return fmt.Errorf("catalog: taste by kind: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return fmt.Errorf("catalog: taste by kind: %w", err)
		}
		out.ByKind[kind] = n
	}
	return rows.Err()
}

func (s *SQLStats) genres(ctx context.Context, out *TasteStats, userID string, since int64) error {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT genre, COUNT(*) AS views, SUM(minutes) AS minutes
		 FROM watch_events WHERE user_id = ? AND watched_at >= ?
		 GROUP BY genre
		 ORDER BY views DESC, minutes DESC, genre ASC
		 LIMIT ?`),
		userID, since, s.topGenres,
	)
	if err != nil {
		return fmt.Errorf("catalog: taste genres: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out.TopGenres = []GenreShare{}
	for rows.Next() {
		var g GenreShare
		if err := rows.Scan(&g.Genre, &g.Views, &g.Minutes); err != nil {
			return fmt.Errorf("catalog: taste genres: %w", err)
		}
		if out.Views > 0 {
			g.Share = float64(g.Views) / float64(out.Views)
		}
		out.TopGenres = append(out.TopGenres, g)
	}
	return rows.Err()
}

var _ StatsQuerier = (*SQLStats)(nil)
