package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/cache/redisstore"
	"github.com/jonwraymond/cinecache/cache/sqlstore"
	"github.com/jonwraymond/cinecache/catalog"
)

// openedStore is a cache.Store plus what the process must release.
type openedStore struct {
	cache.Store
	sql   *sqlstore.Store
	close func() error
}

func openStore(ctx context.Context, cfg StoreConfig) (*openedStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return &openedStore{Store: cache.NewMemoryStore(), close: func() error { return nil }}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts := []redisstore.Option{redisstore.WithPrefix(cfg.Redis.Prefix)}
		if cfg.Redis.QueryTimeout > 0 {
			opts = append(opts, redisstore.WithQueryTimeout(cfg.Redis.QueryTimeout.D()))
		}
		return &openedStore{Store: redisstore.New(client, opts...), close: client.Close}, nil

	case "sql":
		s, err := openSQLStore(ctx, cfg.SQL)
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: s, sql: s, close: s.DB().Close}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func openSQLStore(ctx context.Context, cfg SQLConfig) (*sqlstore.Store, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if dialect == sqlstore.SQLite {
		return sqlstore.OpenSQLite(ctx, cfg.DSN)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	s := sqlstore.New(db, sqlstore.WithDialect(dialect))
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// openStats returns nil when stats are not configured.
func openStats(ctx context.Context, cfg StatsConfig) (*catalog.SQLStats, func() error, error) {
	if !cfg.Enabled() {
		return nil, func() error { return nil }, nil
	}
	dialect, err := sqlstore.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	driver := cfg.Driver
	if dialect == sqlstore.SQLite {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open stats database: %w", err)
	}
	if cfg.DSN == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open stats database: %w", err)
	}

	var opts []catalog.StatsOption
	if cfg.TopGenres > 0 {
		opts = append(opts, catalog.WithTopGenres(cfg.TopGenres))
	}
	stats := catalog.NewSQLStats(db, dialect, opts...)
	if cfg.Migrate {
		if err := stats.MigrateWatchEvents(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return stats, db.Close, nil
}
