package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/cinecache/auth"
	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/observe"
	"github.com/jonwraymond/cinecache/origin/tmdb"
	"github.com/jonwraymond/cinecache/secret"
)

// Duration accepts Go durations plus day and week units ("7d", "1w2d").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

// Config is the cinecache configuration file.
type Config struct {
	Listen          string   `yaml:"listen"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Observe observe.Config `yaml:"observe"`
	Store   StoreConfig    `yaml:"store"`
	Policy  PolicyConfig   `yaml:"policy"`
	TMDB    tmdb.Config    `yaml:"tmdb"`
	Auth    AuthConfig     `yaml:"auth"`
	Stats   StatsConfig    `yaml:"stats"`

	// Secrets configures secret providers by name, e.g. file: {dir: /run/secrets}.
	// Empty enables env and file with defaults.
	Secrets map[string]map[string]any `yaml:"secrets"`
}

type StoreConfig struct {
	// Backend is memory, redis or sql.
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	SQL     SQLConfig   `yaml:"sql"`
}

type RedisConfig struct {
	Addr         string   `yaml:"addr"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	Prefix       string   `yaml:"prefix"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

type SQLConfig struct {
	// Driver is a registered database/sql driver name. sqlite is built in;
	// postgres needs a driver linked into the binary.
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	JanitorInterval Duration `yaml:"janitor_interval"`
}

// PolicyConfig mirrors cache.Policy.
type PolicyConfig struct {
	MaxTTL         Duration `yaml:"max_ttl"`
	Disabled       bool     `yaml:"disabled"`
	FailClosed     bool     `yaml:"fail_closed"`
	ComputeTimeout Duration `yaml:"compute_timeout"`
	ClaimLease     Duration `yaml:"claim_lease"`
	ClaimPoll      Duration `yaml:"claim_poll"`
}

func (p PolicyConfig) Policy() cache.Policy {
	return cache.Policy{
		MaxTTL:         p.MaxTTL.D(),
		Disabled:       p.Disabled,
		FailClosed:     p.FailClosed,
		ComputeTimeout: p.ComputeTimeout.D(),
		ClaimLease:     p.ClaimLease.D(),
		ClaimPoll:      p.ClaimPoll.D(),
	}
}

// AuthConfig selects how /me routes verify bearer tokens: an HMAC secret
// or a JWKS endpoint. Neither disables the routes.
type AuthConfig struct {
	JWT    auth.JWTConfig  `yaml:"jwt"`
	Secret string          `yaml:"secret"`
	JWKS   auth.JWKSConfig `yaml:"jwks"`
}

func (a AuthConfig) Enabled() bool { return a.Secret != "" || a.JWKS.URL != "" }

// StatsConfig points at the database holding watch_events.
type StatsConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	TopGenres int    `yaml:"top_genres"`
	Migrate   bool   `yaml:"migrate"`
}

func (s StatsConfig) Enabled() bool { return s.DSN != "" }

func defaultConfig() Config {
	return Config{
		Listen:          ":8080",
		ShutdownTimeout: Duration(15 * time.Second),
		Observe: observe.Config{
			ServiceName: "cinecache",
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Store: StoreConfig{
			Backend: "memory",
			SQL:     SQLConfig{Driver: "sqlite", JanitorInterval: Duration(time.Minute)},
		},
		Policy: PolicyConfig{MaxTTL: Duration(cache.DefaultPolicy().MaxTTL)},
		Stats:  StatsConfig{Driver: "sqlite"},
	}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults. Unknown keys are errors.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// resolveSecrets expands ${VAR} and secretref: values in the fields that
// may carry credentials.
func (c *Config) resolveSecrets(ctx context.Context) error {
	resolver, err := secret.DefaultRegistry.NewResolver(c.Secrets)
	if err != nil {
		return fmt.Errorf("config: secrets: %w", err)
	}
	defer func() { _ = resolver.Close() }()

	err = resolver.ResolveAll(ctx,
		&c.TMDB.APIKey,
		&c.Store.Redis.Addr,
		&c.Store.Redis.Password,
		&c.Store.SQL.DSN,
		&c.Stats.DSN,
		&c.Auth.Secret,
		&c.Auth.JWKS.URL,
	)
	if err != nil {
		return fmt.Errorf("config: secrets: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("config: store.redis.addr is required")
		}
	case "sql":
		if c.Store.SQL.Driver != "sqlite" && c.Store.SQL.DSN == "" {
			return errors.New("config: store.sql.dsn is required")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Auth.Secret != "" && c.Auth.JWKS.URL != "" {
		return errors.New("config: set auth.secret or auth.jwks.url, not both")
	}
	return c.Observe.Validate()
}
