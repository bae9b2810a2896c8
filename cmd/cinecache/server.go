package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/cinecache/auth"
	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/catalog"
	"github.com/jonwraymond/cinecache/health"
	"github.com/jonwraymond/cinecache/observe"
	"github.com/jonwraymond/cinecache/origin/tmdb"
	"github.com/jonwraymond/cinecache/resilience"
)

// app is one wired cinecache process.
type app struct {
	cfg     Config
	obs     observe.Observer
	logger  observe.Logger
	store   *openedStore
	facade  *cache.Facade
	origin  *tmdb.Client
	catalog *catalog.Catalog
	authn   auth.Authenticator
	health  *health.Aggregator

	closers []func() error
}

func newApp(ctx context.Context, cfg Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
		}
	}()

	if a.obs, err = observe.NewObserver(ctx, cfg.Observe); err != nil {
		return nil, err
	}
	a.logger = a.obs.Logger()
	in := a.obs.Instruments()

	if a.store, err = openStore(ctx, cfg.Store); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	a.closers = append(a.closers, a.store.close)

	a.facade, err = cache.New(a.store.Store,
		cache.WithInstruments(in),
		cache.WithPolicy(cfg.Policy.Policy()),
	)
	if err != nil {
		return nil, err
	}

	a.origin, err = tmdb.New(cfg.TMDB,
		tmdb.WithInstruments(in),
		tmdb.WithStateChange(func(name string, from, to resilience.State) {
			a.logger.Warn(context.Background(), "origin circuit changed state",
				observe.Field{Key: "origin", Value: name},
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("tmdb: %w", err)
	}

	stats, closeStats, err := openStats(ctx, cfg.Stats)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	a.closers = append(a.closers, closeStats)

	var querier catalog.StatsQuerier
	if stats != nil {
		querier = stats
	}
	if a.catalog, err = catalog.New(a.facade, a.origin, querier); err != nil {
		return nil, err
	}

	a.authn = newAuthenticator(cfg.Auth)

	a.health = health.NewAggregator()
	a.health.Register("store", health.NewStoreChecker(a.store.Store), storeCriticality(cfg.Policy)...)
	a.health.Register("origin:tmdb", health.NewOriginChecker("tmdb", a.origin.Breaker()), health.NonCritical())
	a.health.Register("inflight", health.NewFlightChecker(a.facade, 0), health.NonCritical())

	return a, nil
}

// storeCriticality makes the store critical only when reads fail closed.
func storeCriticality(p PolicyConfig) []health.RegisterOption {
	if p.FailClosed {
		return nil
	}
	return []health.RegisterOption{health.NonCritical()}
}

func newAuthenticator(cfg AuthConfig) auth.Authenticator {
	switch {
	case cfg.Secret != "":
		return auth.NewJWTAuthenticator(cfg.JWT, auth.NewStaticKeyProvider([]byte(cfg.Secret)))
	case cfg.JWKS.URL != "":
		return auth.NewJWTAuthenticator(cfg.JWT, auth.NewJWKSKeyProvider(cfg.JWKS))
	}
	return nil
}

// routes returns the HTTP handler for the API, probes and metrics.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	api := &api{catalog: a.catalog, logger: a.logger}

	mux.HandleFunc("GET /movies/{id}", api.movie)
	mux.HandleFunc("GET /movies/{id}/providers", api.providers(tmdb.KindMovie))
	mux.HandleFunc("GET /tv/{id}", api.tv)
	mux.HandleFunc("GET /tv/{id}/providers", api.providers(tmdb.KindTV))
	mux.HandleFunc("GET /search", api.search)
	mux.HandleFunc("GET /genres/{kind}", api.genres)
	mux.HandleFunc("GET /keywords/{id}", api.keyword)
	mux.HandleFunc("GET /countries", api.countries)
	mux.HandleFunc("GET /trending/{kind}/{window}", api.trending)
	mux.HandleFunc("GET /accessors", api.accessors)

	if a.authn != nil {
		mux.Handle("GET /me/taste", auth.Middleware(a.authn)(http.HandlerFunc(api.taste)))
	}

	health.RegisterHandlers(mux, a.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// serve runs the HTTP server until ctx is done, then drains it.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	if a.store.sql != nil {
		go a.store.sql.RunJanitor(ctx, a.cfg.Store.SQL.JanitorInterval.D(), func(err error) {
			a.logger.Warn(ctx, "prune failed", observe.Field{Key: "error", Value: err})
		})
	}

	if _, ok := a.store.Store.(*cache.MemoryStore); ok {
		a.logger.Warn(ctx, "serving from the in-process memory store; instances will not share cached entries",
			observe.Field{Key: "hint", Value: "set store.backend to redis or sql for multi-instance deployments"},
		)
	}

	srv := &http.Server{
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	a.logger.Info(ctx, "listening", observe.Field{Key: "addr", Value: ln.Addr().String()})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout.D())
	defer cancel()
	a.logger.Info(shutdownCtx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.obs != nil {
		if err := a.obs.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
