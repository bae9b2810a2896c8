package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonwraymond/cinecache/auth"
	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/catalog"
	"github.com/jonwraymond/cinecache/observe"
	"github.com/jonwraymond/cinecache/origin/tmdb"
	"github.com/jonwraymond/cinecache/resilience"
)

type api struct {
	catalog *catalog.Catalog
	logger  observe.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusClientClosed is nginx's code for a request the client abandoned.
const statusClientClosed = 499

// statusFor maps catalog and origin errors to HTTP status codes.
func statusFor(err error) int {
	var se *tmdb.StatusError
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	case errors.Is(err, tmdb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tmdb.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNoStats):
		return http.StatusNotImplemented
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrRateLimitExceeded),
		errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, cache.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, resilience.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(r.Context(), "request failed",
			observe.Field{Key: "path", Value: r.URL.Path},
			observe.Field{Key: "status", Value: status},
			observe.Field{Key: "error", Value: err},
		)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", tmdb.ErrInvalidArgument)
	}
	return id, nil
}

func (a *api) movie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.catalog.MovieDetails(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) tv(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	show, err := a.catalog.TVDetails(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, show)
}

// providers serves ?region=GB (default US).
func (a *api) providers(kind tmdb.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		region := r.URL.Query().Get("region")
		if region == "" {
			region = "US"
		}
		rp, err := a.catalog.WatchProviders(r.Context(), kind, id, region)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rp)
	}
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		a.fail(w, r, fmt.Errorf("%w: q is required", tmdb.ErrInvalidArgument))
		return
	}
	page := 1
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			a.fail(w, r, fmt.Errorf("%w: page must be a positive integer", tmdb.ErrInvalidArgument))
			return
		}
		page = n
	}
	res, err := a.catalog.Search(r.Context(), query, page)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) genres(w http.ResponseWriter, r *http.Request) {
	kind, err := tmdb.ParseKind(r.PathValue("kind"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	g, err := a.catalog.Genres(r.Context(), kind)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *api) keyword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	k, err := a.catalog.Keyword(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (a *api) countries(w http.ResponseWriter, r *http.Request) {
	c, err := a.catalog.Countries(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) trending(w http.ResponseWriter, r *http.Request) {
	kind, err := tmdb.ParseKind(r.PathValue("kind"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	page, err := a.catalog.TrendingLive(r.Context(), kind, r.PathValue("window"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *api) accessors(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		Name       string  `json:"name"`
		TTLMinutes float64 `json:"ttl_minutes"`
	}
	infos := a.catalog.Accessors()
	out := make([]entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, entry{Name: info.Name, TTLMinutes: info.TTL.Minutes()})
	}
	writeJSON(w, http.StatusOK, out)
}

// taste serves the caller's statistics; ?days=N selects the window.
func (a *api) taste(w http.ResponseWriter, r *http.Request) {
	user := auth.SubjectFromContext(r.Context())
	days := 0
	if d := r.URL.Query().Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 1 || n > 3650 {
			a.fail(w, r, fmt.Errorf("%w: days must be between 1 and 3650", tmdb.ErrInvalidArgument))
			return
		}
		days = n
	}
	stats, err := a.catalog.TasteStats(r.Context(), user, days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
