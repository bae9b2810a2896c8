package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/cinecache/cache/sqlstore"
	"github.com/jonwraymond/cinecache/catalog"
	"github.com/jonwraymond/cinecache/observe"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// tmdbStub answers a few TMDB paths and counts requests per path.
type tmdbStub struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newTMDBStub(t *testing.T) *tmdbStub {
	t.Helper()
	s := &tmdbStub{hits: map[string]int{}}
	bodies := map[string]string{
		"/movie/949":                 `{"id":949,"title":"Heat","runtime":170,"genres":[{"id":80,"name":"Crime"}]}`,
		"/tv/1438":                   `{"id":1438,"name":"The Wire","number_of_seasons":5}`,
		"/search/multi":              `{"page":1,"results":[{"id":949,"media_type":"movie","title":"Heat"}],"total_pages":1,"total_results":1}`,
		"/genre/movie/list":          `{"genres":[{"id":28,"name":"Action"}]}`,
		"/movie/949/watch/providers": `{"id":949,"results":{"GB":{"link":"https://example.test/heat","flatrate":[{"provider_id":8,"provider_name":"Netflix"}]}}}`,
		"/keyword/9715":              `{"id":9715,"name":"superhero"}`,
		"/configuration/countries":   `[{"iso_3166_1":"GB","english_name":"United Kingdom","native_name":"United Kingdom"}]`,
		"/trending/movie/day":        `{"page":1,"results":[{"id":693134,"media_type":"movie","title":"Dune: Part Two"}]}`,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		body, ok := bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"status_code":34,"status_message":"The resource you requested could not be found."}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *tmdbStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// seedStats creates a SQLite stats database with a few watch events.
func seedStats(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, catalog.NewSQLStats(db, sqlstore.SQLite).MigrateWatchEvents(ctx))
	now := time.Now().Add(-time.Hour).Unix()
	for _, ev := range []struct {
		title int64
		kind  string
		genre string
		mins  int
	}{
		{949, "movie", "Crime", 170},
		{1438, "tv", "Drama", 60},
	} {
		_, err := db.ExecContext(ctx, `INSERT INTO watch_events VALUES (?, ?, ?, ?, ?, ?)`,
			"user-1", ev.title, ev.kind, ev.genre, ev.mins, now)
		require.NoError(t, err)
	}
	return path
}

func testConfig(t *testing.T, stub *tmdbStub) Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.Observe.Logging.Enabled = false
	cfg.TMDB.BaseURL = stub.URL
	cfg.TMDB.APIKey = "v3key"
	cfg.TMDB.MaxAttempts = 1
	cfg.TMDB.RatePerSecond = 1000
	cfg.TMDB.Burst = 100
	cfg.Auth.Secret = testSecret
	cfg.Stats.DSN = seedStats(t)
	return cfg
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close(context.Background()) })

	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, header ...string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func TestServer_MovieDetailsCached(t *testing.T) {
	stub := newTMDBStub(t)
	srv := newTestServer(t, testConfig(t, stub))

	for i := 0; i < 3; i++ {
		status, body := get(t, srv, "/movies/949")
		require.Equal(t, http.StatusOK, status)

		var m struct {
			Title   string `json:"title"`
			Runtime int    `json:"runtime"`
		}
		require.NoError(t, json.Unmarshal(body, &m))
		assert.Equal(t, "Heat", m.Title)
		assert.Equal(t, 170, m.Runtime)
	}
	assert.Equal(t, 1, stub.count("/movie/949"))
}

func TestServer_Routes(t *testing.T) {
	stub := newTMDBStub(t)
	srv := newTestServer(t, testConfig(t, stub))

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/tv/1438", http.StatusOK, "The Wire"},
		{"/search?q=Heat", http.StatusOK, `"media_type":"movie"`},
		{"/search", http.StatusBadRequest, "q is required"},
		{"/search?q=heat&page=0", http.StatusBadRequest, "page"},
		{"/genres/movie", http.StatusOK, "Action"},
		{"/genres/person", http.StatusBadRequest, "kind"},
		{"/movies/949/providers?region=gb", http.StatusOK, "Netflix"},
		{"/keywords/9715", http.StatusOK, "superhero"},
		{"/countries", http.StatusOK, "United Kingdom"},
		{"/movies/abc", http.StatusBadRequest, "positive integer"},
		{"/movies/1", http.StatusNotFound, "could not be found"},
		{"/trending/movie/day", http.StatusOK, "Dune"},
		{"/trending/movie/month", http.StatusBadRequest, "window"},
		{"/accessors", http.StatusOK, `"name":"user-taste-stats","ttl_minutes":30`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := get(t, srv, tt.path)
			assert.Equal(t, tt.status, status, string(body))
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestServer_TrendingBypassesCache(t *testing.T) {
	stub := newTMDBStub(t)
	srv := newTestServer(t, testConfig(t, stub))

	for i := 0; i < 2; i++ {
		status, _ := get(t, srv, "/trending/movie/day")
		require.Equal(t, http.StatusOK, status)
	}
	assert.Equal(t, 2, stub.count("/trending/movie/day"))
}

func TestServer_Taste(t *testing.T) {
	stub := newTMDBStub(t)
	srv := newTestServer(t, testConfig(t, stub))

	status, _ := get(t, srv, "/me/taste")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = get(t, srv, "/me/taste", "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := get(t, srv, "/me/taste?days=30", "Authorization", "Bearer "+signToken(t, "user-1"))
	require.Equal(t, http.StatusOK, status, string(body))

	var stats catalog.TasteStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, "user-1", stats.UserID)
	assert.Equal(t, 30, stats.Days)
	assert.EqualValues(t, 2, stats.Views)
	assert.EqualValues(t, 230, stats.Minutes)
	assert.Equal(t, map[string]int64{"movie": 1, "tv": 1}, stats.ByKind)

	status, _ = get(t, srv, "/me/taste?days=0", "Authorization", "Bearer "+signToken(t, "user-1"))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_TasteWithoutAuthIsNotRouted(t *testing.T) {
	stub := newTMDBStub(t)
	cfg := testConfig(t, stub)
	cfg.Auth.Secret = ""
	srv := newTestServer(t, cfg)

	status, _ := get(t, srv, "/me/taste")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_TasteWithoutStats(t *testing.T) {
	stub := newTMDBStub(t)
	cfg := testConfig(t, stub)
	cfg.Stats.DSN = ""
	srv := newTestServer(t, cfg)

	status, _ := get(t, srv, "/me/taste", "Authorization", "Bearer "+signToken(t, "user-1"))
	assert.Equal(t, http.StatusNotImplemented, status)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	stub := newTMDBStub(t)
	srv := newTestServer(t, testConfig(t, stub))

	status, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))

	status, _ = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, status)

	status, body = get(t, srv, "/health")
	require.Equal(t, http.StatusOK, status)
	var detailed struct {
		Status  string                     `json:"status"`
		Serving string                     `json:"serving"`
		Checks  map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(body, &detailed))
	assert.Equal(t, "healthy", detailed.Status)
	assert.Equal(t, "store+origin", detailed.Serving)
	assert.Contains(t, detailed.Checks, "store")
	assert.Contains(t, detailed.Checks, "origin:tmdb")
	assert.Contains(t, detailed.Checks, "inflight")

	status, body = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_RedisStoreSharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	stub := newTMDBStub(t)

	cfg := testConfig(t, stub)
	cfg.Store.Backend = "redis"
	cfg.Store.Redis.Addr = mr.Addr()
	cfg.Store.Redis.Prefix = "cinecache"

	first := newTestServer(t, cfg)
	second := newTestServer(t, cfg)

	status, _ := get(t, first, "/countries")
	require.Equal(t, http.StatusOK, status)
	status, body := get(t, second, "/countries")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "United Kingdom")

	assert.Equal(t, 1, stub.count("/configuration/countries"))
	assert.NotEmpty(t, mr.Keys())
}

func TestServer_SQLStore(t *testing.T) {
	stub := newTMDBStub(t)
	cfg := testConfig(t, stub)
	cfg.Store.Backend = "sql"
	cfg.Store.SQL.DSN = filepath.Join(t.TempDir(), "cache.db")
	srv := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		status, _ := get(t, srv, "/keywords/9715")
		require.Equal(t, http.StatusOK, status)
	}
	assert.Equal(t, 1, stub.count("/keyword/9715"))
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	stub := newTMDBStub(t)
	cfg := testConfig(t, stub)
	cfg.ShutdownTimeout = Duration(time.Second)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close(context.Background()) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestStatusFor(t *testing.T) {
	stub := newTMDBStub(t)
	srv := newTestServer(t, testConfig(t, stub))

	// The stub answers 404 for unknown keywords.
	status, body := get(t, srv, "/keywords/1")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "error")
}

func TestApp_ServeWarnsOnMemoryStore(t *testing.T) {
	stub := newTMDBStub(t)

	tests := []struct {
		name    string
		backend string
		warn    bool
	}{
		{"memory", "memory", true},
		{"sql", "sql", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, stub)
			cfg.Store.Backend = tt.backend
			cfg.Store.SQL.DSN = filepath.Join(t.TempDir(), "cache.db")
			cfg.ShutdownTimeout = Duration(time.Second)

			a, err := newApp(context.Background(), cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.close(context.Background()) })

			var logs bytes.Buffer
			a.logger = observe.NewLoggerWithWriter("info", &logs)

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			require.NoError(t, a.serve(ctx, ln))

			assert.Equal(t, tt.warn, strings.Contains(logs.String(), "in-process memory store"), logs.String())
		})
	}
}
