package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/origin/tmdb"
)

// fakeOrigin counts calls per endpoint.
type fakeOrigin struct {
	mu    sync.Mutex
	calls map[string]int
	last  map[string][]any
	err   error
	gate  chan struct{}
}

func newFakeOrigin() *fakeOrigin {
	return &fakeOrigin{calls: map[string]int{}, last: map[string][]any{}}
}

func (o *fakeOrigin) record(endpoint string, args ...any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[endpoint]++
	o.last[endpoint] = args
	return o.err
}

func (o *fakeOrigin) count(endpoint string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[endpoint]
}

func (o *fakeOrigin) args(endpoint string) []any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[endpoint]
}

func (o *fakeOrigin) MovieDetails(_ context.Context, id int64) (tmdb.Movie, error) {
	return tmdb.Movie{ID: id, Title: "Heat"}, o.record("movie", id)
}

func (o *fakeOrigin) TVDetails(_ context.Context, id int64) (tmdb.TVShow, error) {
	return tmdb.TVShow{ID: id, Name: "The Wire"}, o.record("tv", id)
}

func (o *fakeOrigin) SearchMulti(_ context.Context, query string, page int) (tmdb.SearchPage, error) {
	return tmdb.SearchPage{Page: page, Results: []tmdb.SearchResult{{ID: 1, Title: query}}}, o.record("search", query, page)
}

func (o *fakeOrigin) Genres(_ context.Context, kind tmdb.Kind) ([]tmdb.Genre, error) {
	return []tmdb.Genre{{ID: 18, Name: "Drama " + string(kind)}}, o.record("genres", kind)
}

func (o *fakeOrigin) WatchProviders(_ context.Context, kind tmdb.Kind, id int64, region string) (tmdb.RegionProviders, error) {
	return tmdb.RegionProviders{Region: region}, o.record("providers", kind, id, region)
}

func (o *fakeOrigin) Keyword(_ context.Context, id int64) (tmdb.Keyword, error) {
	return tmdb.Keyword{ID: id, Name: "heist"}, o.record("keyword", id)
}

func (o *fakeOrigin) Countries(context.Context) ([]tmdb.Country, error) {
	if o.gate != nil {
		<-o.gate
	}
	return []tmdb.Country{{Code: "GB", EnglishName: "United Kingdom"}}, o.record("countries")
}

func (o *fakeOrigin) Trending(_ context.Context, kind tmdb.Kind, window string) (tmdb.SearchPage, error) {
	return tmdb.SearchPage{Page: 1}, o.record("trending", kind, window)
}

type fakeStats struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeStats) TasteStats(_ context.Context, userID string, days int) (TasteStats, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return TasteStats{UserID: userID, Days: days, Views: 3}, nil
}

func newTestCatalog(t *testing.T, stats StatsQuerier) (*Catalog, *fakeOrigin) {
	t.Helper()
	f, err := cache.New(cache.NewMemoryStore())
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	origin := newFakeOrigin()
	c, err := New(f, origin, stats)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, origin
}

func TestNew_NilOrigin(t *testing.T) {
	f, _ := cache.New(cache.NewMemoryStore())
	if _, err := New(f, nil, nil); err == nil {
		t.Error("New(nil origin) should fail")
	}
	if _, err := New(nil, newFakeOrigin(), nil); !errors.Is(err, cache.ErrNilFacade) {
		t.Errorf("New(nil facade) error = %v, want ErrNilFacade", err)
	}
}

func TestCatalog_Accessors(t *testing.T) {
	c, _ := newTestCatalog(t, nil)

	want := map[string]int{
		NameMovieDetails:   60,
		NameTVDetails:      60,
		NameSearch:         15,
		NameGenresMovie:    1440,
		NameGenresTV:       1440,
		NameWatchProviders: 360,
		NameKeyword:        1440,
		NameCountries:      1440,
		NameUserTasteStats: 30,
		NameTrendingLive:   0,
	}
	infos := c.Accessors()
	if len(infos) != len(want) {
		t.Fatalf("Accessors() returned %d entries, want %d", len(infos), len(want))
	}
	for _, info := range infos {
		minutes, ok := want[info.Name]
		if !ok {
			t.Errorf("unexpected accessor %q", info.Name)
			continue
		}
		if info.TTL != cache.Minutes(minutes) {
			t.Errorf("%s TTL = %v, want %dm", info.Name, info.TTL, minutes)
		}
	}
}

func TestCatalog_CachesDetails(t *testing.T) {
	c, origin := newTestCatalog(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := c.MovieDetails(ctx, 949)
		if err != nil || m.Title != "Heat" {
			t.Fatalf("MovieDetails() = %+v, %v", m, err)
		}
	}
	if _, err := c.MovieDetails(ctx, 550); err != nil {
		t.Fatal(err)
	}
	if got := origin.count("movie"); got != 2 {
		t.Errorf("movie origin calls = %d, want 2", got)
	}

	// Same id, different accessor: separate entries.
	if _, err := c.TVDetails(ctx, 949); err != nil {
		t.Fatal(err)
	}
	if got := origin.count("tv"); got != 1 {
		t.Errorf("tv origin calls = %d, want 1", got)
	}
}

func TestCatalog_SearchNormalizesQuery(t *testing.T) {
	c, origin := newTestCatalog(t, nil)
	ctx := context.Background()

	for _, q := range []string{"the  matrix", " The Matrix ", "THE MATRIX"} {
		if _, err := c.Search(ctx, q, 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Search(ctx, "the matrix", 1); err != nil {
		t.Fatal(err)
	}
	if got := origin.count("search"); got != 1 {
		t.Errorf("search origin calls = %d, want 1", got)
	}
	if args := origin.args("search"); args[0] != "the matrix" || args[1] != 1 {
		t.Errorf("origin called with %v", args)
	}

	if _, err := c.Search(ctx, "the matrix", 2); err != nil {
		t.Fatal(err)
	}
	if got := origin.count("search"); got != 2 {
		t.Errorf("search origin calls = %d after page 2, want 2", got)
	}
}

func TestCatalog_Genres(t *testing.T) {
	c, origin := newTestCatalog(t, nil)
	ctx := context.Background()

	movie, err := c.Genres(ctx, tmdb.KindMovie)
	if err != nil {
		t.Fatal(err)
	}
	tv, err := c.Genres(ctx, tmdb.KindTV)
	if err != nil {
		t.Fatal(err)
	}
	if movie[0].Name == tv[0].Name {
		t.Errorf("movie and tv genres share an entry: %v", movie)
	}
	_, _ = c.Genres(ctx, tmdb.KindMovie)
	if got := origin.count("genres"); got != 2 {
		t.Errorf("genres origin calls = %d, want 2", got)
	}

	if _, err := c.Genres(ctx, tmdb.Kind("person")); !errors.Is(err, tmdb.ErrInvalidArgument) {
		t.Errorf("Genres(person) error = %v, want ErrInvalidArgument", err)
	}
}

func TestCatalog_WatchProvidersRegion(t *testing.T) {
	c, origin := newTestCatalog(t, nil)
	ctx := context.Background()

	rp, err := c.WatchProviders(ctx, tmdb.KindMovie, 949, "gb")
	if err != nil {
		t.Fatal(err)
	}
	if rp.Region != "GB" {
		t.Errorf("Region = %q, want GB", rp.Region)
	}
	_, _ = c.WatchProviders(ctx, tmdb.KindMovie, 949, "GB")
	_, _ = c.WatchProviders(ctx, tmdb.KindTV, 949, "GB")
	if got := origin.count("providers"); got != 2 {
		t.Errorf("providers origin calls = %d, want 2", got)
	}
}

func TestCatalog_KeywordAndCountries(t *testing.T) {
	c, origin := newTestCatalog(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Keyword(ctx, 9715); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Countries(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if origin.count("keyword") != 1 || origin.count("countries") != 1 {
		t.Errorf("calls = keyword %d, countries %d; want 1, 1", origin.count("keyword"), origin.count("countries"))
	}
}

func TestCatalog_TrendingNeverCached(t *testing.T) {
	f, _ := cache.New(cache.NewMemoryStore())
	store := f.Store().(*cache.MemoryStore)
	origin := newFakeOrigin()
	c, err := New(f, origin, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.TrendingLive(context.Background(), tmdb.KindMovie, "day"); err != nil {
			t.Fatal(err)
		}
	}
	if got := origin.count("trending"); got != 3 {
		t.Errorf("trending origin calls = %d, want 3", got)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d entries, want 0", store.Len())
	}
}

func TestCatalog_OriginErrorNotCached(t *testing.T) {
	c, origin := newTestCatalog(t, nil)
	ctx := context.Background()

	origin.err = tmdb.ErrNotFound
	if _, err := c.MovieDetails(ctx, 1); !errors.Is(err, tmdb.ErrNotFound) {
		t.Fatalf("MovieDetails() error = %v, want ErrNotFound", err)
	}
	origin.err = nil
	if _, err := c.MovieDetails(ctx, 1); err != nil {
		t.Fatalf("MovieDetails() after recovery error = %v", err)
	}
	if got := origin.count("movie"); got != 2 {
		t.Errorf("movie origin calls = %d, want 2", got)
	}
}

func TestCatalog_TasteStats(t *testing.T) {
	stats := &fakeStats{}
	c, _ := newTestCatalog(t, stats)
	ctx := context.Background()

	got, err := c.TasteStats(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Days != DefaultTasteDays || got.UserID != "u1" {
		t.Errorf("TasteStats() = %+v", got)
	}
	_, _ = c.TasteStats(ctx, "u1", DefaultTasteDays)
	_, _ = c.TasteStats(ctx, "u2", DefaultTasteDays)
	if stats.calls != 2 {
		t.Errorf("stats calls = %d, want 2", stats.calls)
	}

	if _, err := c.TasteStats(ctx, "", 7); err == nil {
		t.Error("TasteStats(empty user) should fail")
	}
}

func TestCatalog_TasteStatsUnconfigured(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	if _, err := c.TasteStats(context.Background(), "u1", 7); !errors.Is(err, ErrNoStats) {
		t.Errorf("TasteStats() error = %v, want ErrNoStats", err)
	}
}

func TestCatalog_ConcurrentMissesCollapse(t *testing.T) {
	c, origin := newTestCatalog(t, nil)
	ctx := context.Background()
	origin.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Countries(ctx)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(origin.gate)
	wg.Wait()

	if got := origin.count("countries"); got != 1 {
		t.Errorf("countries origin calls = %d, want 1", got)
	}
}
