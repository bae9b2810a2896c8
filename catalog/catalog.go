package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/origin/tmdb"
)

// Accessor names and call-site TTLs.
const (
	NameMovieDetails   = "movie-details"
	NameTVDetails      = "tv-details"
	NameSearch         = "search"
	NameGenresMovie    = "genres-movie"
	NameGenresTV       = "genres-tv"
	NameWatchProviders = "watch-providers"
	NameKeyword        = "keyword"
	NameCountries      = "countries"
	NameUserTasteStats = "user-taste-stats"
	NameTrendingLive   = "trending-live"
)

var (
	TTLMovieDetails   = cache.Minutes(60)
	TTLTVDetails      = cache.Minutes(60)
	TTLSearch         = cache.Minutes(15)
	TTLGenres         = cache.Minutes(1440)
	TTLWatchProviders = cache.Minutes(360)
	TTLKeyword        = cache.Minutes(1440)
	TTLCountries      = cache.Minutes(1440)
	TTLUserTasteStats = cache.Minutes(30)
	TTLTrendingLive   = cache.Minutes(0)
)

// DefaultTasteDays is the window used when a caller asks for zero days.
const DefaultTasteDays = 90

// ErrNoStats is returned by TasteStats when the catalog has no StatsQuerier.
var ErrNoStats = errors.New("catalog: taste statistics are not configured")

// Origin is the metadata API behind the catalog. *tmdb.Client implements it.
type Origin interface {
	MovieDetails(ctx context.Context, id int64) (tmdb.Movie, error)
	TVDetails(ctx context.Context, id int64) (tmdb.TVShow, error)
	SearchMulti(ctx context.Context, query string, page int) (tmdb.SearchPage, error)
	Genres(ctx context.Context, kind tmdb.Kind) ([]tmdb.Genre, error)
	WatchProviders(ctx context.Context, kind tmdb.Kind, id int64, region string) (tmdb.RegionProviders, error)
	Keyword(ctx context.Context, id int64) (tmdb.Keyword, error)
	Countries(ctx context.Context) ([]tmdb.Country, error)
	Trending(ctx context.Context, kind tmdb.Kind, window string) (tmdb.SearchPage, error)
}

// Info describes one accessor.
type Info struct {
	Name string        `json:"name"`
	TTL  time.Duration `json:"ttl"`
}

// Catalog is the set of cached accessors. It is safe for concurrent use.
type Catalog struct {
	movie       *cache.Accessor[IDParams, tmdb.Movie]
	tv          *cache.Accessor[IDParams, tmdb.TVShow]
	search      *cache.Accessor[SearchParams, tmdb.SearchPage]
	genresMovie *cache.Accessor[NoParams, []tmdb.Genre]
	genresTV    *cache.Accessor[NoParams, []tmdb.Genre]
	providers   *cache.Accessor[ProvidersParams, tmdb.RegionProviders]
	keyword     *cache.Accessor[IDParams, tmdb.Keyword]
	countries   *cache.Accessor[NoParams, []tmdb.Country]
	taste       *cache.Accessor[TasteParams, TasteStats]
	trending    *cache.Accessor[TrendingParams, tmdb.SearchPage]

	stats StatsQuerier
}

// New binds every accessor to f. stats may be nil, in which case
// TasteStats returns ErrNoStats.
func New(f *cache.Facade, origin Origin, stats StatsQuerier) (*Catalog, error) {
	if origin == nil {
		return nil, errors.New("catalog: origin is nil")
	}

	c := &Catalog{stats: stats}
	var errs []error
	bind := func(err error) { errs = append(errs, err) }

	var err error
	c.movie, err = cache.NewAccessor(f, NameMovieDetails, TTLMovieDetails,
		func(ctx context.Context, p IDParams) (tmdb.Movie, error) { return origin.MovieDetails(ctx, p.ID) })
	bind(err)
	c.tv, err = cache.NewAccessor(f, NameTVDetails, TTLTVDetails,
		func(ctx context.Context, p IDParams) (tmdb.TVShow, error) { return origin.TVDetails(ctx, p.ID) })
	bind(err)
	c.search, err = cache.NewAccessor(f, NameSearch, TTLSearch,
		func(ctx context.Context, p SearchParams) (tmdb.SearchPage, error) {
			return origin.SearchMulti(ctx, p.Query, p.Page)
		})
	bind(err)
	c.genresMovie, err = cache.NewAccessor(f, NameGenresMovie, TTLGenres,
		func(ctx context.Context, _ NoParams) ([]tmdb.Genre, error) { return origin.Genres(ctx, tmdb.KindMovie) })
	bind(err)
	c.genresTV, err = cache.NewAccessor(f, NameGenresTV, TTLGenres,
		func(ctx context.Context, _ NoParams) ([]tmdb.Genre, error) { return origin.Genres(ctx, tmdb.KindTV) })
	bind(err)
	c.providers, err = cache.NewAccessor(f, NameWatchProviders, TTLWatchProviders,
		func(ctx context.Context, p ProvidersParams) (tmdb.RegionProviders, error) {
			return origin.WatchProviders(ctx, p.Kind, p.ID, p.Region)
		})
	bind(err)
	c.keyword, err = cache.NewAccessor(f, NameKeyword, TTLKeyword,
		func(ctx context.Context, p IDParams) (tmdb.Keyword, error) { return origin.Keyword(ctx, p.ID) })
	bind(err)
	c.countries, err = cache.NewAccessor(f, NameCountries, TTLCountries,
		func(ctx context.Context, _ NoParams) ([]tmdb.Country, error) { return origin.Countries(ctx) })
	bind(err)
	c.taste, err = cache.NewAccessor(f, NameUserTasteStats, TTLUserTasteStats,
		func(ctx context.Context, p TasteParams) (TasteStats, error) {
			return c.stats.TasteStats(ctx, p.UserID, p.Days)
		})
	bind(err)
	c.trending, err = cache.NewAccessor(f, NameTrendingLive, TTLTrendingLive,
		func(ctx context.Context, p TrendingParams) (tmdb.SearchPage, error) {
			return origin.Trending(ctx, p.Kind, p.Window)
		})
	bind(err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Accessors lists every accessor with its TTL.
func (c *Catalog) Accessors() []Info {
	return []Info{
		{c.movie.Name(), c.movie.TTL()},
		{c.tv.Name(), c.tv.TTL()},
		{c.search.Name(), c.search.TTL()},
		{c.genresMovie.Name(), c.genresMovie.TTL()},
		{c.genresTV.Name(), c.genresTV.TTL()},
		{c.providers.Name(), c.providers.TTL()},
		{c.keyword.Name(), c.keyword.TTL()},
		{c.countries.Name(), c.countries.TTL()},
		{c.taste.Name(), c.taste.TTL()},
		{c.trending.Name(), c.trending.TTL()},
	}
}

func (c *Catalog) MovieDetails(ctx context.Context, id int64) (tmdb.Movie, error) {
	return c.movie.Get(ctx, IDParams{ID: id})
}

func (c *Catalog) TVDetails(ctx context.Context, id int64) (tmdb.TVShow, error) {
	return c.tv.Get(ctx, IDParams{ID: id})
}

// Search normalizes the query (trimmed, lower case, inner spaces
// collapsed) so that trivially different spellings share an entry.
func (c *Catalog) Search(ctx context.Context, query string, page int) (tmdb.SearchPage, error) {
	query = strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if page < 1 {
		page = 1
	}
	return c.search.Get(ctx, SearchParams{Query: query, Page: page})
}

func (c *Catalog) Genres(ctx context.Context, kind tmdb.Kind) ([]tmdb.Genre, error) {
	switch kind {
	case tmdb.KindMovie:
		return c.genresMovie.Get(ctx, NoParams{})
	case tmdb.KindTV:
		return c.genresTV.Get(ctx, NoParams{})
	}
	return nil, fmt.Errorf("%w: kind %q", tmdb.ErrInvalidArgument, kind)
}

// WatchProviders upper-cases region before keying.
func (c *Catalog) WatchProviders(ctx context.Context, kind tmdb.Kind, id int64, region string) (tmdb.RegionProviders, error) {
	return c.providers.Get(ctx, ProvidersParams{Kind: kind, ID: id, Region: strings.ToUpper(region)})
}

func (c *Catalog) Keyword(ctx context.Context, id int64) (tmdb.Keyword, error) {
	return c.keyword.Get(ctx, IDParams{ID: id})
}

func (c *Catalog) Countries(ctx context.Context) ([]tmdb.Country, error) {
	return c.countries.Get(ctx, NoParams{})
}

// TasteStats returns the user's taste statistics over days (default
// DefaultTasteDays).
func (c *Catalog) TasteStats(ctx context.Context, userID string, days int) (TasteStats, error) {
	if c.stats == nil {
		return TasteStats{}, ErrNoStats
	}
	if userID == "" {
		return TasteStats{}, errors.New("catalog: user id is required")
	}
	if days <= 0 {
		days = DefaultTasteDays
	}
	return c.taste.Get(ctx, TasteParams{UserID: userID, Days: days})
}

// TrendingLive always calls the origin.
func (c *Catalog) TrendingLive(ctx context.Context, kind tmdb.Kind, window string) (tmdb.SearchPage, error) {
	return c.trending.Get(ctx, TrendingParams{Kind: kind, Window: window})
}
