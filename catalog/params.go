package catalog

import (
	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/origin/tmdb"
)

// IDParams identifies one title or keyword.
type IDParams struct {
	ID int64
}

func (p IDParams) CacheValue() cache.Value {
	return cache.Map(map[string]cache.Value{"id": cache.Int(p.ID)})
}

// NoParams is the parameter of accessors that take none.
type NoParams struct{}

func (NoParams) CacheValue() cache.Value { return cache.Map(nil) }

// SearchParams is a multi search. Page 0 and 1 are the same page.
type SearchParams struct {
	Query string
	Page  int
}

func (p SearchParams) CacheValue() cache.Value {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return cache.Map(map[string]cache.Value{
		"query": cache.String(p.Query),
		"page":  cache.Int(int64(page)),
	})
}

// ProvidersParams selects the watch providers of a title in a region.
type ProvidersParams struct {
	Kind   tmdb.Kind
	ID     int64
	Region string
}

func (p ProvidersParams) CacheValue() cache.Value {
	return cache.Map(map[string]cache.Value{
		"kind":   cache.String(string(p.Kind)),
		"id":     cache.Int(p.ID),
		"region": cache.String(p.Region),
	})
}

// TasteParams selects a user's viewing window.
type TasteParams struct {
	UserID string
	Days   int
}

func (p TasteParams) CacheValue() cache.Value {
	return cache.Map(map[string]cache.Value{
		"user_id": cache.String(p.UserID),
		"days":    cache.Int(int64(p.Days)),
	})
}

// TrendingParams selects a trending list.
type TrendingParams struct {
	Kind   tmdb.Kind
	Window string
}

func (p TrendingParams) CacheValue() cache.Value {
	return cache.Map(map[string]cache.Value{
		"kind":   cache.String(string(p.Kind)),
		"window": cache.String(p.Window),
	})
}

var (
	_ cache.Valuer = IDParams{}
	_ cache.Valuer = NoParams{}
	_ cache.Valuer = SearchParams{}
	_ cache.Valuer = ProvidersParams{}
	_ cache.Valuer = TasteParams{}
	_ cache.Valuer = TrendingParams{}
)
