package tmdb

import "fmt"

// Kind selects the movie or TV variant of an endpoint.
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

// ParseKind accepts "movie" or "tv".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMovie, KindTV:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: kind %q", ErrInvalidArgument, s)
}

type Genre struct {
	ID   int64  `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

type Movie struct {
	ID          int64   `json:"id" msgpack:"id"`
	Title       string  `json:"title" msgpack:"title"`
	Overview    string  `json:"overview" msgpack:"overview"`
	ReleaseDate string  `json:"release_date" msgpack:"release_date"`
	Runtime     int     `json:"runtime" msgpack:"runtime"`
	Genres      []Genre `json:"genres" msgpack:"genres"`
	VoteAverage float64 `json:"vote_average" msgpack:"vote_average"`
	PosterPath  string  `json:"poster_path" msgpack:"poster_path"`
}

type TVShow struct {
	ID               int64   `json:"id" msgpack:"id"`
	Name             string  `json:"name" msgpack:"name"`
	Overview         string  `json:"overview" msgpack:"overview"`
	FirstAirDate     string  `json:"first_air_date" msgpack:"first_air_date"`
	NumberOfSeasons  int     `json:"number_of_seasons" msgpack:"number_of_seasons"`
	NumberOfEpisodes int     `json:"number_of_episodes" msgpack:"number_of_episodes"`
	Genres           []Genre `json:"genres" msgpack:"genres"`
	VoteAverage      float64 `json:"vote_average" msgpack:"vote_average"`
	PosterPath       string  `json:"poster_path" msgpack:"poster_path"`
}

// SearchResult is one hit of a multi search: a movie, a TV show or a person.
type SearchResult struct {
	ID        int64   `json:"id" msgpack:"id"`
	MediaType string  `json:"media_type" msgpack:"media_type"`
	Title     string  `json:"title,omitempty" msgpack:"title,omitempty"`
	Name      string  `json:"name,omitempty" msgpack:"name,omitempty"`
	Overview  string  `json:"overview,omitempty" msgpack:"overview,omitempty"`
	Score     float64 `json:"popularity" msgpack:"popularity"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Page         int            `json:"page" msgpack:"page"`
	Results      []SearchResult `json:"results" msgpack:"results"`
	TotalPages   int            `json:"total_pages" msgpack:"total_pages"`
	TotalResults int            `json:"total_results" msgpack:"total_results"`
}

type Provider struct {
	ID       int64  `json:"provider_id" msgpack:"provider_id"`
	Name     string `json:"provider_name" msgpack:"provider_name"`
	LogoPath string `json:"logo_path" msgpack:"logo_path"`
	Priority int    `json:"display_priority" msgpack:"display_priority"`
}

// RegionProviders lists where a title streams in one region.
type RegionProviders struct {
	Region   string     `json:"region" msgpack:"region"`
	Link     string     `json:"link,omitempty" msgpack:"link,omitempty"`
	Flatrate []Provider `json:"flatrate,omitempty" msgpack:"flatrate,omitempty"`
	Rent     []Provider `json:"rent,omitempty" msgpack:"rent,omitempty"`
	Buy      []Provider `json:"buy,omitempty" msgpack:"buy,omitempty"`
}

type Keyword struct {
	ID   int64  `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

type Country struct {
	Code        string `json:"iso_3166_1" msgpack:"iso_3166_1"`
	EnglishName string `json:"english_name" msgpack:"english_name"`
	NativeName  string `json:"native_name" msgpack:"native_name"`
}
