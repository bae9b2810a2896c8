// Package catalog binds every cached accessor of the service to its name,
// TTL and target.
//
//	name               ttl    target
//	movie-details      60m    TMDB /movie/{id}
//	tv-details         60m    TMDB /tv/{id}
//	search             15m    TMDB /search/multi
//	genres-movie       1440m  TMDB /genre/movie/list (no params)
//	genres-tv          1440m  TMDB /genre/tv/list (no params)
//	watch-providers    360m   TMDB /{kind}/{id}/watch/providers
//	keyword            1440m  TMDB /keyword/{id}
//	countries          1440m  TMDB /configuration/countries
//	user-taste-stats   30m    SQL over watch events
//	trending-live      0      TMDB /trending, never cached
//
// Parameters are small structs implementing cache.Valuer so that their
// cache keys do not depend on Go field order or struct tags.
package catalog
