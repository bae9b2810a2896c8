// Package cache provides a cache-aside facade for slow or rate-limited
// origins.
//
// A call site names the data it wants (movie-details, search, ...), supplies
// the parameters and a time-to-live, and passes the function that computes
// the value:
//
//	details, err := cache.Cached(ctx, facade, "movie-details", fetchMovie, id, cache.Minutes(60))
//
// Results are keyed by the name plus a SHA-256 digest of the parameters in
// canonical form (see DeriveKey), so logically equal parameters always share
// an entry. A zero TTL bypasses caching entirely. Concurrent misses for the
// same key in one process collapse into a single computation (see Group), and
// a Store implementing Claimer extends that across processes.
//
// Stores: MemoryStore here, Redis in redisstore and SQL databases in sqlstore.
package cache
