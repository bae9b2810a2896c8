// Package tmdb is a client for the TMDB v3 metadata API, the slow and
// rate-limited origin behind the catalog accessors.
//
// Every request runs through a resilience executor (circuit breaker,
// retry, rate limiter, bulkhead and per-attempt timeout) and the observe
// origin middleware. TMDB answers 429 when the rate limit is exceeded;
// its Retry-After header sets the next retry delay. Other 4xx responses
// are permanent and neither retried nor counted by the breaker.
package tmdb
