// Package health reports whether the cache service can answer requests.
//
// A Checker reports one dependency as Healthy, Degraded or Unhealthy. The
// service registers three kinds:
//
//   - StoreChecker pings the shared cache store.
//   - OriginChecker reads an origin's circuit breaker; an open circuit is
//     degraded because cached entries are still served.
//   - FlightChecker watches how many computations are in flight.
//
// An Aggregator runs the checkers in parallel under one timeout. Checkers
// registered with NonCritical can degrade the overall status but never make
// it unhealthy:
//
//	agg := health.NewAggregator()
//	agg.Register("store", health.NewStoreChecker(store), health.NonCritical())
//	agg.Register("origin:tmdb", health.NewOriginChecker("tmdb", breaker), health.NonCritical())
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg) // /healthz, /readyz, /health
package health
