// Package observe provides observability primitives for cached accessors and
// the origins behind them.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. The cache Facade records one span and one lookup
// outcome per call; origin clients wrap their outbound requests with
// OriginMiddleware.
package observe
