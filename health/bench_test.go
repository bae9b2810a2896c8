package health

import (
	"context"
	"fmt"
	"testing"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/resilience"
)

func BenchmarkStoreChecker_Check(b *testing.B) {
	c := NewStoreChecker(cache.NewMemoryStore())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Check(ctx)
	}
}

func BenchmarkOriginChecker_Check(b *testing.B) {
	c := NewOriginChecker("tmdb", resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Check(ctx)
	}
}

func BenchmarkAggregator_CheckAll(b *testing.B) {
	for _, n := range []int{1, 5, 20} {
		b.Run(fmt.Sprintf("checkers=%d", n), func(b *testing.B) {
			agg := NewAggregator()
			for i := 0; i < n; i++ {
				name := fmt.Sprintf("origin:%d", i)
				agg.Register(name, fixed(name, StatusHealthy))
			}
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				results := agg.CheckAll(ctx)
				_ = agg.OverallStatus(results)
			}
		})
	}
}
