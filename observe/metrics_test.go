package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the counter value for the data point carrying attr.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	found := findMetric(rm, name)
	if found == nil {
		return 0
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v.Emit() == attr.Value.Emit() {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_LookupsByOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLookup(ctx, "search", OutcomeMiss)
	m.RecordLookup(ctx, "search", OutcomeHit)
	m.RecordLookup(ctx, "search", OutcomeHit)
	m.RecordLookup(ctx, "trending-live", OutcomeBypass)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "cache.lookups", attribute.String("cache.outcome", "hit")); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "cache.lookups", attribute.String("cache.outcome", "bypass")); got != 1 {
		t.Errorf("bypasses = %d, want 1", got)
	}
	if got := sumByAttr(t, rm, "cache.lookups", attribute.String("cache.name", "search")); got != 3 {
		t.Errorf("search lookups = %d, want 3", got)
	}
}

func TestMetrics_ComputeErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCompute(ctx, "movie-details", 120*time.Millisecond, nil)
	m.RecordCompute(ctx, "movie-details", 80*time.Millisecond, errors.New("tmdb: 503"))

	rm := collect(t, reader)
	name := attribute.String("cache.name", "movie-details")
	if got := sumByAttr(t, rm, "cache.computes", name); got != 2 {
		t.Errorf("computes = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "cache.compute.errors", name); got != 1 {
		t.Errorf("compute errors = %d, want 1", got)
	}

	hist := findMetric(rm, "cache.compute.duration_ms")
	if hist == nil {
		t.Fatal("cache.compute.duration_ms not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", hist.Data)
	}
	if len(data.DataPoints) != 1 || data.DataPoints[0].Count != 2 || data.DataPoints[0].Sum != 200 {
		t.Errorf("histogram = %+v", data.DataPoints)
	}
}

func TestMetrics_StoreErrorsByOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStoreError(ctx, "genres-movie", "get")
	m.RecordStoreError(ctx, "genres-movie", "put")
	m.RecordStoreError(ctx, "genres-tv", "get")

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "cache.store.errors", attribute.String("cache.store.op", "get")); got != 2 {
		t.Errorf("get errors = %d, want 2", got)
	}
}

func TestMetrics_Origin(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	call := OriginCall{Origin: "tmdb", Endpoint: "/movie/{id}", Method: "GET"}

	m.RecordOrigin(ctx, call, 40*time.Millisecond, nil)
	m.RecordOrigin(ctx, call, 10*time.Millisecond, errors.New("429"))

	rm := collect(t, reader)
	endpoint := attribute.String("origin.endpoint", "/movie/{id}")
	if got := sumByAttr(t, rm, "origin.requests", endpoint); got != 2 {
		t.Errorf("origin requests = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "origin.errors", endpoint); got != 1 {
		t.Errorf("origin errors = %d, want 1", got)
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordLookup(ctx, "countries", OutcomeShared)
		}()
	}
	wg.Wait()

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "cache.lookups", attribute.String("cache.name", "countries")); got != 50 {
		t.Errorf("lookups = %d, want 50", got)
	}
}

func TestNopMetrics_NoPanic(t *testing.T) {
	m := NopMetrics()
	ctx := context.Background()
	m.RecordLookup(ctx, "x", OutcomeHit)
	m.RecordCompute(ctx, "x", time.Second, errors.New("boom"))
	m.RecordStoreError(ctx, "x", "claim")
	m.RecordOrigin(ctx, OriginCall{}, time.Second, nil)
}
