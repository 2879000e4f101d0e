package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"weatherweb/internal/cache"
	"weatherweb/internal/models"
)

type mockFetcher struct {
	mu      sync.Mutex
	calls   int
	result  models.Forecast
	err     error
	delay   time.Duration
	lastLat float64
	lastLon float64
	lastU   string
}

func (m *mockFetcher) Fetch(ctx context.Context, lat, lon float64, units string) (models.Forecast, error) {
	m.mu.Lock()
	m.calls++
	m.lastLat, m.lastLon, m.lastU = lat, lon, units
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return models.Forecast{}, ctx.Err()
		}
	}
	return m.result, m.err
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type erroringCache struct{}

func (erroringCache) Get(ctx context.Context, key string) (models.Forecast, bool, error) {
	return models.Forecast{}, false, errors.New("connection refused")
}

func (erroringCache) Set(ctx context.Context, key string, value models.Forecast, ttl time.Duration) error {
	return errors.New("connection refused")
}

// TestForecastService_Memoizes verifies that two calls with identical
// (lat, lon, units) within the TTL window trigger only one outbound call.
func TestForecastService_Memoizes(t *testing.T) {
	fetcher := &mockFetcher{result: models.Forecast{Timezone: "Europe/Paris"}}
	svc := NewForecastService(fetcher, cache.NewInMemoryCache(), 5*time.Minute, false, 0)

	ctx := context.Background()
	first, err := svc.Forecast(ctx, 48.85, 2.35, "metric")
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	second, err := svc.Forecast(ctx, 48.85, 2.35, "metric")
	if err != nil {
		t.Fatalf("Forecast() second call error = %v", err)
	}

	if fetcher.callCount() != 1 {
		t.Errorf("outbound calls = %d, want 1 (second call should be cached)", fetcher.callCount())
	}
	if first.Timezone != second.Timezone {
		t.Errorf("cached payload differs: %+v vs %+v", first, second)
	}
}

// TestForecastService_DistinctTuples verifies a different units value is a
// different cache key and triggers its own outbound call.
func TestForecastService_DistinctTuples(t *testing.T) {
	fetcher := &mockFetcher{result: models.Forecast{Timezone: "Europe/Paris"}}
	svc := NewForecastService(fetcher, cache.NewInMemoryCache(), 5*time.Minute, false, 0)

	ctx := context.Background()
	if _, err := svc.Forecast(ctx, 48.85, 2.35, "metric"); err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if _, err := svc.Forecast(ctx, 48.85, 2.35, "fahrenheit"); err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("outbound calls = %d, want 2 (units is part of the key)", fetcher.callCount())
	}
	if fetcher.lastU != "fahrenheit" {
		t.Errorf("units forwarded = %q, want %q", fetcher.lastU, "fahrenheit")
	}
}

// TestForecastService_RefetchesAfterExpiry verifies a fresh outbound call
// after the memoization window elapses, using an injected clock.
func TestForecastService_RefetchesAfterExpiry(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	fetcher := &mockFetcher{result: models.Forecast{Timezone: "Europe/Paris"}}
	svc := NewForecastService(fetcher, cache.NewInMemoryCacheWithClock(clock), 5*time.Minute, false, 0)

	ctx := context.Background()
	if _, err := svc.Forecast(ctx, 48.85, 2.35, "metric"); err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	advance(6 * time.Minute)
	if _, err := svc.Forecast(ctx, 48.85, 2.35, "metric"); err != nil {
		t.Fatalf("Forecast() after expiry error = %v", err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("outbound calls = %d, want 2 (expired entry must be refetched)", fetcher.callCount())
	}
}

// TestForecastService_UpstreamError verifies the fetch error is wrapped and
// returned when the cache misses and upstream fails.
func TestForecastService_UpstreamError(t *testing.T) {
	wantErr := errors.New("upstream down")
	fetcher := &mockFetcher{err: wantErr}
	svc := NewForecastService(fetcher, cache.NewInMemoryCache(), 5*time.Minute, false, 0)

	_, err := svc.Forecast(context.Background(), 48.85, 2.35, "metric")
	if !errors.Is(err, wantErr) {
		t.Errorf("Forecast() error = %v, want wrapped %v", err, wantErr)
	}
}

// TestForecastService_CacheErrorsNonFatal verifies cache backend failures on
// both Get and Set degrade to an upstream fetch rather than an error.
func TestForecastService_CacheErrorsNonFatal(t *testing.T) {
	fetcher := &mockFetcher{result: models.Forecast{Timezone: "Europe/Paris"}}
	svc := NewForecastService(fetcher, erroringCache{}, 5*time.Minute, false, 0)

	got, err := svc.Forecast(context.Background(), 48.85, 2.35, "metric")
	if err != nil {
		t.Fatalf("Forecast() error = %v, want nil despite cache errors", err)
	}
	if got.Timezone != "Europe/Paris" {
		t.Errorf("Forecast() = %+v, want upstream payload", got)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("outbound calls = %d, want 1", fetcher.callCount())
	}
}

// TestStampedeTracker verifies concurrent miss counting and cleanup.
func TestStampedeTracker(t *testing.T) {
	st := newStampedeTracker()

	if got := st.RecordMiss("k"); got != 1 {
		t.Errorf("RecordMiss() = %d, want 1", got)
	}
	if got := st.RecordMiss("k"); got != 2 {
		t.Errorf("RecordMiss() second = %d, want 2", got)
	}
	st.RecordHit("k")
	st.RecordHit("k")
	if got := st.RecordMiss("k"); got != 1 {
		t.Errorf("RecordMiss() after hits = %d, want 1 (counter should reset)", got)
	}
}
