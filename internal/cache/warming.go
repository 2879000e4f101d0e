package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"weatherweb/internal/models"
	"weatherweb/internal/observability"
)

// CityResolver geocodes a free-text city name. Implemented by the geocode
// client; declared here to avoid a circular dependency.
type CityResolver interface {
	Resolve(ctx context.Context, cityName string) (models.Location, error)
}

// ForecastFetcher fetches a forecast through the caching service layer.
type ForecastFetcher interface {
	Forecast(ctx context.Context, lat, lon float64, units string) (models.Forecast, error)
}

// CacheWarmer primes the forecast cache for a list of city names by
// geocoding each one and fetching through the service layer.
type CacheWarmer struct {
	resolver CityResolver
	fetcher  ForecastFetcher
	units    string
	logger   *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer. units is the temperature unit used
// for warmed entries (normally the configured default).
func NewCacheWarmer(resolver CityResolver, fetcher ForecastFetcher, units string, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{resolver: resolver, fetcher: fetcher, units: units, logger: logger}
}

// Warm geocodes and fetches each city concurrently, populating the cache via
// the fetcher. Returns an error if any city failed (aggregated).
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming forecast cache", zap.Int("cities", len(cities)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			loc, err := w.resolver.Resolve(ctx, city)
			if err != nil {
				errCh <- fmt.Errorf("warm %s: geocode: %w", city, err)
				return
			}
			if _, err := w.fetcher.Forecast(ctx, loc.Latitude, loc.Longitude, w.units); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("cities", len(cities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	if err := w.Warm(ctx, cities); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
