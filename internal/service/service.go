package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"weatherweb/internal/cache"
	"weatherweb/internal/forecast"
	"weatherweb/internal/models"
	"weatherweb/internal/observability"
)

// ForecastService memoizes forecast fetches using the cache-aside pattern.
// Entries are keyed by the exact (latitude, longitude, units) tuple.
type ForecastService struct {
	fetcher         forecast.Fetcher
	cache           cache.Cache
	ttl             time.Duration
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // Optional request coalescing (nil if disabled)
}

// NewForecastService creates a ForecastService. ttl is the memoization
// window; within it, repeated calls with identical arguments return the
// cached payload without an outbound call. coalesceEnabled and
// coalesceTimeout configure request coalescing (disabled if timeout 0).
func NewForecastService(fetcher forecast.Fetcher, cache cache.Cache, ttl time.Duration, coalesceEnabled bool, coalesceTimeout time.Duration) *ForecastService {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &ForecastService{
		fetcher:         fetcher,
		cache:           cache,
		ttl:             ttl,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Forecast returns the forecast for the tuple, serving from cache within the
// memoization window and fetching upstream on a miss. Concurrent misses on
// the same key share one outbound call when coalescing is enabled
// (at-least-once per window, not exactly-once). Cache write failures are
// logged and never surfaced to the caller.
func (s *ForecastService) Forecast(ctx context.Context, lat, lon float64, units string) (models.Forecast, error) {
	key := cache.Key(lat, lon, units)
	start := time.Now()
	logger := loggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("forecast").Inc()
		if logger != nil {
			logger.Debug("forecast served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordHit(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeConcurrency.Observe(float64(concurrentMisses))
	}

	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	}

	var data models.Forecast
	var upstreamErr error
	if s.coalescer != nil {
		coalesceStart := time.Now()
		data, upstreamErr = s.coalescer.GetOrDo(ctx, key, func() (models.Forecast, error) {
			return s.fetcher.Fetch(ctx, lat, lon, units)
		})
		if upstreamErr == nil {
			observability.RequestCoalescingWaitSeconds.Observe(time.Since(coalesceStart).Seconds())
		}
	} else {
		data, upstreamErr = s.fetcher.Fetch(ctx, lat, lon, units)
	}
	if upstreamErr != nil {
		return models.Forecast{}, fmt.Errorf("fetch forecast for %s: %w", key, upstreamErr)
	}

	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	if logger != nil {
		logger.Debug("forecast served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return data, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
