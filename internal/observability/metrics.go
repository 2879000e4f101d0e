package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Geocoding API call rate by status. Watch for: error vs success ratio.
	GeocodeCallsTotal *prometheus.CounterVec

	// Geocoding API latency per call.
	GeocodeDuration *prometheus.HistogramVec

	// Forecast API call rate by status. Misses = this minus coalesced waits.
	ForecastCallsTotal *prometheus.CounterVec

	// Forecast API latency per call. Watch for: p95 > 2s (upstream degradation).
	ForecastDuration *prometheus.HistogramVec

	// Cache hits. Hit rate = hits/(hits+forecastApiCalls).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Page renders by outcome (ok, no_query, not_found, fetch_failed).
	PageRendersTotal *prometheus.CounterVec

	// Concurrent misses for the same forecast key. >1 means requests raced.
	CacheStampedeConcurrency prometheus.Histogram

	// Time callers spent waiting on a coalesced upstream fetch.
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Cache warming runs, failures, and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	GeocodeCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocodeApiCallsTotal",
			Help: "Total number of geocoding API calls",
		},
		[]string{"status"},
	)
	GeocodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocodeApiDurationSeconds",
			Help:    "Geocoding API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	ForecastCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastApiCallsTotal",
			Help: "Total number of forecast API calls",
		},
		[]string{"status"},
	)
	ForecastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastApiDurationSeconds",
			Help:    "Forecast API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits. Hit rate = hits/(hits+forecastApiCallsTotal).",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	PageRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageRendersTotal",
			Help: "Weather page renders by outcome",
		},
		[]string{"outcome"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent cache misses observed for the same forecast key",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50},
		},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced upstream fetch",
			Buckets: prometheus.DefBuckets,
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that had at least one failure",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of cache warming runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		GeocodeCallsTotal, GeocodeDuration,
		ForecastCallsTotal, ForecastDuration,
		CacheHitsTotal, CacheErrorsTotal,
		PageRendersTotal,
		CacheStampedeConcurrency, RequestCoalescingWaitSeconds,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
