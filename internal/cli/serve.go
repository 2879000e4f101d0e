package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"weatherweb/internal/cache"
	"weatherweb/internal/config"
	"weatherweb/internal/forecast"
	"weatherweb/internal/geocode"
	httphandler "weatherweb/internal/http"
	"weatherweb/internal/lifecycle"
	"weatherweb/internal/observability"
	"weatherweb/internal/service"
	"weatherweb/internal/view"
)

func newServeCommand() *cobra.Command {
	var (
		configDir string
		port      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the weather web server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configDir, port)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory containing <ENV_NAME>.yaml (default: ./config)")
	cmd.Flags().StringVar(&port, "port", "", "Listen port, overriding the configured server.port")
	return cmd
}

func runServe(ctx context.Context, configDir, portOverride string) error {
	logger, err := observability.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(configDir)
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}
	if portOverride != "" {
		cfg.ServerPort = portOverride
	}

	geocoder, err := geocode.NewClient(cfg.GeocodeAPIURL, cfg.GeocodeAPITimeout, logger)
	if err != nil {
		logger.Error("geocode client", zap.Error(err))
		return err
	}
	fetcher, err := forecast.NewClient(cfg.ForecastAPIURL, cfg.ForecastAPITimeout, logger)
	if err != nil {
		logger.Error("forecast client", zap.Error(err))
		return err
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Error("memcached cache", zap.Error(err))
			return err
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	forecasts := service.NewForecastService(fetcher, cacheSvc, cfg.CacheTTL, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	healthConfig := &httphandler.HealthConfig{StartTime: time.Now()}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	handler, err := httphandler.NewHandler(geocoder, forecasts, view.Helpers{}, healthConfig, logger, cfg.DefaultUnits)
	if err != nil {
		logger.Error("handler", zap.Error(err))
		return err
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	if cfg.WarmCache && len(cfg.WarmLocations) > 0 {
		warmer := cache.NewCacheWarmer(geocoder, forecasts, cfg.DefaultUnits, logger)
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(ctx, cfg.WarmLocations, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	pageRouter := router.PathPrefix("/").Subrouter()
	pageRouter.Use(httphandler.RateLimitMiddleware(limiter))
	pageRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	pageRouter.HandleFunc("/", handler.GetIndex).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		logger.Error("server", zap.Error(err))
		return err
	case <-sigCtx.Done():
	}

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}
