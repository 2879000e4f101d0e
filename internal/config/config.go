package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"weatherweb/internal/validation"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	GeocodeAPIURL     string
	GeocodeAPITimeout time.Duration

	ForecastAPIURL     string
	ForecastAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheTTL     time.Duration
	CacheBackend string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	DefaultUnits string

	RateLimitRPS    int
	RateLimitBurst  int
	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	WarmCache     bool
	WarmLocations []string
	WarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	GeocodeAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"geocode_api"`

	ForecastAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"forecast_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Units struct {
		Default string `yaml:"default"`
	} `yaml:"units"`

	Reliability struct {
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		CoalesceEnabled *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Warming struct {
		Enabled   bool     `yaml:"enabled"`
		Locations []string `yaml:"locations"`
		Interval  string   `yaml:"interval"`
	} `yaml:"warming"`
}

// Load reads configuration from <dir>/{ENV_NAME}.yaml (default dev). An
// empty dir means "config" under the working directory. Backend and
// memcached addrs may be overridden via CACHE_BACKEND and MEMCACHED_ADDRS.
func Load(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: get working directory: %w", err)
		}
		dir = filepath.Join(cwd, "config")
	}

	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.GeocodeAPIURL = fc.GeocodeAPI.URL
	if cfg.GeocodeAPIURL == "" {
		cfg.GeocodeAPIURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	cfg.GeocodeAPITimeout = parseDuration(fc.GeocodeAPI.Timeout, 2*time.Second)

	cfg.ForecastAPIURL = fc.ForecastAPI.URL
	if cfg.ForecastAPIURL == "" {
		cfg.ForecastAPIURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.ForecastAPITimeout = parseDuration(fc.ForecastAPI.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.DefaultUnits = strings.TrimSpace(fc.Units.Default)
	if cfg.DefaultUnits == "" {
		cfg.DefaultUnits = "metric"
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CoalesceEnabled = true
	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 10*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.WarmCache = fc.Warming.Enabled
	cfg.WarmLocations = fc.Warming.Locations
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. Ensures upstream timeouts are
// positive, RequestTimeout exceeds both, the cache backend is known, and
// configured warm locations are plausible city names.
func validate(cfg *Config) error {
	if cfg.GeocodeAPITimeout <= 0 || cfg.ForecastAPITimeout <= 0 {
		return fmt.Errorf("upstream timeouts must be positive")
	}
	upstream := cfg.GeocodeAPITimeout + cfg.ForecastAPITimeout
	if cfg.RequestTimeout <= upstream {
		cfg.RequestTimeout = upstream + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	for _, loc := range cfg.WarmLocations {
		if _, err := validation.ValidateLocation(loc, 2, 100); err != nil {
			return fmt.Errorf("warming.locations entry %q: %w", loc, err)
		}
	}
	return nil
}
