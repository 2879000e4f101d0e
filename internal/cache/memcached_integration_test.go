//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"

	"weatherweb/internal/models"
)

// TestMemcachedCache_GetSet_Integration verifies that MemcachedCache stores
// and retrieves forecasts when a memcached server is available.
func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := Key(48.85, 2.35, "metric")
	val := models.Forecast{
		Timezone:       "Europe/Paris",
		LocationName:   "Paris, Ile-de-France",
		CurrentWeather: models.CurrentWeather{Temperature: 12.3, WeatherCode: 2},
	}
	if err := c.Set(ctx, key, val, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Timezone != val.Timezone || got.CurrentWeather.Temperature != val.CurrentWeather.Temperature {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestMemcachedCache_Get_Miss_Integration verifies ok=false for absent keys.
func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	_, ok, err := c.Get(ctx, Key(0, 0, "nonexistent"))
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
