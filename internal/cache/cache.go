package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"weatherweb/internal/models"
)

// Cache defines the interface for forecast caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Forecast, bool, error)
	Set(ctx context.Context, key string, value models.Forecast, ttl time.Duration) error
}

// Key builds the composite cache key from the exact (latitude, longitude,
// units) argument tuple. Full float precision so distinct coordinates never
// collide.
func Key(lat, lon float64, units string) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ":" +
		strconv.FormatFloat(lon, 'f', -1, 64) + ":" + units
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Safe for concurrent use; expired entries are removed on access. The clock
// is injected so expiry is testable without sleeping. Unbounded size, no LRU.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	now  func() time.Time
}

// cacheEntry stores a cached forecast with its expiration timestamp.
type cacheEntry struct {
	value     models.Forecast
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache using the wall clock.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(time.Now)
}

// NewInMemoryCacheWithClock creates an in-memory cache with an injected
// clock. Tests pass a fake clock to exercise expiry deterministically.
func NewInMemoryCacheWithClock(now func() time.Time) *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  now,
	}
}

// Get retrieves the cached forecast for the key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Forecast, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.Forecast{}, false, nil
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.data[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return models.Forecast{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores a forecast with the specified TTL. The entry expires after TTL
// elapses and is removed on the next Get.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Forecast, ttl time.Duration) error {
	c.mu.Lock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}
