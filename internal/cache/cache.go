// Package cache holds the single-slot, TTL-boxed weather cache. Only the most
// recently fetched bundle is retained.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/kvstore"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 10 * time.Minute

// Persisted keys for the cached slot. weather_last_update is the commit
// marker: Put removes it before touching the other keys and writes it last,
// and Restore ignores a slot without it.
const (
	KeyWeatherCache      = "weather_cache"
	KeyWeatherCacheKey   = "weather_cache_key"
	KeyWeatherLastUpdate = "weather_last_update"
)

// Entry is the cached slot.
type Entry struct {
	Key       string
	Bundle    models.WeatherBundle
	FetchedAt time.Time
}

// WeatherCache memoizes one weather bundle. A lookup hits only when the key
// equals the key used at fetch time or the bundle's location name, and the
// entry is younger than the TTL.
type WeatherCache struct {
	mu     sync.RWMutex
	entry  *Entry
	ttl    time.Duration
	now    func() time.Time
	store  kvstore.Store
	logger *zap.Logger
}

// Option configures a WeatherCache.
type Option func(*WeatherCache)

// WithClock sets the time source. Tests use it to simulate expiry.
func WithClock(now func() time.Time) Option {
	return func(c *WeatherCache) { c.now = now }
}

// WithStore enables write-through persistence of the slot.
func WithStore(kv kvstore.Store) Option {
	return func(c *WeatherCache) { c.store = kv }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *WeatherCache) { c.logger = logger }
}

// New returns an empty WeatherCache with the given TTL.
func New(ttl time.Duration, opts ...Option) *WeatherCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &WeatherCache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = observability.OrNop(c.logger)
	return c
}

// TTL returns the configured freshness window.
func (c *WeatherCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached bundle for key if it matches and is fresh.
func (c *WeatherCache) Get(key string) (models.WeatherBundle, bool) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	switch {
	case entry == nil:
		observability.CacheMissesTotal.WithLabelValues("empty").Inc()
		return models.WeatherBundle{}, false
	case key == "" || (key != entry.Key && key != entry.Bundle.Location.Name):
		observability.CacheMissesTotal.WithLabelValues("key").Inc()
		return models.WeatherBundle{}, false
	case c.now().Sub(entry.FetchedAt) >= c.ttl:
		observability.CacheMissesTotal.WithLabelValues("expired").Inc()
		return models.WeatherBundle{}, false
	}
	observability.CacheHitsTotal.WithLabelValues("weather").Inc()
	return entry.Bundle, true
}

// Peek returns the slot regardless of key or freshness.
func (c *WeatherCache) Peek() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Entry{}, false
	}
	return *c.entry, true
}

// Put overwrites the slot with bundle, stamped with the current time. When a
// store is configured the slot is written through; a persistence failure is
// returned as a StorageError but the in-memory slot is still replaced. A write
// that stops part way leaves no persisted slot rather than a mixed one.
func (c *WeatherCache) Put(ctx context.Context, key string, bundle models.WeatherBundle) error {
	fetchedAt := c.now()
	bundle.FetchedAt = fetchedAt

	c.mu.Lock()
	c.entry = &Entry{Key: key, Bundle: bundle, FetchedAt: fetchedAt}
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return &apperr.StorageError{Op: "encode", Key: KeyWeatherCache, Err: err}
	}
	if err := c.store.Remove(ctx, KeyWeatherLastUpdate); err != nil {
		observability.StorageErrorsTotal.WithLabelValues("remove").Inc()
		return &apperr.StorageError{Op: "remove", Key: KeyWeatherLastUpdate, Err: err}
	}
	for _, kv := range []struct{ key, value string }{
		{KeyWeatherCache, string(raw)},
		{KeyWeatherCacheKey, key},
		{KeyWeatherLastUpdate, strconv.FormatInt(fetchedAt.UnixMilli(), 10)},
	} {
		if err := c.store.Set(ctx, kv.key, kv.value); err != nil {
			observability.StorageErrorsTotal.WithLabelValues("set").Inc()
			return &apperr.StorageError{Op: "set", Key: kv.key, Err: err}
		}
	}
	return nil
}

// Restore loads a persisted slot. Missing or malformed data leaves the cache
// empty; only store read failures are returned.
func (c *WeatherCache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	values := make(map[string]string, 3)
	for _, key := range []string{KeyWeatherCache, KeyWeatherCacheKey, KeyWeatherLastUpdate} {
		v, ok, err := c.store.Get(ctx, key)
		if err != nil {
			observability.StorageErrorsTotal.WithLabelValues("get").Inc()
			return &apperr.StorageError{Op: "get", Key: key, Err: err}
		}
		if !ok {
			return nil
		}
		values[key] = v
	}

	var bundle models.WeatherBundle
	if err := json.Unmarshal([]byte(values[KeyWeatherCache]), &bundle); err != nil {
		c.logger.Warn("discarding malformed persisted weather cache", zap.Error(err))
		return nil
	}
	ms, err := strconv.ParseInt(values[KeyWeatherLastUpdate], 10, 64)
	if err != nil {
		c.logger.Warn("discarding persisted weather cache with bad timestamp", zap.String("value", values[KeyWeatherLastUpdate]))
		return nil
	}
	fetchedAt := time.UnixMilli(ms)
	bundle.FetchedAt = fetchedAt

	c.mu.Lock()
	c.entry = &Entry{Key: values[KeyWeatherCacheKey], Bundle: bundle, FetchedAt: fetchedAt}
	c.mu.Unlock()
	c.logger.Info("restored weather cache",
		zap.String("key", values[KeyWeatherCacheKey]),
		zap.Time("fetched_at", fetchedAt))
	return nil
}
