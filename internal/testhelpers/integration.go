//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-location-sync/internal/cache"
	"github.com/kjstillabower/weather-location-sync/internal/client"
	"github.com/kjstillabower/weather-location-sync/internal/kvstore"
	"github.com/kjstillabower/weather-location-sync/internal/location"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIURL         string
	StorageBackend string // "in_memory", "memcached" or "redis"
	MemcachedAddr  string
	RedisAddr      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_URL is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		t.Skip("WEATHER_API_URL not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return IntegrationTestConfig{
		APIURL:         apiURL,
		StorageBackend: os.Getenv("INTEGRATION_STORAGE_BACKEND"),
		MemcachedAddr:  memcachedAddr,
		RedisAddr:      redisAddr,
	}
}

// IntegrationStack is a WeatherSync wired to the live API and the selected backend.
type IntegrationStack struct {
	Sync      *service.WeatherSync
	Locations *location.Store
	Cache     *cache.WeatherCache
	Store     kvstore.Store
}

// SetupIntegrationSync builds the stack. A networked backend that does not
// answer a ping falls back to in-memory storage. The store is cleared and
// closed when the test ends.
func SetupIntegrationSync(t *testing.T, cfg IntegrationTestConfig) IntegrationStack {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	wc, err := client.New(client.Config{BaseURL: cfg.APIURL, Timeout: 10 * time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	kv := integrationStore(t, cfg)
	locs := location.NewStore(kv, logger)
	wcache := cache.New(5*time.Minute, cache.WithStore(kv), cache.WithLogger(logger))
	ws := service.NewWeatherSync(service.Deps{
		Weather:   wc,
		Locations: locs,
		Cache:     wcache,
		Logger:    logger,
	}, service.Options{})

	return IntegrationStack{Sync: ws, Locations: locs, Cache: wcache, Store: kv}
}

type pingCloser interface {
	kvstore.Store
	Ping(ctx context.Context) error
	Close() error
}

func integrationStore(t *testing.T, cfg IntegrationTestConfig) kvstore.Store {
	t.Helper()
	var s pingCloser
	switch cfg.StorageBackend {
	case "memcached":
		s = kvstore.NewMemcachedStore(cfg.MemcachedAddr, "wls-it:", 500*time.Millisecond, 2)
	case "redis":
		s = kvstore.NewRedisStore(kvstore.RedisOptions{Addr: cfg.RedisAddr, Prefix: "wls-it:"})
	default:
		return kvstore.NewInMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Logf("%s not available (%v), using in-memory store", cfg.StorageBackend, err)
		_ = s.Close()
		return kvstore.NewInMemoryStore()
	}
	t.Logf("Using %s store", cfg.StorageBackend)
	t.Cleanup(func() {
		_ = s.Clear(context.Background())
		_ = s.Close()
	})
	return s
}
