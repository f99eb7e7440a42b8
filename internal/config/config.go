// Package config loads service configuration from config/{ENV_NAME}.yaml,
// config/secrets.yaml, an optional .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinCacheTTL is the smallest accepted weather cache TTL.
const MinCacheTTL = time.Second

// Storage backends.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Location is a configured place (the bootstrap default).
type Location struct {
	PlaceID string  `yaml:"place_id"`
	Name    string  `yaml:"name"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	Env        string
	ServerPort string

	WeatherAPIURL     string
	WeatherAPILang    string
	WeatherAPITimeout time.Duration
	ForecastDays      int

	GeoapifyURL     string
	GeoapifyAPIKey  string
	GeoapifyLimit   int
	GeoapifyTimeout time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration

	StorageBackend        string
	StoragePrefix         string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	SearchDebounce  time.Duration
	RefreshInterval time.Duration
	RefreshEnabled  bool

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DefaultLocation Location
	GPS             *Location
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL          string `yaml:"url"`
		Lang         string `yaml:"lang"`
		Timeout      string `yaml:"timeout"`
		ForecastDays int    `yaml:"forecast_days"`
	} `yaml:"weather_api"`

	Geoapify struct {
		URL     string `yaml:"url"`
		Limit   int    `yaml:"limit"`
		Timeout string `yaml:"timeout"`
	} `yaml:"geoapify"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`

	Storage struct {
		Backend   string `yaml:"backend"`
		Prefix    string `yaml:"prefix"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Reliability struct {
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Search struct {
		Debounce string `yaml:"debounce"`
	} `yaml:"search"`

	Refresh struct {
		Enabled  *bool  `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"refresh"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Locations struct {
		Default *Location `yaml:"default"`
		GPS     *Location `yaml:"gps"`
	} `yaml:"locations"`
}

type secretsFile struct {
	GeoapifyAPIKey string `yaml:"geoapify_api_key"`
	RedisPassword  string `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml relative to the working directory. A .env file there is
// loaded first without overriding variables already set. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir is Load rooted at dir.
func LoadDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
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

	var sec secretsFile
	secretsPath := filepath.Join(dir, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err == nil {
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	cfg := &Config{Env: env}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, "http://localhost:8000/api")
	cfg.WeatherAPILang = firstNonEmpty(fc.WeatherAPI.Lang, "vi")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.ForecastDays = fc.WeatherAPI.ForecastDays
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 7
	}

	cfg.GeoapifyURL = firstNonEmpty(fc.Geoapify.URL, "https://api.geoapify.com/v1")
	cfg.GeoapifyAPIKey = firstNonEmpty(os.Getenv("GEOAPIFY_API_KEY"), sec.GeoapifyAPIKey)
	cfg.GeoapifyLimit = fc.Geoapify.Limit
	if cfg.GeoapifyLimit <= 0 {
		cfg.GeoapifyLimit = 10
	}
	cfg.GeoapifyTimeout = parseDuration(fc.Geoapify.Timeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.CacheTTL = parseDurationOrZero(fc.Cache.TTL, 10*time.Minute)

	cfg.StorageBackend = strings.ToLower(firstNonEmpty(os.Getenv("STORAGE_BACKEND"), fc.Storage.Backend, BackendInMemory))
	cfg.StoragePrefix = firstNonEmpty(fc.Storage.Prefix, "weathersync:")
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Storage.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Storage.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Storage.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Storage.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Storage.Redis.DB

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled == nil || *cb.Enabled
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.SearchDebounce = parseDuration(fc.Search.Debounce, 500*time.Millisecond)
	cfg.RefreshEnabled = fc.Refresh.Enabled == nil || *fc.Refresh.Enabled
	cfg.RefreshInterval = parseDuration(fc.Refresh.Interval, 10*time.Minute)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, time.Minute)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DefaultLocation = Location{PlaceID: "default-hanoi", Name: "Hà Nội", Lat: 21.0285, Lon: 105.8542}
	if d := fc.Locations.Default; d != nil {
		cfg.DefaultLocation = *d
	}
	cfg.GPS = fc.Locations.GPS
	if lat, lon := os.Getenv("GPS_LAT"), os.Getenv("GPS_LON"); lat != "" && lon != "" {
		la, errLat := strconv.ParseFloat(lat, 64)
		lo, errLon := strconv.ParseFloat(lon, 64)
		if errLat != nil || errLon != nil {
			return nil, fmt.Errorf("GPS_LAT/GPS_LON must be numbers, got %q,%q", lat, lon)
		}
		cfg.GPS = &Location{Name: "GPS", Lat: la, Lon: lo}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
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
// Zero or negative durations are returned as-is for validate to reject.
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

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout when needed so a handler outlives its upstream call.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.CacheTTL < MinCacheTTL {
		return fmt.Errorf("cache.ttl must be at least %s, got %s", MinCacheTTL, cfg.CacheTTL)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + 5*time.Second
	}
	switch cfg.StorageBackend {
	case BackendInMemory, BackendMemcached, BackendRedis:
	default:
		return fmt.Errorf("storage.backend must be in_memory, memcached or redis, got %q", cfg.StorageBackend)
	}
	if cfg.DefaultLocation.Name == "" {
		return fmt.Errorf("locations.default.name is required")
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
