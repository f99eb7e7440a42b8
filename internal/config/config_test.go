package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "http://weather.test/api"
  timeout: "2s"
cache:
  ttl: "10m"
`

// clearEnv unsets every variable Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV_NAME", "PORT", "WEATHER_API_URL", "GEOAPIFY_API_KEY", "STORAGE_BACKEND",
		"MEMCACHED_ADDRS", "REDIS_ADDR", "REDIS_PASSWORD", "GPS_LAT", "GPS_LON",
	} {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config", "secrets.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadDir_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	checks := []struct {
		name      string
		got, want interface{}
	}{
		{"Env", cfg.Env, "dev"},
		{"WeatherAPIURL", cfg.WeatherAPIURL, "http://weather.test/api"},
		{"WeatherAPILang", cfg.WeatherAPILang, "vi"},
		{"CacheTTL", cfg.CacheTTL, 10 * time.Minute},
		{"StorageBackend", cfg.StorageBackend, BackendInMemory},
		{"SearchDebounce", cfg.SearchDebounce, 500 * time.Millisecond},
		{"RefreshInterval", cfg.RefreshInterval, 10 * time.Minute},
		{"RefreshEnabled", cfg.RefreshEnabled, true},
		{"CircuitBreakerEnabled", cfg.CircuitBreakerEnabled, true},
		{"ForecastDays", cfg.ForecastDays, 7},
		{"GeoapifyLimit", cfg.GeoapifyLimit, 10},
		{"DefaultLocation", cfg.DefaultLocation.Name, "Hà Nội"},
		{"GeoapifyAPIKey", cfg.GeoapifyAPIKey, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		t.Errorf("RequestTimeout %v should exceed WeatherAPITimeout %v", cfg.RequestTimeout, cfg.WeatherAPITimeout)
	}
	if cfg.GPS != nil {
		t.Errorf("GPS = %+v, want nil", cfg.GPS)
	}
}

func TestLoadDir_SecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "geoapify_api_key: key-from-secrets-file\nredis_password: hunter2\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.GeoapifyAPIKey != "key-from-secrets-file" || cfg.RedisPassword != "hunter2" {
		t.Errorf("secrets = %q, %q", cfg.GeoapifyAPIKey, cfg.RedisPassword)
	}
}

func TestLoadDir_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+"storage:\n  backend: memcached\n")
	writeSecretsFile(t, dir, "geoapify_api_key: from-file\n")

	t.Setenv("GEOAPIFY_API_KEY", "from-env")
	t.Setenv("STORAGE_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "redis.test:6380")
	t.Setenv("WEATHER_API_URL", "http://override.test/api")
	t.Setenv("GPS_LAT", "10.8231")
	t.Setenv("GPS_LON", "106.6297")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.GeoapifyAPIKey != "from-env" {
		t.Errorf("GeoapifyAPIKey = %q, env should win", cfg.GeoapifyAPIKey)
	}
	if cfg.StorageBackend != BackendRedis || cfg.RedisAddr != "redis.test:6380" {
		t.Errorf("storage = %q at %q", cfg.StorageBackend, cfg.RedisAddr)
	}
	if cfg.WeatherAPIURL != "http://override.test/api" {
		t.Errorf("WeatherAPIURL = %q", cfg.WeatherAPIURL)
	}
	if cfg.GPS == nil || cfg.GPS.Lat != 10.8231 || cfg.GPS.Lon != 106.6297 {
		t.Errorf("GPS = %+v", cfg.GPS)
	}
}

func TestLoadDir_DotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GEOAPIFY_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.GeoapifyAPIKey != "from-dotenv" {
		t.Errorf("GeoapifyAPIKey = %q, want value from .env", cfg.GeoapifyAPIKey)
	}
}

func TestLoadDir_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := LoadDir(t.TempDir())
	if err == nil {
		t.Fatal("LoadDir() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("LoadDir() error = %v", err)
	}
}

func TestLoadDir_CacheTTL(t *testing.T) {
	tests := []struct {
		name    string
		ttl     string
		want    time.Duration
		wantErr bool
	}{
		{"default on empty", `""`, 10 * time.Minute, false},
		{"default on invalid", `"soon"`, 10 * time.Minute, false},
		{"minimum accepted", `"1s"`, time.Second, false},
		{"ten milliseconds rejected", `"10ms"`, 0, true},
		{"zero rejected", `"0s"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, "weather_api:\n  timeout: \"2s\"\ncache:\n  ttl: "+tt.ttl+"\n")

			cfg, err := LoadDir(dir)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "cache.ttl") {
					t.Errorf("LoadDir() error = %v, want cache.ttl error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadDir() error = %v", err)
			}
			if cfg.CacheTTL != tt.want {
				t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, tt.want)
			}
		})
	}
}

func TestLoadDir_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"zero weather timeout", "weather_api:\n  timeout: \"0s\"\n", "weather_api.timeout"},
		{"unknown backend", "storage:\n  backend: etcd\n", "storage.backend"},
		{"default without name", "locations:\n  default:\n    lat: 1\n    lon: 2\n", "locations.default.name"},
		{"error pct over 100", "lifecycle:\n  degraded_error_pct: 150\n", "degraded_error_pct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)

			_, err := LoadDir(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadDir() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadDir_BadGPSEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Setenv("GPS_LAT", "north")
	t.Setenv("GPS_LON", "1")

	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "GPS_LAT") {
		t.Errorf("LoadDir() error = %v", err)
	}
}

func TestLoad_RepoDevConfig(t *testing.T) {
	clearEnv(t)
	root := findProjectRoot(t)

	cfg, err := LoadDir(root)
	if err != nil {
		t.Fatalf("LoadDir(repo) error = %v", err)
	}
	if cfg.CacheTTL < MinCacheTTL {
		t.Errorf("repo dev.yaml CacheTTL = %v", cfg.CacheTTL)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found")
		}
		dir = parent
	}
}
