package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/circuitbreaker"
	"github.com/kjstillabower/weather-location-sync/internal/lifecycle"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/traffic"
)

const serviceName = "weather-location-sync"

// HealthConfig holds what the health handler inspects.
type HealthConfig struct {
	// DegradedWindow and DegradedErrorPct set the weather-fetch error rate at
	// which the service reports degraded. Zero disables the check.
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Breaker, when set, reports degraded while open.
	Breaker *circuitbreaker.CircuitBreaker
	// StoragePing, when set, checks the key-value backend.
	StoragePing func(ctx context.Context) error
	StartTime   time.Time
	Version     string
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// healthReporter computes health and logs transitions between statuses.
type healthReporter struct {
	cfg    HealthConfig
	logger *zap.Logger

	mu   sync.Mutex
	prev string
}

func newHealthReporter(cfg HealthConfig, logger *zap.Logger) *healthReporter {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	return &healthReporter{cfg: cfg, logger: observability.OrNop(logger)}
}

// ServeHTTP handles GET /health.
func (h *healthReporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := h.compute(r.Context())

	h.mu.Lock()
	if h.prev != "" && h.prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", h.prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.prev = result.status
	h.mu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   serviceName,
		"version":   h.cfg.Version,
		"uptime":    time.Since(h.cfg.StartTime).Truncate(time.Second).String(),
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// compute evaluates, in order: shutting-down, starting, storage, breaker,
// error rate. The first condition that holds decides the status.
func (h *healthReporter) compute(ctx context.Context) healthResult {
	checks := map[string]string{"storage": "healthy", "weatherApi": "healthy"}

	if lifecycle.IsDraining() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if !lifecycle.IsReady() {
		return healthResult{"starting", http.StatusServiceUnavailable, "bootstrap", checks}
	}
	if h.cfg.StoragePing != nil {
		if err := h.cfg.StoragePing(ctx); err != nil {
			checks["storage"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "storage_unreachable", checks}
		}
	}
	if h.cfg.Breaker != nil && h.cfg.Breaker.State() == circuitbreaker.StateOpen {
		checks["weatherApi"] = "unhealthy"
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open", checks}
	}
	if h.cfg.DegradedWindow > 0 && h.cfg.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.cfg.DegradedErrorPct) {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}
