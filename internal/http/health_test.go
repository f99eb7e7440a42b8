package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-location-sync/internal/circuitbreaker"
	"github.com/kjstillabower/weather-location-sync/internal/lifecycle"
	"github.com/kjstillabower/weather-location-sync/internal/traffic"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

func getHealth(t *testing.T, h *healthReporter) (int, healthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp healthResponse
	decodeBody(t, w, &resp)
	return w.Code, resp
}

func openBreaker(t *testing.T) *circuitbreaker.CircuitBreaker {
	t.Helper()
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour, Component: "weather_api"})
	_ = cb.Call(context.Background(), func() error { return errors.New("boom") })
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}
	return cb
}

func TestHealth_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		cfg        HealthConfig
		ready      bool
		draining   bool
		errs, oks  int
		wantStatus string
		wantCode   int
		wantCheck  map[string]string
	}{
		{name: "starting", wantStatus: "starting", wantCode: 503},
		{name: "healthy", ready: true, wantStatus: "healthy", wantCode: 200},
		{name: "draining wins over ready", ready: true, draining: true, wantStatus: "shutting-down", wantCode: 503},
		{
			name:       "storage unreachable",
			cfg:        HealthConfig{StoragePing: func(context.Context) error { return errors.New("dial tcp: refused") }},
			ready:      true,
			wantStatus: "degraded",
			wantCode:   503,
			wantCheck:  map[string]string{"storage": "unhealthy"},
		},
		{
			name:       "error rate breach",
			cfg:        HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50},
			ready:      true,
			errs:       3,
			oks:        2,
			wantStatus: "degraded",
			wantCode:   503,
			wantCheck:  map[string]string{"weatherApi": "unhealthy"},
		},
		{
			name:       "error rate under threshold",
			cfg:        HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50},
			ready:      true,
			errs:       1,
			oks:        3,
			wantStatus: "healthy",
			wantCode:   200,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lifecycle.Reset()
			traffic.Reset()
			t.Cleanup(func() {
				lifecycle.Reset()
				traffic.Reset()
			})
			if tt.ready {
				lifecycle.MarkReady()
			}
			lifecycle.SetDraining(tt.draining)
			for i := 0; i < tt.errs; i++ {
				traffic.RecordError()
			}
			for i := 0; i < tt.oks; i++ {
				traffic.RecordSuccess()
			}

			code, resp := getHealth(t, newHealthReporter(tt.cfg, nil))
			if code != tt.wantCode || resp.Status != tt.wantStatus {
				t.Errorf("health = %d %q, want %d %q", code, resp.Status, tt.wantCode, tt.wantStatus)
			}
			if resp.Service != serviceName {
				t.Errorf("service = %q", resp.Service)
			}
			for k, v := range tt.wantCheck {
				if resp.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, resp.Checks[k], v)
				}
			}
		})
	}
}

func TestHealth_BreakerOpen(t *testing.T) {
	lifecycle.Reset()
	t.Cleanup(lifecycle.Reset)
	lifecycle.MarkReady()

	code, resp := getHealth(t, newHealthReporter(HealthConfig{Breaker: openBreaker(t)}, nil))
	if code != http.StatusServiceUnavailable || resp.Status != "degraded" {
		t.Errorf("health = %d %q, want 503 degraded", code, resp.Status)
	}
}

func TestHealth_LogsTransitions(t *testing.T) {
	lifecycle.Reset()
	t.Cleanup(lifecycle.Reset)
	core, logs := observer.New(zapcore.InfoLevel)
	h := newHealthReporter(HealthConfig{}, zap.New(core))

	getHealth(t, h)
	getHealth(t, h)
	lifecycle.MarkReady()
	getHealth(t, h)
	lifecycle.SetDraining(true)
	getHealth(t, h)

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 2 {
		t.Fatalf("transition logs = %d, want 2", len(entries))
	}
	first := entries[0].ContextMap()
	if first["previous_status"] != "starting" || first["current_status"] != "healthy" {
		t.Errorf("first transition = %v", first)
	}
	second := entries[1].ContextMap()
	if second["current_status"] != "shutting-down" || second["reason"] != "signal" {
		t.Errorf("second transition = %v", second)
	}
}
