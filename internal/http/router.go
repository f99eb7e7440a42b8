package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

// RouterConfig holds the cross-cutting settings of the API router.
type RouterConfig struct {
	Health HealthConfig
	// Limiter guards every API route except /health and /metrics. Nil disables it.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter mounts h behind the correlation, metrics, rate-limit and timeout middlewares.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(cfg.Logger))
	router.Use(MetricsMiddleware)
	router.Handle("/health", newHealthReporter(cfg.Health, cfg.Logger)).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}

	api.HandleFunc("/weather", h.GetCurrentWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/{key}", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/outlook", h.GetOutlook).Methods(http.MethodGet)
	api.HandleFunc("/air-quality", h.GetAirQuality).Methods(http.MethodGet)
	api.HandleFunc("/map", h.GetMap).Methods(http.MethodGet)

	api.HandleFunc("/location/current", h.GetCurrentLocation).Methods(http.MethodGet)
	api.HandleFunc("/location/current", h.PutCurrentLocation).Methods(http.MethodPut)
	api.HandleFunc("/locations", h.ListLocations).Methods(http.MethodGet)
	api.HandleFunc("/locations", h.AddLocation).Methods(http.MethodPost)
	api.HandleFunc("/locations/preview", h.PreviewLocation).Methods(http.MethodPost)
	api.HandleFunc("/locations/{id}", h.DeleteLocation).Methods(http.MethodDelete)

	api.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	api.HandleFunc("/alerts", h.GetAlerts).Methods(http.MethodGet)
	api.HandleFunc("/settings/alert-severity", h.GetAlertSeverity).Methods(http.MethodGet)
	api.HandleFunc("/settings/alert-severity", h.PutAlertSeverity).Methods(http.MethodPut)

	api.HandleFunc("/chat/sessions", h.NewChatSession).Methods(http.MethodPost)
	api.HandleFunc("/chat", h.AskChat).Methods(http.MethodPost)
	api.HandleFunc("/chat/history", h.ChatHistory).Methods(http.MethodGet)
	return router
}
