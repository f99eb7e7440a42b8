package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/client"
	"github.com/kjstillabower/weather-location-sync/internal/location"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/preferences"
)

// AlertFilter narrows the alert query.
type AlertFilter struct {
	Type string
	Area string
}

// AlertsResult is the filtered alert list for the current location.
type AlertsResult struct {
	Location  string                       `json:"location"`
	Threshold string                       `json:"threshold"`
	Alerts    []models.WeatherNotification `json:"alerts"`
}

// AlertService serves weather alerts at or above the user's severity threshold.
type AlertService struct {
	weather   client.WeatherGateway
	locations *location.Store
	prefs     *preferences.Store
	logger    *zap.Logger
}

// NewAlertService wires an AlertService.
func NewAlertService(weather client.WeatherGateway, locations *location.Store, prefs *preferences.Store, logger *zap.Logger) *AlertService {
	return &AlertService{weather: weather, locations: locations, prefs: prefs, logger: observability.OrNop(logger)}
}

// Alerts fetches alerts for the current location and keeps those whose
// severity ranks at least the stored threshold. A threshold that cannot be
// read falls back to minor.
func (s *AlertService) Alerts(ctx context.Context, f AlertFilter) (AlertsResult, error) {
	cur, ok, err := s.locations.Current(ctx)
	if err != nil {
		return AlertsResult{}, err
	}
	if !ok {
		return AlertsResult{}, fmt.Errorf("alerts: current location: %w", apperr.ErrNotFound)
	}

	threshold, err := s.prefs.AlertSeverity(ctx)
	if err != nil {
		observability.LoggerFrom(ctx, s.logger).Warn("reading alert severity failed, using minor", zap.Error(err))
		threshold = models.SeverityMinor
	}

	q := client.NotificationQuery{Location: cur.FetchKey(), Type: f.Type, Area: f.Area}
	if cur.HasCoordinates() {
		q.Lat, q.Lon = cur.Lat, cur.Lon
	}
	all, err := s.weather.Notifications(ctx, q)
	if err != nil {
		return AlertsResult{}, fmt.Errorf("alerts for %s: %w", cur.FetchKey(), err)
	}
	return AlertsResult{
		Location:  cur.DisplayName,
		Threshold: threshold.String(),
		Alerts:    FilterBySeverity(all, threshold),
	}, nil
}

// FilterBySeverity keeps alerts ranked at or above min, preserving order.
// Unknown severities rank as minor.
func FilterBySeverity(alerts []models.WeatherNotification, min models.Severity) []models.WeatherNotification {
	out := make([]models.WeatherNotification, 0, len(alerts))
	for _, a := range alerts {
		if a.Rank() >= min {
			out = append(out, a)
		}
	}
	return out
}
