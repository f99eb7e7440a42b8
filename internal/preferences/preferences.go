// Package preferences persists user settings that are not locations.
package preferences

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/kvstore"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

// KeyAlertSeverity stores the minimum alert severity the user wants to see.
const KeyAlertSeverity = "alert_severity_setting"

// Store reads and writes preferences through a kvstore.Store.
type Store struct {
	kv     kvstore.Store
	logger *zap.Logger
}

// NewStore returns a preferences Store.
func NewStore(kv kvstore.Store, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: observability.OrNop(logger)}
}

// AlertSeverity returns the stored threshold, defaulting to minor when unset
// or unrecognized.
func (s *Store) AlertSeverity(ctx context.Context) (models.Severity, error) {
	raw, ok, err := s.kv.Get(ctx, KeyAlertSeverity)
	if err != nil {
		observability.StorageErrorsTotal.WithLabelValues("get").Inc()
		return models.SeverityMinor, &apperr.StorageError{Op: "get", Key: KeyAlertSeverity, Err: err}
	}
	if !ok {
		return models.SeverityMinor, nil
	}
	sev, known := models.ParseSeverity(raw)
	if !known {
		s.logger.Warn("unknown alert severity setting, using minor", zap.String("value", raw))
	}
	return sev, nil
}

// SetAlertSeverity validates and stores value.
func (s *Store) SetAlertSeverity(ctx context.Context, value string) (models.Severity, error) {
	sev, ok := models.ParseSeverity(value)
	if !ok {
		return models.SeverityMinor, fmt.Errorf("%w: severity must be one of minor, moderate, severe, extreme", apperr.ErrInvalidInput)
	}
	if err := s.kv.Set(ctx, KeyAlertSeverity, sev.String()); err != nil {
		observability.StorageErrorsTotal.WithLabelValues("set").Inc()
		return models.SeverityMinor, &apperr.StorageError{Op: "set", Key: KeyAlertSeverity, Err: err}
	}
	return sev, nil
}
