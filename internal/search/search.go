// Package search runs debounced place lookups against the geocoder.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/geocode"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/validation"
)

// Result is the outcome of one search call.
type Result struct {
	Query     string            `json:"query"`
	Locations []models.Location `json:"locations"`
}

// Service validates queries, debounces them per session and forwards the
// survivors to the geocoder.
type Service struct {
	geocoder geocode.Gateway
	debounce *Debouncer
	logger   *zap.Logger
}

// NewService returns a Service with the given quiet period.
func NewService(geocoder geocode.Gateway, quiet time.Duration, logger *zap.Logger) *Service {
	return &Service{
		geocoder: geocoder,
		debounce: NewDebouncer(quiet),
		logger:   observability.OrNop(logger),
	}
}

// Search looks up query for session. Queries shorter than the minimum return
// no results without a lookup, and like any other keystroke they cancel the
// session's pending lookup. A call replaced by a newer one for the same
// session within the quiet period returns ErrSuperseded.
func (s *Service) Search(ctx context.Context, session, query string) (Result, error) {
	q, err := validation.ValidateQuery(query, validation.MinQueryRunes, validation.MaxQueryRunes)
	switch {
	case errors.Is(err, validation.ErrQueryEmpty), errors.Is(err, validation.ErrQueryTooShort):
		s.debounce.Cancel(session)
		observability.SearchRequestsTotal.WithLabelValues("skipped").Inc()
		return Result{Query: q, Locations: []models.Location{}}, nil
	case err != nil:
		s.debounce.Cancel(session)
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}

	if err := s.debounce.Wait(ctx, session); err != nil {
		if errors.Is(err, apperr.ErrSuperseded) {
			observability.SearchRequestsTotal.WithLabelValues("superseded").Inc()
		}
		return Result{}, err
	}

	observability.SearchRequestsTotal.WithLabelValues("issued").Inc()
	locs, err := s.geocoder.Search(ctx, q)
	if err != nil {
		observability.LoggerFrom(ctx, s.logger).Warn("location search failed",
			zap.String("query", q),
			zap.String("category", string(apperr.CategorizeError(err))),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("search %q: %w", q, err)
	}
	if locs == nil {
		locs = []models.Location{}
	}
	return Result{Query: q, Locations: locs}, nil
}
