// Package location owns the current-location pointer and the saved-locations
// list, persisted through a kvstore.Store.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/kvstore"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

// Persisted keys. current_location is the authoritative record; current_city,
// latitude and longitude are mirrors kept for readers of the older layout.
const (
	KeyCurrentLocation = "current_location"
	KeyCurrentCity     = "current_city"
	KeyLatitude        = "latitude"
	KeyLongitude       = "longitude"
	KeySavedLocations  = "saved_locations"
)

// Store is the single source of truth for the current location and the saved list.
type Store struct {
	kv     kvstore.Store
	logger *zap.Logger

	// mu serializes read-modify-write sequences on the saved list and the
	// multi-key current-location writes within this process.
	mu sync.Mutex
}

// NewStore returns a Store backed by kv.
func NewStore(kv kvstore.Store, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: observability.OrNop(logger)}
}

// Current returns the current location. ok is false when none is set; a name
// is required for a location to exist.
func (s *Store) Current(ctx context.Context) (models.Location, bool, error) {
	raw, ok, err := s.get(ctx, KeyCurrentLocation)
	if err != nil {
		return models.Location{}, false, err
	}
	if ok {
		var loc models.Location
		if err := json.Unmarshal([]byte(raw), &loc); err == nil && loc.DisplayName != "" {
			return loc, true, nil
		}
		s.logger.Warn("malformed current location record, reading legacy keys", zap.String("key", KeyCurrentLocation))
	}
	return s.legacyCurrent(ctx)
}

// legacyCurrent reads the three scalar keys. Missing or unparsable coordinates read as 0.
func (s *Store) legacyCurrent(ctx context.Context) (models.Location, bool, error) {
	name, ok, err := s.get(ctx, KeyCurrentCity)
	if err != nil {
		return models.Location{}, false, err
	}
	if !ok || name == "" {
		return models.Location{}, false, nil
	}
	loc := models.Location{DisplayName: name}
	for _, f := range []struct {
		key string
		dst *float64
	}{{KeyLatitude, &loc.Lat}, {KeyLongitude, &loc.Lon}} {
		v, ok, err := s.get(ctx, f.key)
		if err != nil {
			return models.Location{}, false, err
		}
		if !ok {
			continue
		}
		if n, perr := strconv.ParseFloat(v, 64); perr == nil {
			*f.dst = n
		}
	}
	return loc, true, nil
}

// SetCurrent persists loc as the current location. Mirrors are written first
// and the record last, so a concurrent reader sees either the old or the new
// location in full. On a failed write the mirrors are put back to the previous
// location, or removed when there was none, and a single StorageError is
// returned.
func (s *Store) SetCurrent(ctx context.Context, loc models.Location) error {
	if loc.DisplayName == "" {
		return fmt.Errorf("%w: location display name is required", apperr.ErrInvalidInput)
	}
	record, err := json.Marshal(loc)
	if err != nil {
		return &apperr.StorageError{Op: "encode", Key: KeyCurrentLocation, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev, err := s.Current(ctx)
	if err != nil {
		return err
	}
	rollback := func() {
		if hadPrev {
			s.restoreMirrors(ctx, prev)
			return
		}
		s.removeMirrors(ctx)
	}

	mirrors := []struct{ key, value string }{
		{KeyLatitude, models.FormatCoordinate(loc.Lat)},
		{KeyLongitude, models.FormatCoordinate(loc.Lon)},
		{KeyCurrentCity, loc.DisplayName},
	}
	for _, m := range mirrors {
		if err := s.set(ctx, m.key, m.value); err != nil {
			rollback()
			return err
		}
	}
	if err := s.set(ctx, KeyCurrentLocation, string(record)); err != nil {
		rollback()
		return err
	}
	return nil
}

// restoreMirrors rewrites the scalar keys from prev after a failed write.
// Best effort: failures are logged only.
func (s *Store) restoreMirrors(ctx context.Context, prev models.Location) {
	for _, m := range []struct{ key, value string }{
		{KeyLatitude, models.FormatCoordinate(prev.Lat)},
		{KeyLongitude, models.FormatCoordinate(prev.Lon)},
		{KeyCurrentCity, prev.DisplayName},
	} {
		if err := s.kv.Set(ctx, m.key, m.value); err != nil {
			s.logger.Warn("restore current location mirror failed", zap.String("key", m.key), zap.Error(err))
		}
	}
}

// removeMirrors drops the scalar keys after a failed first write. current_city
// goes first: without a name the legacy fallback reports no location.
func (s *Store) removeMirrors(ctx context.Context) {
	for _, key := range []string{KeyCurrentCity, KeyLatitude, KeyLongitude} {
		if err := s.kv.Remove(ctx, key); err != nil {
			s.logger.Warn("remove current location mirror failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// ClearCurrent unsets the current location. The record goes last so readers
// keep seeing the old location until the clear commits.
func (s *Store) ClearCurrent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{KeyCurrentCity, KeyLatitude, KeyLongitude, KeyCurrentLocation} {
		if err := s.kv.Remove(ctx, key); err != nil {
			observability.StorageErrorsTotal.WithLabelValues("remove").Inc()
			return &apperr.StorageError{Op: "remove", Key: key, Err: err}
		}
	}
	return nil
}

// ListSaved returns the saved locations, most recent first. An absent or
// malformed list reads as empty.
func (s *Store) ListSaved(ctx context.Context) ([]models.Location, error) {
	raw, ok, err := s.get(ctx, KeySavedLocations)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []models.Location{}, nil
	}
	var list []models.Location
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.logger.Warn("malformed saved locations, treating as empty", zap.Error(err))
		return []models.Location{}, nil
	}
	if list == nil {
		list = []models.Location{}
	}
	return list, nil
}

// AddSaved puts loc at the front of the saved list. An existing entry with the
// same identity is replaced, so re-adding moves it to the front.
func (s *Store) AddSaved(ctx context.Context, loc models.Location) ([]models.Location, error) {
	if loc.Identity() == "" {
		return nil, fmt.Errorf("%w: location needs a place id or display name", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.ListSaved(ctx)
	if err != nil {
		return nil, err
	}
	updated := make([]models.Location, 0, len(list)+1)
	updated = append(updated, loc)
	for _, l := range list {
		if l.Identity() != loc.Identity() {
			updated = append(updated, l)
		}
	}
	if err := s.writeSaved(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveSaved deletes the entry whose identity equals placeID and returns the
// removed entry with the updated list. Choosing a replacement current location
// is the caller's job.
func (s *Store) RemoveSaved(ctx context.Context, placeID string) (models.Location, []models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.ListSaved(ctx)
	if err != nil {
		return models.Location{}, nil, err
	}
	idx := -1
	for i, l := range list {
		if l.Identity() == placeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Location{}, list, fmt.Errorf("saved location %q: %w", placeID, apperr.ErrNotFound)
	}
	removed := list[idx]
	updated := append(list[:idx:idx], list[idx+1:]...)
	if err := s.writeSaved(ctx, updated); err != nil {
		return models.Location{}, nil, err
	}
	return removed, updated, nil
}

func (s *Store) writeSaved(ctx context.Context, list []models.Location) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return &apperr.StorageError{Op: "encode", Key: KeySavedLocations, Err: err}
	}
	return s.set(ctx, KeySavedLocations, string(raw))
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		observability.StorageErrorsTotal.WithLabelValues("get").Inc()
		return "", false, &apperr.StorageError{Op: "get", Key: key, Err: err}
	}
	return v, ok, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	if err := s.kv.Set(ctx, key, value); err != nil {
		observability.StorageErrorsTotal.WithLabelValues("set").Inc()
		return &apperr.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}
