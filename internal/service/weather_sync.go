// Package service holds the orchestration layer: the weather sync controller,
// alerts and chat.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/cache"
	"github.com/kjstillabower/weather-location-sync/internal/client"
	"github.com/kjstillabower/weather-location-sync/internal/geocode"
	"github.com/kjstillabower/weather-location-sync/internal/gps"
	"github.com/kjstillabower/weather-location-sync/internal/location"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/traffic"
	"github.com/kjstillabower/weather-location-sync/internal/transform"
)

// DefaultForecastDays is the forecast length requested on every fetch.
const DefaultForecastDays = 7

// Location switch reasons, used as metric labels.
const (
	switchSelect         = "select"
	switchDeleteFallback = "delete_fallback"
	switchGPS            = "gps"
	switchDefault        = "default"
)

// Deps are the collaborators of WeatherSync. Geocoder and GPS may be nil, in
// which case name keys and the GPS fallback are unavailable.
type Deps struct {
	Weather   client.WeatherGateway
	Geocoder  geocode.Gateway
	GPS       gps.Provider
	Locations *location.Store
	Cache     *cache.WeatherCache
	Logger    *zap.Logger
}

// Options tune WeatherSync.
type Options struct {
	ForecastDays int
	// DefaultLocation is used at bootstrap when nothing is stored and GPS is
	// refused. Zero value disables the fallback.
	DefaultLocation models.Location
	Now             func() time.Time
}

// FetchRequest asks for the bundle of one location key ("lat,lon" or a name).
type FetchRequest struct {
	Key string
	// DisplayName, when set, replaces the location name reported by the API.
	DisplayName string
	// Force skips the cache check.
	Force bool
}

// FetchResult is a bundle and where it came from.
type FetchResult struct {
	Key    string               `json:"key"`
	Cached bool                 `json:"cached"`
	Bundle models.WeatherBundle `json:"weather"`
}

// DeleteResult describes a saved-location deletion and its follow-up. Err
// holds a failure that happened after the list change committed (fetch
// failure, refused GPS permission); the deletion itself stands.
type DeleteResult struct {
	Removed        models.Location   `json:"removed"`
	Saved          []models.Location `json:"saved"`
	CurrentChanged bool              `json:"currentChanged"`
	Current        *models.Location  `json:"current,omitempty"`
	Weather        *FetchResult      `json:"weather,omitempty"`
	Err            error             `json:"-"`
}

// WeatherSync is the only caller of the weather gateway. It decides between
// cache and network, transforms payloads into bundles, and keeps the
// current-location pointer and the cache in step.
type WeatherSync struct {
	weather   client.WeatherGateway
	geocoder  geocode.Gateway
	gps       gps.Provider
	locations *location.Store
	cache     *cache.WeatherCache
	logger    *zap.Logger

	forecastDays    int
	defaultLocation models.Location
	now             func() time.Time

	// mu guards seq and latestKey. The commit guard compares keys only: a
	// fetch may commit while its key is still the latest requested one, so a
	// repeated request for the same key never supersedes an earlier round.
	// seq numbers requests for logs and errors.
	mu        sync.Mutex
	seq       uint64
	latestKey string

	group singleflight.Group
}

// NewWeatherSync wires a WeatherSync.
func NewWeatherSync(deps Deps, opts Options) *WeatherSync {
	if opts.ForecastDays <= 0 {
		opts.ForecastDays = DefaultForecastDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WeatherSync{
		weather:         deps.Weather,
		geocoder:        deps.Geocoder,
		gps:             deps.GPS,
		locations:       deps.Locations,
		cache:           deps.Cache,
		logger:          observability.OrNop(deps.Logger),
		forecastDays:    opts.ForecastDays,
		defaultLocation: opts.DefaultLocation,
		now:             opts.Now,
	}
}

// Fetch returns the bundle for req.Key, from the cache when fresh, else from
// the network. A network result is committed to the cache only if no other
// key was requested in the meantime; otherwise ErrSuperseded is returned and
// the cache is left alone. Failures never write to the cache.
func (s *WeatherSync) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return FetchResult{}, fmt.Errorf("%w: location key is required", apperr.ErrInvalidInput)
	}
	logger := observability.LoggerFrom(ctx, s.logger)
	seq := s.begin(key)

	if !req.Force {
		if b, ok := s.cache.Get(key); ok {
			observability.RecordSyncOutcome("cached", "")
			logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", true))
			return FetchResult{Key: key, Cached: true, Bundle: b}, nil
		}
	}

	start := s.now()
	v, err, shared := s.group.Do(key+"\x00"+req.DisplayName, func() (any, error) {
		return s.fetchBundle(ctx, key, req.DisplayName)
	})
	if err != nil {
		s.recordFailure(logger, key, err)
		return FetchResult{}, fmt.Errorf("fetch weather for %s: %w", key, err)
	}
	bundle := v.(models.WeatherBundle)

	if err := s.commit(ctx, seq, key, bundle); err != nil {
		observability.RecordSyncOutcome("superseded", string(apperr.ErrorCategorySuperseded))
		logger.Info("discarding superseded fetch", zap.String("key", key), zap.Uint64("request_seq", seq))
		return FetchResult{}, err
	}

	traffic.RecordFetch(nil)
	observability.RecordSyncOutcome("committed", "")
	logger.Debug("weather served",
		zap.String("key", key),
		zap.Bool("cached", false),
		zap.Bool("shared", shared),
		zap.Duration("duration", s.now().Sub(start)),
	)
	if e, ok := s.cache.Peek(); ok && e.Key == key {
		bundle = e.Bundle
	}
	return FetchResult{Key: key, Bundle: bundle}, nil
}

// begin registers key as the latest requested key and returns the request's
// sequence number.
func (s *WeatherSync) begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.latestKey = key
	return s.seq
}

// commit writes bundle to the cache if key is still the latest request.
// Persistence failures are logged; the in-memory slot is updated regardless.
func (s *WeatherSync) commit(ctx context.Context, seq uint64, key string, bundle models.WeatherBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestKey != key {
		return fmt.Errorf("fetch weather for %s (request %d, latest %s): %w", key, seq, s.latestKey, apperr.ErrSuperseded)
	}
	if err := s.cache.Put(ctx, key, bundle); err != nil {
		s.logger.Warn("weather cache persistence failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *WeatherSync) recordFailure(logger *zap.Logger, key string, err error) {
	cat := apperr.CategorizeError(err)
	traffic.RecordFetch(err)
	observability.RecordSyncOutcome("failed", string(cat))

	var valErr *apperr.ValidationError
	if errors.As(err, &valErr) {
		logger.Warn("weather payload failed validation",
			zap.String("key", key),
			zap.String("source", valErr.Source),
			zap.String("missingField", valErr.Field),
			zap.Strings("payloadShape", valErr.Shape),
		)
		return
	}
	logger.Warn("weather fetch failed",
		zap.String("key", key),
		zap.String("category", string(cat)),
		zap.Error(err),
	)
}

// fetchBundle runs one network round: current weather first, then forecast
// and astronomy concurrently against the coordinates the API returned.
func (s *WeatherSync) fetchBundle(ctx context.Context, key, displayName string) (models.WeatherBundle, error) {
	coords, err := s.resolve(ctx, key)
	if err != nil {
		return models.WeatherBundle{}, err
	}

	cur, err := s.weather.CurrentWeather(ctx, coords.Lat, coords.Lon)
	if err != nil {
		return models.WeatherBundle{}, err
	}
	if err := transform.ValidateCurrent(cur); err != nil {
		return models.WeatherBundle{}, err
	}
	canonical := models.CoordinateKey(cur.Data.Location.Lat, cur.Data.Location.Lon)
	date := transform.AstronomyDate(cur.Data.Location.Localtime)

	var (
		fc    client.ForecastPayload
		astro client.AstronomyPayload
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fc, err = s.weather.Forecast(gctx, canonical, s.forecastDays)
		return err
	})
	g.Go(func() error {
		var err error
		astro, err = s.weather.Astronomy(gctx, canonical, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.WeatherBundle{}, err
	}

	bundle, err := transform.Bundle(cur, fc, astro)
	if err != nil {
		return models.WeatherBundle{}, err
	}
	if displayName != "" {
		bundle.Location.Name = displayName
	}
	bundle.FetchedAt = s.now()
	return bundle, nil
}

// resolve turns a key into coordinates, forward-geocoding names.
func (s *WeatherSync) resolve(ctx context.Context, key string) (models.Coordinates, error) {
	if c, ok := models.ParseCoordinateKey(key); ok {
		return c, nil
	}
	if s.geocoder == nil {
		return models.Coordinates{}, fmt.Errorf("resolve %q: no geocoder configured: %w", key, apperr.ErrLocationNotFound)
	}
	results, err := s.geocoder.Search(ctx, key)
	if err != nil {
		return models.Coordinates{}, err
	}
	if len(results) == 0 {
		return models.Coordinates{}, fmt.Errorf("resolve %q: %w", key, apperr.ErrLocationNotFound)
	}
	return models.Coordinates{Lat: results[0].Lat, Lon: results[0].Lon}, nil
}

// Preview fetches a bundle for loc without touching the current location,
// the cache, or the latest-request bookkeeping.
func (s *WeatherSync) Preview(ctx context.Context, loc models.Location) (models.WeatherBundle, error) {
	key := loc.FetchKey()
	if key == "" {
		return models.WeatherBundle{}, fmt.Errorf("%w: location needs coordinates or a name", apperr.ErrInvalidInput)
	}
	b, err := s.fetchBundle(ctx, key, loc.DisplayName)
	if err != nil {
		return models.WeatherBundle{}, fmt.Errorf("preview %s: %w", key, err)
	}
	return b, nil
}

// HandleLocationChange persists loc as current, then fetches its weather keyed
// by its coordinates. A fetch failure leaves the new pointer in place.
func (s *WeatherSync) HandleLocationChange(ctx context.Context, loc models.Location) (FetchResult, error) {
	return s.switchTo(ctx, loc, switchSelect)
}

func (s *WeatherSync) switchTo(ctx context.Context, loc models.Location, reason string) (FetchResult, error) {
	if err := s.locations.SetCurrent(ctx, loc); err != nil {
		return FetchResult{}, err
	}
	observability.LocationSwitchesTotal.WithLabelValues(reason).Inc()
	observability.LoggerFrom(ctx, s.logger).Info("current location changed",
		zap.String("reason", reason),
		zap.String("location", loc.DisplayName),
		zap.String("key", loc.FetchKey()),
	)
	return s.Fetch(ctx, FetchRequest{Key: loc.FetchKey(), DisplayName: loc.DisplayName})
}

// HandleDeleteLocation removes a saved location. When it was the current one,
// the first remaining saved location becomes current; with none left, the
// device position is tried and, when refused, the current location stays unset.
func (s *WeatherSync) HandleDeleteLocation(ctx context.Context, placeID string) (DeleteResult, error) {
	current, hasCurrent, err := s.locations.Current(ctx)
	if err != nil {
		return DeleteResult{}, err
	}
	removed, saved, err := s.locations.RemoveSaved(ctx, placeID)
	if err != nil {
		return DeleteResult{}, err
	}
	res := DeleteResult{Removed: removed, Saved: saved}
	if !hasCurrent || !current.SameAs(removed) {
		return res, nil
	}

	res.CurrentChanged = true
	if len(saved) > 0 {
		next := saved[0]
		res.Current = &next
		fr, err := s.switchTo(ctx, next, switchDeleteFallback)
		if err != nil {
			res.Err = err
			return res, nil
		}
		res.Weather = &fr
		return res, nil
	}

	if err := s.locations.ClearCurrent(ctx); err != nil {
		return res, err
	}
	loc, err := s.locationFromGPS(ctx)
	if err != nil {
		res.Err = err
		return res, nil
	}
	res.Current = &loc
	fr, err := s.switchTo(ctx, loc, switchGPS)
	if err != nil {
		res.Err = err
		return res, nil
	}
	res.Weather = &fr
	return res, nil
}

// locationFromGPS asks for the device position and reverse-geocodes it. The
// result always carries the "Current Location" name; a failed reverse lookup
// only loses the place id.
func (s *WeatherSync) locationFromGPS(ctx context.Context) (models.Location, error) {
	if s.gps == nil {
		return models.Location{}, &apperr.PermissionError{Permission: "location"}
	}
	pos, err := s.gps.Position(ctx)
	if err != nil {
		return models.Location{}, err
	}
	loc := models.Location{DisplayName: models.CurrentLocationName, Lat: pos.Lat, Lon: pos.Lon}
	if s.geocoder != nil {
		place, err := s.geocoder.Reverse(ctx, pos.Lat, pos.Lon)
		if err != nil {
			s.logger.Warn("reverse geocode of device position failed", zap.Error(err))
		} else {
			loc.PlaceID = place.PlaceID
		}
	}
	return loc, nil
}

// Bootstrap restores the cache and brings up weather for the stored current
// location, else the device position, else the configured default. It returns
// a PermissionError when none of those is available.
func (s *WeatherSync) Bootstrap(ctx context.Context) (models.Location, FetchResult, error) {
	if err := s.cache.Restore(ctx); err != nil {
		s.logger.Warn("weather cache restore failed", zap.Error(err))
	}

	cur, ok, err := s.locations.Current(ctx)
	if err != nil {
		s.logger.Warn("reading current location failed", zap.Error(err))
	}
	if ok {
		fr, err := s.Fetch(ctx, FetchRequest{Key: cur.FetchKey(), DisplayName: cur.DisplayName})
		return cur, fr, err
	}

	loc, gpsErr := s.locationFromGPS(ctx)
	if gpsErr == nil {
		fr, err := s.switchTo(ctx, loc, switchGPS)
		return loc, fr, err
	}
	if s.defaultLocation.DisplayName == "" {
		return models.Location{}, FetchResult{}, gpsErr
	}
	s.logger.Info("device position unavailable, using default location",
		zap.String("location", s.defaultLocation.DisplayName),
		zap.Error(gpsErr),
	)
	fr, err := s.switchTo(ctx, s.defaultLocation, switchDefault)
	return s.defaultLocation, fr, err
}

// CurrentWeather returns the bundle for the current location.
func (s *WeatherSync) CurrentWeather(ctx context.Context, force bool) (models.Location, FetchResult, error) {
	cur, err := s.requireCurrent(ctx)
	if err != nil {
		return models.Location{}, FetchResult{}, err
	}
	fr, err := s.Fetch(ctx, FetchRequest{Key: cur.FetchKey(), DisplayName: cur.DisplayName, Force: force})
	return cur, fr, err
}

// Refresh refetches the current location bypassing the cache. ok is false
// when no current location is set.
func (s *WeatherSync) Refresh(ctx context.Context) (FetchResult, bool, error) {
	cur, ok, err := s.locations.Current(ctx)
	if err != nil || !ok {
		return FetchResult{}, false, err
	}
	fr, err := s.Fetch(ctx, FetchRequest{Key: cur.FetchKey(), DisplayName: cur.DisplayName, Force: true})
	return fr, true, err
}

// SevenDayOutlook returns the seven-day outlook for the current location.
func (s *WeatherSync) SevenDayOutlook(ctx context.Context) ([]models.OutlookEntry, error) {
	cur, err := s.requireCurrent(ctx)
	if err != nil {
		return nil, err
	}
	coords, err := s.resolve(ctx, cur.FetchKey())
	if err != nil {
		return nil, err
	}
	p, err := s.weather.SevenDayForecast(ctx, coords.Lat, coords.Lon)
	if err != nil {
		return nil, fmt.Errorf("seven day outlook for %s: %w", cur.FetchKey(), err)
	}
	return transform.Outlook(p), nil
}

// AirQuality returns air quality for the current location.
func (s *WeatherSync) AirQuality(ctx context.Context) (models.AirQuality, error) {
	cur, err := s.requireCurrent(ctx)
	if err != nil {
		return models.AirQuality{}, err
	}
	p, err := s.weather.AirQuality(ctx, cur.FetchKey())
	if err != nil {
		return models.AirQuality{}, fmt.Errorf("air quality for %s: %w", cur.FetchKey(), err)
	}
	return transform.AirQuality(p)
}

// MapURL returns the weather map URL centred on the current location, or on
// the default location when none is set.
func (s *WeatherSync) MapURL(ctx context.Context) (string, error) {
	cur, ok, err := s.locations.Current(ctx)
	if err != nil {
		return "", err
	}
	if ok && cur.HasCoordinates() {
		return models.MapURL(cur.Lat, cur.Lon), nil
	}
	return models.MapURL(s.defaultLocation.Lat, s.defaultLocation.Lon), nil
}

func (s *WeatherSync) requireCurrent(ctx context.Context) (models.Location, error) {
	cur, ok, err := s.locations.Current(ctx)
	if err != nil {
		return models.Location{}, err
	}
	if !ok {
		return models.Location{}, fmt.Errorf("current location: %w", apperr.ErrNotFound)
	}
	return cur, nil
}
