package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/cache"
	"github.com/kjstillabower/weather-location-sync/internal/client"
	"github.com/kjstillabower/weather-location-sync/internal/kvstore"
	"github.com/kjstillabower/weather-location-sync/internal/location"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/testhelpers"
)

var (
	hanoi  = models.Location{PlaceID: "p1", DisplayName: "Hà Nội", Lat: 21.0285, Lon: 105.8542}
	danang = models.Location{PlaceID: "p2", DisplayName: "Đà Nẵng", Lat: 16.0544, Lon: 108.2022}
	hue    = models.Location{PlaceID: "p3", DisplayName: "Huế", Lat: 16.4637, Lon: 107.5909}
)

// fakeWeather serves fixture payloads, echoing the requested coordinates back
// as the canonical location.
type fakeWeather struct {
	mu sync.Mutex

	currentErr  error
	forecastErr error
	astroErr    error
	forecast    *client.ForecastPayload
	// canonical overrides the coordinates returned for a requested key.
	canonical map[string]models.Coordinates
	// block holds CurrentWeather for a key until the channel is closed.
	block   map[string]chan struct{}
	started chan string

	currentCalls   []string
	forecastCalls  []string
	astroCalls     []string
	sevenDayCalls  []string
	airCalls       []string
	notifQueries   []client.NotificationQuery
	notifications  []models.WeatherNotification
	notificationsE error
}

func newFakeWeather() *fakeWeather {
	return &fakeWeather{
		canonical: map[string]models.Coordinates{},
		block:     map[string]chan struct{}{},
		started:   make(chan string, 16),
	}
}

func decodeFixture[T any](body string) T {
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		panic(err)
	}
	return v
}

func (f *fakeWeather) CurrentWeather(ctx context.Context, lat, lon float64) (client.CurrentPayload, error) {
	key := models.CoordinateKey(lat, lon)
	f.mu.Lock()
	f.currentCalls = append(f.currentCalls, key)
	ch := f.block[key]
	err := f.currentErr
	canon, hasCanon := f.canonical[key]
	f.mu.Unlock()

	select {
	case f.started <- key:
	default:
	}
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return client.CurrentPayload{}, ctx.Err()
		}
	}
	if err != nil {
		return client.CurrentPayload{}, err
	}
	p := decodeFixture[client.CurrentPayload](testhelpers.CurrentJSON)
	p.Data.Location.Lat, p.Data.Location.Lon = lat, lon
	if hasCanon {
		p.Data.Location.Lat, p.Data.Location.Lon = canon.Lat, canon.Lon
	}
	return p, nil
}

func (f *fakeWeather) Forecast(_ context.Context, loc string, _ int) (client.ForecastPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forecastCalls = append(f.forecastCalls, loc)
	if f.forecastErr != nil {
		return client.ForecastPayload{}, f.forecastErr
	}
	if f.forecast != nil {
		return *f.forecast, nil
	}
	return decodeFixture[client.ForecastPayload](testhelpers.ForecastJSON), nil
}

func (f *fakeWeather) Astronomy(_ context.Context, loc, date string) (client.AstronomyPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.astroCalls = append(f.astroCalls, loc+"@"+date)
	if f.astroErr != nil {
		return client.AstronomyPayload{}, f.astroErr
	}
	return decodeFixture[client.AstronomyPayload](testhelpers.AstronomyJSON), nil
}

func (f *fakeWeather) SevenDayForecast(_ context.Context, lat, lon float64) (client.SevenDayPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sevenDayCalls = append(f.sevenDayCalls, models.CoordinateKey(lat, lon))
	return decodeFixture[client.SevenDayPayload](testhelpers.SevenDayJSON), nil
}

func (f *fakeWeather) AirQuality(_ context.Context, loc string) (client.AirQualityPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.airCalls = append(f.airCalls, loc)
	return decodeFixture[client.AirQualityPayload](testhelpers.AirQualityJSON), nil
}

func (f *fakeWeather) Notifications(_ context.Context, q client.NotificationQuery) ([]models.WeatherNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifQueries = append(f.notifQueries, q)
	return f.notifications, f.notificationsE
}

func (f *fakeWeather) currentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.currentCalls)
}

func (f *fakeWeather) set(fn func(f *fakeWeather)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeGeocoder struct {
	mu           sync.Mutex
	results      map[string][]models.Location
	reverse      models.Location
	reverseErr   error
	searchCalls  []string
	reverseCalls []models.Coordinates
}

func (g *fakeGeocoder) Search(_ context.Context, text string) ([]models.Location, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searchCalls = append(g.searchCalls, text)
	return g.results[text], nil
}

func (g *fakeGeocoder) Reverse(_ context.Context, lat, lon float64) (models.Location, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reverseCalls = append(g.reverseCalls, models.Coordinates{Lat: lat, Lon: lon})
	if g.reverseErr != nil {
		return models.Location{}, g.reverseErr
	}
	return g.reverse, nil
}

type fakeGPS struct {
	mu    sync.Mutex
	pos   models.Coordinates
	err   error
	calls int
}

func (g *fakeGPS) Position(context.Context) (models.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.pos, g.err
}

type harness struct {
	sync      *WeatherSync
	weather   *fakeWeather
	geo       *fakeGeocoder
	gps       *fakeGPS
	kv        *kvstore.InMemoryStore
	locations *location.Store
	cache     *cache.WeatherCache
	clock     *clock
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newHarness(t *testing.T, logger *zap.Logger) *harness {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := &clock{t: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	kv := kvstore.NewInMemoryStore()
	h := &harness{
		weather:   newFakeWeather(),
		geo:       &fakeGeocoder{results: map[string][]models.Location{}},
		gps:       &fakeGPS{pos: models.Coordinates{Lat: 10.8231, Lon: 106.6297}},
		kv:        kv,
		locations: location.NewStore(kv, logger),
		cache:     cache.New(10*time.Minute, cache.WithClock(clk.Now), cache.WithStore(kv), cache.WithLogger(logger)),
		clock:     clk,
	}
	h.sync = NewWeatherSync(Deps{
		Weather:   h.weather,
		Geocoder:  h.geo,
		GPS:       h.gps,
		Locations: h.locations,
		Cache:     h.cache,
		Logger:    logger,
	}, Options{DefaultLocation: hanoi, Now: clk.Now})
	return h
}
