package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/circuitbreaker"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/testhelpers"
)

func newTestClient(t *testing.T, api *testhelpers.FakeWeatherAPI, breaker *circuitbreaker.CircuitBreaker) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: api.URL(), Timeout: 2 * time.Second, Breaker: breaker})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_InvalidBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"empty", "", true},
		{"no scheme", "api.example.com/weather", true},
		{"valid", "https://api.example.com/api", false},
		{"trailing slash", "https://api.example.com/api/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: tt.baseURL})
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalidInput) {
					t.Fatalf("New() error = %v, want ErrInvalidInput", err)
				}
				if c != nil {
					t.Error("New() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
		})
	}
}

func TestClient_CurrentWeather_Success(t *testing.T) {
	api := testhelpers.NewFakeWeatherAPI(t)
	c := newTestClient(t, api, nil)

	ctx := observability.WithCorrelationID(context.Background(), "corr-1")
	var gotCorr string
	api.OnRequest(func(r *http.Request) { gotCorr = r.Header.Get("X-Correlation-ID") })

	p, err := c.CurrentWeather(ctx, 21.0285, 105.8542)
	if err != nil {
		t.Fatalf("CurrentWeather() error = %v", err)
	}
	if p.Data.Location == nil || p.Data.Location.Name != "Hà Nội" {
		t.Fatalf("location = %+v", p.Data.Location)
	}
	if p.Data.Current == nil || p.Data.Current.TempC != 31.2 {
		t.Fatalf("current = %+v", p.Data.Current)
	}
	if p.Data.Current.AirQuality == nil || p.Data.Current.AirQuality.USEPAIndex != 2 {
		t.Errorf("air quality = %+v", p.Data.Current.AirQuality)
	}
	if gotCorr != "corr-1" {
		t.Errorf("X-Correlation-ID = %q, want corr-1", gotCorr)
	}

	reqs := api.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	q := reqs[0].Query()
	if reqs[0].Path != "/weather/current" || q.Get("lat") != "21.0285" || q.Get("lon") != "105.8542" ||
		q.Get("aqi") != "yes" || q.Get("lang") != "vi" {
		t.Errorf("request = %s", reqs[0].String())
	}
	if strings.Join(p.Shape, ",") != "data,data.current,data.location,message" {
		t.Errorf("Shape = %v", p.Shape)
	}
}

func TestClient_ForecastAstronomyAndOthers(t *testing.T) {
	api := testhelpers.NewFakeWeatherAPI(t)
	c := newTestClient(t, api, nil)
	ctx := context.Background()

	f, err := c.Forecast(ctx, "21.0285,105.8542", 7)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if f.Data.Forecast == nil || len(f.Data.Forecast.ForecastDay) != 2 {
		t.Fatalf("forecast = %+v", f.Data.Forecast)
	}

	a, err := c.Astronomy(ctx, "21.0285,105.8542", "2025-05-01")
	if err != nil {
		t.Fatalf("Astronomy() error = %v", err)
	}
	if a.Data.Astronomy == nil || a.Data.Astronomy.Astro == nil || a.Data.Astronomy.Astro.Sunrise != "05:25 AM" {
		t.Fatalf("astronomy = %+v", a.Data.Astronomy)
	}

	s, err := c.SevenDayForecast(ctx, 21.0285, 105.8542)
	if err != nil {
		t.Fatalf("SevenDayForecast() error = %v", err)
	}
	if len(s.Data.Forecast) != 2 || s.Data.Forecast[0].Weather[0].ID != 800 {
		t.Errorf("seven day = %+v", s.Data.Forecast)
	}

	aq, err := c.AirQuality(ctx, "Hà Nội")
	if err != nil {
		t.Fatalf("AirQuality() error = %v", err)
	}
	if aq.Data.Current == nil || aq.Data.Current.AirQuality == nil || aq.Data.Current.AirQuality.PM25 != 35.7 {
		t.Errorf("air quality = %+v", aq.Data.Current)
	}

	byPath := map[string]string{}
	for _, u := range api.Requests() {
		byPath[u.Path] = u.RawQuery
	}
	if !strings.Contains(byPath["/weather/forecast"], "days=7") {
		t.Errorf("forecast query = %q", byPath["/weather/forecast"])
	}
	if !strings.Contains(byPath["/weather/astronomy"], "date=2025-05-01") {
		t.Errorf("astronomy query = %q", byPath["/weather/astronomy"])
	}
}

func TestClient_Notifications(t *testing.T) {
	api := testhelpers.NewFakeWeatherAPI(t)
	c := newTestClient(t, api, nil)

	alerts, err := c.Notifications(context.Background(), NotificationQuery{Location: "Hà Nội", Lat: 21.0285, Lon: 105.8542, Type: "weather"})
	if err != nil {
		t.Fatalf("Notifications() error = %v", err)
	}
	if len(alerts) != 3 || alerts[1].Severity != "severe" {
		t.Errorf("alerts = %+v", alerts)
	}
	q := api.Requests()[0].Query()
	if q.Get("type") != "weather" || q.Get("lat") != "21.0285" || q.Has("area") || q.Has("severity") {
		t.Errorf("query = %v", q)
	}

	api.Set("/weather/notifications", http.StatusOK, `{"data":{}}`)
	alerts, err = c.Notifications(context.Background(), NotificationQuery{Location: "Huế"})
	if err != nil {
		t.Fatalf("Notifications() error = %v", err)
	}
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("alerts = %#v, want empty non-nil", alerts)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCat  apperr.ErrorCategory
		wantCode int
	}{
		{"not found", http.StatusNotFound, `{"message":"no location"}`, apperr.ErrorCategoryLocationNotFound, 404},
		{"rate limited", http.StatusTooManyRequests, `{}`, apperr.ErrorCategoryRateLimited, 429},
		{"bad gateway", http.StatusBadGateway, `{}`, apperr.ErrorCategoryUpstream5xx, 502},
		{"bad request", http.StatusBadRequest, `{}`, apperr.ErrorCategoryNetwork, 400},
		{"malformed body", http.StatusOK, `{"data": {"current":`, apperr.ErrorCategoryParsing, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testhelpers.NewFakeWeatherAPI(t)
			api.Set("/weather/current", tt.status, tt.body)
			c := newTestClient(t, api, nil)

			_, err := c.CurrentWeather(context.Background(), 21.0285, 105.8542)
			var netErr *apperr.NetworkError
			if !errors.As(err, &netErr) {
				t.Fatalf("error = %v, want *apperr.NetworkError", err)
			}
			if netErr.StatusCode != tt.wantCode {
				t.Errorf("StatusCode = %d, want %d", netErr.StatusCode, tt.wantCode)
			}
			if got := apperr.CategorizeError(err); got != tt.wantCat {
				t.Errorf("CategorizeError() = %q, want %q", got, tt.wantCat)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	api := testhelpers.NewFakeWeatherAPI(t)
	api.OnRequest(func(r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c, err := New(Config{BaseURL: api.URL(), Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.CurrentWeather(context.Background(), 1, 2)
	if got := apperr.CategorizeError(err); got != apperr.ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %q (%v), want timeout", got, err)
	}
}

func TestClient_NoRetries(t *testing.T) {
	api := testhelpers.NewFakeWeatherAPI(t)
	api.Set("/weather/current", http.StatusServiceUnavailable, `{}`)
	c := newTestClient(t, api, nil)

	if _, err := c.CurrentWeather(context.Background(), 1, 2); err == nil {
		t.Fatal("expected error")
	}
	if n := api.Count("/weather/current"); n != 1 {
		t.Errorf("requests = %d, want exactly 1", n)
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	api := testhelpers.NewFakeWeatherAPI(t)
	api.Set("/weather/current", http.StatusInternalServerError, `{}`)
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		Component:        "weather_api",
		IsFailure:        BreakerFailure,
	})
	c := newTestClient(t, api, cb)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = c.CurrentWeather(ctx, 1, 2)
	}
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	_, err := c.CurrentWeather(ctx, 1, 2)
	if !errors.Is(err, apperr.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if n := api.Count("/weather/current"); n != 2 {
		t.Errorf("requests = %d, want 2 (open circuit must not call upstream)", n)
	}
}

func TestBreakerFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", &apperr.NetworkError{Op: "current", Err: context.Canceled}, false},
		{"timeout", &apperr.NetworkError{Op: "current", Err: context.DeadlineExceeded}, true},
		{"5xx", &apperr.NetworkError{Op: "current", StatusCode: 503, Err: apperr.ErrUpstreamFailure}, true},
		{"404", &apperr.NetworkError{Op: "current", StatusCode: 404, Err: apperr.ErrLocationNotFound}, false},
		{"429", &apperr.NetworkError{Op: "current", StatusCode: 429, Err: apperr.ErrRateLimited}, false},
		{"transport", &apperr.NetworkError{Op: "current", Err: errors.New("connection refused")}, true},
	}
	for _, tt := range tests {
		if got := BreakerFailure(tt.err); got != tt.want {
			t.Errorf("%s: BreakerFailure() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPayloadShape(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"data":{"forecast":{}}}`, "data,data.forecast"},
		{`{"message":"x","data":null}`, "data,message"},
		{`[1,2]`, ""},
		{`not json`, ""},
	}
	for _, tt := range tests {
		if got := strings.Join(payloadShape([]byte(tt.body)), ","); got != tt.want {
			t.Errorf("payloadShape(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
