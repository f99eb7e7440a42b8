// Package client is the HTTP gateway to the weather and chat backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/circuitbreaker"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

// WeatherGateway fetches raw weather payloads. Every method performs exactly
// one request; callers decide about caching and retries.
type WeatherGateway interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (CurrentPayload, error)
	Forecast(ctx context.Context, location string, days int) (ForecastPayload, error)
	SevenDayForecast(ctx context.Context, lat, lon float64) (SevenDayPayload, error)
	Astronomy(ctx context.Context, location, date string) (AstronomyPayload, error)
	AirQuality(ctx context.Context, location string) (AirQualityPayload, error)
	Notifications(ctx context.Context, q NotificationQuery) ([]models.WeatherNotification, error)
}

// NotificationQuery filters the alerts endpoint. Zero values are omitted.
type NotificationQuery struct {
	Location string
	Lat      float64
	Lon      float64
	Severity string
	Type     string
	Area     string
}

// ErrUnexpectedStatus wraps non-2xx responses that are neither 404, 429 nor 5xx.
var ErrUnexpectedStatus = errors.New("unexpected status")

const maxBodyBytes = 4 << 20

// Config configures a Client. BaseURL is the API root; weather endpoints live
// under {BaseURL}/weather and chat under {BaseURL}/chat.
type Config struct {
	BaseURL string
	Lang    string
	Timeout time.Duration
	Breaker *circuitbreaker.CircuitBreaker
	Logger  *zap.Logger
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client implements WeatherGateway and ChatGateway over net/http.
type Client struct {
	baseURL *url.URL
	lang    string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	client  *http.Client
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: weather API base URL is required", apperr.ErrInvalidInput)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid weather API base URL %q", apperr.ErrInvalidInput, cfg.BaseURL)
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// Deadlines come from the per-request context.
		hc = &http.Client{}
	}
	return &Client{
		baseURL: base,
		lang:    cfg.Lang,
		timeout: cfg.Timeout,
		breaker: cfg.Breaker,
		logger:  observability.OrNop(cfg.Logger),
		client:  hc,
	}, nil
}

// BreakerFailure reports whether err should count toward opening the circuit:
// transport, timeout, 5xx and decode failures do. 4xx statuses and caller
// cancellation do not.
func BreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr *apperr.NetworkError
	if errors.As(err, &netErr) && netErr.StatusCode >= 400 && netErr.StatusCode < 500 {
		return false
	}
	switch apperr.CategorizeError(err) {
	case apperr.ErrorCategoryNetwork, apperr.ErrorCategoryTimeout,
		apperr.ErrorCategoryUpstream5xx, apperr.ErrorCategoryParsing:
		return true
	}
	return false
}

// CurrentWeather fetches current conditions with air quality for lat/lon.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64) (CurrentPayload, error) {
	params := url.Values{}
	params.Set("lat", models.FormatCoordinate(lat))
	params.Set("lon", models.FormatCoordinate(lon))
	params.Set("aqi", "yes")

	var p CurrentPayload
	body, err := c.getJSON(ctx, "current", "/weather/current", params, &p)
	if err != nil {
		return CurrentPayload{}, err
	}
	p.Shape = payloadShape(body)
	return p, nil
}

// Forecast fetches a days-long forecast for location ("lat,lon" or a name).
func (c *Client) Forecast(ctx context.Context, location string, days int) (ForecastPayload, error) {
	params := url.Values{}
	params.Set("location", location)
	params.Set("days", strconv.Itoa(days))

	var p ForecastPayload
	body, err := c.getJSON(ctx, "forecast", "/weather/forecast", params, &p)
	if err != nil {
		return ForecastPayload{}, err
	}
	p.Shape = payloadShape(body)
	return p, nil
}

// SevenDayForecast fetches the seven-day outlook for lat/lon.
func (c *Client) SevenDayForecast(ctx context.Context, lat, lon float64) (SevenDayPayload, error) {
	params := url.Values{}
	params.Set("lat", models.FormatCoordinate(lat))
	params.Set("lon", models.FormatCoordinate(lon))

	var p SevenDayPayload
	body, err := c.getJSON(ctx, "forecast_7days", "/weather/forecast/7days", params, &p)
	if err != nil {
		return SevenDayPayload{}, err
	}
	p.Shape = payloadShape(body)
	return p, nil
}

// Astronomy fetches sun and moon data for location on date (YYYY-MM-DD).
func (c *Client) Astronomy(ctx context.Context, location, date string) (AstronomyPayload, error) {
	params := url.Values{}
	params.Set("location", location)
	if date != "" {
		params.Set("date", date)
	}

	var p AstronomyPayload
	body, err := c.getJSON(ctx, "astronomy", "/weather/astronomy", params, &p)
	if err != nil {
		return AstronomyPayload{}, err
	}
	p.Shape = payloadShape(body)
	return p, nil
}

// AirQuality fetches pollutant data for location.
func (c *Client) AirQuality(ctx context.Context, location string) (AirQualityPayload, error) {
	params := url.Values{}
	params.Set("location", location)

	var p AirQualityPayload
	body, err := c.getJSON(ctx, "air_quality", "/weather/air-quality", params, &p)
	if err != nil {
		return AirQualityPayload{}, err
	}
	p.Shape = payloadShape(body)
	return p, nil
}

type notificationsResponse struct {
	Data struct {
		Alerts []models.WeatherNotification `json:"alerts"`
	} `json:"data"`
}

// Notifications fetches weather alerts. A response without alerts reads as none.
func (c *Client) Notifications(ctx context.Context, q NotificationQuery) ([]models.WeatherNotification, error) {
	params := url.Values{}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if q.Lat != 0 || q.Lon != 0 {
		params.Set("lat", models.FormatCoordinate(q.Lat))
		params.Set("lon", models.FormatCoordinate(q.Lon))
	}
	for k, v := range map[string]string{"severity": q.Severity, "type": q.Type, "area": q.Area} {
		if v != "" {
			params.Set(k, v)
		}
	}

	var resp notificationsResponse
	if _, err := c.getJSON(ctx, "notifications", "/weather/notifications", params, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Alerts == nil {
		return []models.WeatherNotification{}, nil
	}
	return resp.Data.Alerts, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values, out any) ([]byte, error) {
	params.Set("lang", c.lang)
	return c.doJSON(ctx, endpoint, http.MethodGet, path, params, nil, out)
}

// doJSON performs one request through the circuit breaker and decodes the
// body into out. Every failure comes back as *apperr.NetworkError.
func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, params url.Values, payload any, out any) ([]byte, error) {
	var body []byte
	call := func() error {
		b, err := c.roundTrip(ctx, endpoint, method, path, params, payload)
		body = b
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
		return nil, &apperr.NetworkError{Op: endpoint, Err: fmt.Errorf("%w: %v", apperr.ErrCircuitOpen, err)}
	}
	if err != nil {
		var netErr *apperr.NetworkError
		if !errors.As(err, &netErr) {
			err = &apperr.NetworkError{Op: endpoint, Err: err}
		}
		return nil, err
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			c.logger.Warn("undecodable weather API response",
				zap.String("endpoint", endpoint),
				zap.Int("bodyBytes", len(body)),
				zap.Error(err),
			)
			return nil, &apperr.NetworkError{Op: endpoint, Err: fmt.Errorf("%w: %v", apperr.ErrMalformedPayload, err)}
		}
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, endpoint, method, path string, params url.Values, payload any) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, method, path, params, payload)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, &apperr.NetworkError{Op: endpoint, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &apperr.NetworkError{Op: endpoint, Err: fmt.Errorf("request timeout: %w", err)}
		}
		return nil, &apperr.NetworkError{Op: endpoint, Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := statusError(resp.StatusCode); err != nil {
		c.logger.Debug("weather API error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &apperr.NetworkError{Op: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperr.NetworkError{Op: endpoint, Err: fmt.Errorf("read response body: %w", err)}
	}
	return body, nil
}

func (c *Client) buildRequest(ctx context.Context, method, path string, params url.Values, payload any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return apperr.ErrLocationNotFound
	case code == http.StatusTooManyRequests:
		return apperr.ErrRateLimited
	case code >= 500:
		return apperr.ErrUpstreamFailure
	default:
		return ErrUnexpectedStatus
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// payloadShape lists the sorted top-level keys of body plus "data.<key>" for
// each key of a data object. It never fails; non-object bodies yield nil.
func payloadShape(body []byte) []string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil
	}
	shape := make([]string, 0, len(top))
	for k := range top {
		shape = append(shape, k)
	}
	if raw, ok := top["data"]; ok {
		var data map[string]json.RawMessage
		if json.Unmarshal(raw, &data) == nil {
			for k := range data {
				shape = append(shape, "data."+k)
			}
		}
	}
	sort.Strings(shape)
	return shape
}
