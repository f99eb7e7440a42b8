// Package geocode resolves place names to coordinates and back through the
// Geoapify geocoding API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

// DefaultBaseURL is the Geoapify API root.
const DefaultBaseURL = "https://api.geoapify.com/v1"

// Gateway performs forward and reverse geocoding.
type Gateway interface {
	Search(ctx context.Context, text string) ([]models.Location, error)
	Reverse(ctx context.Context, lat, lon float64) (models.Location, error)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Lang    string
	Limit   int
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client is a Geoapify Gateway backed by resty. No retries are configured.
type Client struct {
	client *resty.Client
	apiKey string
	lang   string
	limit  int
	logger *zap.Logger
}

type featureCollection struct {
	Features []struct {
		Properties struct {
			PlaceID   string  `json:"place_id"`
			Formatted string  `json:"formatted"`
			City      string  `json:"city"`
			State     string  `json:"state"`
			Country   string  `json:"country"`
			Lat       float64 `json:"lat"`
			Lon       float64 `json:"lon"`
		} `json:"properties"`
	} `json:"features"`
}

// New returns a Client. The API key is required and is never logged.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: geocoding API key is required", apperr.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := observability.OrNop(cfg.Logger)

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)

	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if corrID := observability.CorrelationID(req.Context()); corrID != "" {
			req.SetHeader("X-Correlation-ID", corrID)
		}
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		// Path only: the query string carries the API key.
		logger.Debug("geocode response",
			zap.String("path", resp.RawResponse.Request.URL.Path),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", resp.Time()),
		)
		return nil
	})

	return &Client{
		client: rc,
		apiKey: cfg.APIKey,
		lang:   cfg.Lang,
		limit:  cfg.Limit,
		logger: logger,
	}, nil
}

// Search returns up to Limit places matching text, best match first.
func (c *Client) Search(ctx context.Context, text string) ([]models.Location, error) {
	var fc featureCollection
	err := c.get(ctx, "search", "/geocode/search", map[string]string{
		"text":  text,
		"lang":  c.lang,
		"limit": strconv.Itoa(c.limit),
	}, &fc)
	if err != nil {
		return nil, err
	}
	return toLocations(fc), nil
}

// Reverse returns the place at lat/lon. ErrLocationNotFound when there is none.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (models.Location, error) {
	var fc featureCollection
	err := c.get(ctx, "reverse", "/geocode/reverse", map[string]string{
		"lat":  models.FormatCoordinate(lat),
		"lon":  models.FormatCoordinate(lon),
		"lang": c.lang,
	}, &fc)
	if err != nil {
		return models.Location{}, err
	}
	locs := toLocations(fc)
	if len(locs) == 0 {
		return models.Location{}, fmt.Errorf("reverse geocode %s: %w", models.CoordinateKey(lat, lon), apperr.ErrLocationNotFound)
	}
	return locs[0], nil
}

func (c *Client) get(ctx context.Context, op, path string, params map[string]string, out *featureCollection) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("apiKey", c.apiKey).
		SetResult(out).
		Get(path)
	if err != nil {
		observability.GeocodeRequestsTotal.WithLabelValues(op, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &apperr.NetworkError{Op: "geocode " + op, Err: fmt.Errorf("request timeout: %w", err)}
		}
		return &apperr.NetworkError{Op: "geocode " + op, Err: errors.New(redact(err.Error(), c.apiKey))}
	}
	if !resp.IsSuccess() {
		observability.GeocodeRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode())).Inc()
		return &apperr.NetworkError{Op: "geocode " + op, StatusCode: resp.StatusCode(), Err: statusError(resp.StatusCode())}
	}
	observability.GeocodeRequestsTotal.WithLabelValues(op, "success").Inc()
	return nil
}

func statusError(code int) error {
	switch {
	case code == 429:
		return apperr.ErrRateLimited
	case code >= 500:
		return apperr.ErrUpstreamFailure
	default:
		return fmt.Errorf("geocode status %d", code)
	}
}

// redact strips the API key from transport error text, which embeds the URL.
func redact(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, "REDACTED")
}

func toLocations(fc featureCollection) []models.Location {
	out := make([]models.Location, 0, len(fc.Features))
	for _, f := range fc.Features {
		p := f.Properties
		name := p.Formatted
		if name == "" {
			name = strings.Join(nonEmpty(p.City, p.State, p.Country), ", ")
		}
		if name == "" {
			continue
		}
		out = append(out, models.Location{PlaceID: p.PlaceID, DisplayName: name, Lat: p.Lat, Lon: p.Lon})
	}
	return out
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
