package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/location"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/preferences"
	"github.com/kjstillabower/weather-location-sync/internal/search"
	"github.com/kjstillabower/weather-location-sync/internal/service"
)

// Deps are the services behind the HTTP API. Search may be nil when no
// geocoding key is configured; /search then answers 503.
type Deps struct {
	Sync      *service.WeatherSync
	Locations *location.Store
	Alerts    *service.AlertService
	Chat      *service.ChatService
	Search    *search.Service
	Prefs     *preferences.Store
	Logger    *zap.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sync      *service.WeatherSync
	locations *location.Store
	alerts    *service.AlertService
	chat      *service.ChatService
	search    *search.Service
	prefs     *preferences.Store
	logger    *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		sync:      deps.Sync,
		locations: deps.Locations,
		alerts:    deps.Alerts,
		chat:      deps.Chat,
		search:    deps.Search,
		prefs:     deps.Prefs,
		logger:    observability.OrNop(deps.Logger),
	}
}

// currentWeatherResponse is the body of GET /weather.
type currentWeatherResponse struct {
	Location models.Location `json:"location"`
	service.FetchResult
}

// locationChangeResponse is the body of PUT /location/current. The change
// stands even when the follow-up fetch fails; WeatherError then says why.
type locationChangeResponse struct {
	Current      models.Location      `json:"current"`
	Weather      *service.FetchResult `json:"weather,omitempty"`
	WeatherError *errorBody           `json:"weatherError,omitempty"`
}

// deleteResponse is the body of DELETE /locations/{id}.
type deleteResponse struct {
	service.DeleteResult
	WeatherError *errorBody `json:"weatherError,omitempty"`
}

// GetCurrentWeather handles GET /weather?force=true|false.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	loc, fr, err := h.sync.CurrentWeather(r.Context(), forceParam(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, currentWeatherResponse{Location: loc, FetchResult: fr})
}

// GetWeather handles GET /weather/{key}, where key is "lat,lon" or a place name.
// It does not change the current location.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(mux.Vars(r)["key"])
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "location key is required")
		return
	}
	fr, err := h.sync.Fetch(r.Context(), service.FetchRequest{Key: key, Force: forceParam(r)})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

// GetOutlook handles GET /outlook.
func (h *Handler) GetOutlook(w http.ResponseWriter, r *http.Request) {
	days, err := h.sync.SevenDayOutlook(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days})
}

// GetAirQuality handles GET /air-quality.
func (h *Handler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	aq, err := h.sync.AirQuality(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, aq)
}

// GetMap handles GET /map.
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	u, err := h.sync.MapURL(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// GetCurrentLocation handles GET /location/current.
func (h *Handler) GetCurrentLocation(w http.ResponseWriter, r *http.Request) {
	cur, ok, err := h.locations.Current(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no current location is set")
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

// PutCurrentLocation handles PUT /location/current.
func (h *Handler) PutCurrentLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := decodeJSON(r, &loc); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "request body must be a location")
		return
	}
	loc.DisplayName = strings.TrimSpace(loc.DisplayName)
	if loc.DisplayName == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "displayName is required")
		return
	}

	fr, err := h.sync.HandleLocationChange(r.Context(), loc)
	var stErr *apperr.StorageError
	if errors.As(err, &stErr) {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := locationChangeResponse{Current: loc}
	if err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Warn("weather fetch after location change failed",
			zap.String("location", loc.DisplayName), zap.Error(err))
		resp.WeatherError = errorPayload(r, err)
	} else {
		resp.Weather = &fr
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListLocations handles GET /locations.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	list, err := h.locations.ListSaved(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"locations": list})
}

// AddLocation handles POST /locations.
func (h *Handler) AddLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := decodeJSON(r, &loc); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "request body must be a location")
		return
	}
	list, err := h.locations.AddSaved(r.Context(), loc)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"locations": list})
}

// DeleteLocation handles DELETE /locations/{id}.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	res, err := h.sync.HandleDeleteLocation(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := deleteResponse{DeleteResult: res}
	if res.Err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Warn("follow-up after location delete failed",
			zap.String("removed", res.Removed.Identity()), zap.Error(res.Err))
		resp.WeatherError = errorPayload(r, res.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// PreviewLocation handles POST /locations/preview. Nothing is persisted.
func (h *Handler) PreviewLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := decodeJSON(r, &loc); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "request body must be a location")
		return
	}
	b, err := h.sync.Preview(r.Context(), loc)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Search handles GET /search?q=...&session=....
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeError(w, r, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "place search is not configured")
		return
	}
	q := r.URL.Query()
	session := q.Get("session")
	if session == "" {
		session = observability.CorrelationID(r.Context())
	}
	res, err := h.search.Search(r.Context(), session, q.Get("q"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetAlerts handles GET /alerts?type=...&area=....
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.alerts.Alerts(r.Context(), service.AlertFilter{Type: q.Get("type"), Area: q.Get("area")})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type severityBody struct {
	Severity string `json:"severity"`
}

// GetAlertSeverity handles GET /settings/alert-severity.
func (h *Handler) GetAlertSeverity(w http.ResponseWriter, r *http.Request) {
	sev, err := h.prefs.AlertSeverity(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, severityBody{Severity: sev.String()})
}

// PutAlertSeverity handles PUT /settings/alert-severity.
func (h *Handler) PutAlertSeverity(w http.ResponseWriter, r *http.Request) {
	var body severityBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", `request body must be {"severity": "..."}`)
		return
	}
	sev, err := h.prefs.SetAlertSeverity(r.Context(), body.Severity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, severityBody{Severity: sev.String()})
}

// NewChatSession handles POST /chat/sessions.
func (h *Handler) NewChatSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": h.chat.NewSession()})
}

type chatBody struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

// AskChat handles POST /chat.
func (h *Handler) AskChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "request body must carry sessionId and question")
		return
	}
	msg, err := h.chat.Ask(r.Context(), body.SessionID, body.Question)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// ChatHistory handles GET /chat/history?sessionId=....
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chat.History(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func forceParam(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return v
}
