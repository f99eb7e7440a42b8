// Package testhelpers provides fixtures and fake upstream servers shared by
// package tests.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// Canned weather API bodies for Hà Nội (21.0285, 105.8542).
const (
	CurrentJSON = `{
  "message": "ok",
  "data": {
    "location": {"name": "Hà Nội", "region": "Hà Nội", "country": "Việt Nam", "lat": 21.0285, "lon": 105.8542, "tz_id": "Asia/Ho_Chi_Minh", "localtime_epoch": 1746090000, "localtime": "2025-05-01 16:00"},
    "current": {
      "last_updated_epoch": 1746089900, "temp_c": 31.2, "is_day": 1,
      "condition": {"text": "Nắng", "icon": "//cdn.weatherapi.com/weather/64x64/day/113.png", "code": 1000},
      "wind_kph": 12.6, "wind_dir": "SE", "pressure_mb": 1008, "precip_mm": 0, "humidity": 62, "cloud": 25,
      "feelslike_c": 35.4, "vis_km": 10, "uv": 8,
      "air_quality": {"co": 420.5, "no2": 18.2, "o3": 61, "so2": 9.1, "pm2_5": 35.7, "pm10": 48.3, "us-epa-index": 2, "gb-defra-index": 3}
    }
  }
}`

	ForecastJSON = `{
  "data": {
    "forecast": {
      "forecastday": [
        {
          "date": "2025-05-01", "date_epoch": 1746057600,
          "day": {"maxtemp_c": 33.1, "mintemp_c": 25.4, "avgtemp_c": 28.9, "maxwind_kph": 18, "totalprecip_mm": 1.2, "avghumidity": 70, "daily_chance_of_rain": 40, "daily_chance_of_snow": 0, "condition": {"text": "Có mưa rào", "icon": "//cdn/176.png", "code": 1063}, "uv": 9},
          "astro": {"sunrise": "05:25 AM", "sunset": "06:24 PM", "moonrise": "07:10 AM", "moonset": "09:02 PM", "moon_phase": "Waxing Crescent", "moon_illumination": 12, "is_moon_up": 0, "is_sun_up": 1},
          "hour": [
            {"time_epoch": 1746057600, "temp_c": 26.1, "condition": {"text": "Quang đãng", "icon": "//cdn/113.png"}, "wind_kph": 6.1, "humidity": 84, "feelslike_c": 28.5, "chance_of_rain": 0, "chance_of_snow": 0, "air_quality": {"pm2_5": 30.1}},
            {"time_epoch": 1746061200, "temp_c": 25.8, "condition": {"text": "Quang đãng", "icon": "//cdn/113.png"}, "wind_kph": 5.4, "humidity": 86, "feelslike_c": 28.0, "chance_of_rain": 10, "chance_of_snow": 0}
          ]
        },
        {
          "date": "2025-05-02", "date_epoch": 1746144000,
          "day": {"maxtemp_c": 34.0, "mintemp_c": 26.0, "avgtemp_c": 29.5, "maxwind_kph": 15, "totalprecip_mm": 0, "avghumidity": 65, "daily_chance_of_rain": 10, "daily_chance_of_snow": 0, "condition": {"text": "Nắng", "icon": "//cdn/113.png", "code": 1000}, "uv": 10},
          "astro": {"sunrise": "05:24 AM", "sunset": "06:25 PM"},
          "hour": []
        }
      ]
    }
  }
}`

	AstronomyJSON = `{
  "data": {
    "astronomy": {
      "astro": {"sunrise": "05:25 AM", "sunset": "06:24 PM", "moonrise": "07:10 AM", "moonset": "09:02 PM", "moon_phase": "Waxing Crescent", "moon_illumination": 12, "is_moon_up": 0, "is_sun_up": 1}
    }
  }
}`

	SevenDayJSON = `{
  "data": {
    "forecast": [
      {"dt": 1746090000, "dt_txt": "2025-05-01 09:00:00", "main": {"temp": 31.2, "feels_like": 35.4, "temp_min": 29.8, "temp_max": 32.0, "humidity": 62}, "weather": [{"id": 800, "main": "Clear", "description": "trời quang", "icon": "01d"}], "wind": {"speed": 3.5, "deg": 140}, "pop": 0.1, "clouds": {"all": 20}, "visibility": 10000},
      {"dt": 1746100800, "dt_txt": "2025-05-01 12:00:00", "main": {"temp": 29.0, "feels_like": 32.0, "temp_min": 28.1, "temp_max": 29.5, "humidity": 70}, "weather": [], "wind": {"speed": 2.1, "deg": 120}, "pop": 0.4, "clouds": {"all": 60}, "visibility": 9000}
    ]
  }
}`

	AirQualityJSON = `{
  "data": {
    "current": {
      "air_quality": {"co": 420.5, "no2": 18.2, "o3": 61, "so2": 9.1, "pm2_5": 35.7, "pm10": 48.3, "us-epa-index": 2, "gb-defra-index": 3}
    }
  }
}`

	NotificationsJSON = `{
  "data": {
    "alerts": [
      {"id": "a1", "type": "weather", "severity": "minor", "title": "Nắng nóng nhẹ", "description": "Nhiệt độ cao", "area": "Hà Nội", "startTime": "2025-05-01T08:00:00Z", "endTime": "2025-05-01T18:00:00Z", "source": "NCHMF", "instructions": "Uống đủ nước"},
      {"id": "a2", "type": "weather", "severity": "severe", "title": "Dông mạnh", "description": "Mưa dông kèm lốc", "area": "Hà Nội", "startTime": "2025-05-01T15:00:00Z", "endTime": "2025-05-01T20:00:00Z", "source": "NCHMF", "instructions": "Tránh ra ngoài"},
      {"id": "a3", "type": "air_quality", "severity": "unheard-of", "title": "Bụi mịn", "description": "PM2.5 cao", "area": "Hà Nội", "startTime": "2025-05-01T00:00:00Z", "endTime": "2025-05-02T00:00:00Z", "source": "IQAir", "instructions": "Đeo khẩu trang"}
    ],
    "total": 3,
    "location": "Hà Nội"
  }
}`

	ChatJSON = `{"data": {"id": "m1", "question": "Hôm nay có mưa không?", "answer": "Chiều nay có khả năng mưa rào.", "sessionId": "s1", "timestamp": "2025-05-01T09:00:00Z"}}`

	ChatHistoryJSON = `{"data": [
  {"id": "m1", "question": "Hôm nay có mưa không?", "answer": "Chiều nay có khả năng mưa rào.", "sessionId": "s1", "timestamp": "2025-05-01T09:00:00Z"},
  {"id": "m2", "question": "Ngày mai thì sao?", "answer": "Ngày mai trời nắng.", "sessionId": "s1", "timestamp": "2025-05-01T09:01:00Z"}
]}`
)

// Response is a canned reply for one path.
type Response struct {
	Status int
	Body   string
}

// FakeWeatherAPI is an httptest server that answers the weather and chat
// endpoints with canned bodies and records every request.
type FakeWeatherAPI struct {
	Server *httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	requests  []*url.URL
	hook      func(r *http.Request)
}

// NewFakeWeatherAPI starts a server preloaded with the Hà Nội fixtures. It is
// closed when the test ends.
func NewFakeWeatherAPI(t testing.TB) *FakeWeatherAPI {
	t.Helper()
	f := &FakeWeatherAPI{
		responses: map[string]Response{
			"/weather/current":        {http.StatusOK, CurrentJSON},
			"/weather/forecast":       {http.StatusOK, ForecastJSON},
			"/weather/forecast/7days": {http.StatusOK, SevenDayJSON},
			"/weather/astronomy":      {http.StatusOK, AstronomyJSON},
			"/weather/air-quality":    {http.StatusOK, AirQualityJSON},
			"/weather/notifications":  {http.StatusOK, NotificationsJSON},
			"/chat":                   {http.StatusOK, ChatJSON},
			"/chat/history":           {http.StatusOK, ChatHistoryJSON},
		},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API root to pass as a client base URL.
func (f *FakeWeatherAPI) URL() string { return f.Server.URL }

// Set replaces the canned response for path.
func (f *FakeWeatherAPI) Set(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = Response{Status: status, Body: body}
}

// OnRequest installs a hook run before each response is written.
func (f *FakeWeatherAPI) OnRequest(hook func(r *http.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Requests returns the URLs received so far.
func (f *FakeWeatherAPI) Requests() []*url.URL {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*url.URL, len(f.requests))
	copy(out, f.requests)
	return out
}

// Count returns how many requests hit path.
func (f *FakeWeatherAPI) Count(path string) int {
	n := 0
	for _, u := range f.Requests() {
		if u.Path == path {
			n++
		}
	}
	return n
}

func (f *FakeWeatherAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	u := *r.URL
	f.requests = append(f.requests, &u)
	resp, ok := f.responses[r.URL.Path]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(r)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}
