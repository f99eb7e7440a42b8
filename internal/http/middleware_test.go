package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/traffic"
)

func TestMiddleware_CorrelationIDGeneratedAndEchoed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var seen string

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
		observability.LoggerFrom(r.Context(), nil).Info("handled")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	got := w.Header().Get("X-Correlation-ID")
	if got == "" || got != seen {
		t.Errorf("X-Correlation-ID = %q, context id = %q", got, seen)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != got {
		t.Errorf("request logger fields = %+v", entries)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(nil))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/slow/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := getRoute(r); got != "/slow/{id}" {
			t.Errorf("route label = %q, want template", got)
		}
		close(entered)
		<-release
	})

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow/42", nil))
		close(done)
	}()

	<-entered
	if n := InFlightCount(); n < 1 {
		t.Errorf("InFlightCount() = %d while request is running", n)
	}
	close(release)
	<-done
	if n := InFlightCount(); n != 0 {
		t.Errorf("InFlightCount() = %d after request finished", n)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{404, "4xx"},
		{429, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(50 * time.Millisecond))
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok || time.Until(deadline) > 50*time.Millisecond {
			t.Errorf("deadline = %v, %v", deadline, ok)
		}
		<-r.Context().Done()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTimeoutMiddleware_UpstreamBlocked(t *testing.T) {
	h := newAPIHarness(t, harnessOpts{config: RouterConfig{RequestTimeout: 50 * time.Millisecond}})
	block := make(chan struct{})
	defer close(block)
	h.api.OnRequest(func(r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})

	w := h.do(t, http.MethodGet, "/weather/21.0285,105.8542", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 after request timeout", w.Code)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 2)
	h := newAPIHarness(t, harnessOpts{config: RouterConfig{Limiter: limiter}})

	for i := 0; i < 3; i++ {
		w := h.do(t, http.MethodGet, "/map", "")
		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		var resp errorResponse
		decodeBody(t, w, &resp)
		if resp.Error.Code != "RATE_LIMITED" {
			t.Errorf("error.code = %q, want RATE_LIMITED", resp.Error.Code)
		}
		if resp.Error.RequestID == "" {
			t.Error("429 response has no requestId")
		}
	}
	if n := traffic.DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount = %d, want 1", n)
	}

	// Health stays outside the limiter.
	if w := h.do(t, http.MethodGet, "/health", ""); w.Code == http.StatusTooManyRequests {
		t.Error("/health was rate limited")
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {})

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
}
