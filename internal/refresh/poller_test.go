package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/service"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	ok    bool
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (service.FetchResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, has := ctx.Deadline(); !has {
		return service.FetchResult{}, false, errors.New("run context has no deadline")
	}
	return service.FetchResult{Key: "21.0285,105.8542"}, f.ok, f.err
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunOnce_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		ok       bool
		err      error
		wantWarn int
	}{
		{"refreshed", true, nil, 0},
		{"no current location", false, nil, 0},
		{"superseded", true, apperr.ErrSuperseded, 0},
		{"upstream down", true, &apperr.NetworkError{Op: "current", StatusCode: 503, Err: apperr.ErrUpstreamFailure}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			r := &fakeRefresher{ok: tt.ok, err: tt.err}
			p := NewPoller(r, time.Minute, time.Second, zap.New(core))

			p.RunOnce(context.Background())

			if r.count() != 1 {
				t.Errorf("Refresh calls = %d, want 1", r.count())
			}
			if n := logs.FilterMessage("scheduled refresh failed").Len(); n != tt.wantWarn {
				t.Errorf("warnings = %d, want %d", n, tt.wantWarn)
			}
		})
	}
}

func TestPoller_RunsOnInterval(t *testing.T) {
	r := &fakeRefresher{ok: true}
	p := NewPoller(r, 20*time.Millisecond, time.Second, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for r.count() < 2 {
		if time.Now().After(deadline) {
			p.Stop()
			t.Fatalf("Refresh calls = %d after 3s, want >= 2", r.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()

	n := r.count()
	time.Sleep(60 * time.Millisecond)
	if r.count() > n+1 {
		t.Errorf("poller kept running after Stop: %d -> %d", n, r.count())
	}
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&fakeRefresher{}, 0, 0, nil)
	if p.interval != DefaultInterval || p.timeout != defaultRunTimeout {
		t.Errorf("interval = %v, timeout = %v", p.interval, p.timeout)
	}
}
