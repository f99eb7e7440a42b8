package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
)

// DefaultQuietPeriod is how long a session must stay quiet before its latest
// query runs.
const DefaultQuietPeriod = 500 * time.Millisecond

// Debouncer delays work per key until no newer call for that key has arrived
// within the quiet period.
type Debouncer struct {
	quiet time.Duration

	mu      sync.Mutex
	pending map[string]*waiter
}

type waiter struct {
	timer      *time.Timer
	fire       chan struct{}
	superseded chan struct{}
}

// NewDebouncer returns a Debouncer; quiet <= 0 uses DefaultQuietPeriod.
func NewDebouncer(quiet time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{quiet: quiet, pending: make(map[string]*waiter)}
}

// Wait blocks for the quiet period. It returns nil when this call is still the
// latest for key at the end of the period, ErrSuperseded when a newer call
// replaced it, or the context error.
func (d *Debouncer) Wait(ctx context.Context, key string) error {
	w := &waiter{fire: make(chan struct{}), superseded: make(chan struct{})}

	d.mu.Lock()
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
		close(prev.superseded)
	}
	d.pending[key] = w
	w.timer = time.AfterFunc(d.quiet, func() { close(w.fire) })
	d.mu.Unlock()

	select {
	case <-w.fire:
		if !d.release(key, w) {
			return fmt.Errorf("search %s: %w", key, apperr.ErrSuperseded)
		}
		return nil
	case <-w.superseded:
		return fmt.Errorf("search %s: %w", key, apperr.ErrSuperseded)
	case <-ctx.Done():
		w.timer.Stop()
		d.release(key, w)
		return ctx.Err()
	}
}

// Cancel supersedes the pending call for key, if any, without starting a new one.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
		close(prev.superseded)
		delete(d.pending, key)
	}
}

// Pending reports how many keys have a call waiting.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// release drops w if it is still the pending call for key and reports whether it was.
func (d *Debouncer) release(key string, w *waiter) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[key] != w {
		return false
	}
	delete(d.pending, key)
	return true
}
