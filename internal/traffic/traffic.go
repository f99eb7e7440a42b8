// Package traffic keeps sliding windows of request and fetch outcomes. The
// health handler reads them to decide between healthy, overloaded, and degraded.
package traffic

import (
	"errors"
	"sync"
	"time"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
)

// retention bounds how long outcomes are kept regardless of the queried window.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordSuccess records a successful fetch.
func RecordSuccess() { defaultTracker.RecordSuccess() }

// RecordError records a failed fetch.
func RecordError() { defaultTracker.RecordError() }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.RecordDenied() }

// RecordFetch classifies err and records it on the default tracker.
func RecordFetch(err error) { defaultTracker.RecordFetch(err) }

// RequestCount returns the number of outcomes (success + error + denied) within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// ErrorRate returns (errorCount, totalCount) within the window. Denials are excluded.
func ErrorRate(window time.Duration) (errs, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker reading time from now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// RecordSuccess records a successful fetch.
func (t *Tracker) RecordSuccess() { t.record(&t.successTimes) }

// RecordError records a failed fetch.
func (t *Tracker) RecordError() { t.record(&t.errorTimes) }

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() { t.record(&t.deniedTimes) }

// RecordFetch records err as a success or error. Superseded fetches and
// caller mistakes (invalid input, missing location) say nothing about
// upstream health and are skipped.
func (t *Tracker) RecordFetch(err error) {
	switch {
	case err == nil:
		t.RecordSuccess()
	case errors.Is(err, apperr.ErrSuperseded):
	default:
		switch apperr.CategorizeError(err) {
		case apperr.ErrorCategoryInvalidInput, apperr.ErrorCategoryLocationNotFound, apperr.ErrorCategoryPermission:
			return
		}
		t.RecordError()
	}
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns the total number of outcomes within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successTimes, cutoff) +
		countSince(t.errorTimes, cutoff) +
		countSince(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errs, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errs = countSince(t.errorTimes, cutoff)
	return errs, errs + countSince(t.successTimes, cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
