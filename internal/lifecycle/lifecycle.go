// Package lifecycle holds process-wide readiness and draining flags read by
// the health handler.
package lifecycle

import "sync/atomic"

var (
	draining atomic.Bool
	ready    atomic.Bool
)

// SetDraining sets the draining flag. Call when SIGTERM/SIGINT is received.
// Health returns 503 with status shutting-down while true.
func SetDraining(v bool) {
	draining.Store(v)
}

// IsDraining reports whether the process is shutting down and should not receive new traffic.
func IsDraining() bool {
	return draining.Load()
}

// MarkReady records that startup (cache restore and location bootstrap) finished.
func MarkReady() {
	ready.Store(true)
}

// IsReady reports whether startup has finished.
func IsReady() bool {
	return ready.Load()
}

// Reset clears both flags. For tests only.
func Reset() {
	draining.Store(false)
	ready.Store(false)
}
