// Package lifecycle tracks whether the gateway is draining. The flag
// flips once at shutdown and is polled by the readiness endpoint and the
// stream handler, which stops accepting new calls while in-flight
// sessions wind down.
package lifecycle

import "sync/atomic"

// Lifecycle holds the draining flag shared between the HTTP handlers
// and the shutdown path. The zero value is ready to use and not
// draining; a nil receiver reads as not draining so handlers need no
// guard.
type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining flips the draining flag. Called once with true when a
// shutdown signal arrives.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

// IsDraining reports whether shutdown has begun.
func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
