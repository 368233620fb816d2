// Package sessions tracks active call sessions: insert, lookup, rekey,
// drain on shutdown, and a background sweep that reaps idle calls.
package sessions

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "clearline_active_sessions",
	Help: "Number of call sessions currently registered.",
})

// Handle is what the registry knows about a session. Close must be
// idempotent; the sweep and explicit teardown may race.
type Handle struct {
	Close        func()
	LastActivity func() time.Time
}

// Registry is the shared session table. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
}

type entry struct {
	key    string
	handle Handle
	once   sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Register inserts a session under key and returns its unregister
// function. Registering over an existing key unregisters the old entry.
// Unregister is safe to call more than once; a session leaves the table
// exactly once.
func (r *Registry) Register(key string, h Handle) (unregister func()) {
	if r == nil {
		return func() {}
	}

	e := &entry{key: key, handle: h}

	r.mu.Lock()
	old := r.sessions[key]
	r.sessions[key] = e
	r.wg.Add(1)
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if old != nil {
		r.unregister(old)
	}

	return func() { r.unregister(e) }
}

func (r *Registry) unregister(e *entry) {
	if r == nil || e == nil {
		return
	}
	e.once.Do(func() {
		r.mu.Lock()
		if r.sessions[e.key] == e {
			delete(r.sessions, e.key)
		}
		activeSessions.Set(float64(len(r.sessions)))
		r.mu.Unlock()
		r.wg.Done()
	})
}

// Rekey moves a session from its provisional key to the definitive call
// identifier supplied by the start event. An existing session under the
// new key is unregistered first.
func (r *Registry) Rekey(oldKey, newKey string) bool {
	if r == nil || oldKey == newKey {
		return r != nil
	}

	r.mu.Lock()
	e := r.sessions[oldKey]
	if e == nil {
		r.mu.Unlock()
		return false
	}
	displaced := r.sessions[newKey]
	delete(r.sessions, oldKey)
	r.sessions[newKey] = e
	e.key = newKey
	r.mu.Unlock()

	if displaced != nil {
		r.unregister(displaced)
	}
	return true
}

// Lookup returns the handle registered under key.
func (r *Registry) Lookup(key string) (Handle, bool) {
	if r == nil {
		return Handle{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[key]
	if !ok {
		return Handle{}, false
	}
	return e.handle, true
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every registered session, used on shutdown.
func (r *Registry) CloseAll() (closed int) {
	for _, h := range r.snapshot(time.Time{}) {
		if h.Close != nil {
			h.Close()
			closed++
		}
	}
	return closed
}

// Wait blocks until every session has unregistered or ctx expires.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// SweepConfig tunes the idle sweep.
type SweepConfig struct {
	Interval     time.Duration // how often to scan, default 1m
	IdleTimeout  time.Duration // inactivity before a session is reaped, default 30m
	MemWarnBytes uint64        // heap size that triggers a warning log, 0 disables
	Logger       *slog.Logger
}

// Sweep runs the idle reaper until ctx is canceled. Idle sessions are
// closed through their own teardown path, which unregisters them; the
// sweep never deletes table entries directly. Elevated memory is a
// warning, never fatal.
func (r *Registry) Sweep(ctx context.Context, cfg SweepConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(cfg, logger)
		}
	}
}

func (r *Registry) sweepOnce(cfg SweepConfig, logger *slog.Logger) {
	cutoff := time.Now().Add(-cfg.IdleTimeout)
	idle := r.snapshot(cutoff)
	for _, h := range idle {
		if h.Close != nil {
			h.Close()
		}
	}
	if len(idle) > 0 {
		logger.Warn("reaped idle sessions", "count", len(idle), "idle_timeout", cfg.IdleTimeout)
	}

	if cfg.MemWarnBytes > 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > cfg.MemWarnBytes {
			logger.Warn("elevated heap usage",
				"heap_alloc", ms.HeapAlloc,
				"threshold", cfg.MemWarnBytes,
				"sessions", r.Count())
		}
	}
}

// snapshot returns handles whose last activity is before cutoff. A zero
// cutoff matches everything.
func (r *Registry) snapshot(cutoff time.Time) []Handle {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Handle
	for _, e := range r.sessions {
		if cutoff.IsZero() {
			out = append(out, e.handle)
			continue
		}
		if e.handle.LastActivity != nil && e.handle.LastActivity().Before(cutoff) {
			out = append(out, e.handle)
		}
	}
	return out
}
