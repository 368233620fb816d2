package tts

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	synthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearline_tts_synthesis_total",
		Help: "TTS synthesis attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearline_tts_cache_hits_total",
		Help: "TTS synthesis requests served from cache.",
	})
)

// providerState tracks recent failures for a single provider.
type providerState struct {
	consecutiveFailures int
	lastFailure         time.Time
	lastSuccess         time.Time
}

// Health tracks per-provider failure streaks so operators can see which
// leg of the chain is degraded. All methods are safe for concurrent use.
type Health struct {
	mu    sync.Mutex
	state map[string]*providerState
}

// NewHealth creates an empty health tracker.
func NewHealth() *Health {
	return &Health{state: make(map[string]*providerState)}
}

// RecordSuccess resets the failure streak for a provider.
func (h *Health) RecordSuccess(provider string) {
	synthesisTotal.WithLabelValues(provider, "success").Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(provider)
	s.consecutiveFailures = 0
	s.lastSuccess = time.Now()
}

// RecordFailure increments the failure streak for a provider.
func (h *Health) RecordFailure(provider string) {
	synthesisTotal.WithLabelValues(provider, "failure").Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(provider)
	s.consecutiveFailures++
	s.lastFailure = time.Now()
}

// ConsecutiveFailures returns the current failure streak for a provider.
func (h *Health) ConsecutiveFailures(provider string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.state[provider]
	if !ok {
		return 0
	}
	return s.consecutiveFailures
}

// LastFailure returns when the provider last failed, zero if never.
func (h *Health) LastFailure(provider string) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.state[provider]
	if !ok {
		return time.Time{}
	}
	return s.lastFailure
}

func (h *Health) get(provider string) *providerState {
	s, ok := h.state[provider]
	if !ok {
		s = &providerState{}
		h.state[provider] = s
	}
	return s
}
