package session

import (
	"sync"
	"time"

	"github.com/clearline-ai/clearline/pkg/core/policy"
)

// history is the append-only conversation record, the source of truth
// for prompt context. Turns are appended in completion order and never
// mutated in place.
type history struct {
	mu    sync.Mutex
	turns []policy.Turn
}

func newHistory() *history {
	return &history{turns: make([]policy.Turn, 0, 16)}
}

func (h *history) appendCaller(text string, at time.Time) {
	h.append(policy.Turn{Role: "caller", Text: text, Timestamp: at})
}

func (h *history) appendAssistant(text string, at time.Time) {
	h.append(policy.Turn{Role: "assistant", Text: text, Timestamp: at})
}

func (h *history) append(t policy.Turn) {
	h.mu.Lock()
	h.turns = append(h.turns, t)
	h.mu.Unlock()
}

func (h *history) snapshot() []policy.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]policy.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
