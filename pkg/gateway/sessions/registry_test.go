package sessions

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestRegisterLookupUnregister(t *testing.T) {
	r := NewRegistry()
	unregister := r.Register("call-1", Handle{})

	if _, ok := r.Lookup("call-1"); !ok {
		t.Fatal("expected call-1 in registry")
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}

	unregister()
	if _, ok := r.Lookup("call-1"); ok {
		t.Error("call-1 still present after unregister")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	unregister := r.Register("call-1", Handle{})
	unregister()
	unregister() // second call must be a no-op, not a wg underflow

	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !r.Wait(ctx) {
		t.Error("Wait should return immediately with no sessions")
	}
}

func TestRekey(t *testing.T) {
	r := NewRegistry()
	unregister := r.Register("provisional", Handle{})

	if !r.Rekey("provisional", "CA1") {
		t.Fatal("Rekey failed")
	}
	if _, ok := r.Lookup("provisional"); ok {
		t.Error("provisional key still present")
	}
	if _, ok := r.Lookup("CA1"); !ok {
		t.Error("definitive key missing")
	}

	// Unregister still works through the original closure after rekey.
	unregister()
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}

func TestRekeyMissingSource(t *testing.T) {
	r := NewRegistry()
	if r.Rekey("absent", "CA1") {
		t.Error("Rekey of missing key should fail")
	}
}

func TestRegisterDisplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register("call-1", Handle{})
	second := r.Register("call-1", Handle{})

	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}

	// The displaced entry released its wait slot when it was replaced,
	// so draining only needs the live entry to unregister.
	second()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !r.Wait(ctx) {
		t.Error("Wait timed out; displaced entry leaked a wait slot")
	}
}

func TestSweepReapsIdleSessions(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	closed := map[string]bool{}
	makeHandle := func(id string, last time.Time) Handle {
		var unregister func()
		h := Handle{
			LastActivity: func() time.Time { return last },
			Close: func() {
				mu.Lock()
				closed[id] = true
				mu.Unlock()
				unregister()
			},
		}
		unregister = r.Register(id, h)
		return h
	}

	makeHandle("stale", time.Now().Add(-time.Hour))
	makeHandle("fresh", time.Now())

	r.sweepOnce(SweepConfig{IdleTimeout: 30 * time.Minute}, slog.Default())

	mu.Lock()
	defer mu.Unlock()
	if !closed["stale"] {
		t.Error("stale session was not closed")
	}
	if closed["fresh"] {
		t.Error("fresh session must not be closed")
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}
}

func TestWaitDrains(t *testing.T) {
	r := NewRegistry()
	unregister := r.Register("call-1", Handle{})

	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- r.Wait(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	unregister()

	if ok := <-done; !ok {
		t.Error("Wait should succeed once all sessions unregister")
	}
}
