package poller

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCircuitBreakerExecute(t *testing.T) {
	cb := NewCircuitBreaker(2, 20*time.Millisecond, nil)
	if cb.logger == nil {
		t.Fatal("expected default logger")
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed state, got %v", cb.State())
	}

	var transitions []CircuitState
	cb.OnStateChange(func(s CircuitState) { transitions = append(transitions, s) })

	if err := cb.Execute("ok", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := cb.Execute("fail-1", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected first failure")
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("breaker should still be closed after first failure, got %v", cb.State())
	}
	if err := cb.Execute("fail-2", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected second failure")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("breaker should be open, got %v", cb.State())
	}

	called := false
	if err := cb.Execute("blocked", func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("open breaker must not call fn")
	}

	cb.now = func() time.Time { return time.Now().Add(time.Second) }
	if err := cb.Execute("half-open-success", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error in half-open: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after successful trial call, got %v", cb.State())
	}

	want := []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d: expected %v, got %v", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond, nil)
	_ = cb.Execute("fail", func() error { return errors.New("boom") })

	cb.now = func() time.Time { return time.Now().Add(time.Second) }
	if err := cb.Execute("trial", func() error { return errors.New("still down") }); err == nil {
		t.Fatal("expected trial call failure")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after failed trial call, got %v", cb.State())
	}
}

func TestCircuitBreakerSingleTrialCallInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond, nil)
	_ = cb.Execute("fail", func() error { return errors.New("boom") })
	cb.now = func() time.Time { return time.Now().Add(time.Second) }

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute("trial", func() error {
			calls.Add(1)
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute("concurrent", func() error { calls.Add(1); return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected concurrent call to be rejected during trial call, got %v", err)
	}

	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one trial call, got %d", calls.Load())
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after trial call, got %v", cb.State())
	}
}

func TestCircuitStateString(t *testing.T) {
	if CircuitClosed.String() != "closed" || CircuitOpen.String() != "open" || CircuitHalfOpen.String() != "half-open" {
		t.Fatal("unexpected state names")
	}
}
