package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

// failTimes runs n failing calls through the breaker.
func failTimes(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(func() error { return errBackend })
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = (%d, %v, %d), want (5, 30s, 3)",
			cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("initial state = %v, want closed", got)
	}
}

func TestCircuitBreaker_ForwardsWhileClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt", MaxFailures: 3})

	calls := 0
	if err := cb.Execute(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})

	failTimes(cb, 3)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state after 3 failures = %v, want open", got)
	}

	err := cb.Execute(func() error {
		t.Error("call forwarded through an open breaker")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessClearsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt", MaxFailures: 3})

	failTimes(cb, 2)
	_ = cb.Execute(func() error { return nil })
	failTimes(cb, 2)

	// 2 + 2 failures with a success in between never reach the threshold.
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestCircuitBreaker_ProbesAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	failTimes(cb, 2)
	time.Sleep(20 * time.Millisecond)

	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want half-open", got)
	}

	// Enough successful probes close the breaker again.
	for i := range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after probes = %v, want closed", got)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 50 * time.Millisecond,
		HalfOpenMax:  3,
	})

	failTimes(cb, 2)
	time.Sleep(60 * time.Millisecond)

	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe err = %v, want errBackend", err)
	}

	// One bad probe re-opens for a full timeout.
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err after failed probe = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	failTimes(cb, 2)
	cb.Reset()

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after reset = %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
