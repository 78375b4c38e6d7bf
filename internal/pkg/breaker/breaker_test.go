package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	b := New("test-provider", cfg, store)
	return b, store, &now
}

func failTimes(t *testing.T, b *Breaker, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := b.Allow(ctx); err != nil {
			t.Fatalf("call %d unexpectedly rejected: %v", i+1, err)
		}
		b.Record(ctx, errUpstream)
	}
}

func TestBreakerTripsAtFailureThreshold(t *testing.T) {
	b, _, _ := newTestBreaker(t, Config{FailureThreshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	failTimes(t, b, 3)

	if got := b.State(ctx); got != StateOpen {
		t.Fatalf("state = %q, want open", got)
	}

	calls := 0
	err := b.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("open breaker must not invoke the operation, got %d calls", calls)
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b, _, _ := newTestBreaker(t, Config{FailureThreshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	failTimes(t, b, 2)
	if got := b.State(ctx); got != StateClosed {
		t.Fatalf("state = %q, want closed", got)
	}

	// A success resets the count, so two more failures still stay closed.
	b.Record(ctx, nil)
	failTimes(t, b, 2)
	if got := b.State(ctx); got != StateClosed {
		t.Fatalf("state after reset = %q, want closed", got)
	}
}

func TestBreakerHalfOpenTrialSuccessCloses(t *testing.T) {
	b, _, now := newTestBreaker(t, Config{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	failTimes(t, b, 2)
	*now = now.Add(61 * time.Second)

	if err := b.Allow(ctx); err != nil {
		t.Fatalf("trial call after reset timeout rejected: %v", err)
	}
	if got := b.State(ctx); got != StateHalfOpen {
		t.Fatalf("state = %q, want half_open", got)
	}

	b.Record(ctx, nil)
	if got := b.State(ctx); got != StateClosed {
		t.Fatalf("state after trial success = %q, want closed", got)
	}

	// Failure count went back to zero: one failure must not trip it again.
	failTimes(t, b, 1)
	if got := b.State(ctx); got != StateClosed {
		t.Fatalf("state = %q, want closed", got)
	}
}

func TestBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	b, _, now := newTestBreaker(t, Config{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	failTimes(t, b, 2)
	*now = now.Add(61 * time.Second)

	if err := b.Allow(ctx); err != nil {
		t.Fatalf("trial call rejected: %v", err)
	}
	b.Record(ctx, errUpstream)

	if got := b.State(ctx); got != StateOpen {
		t.Fatalf("state after trial failure = %q, want open", got)
	}
	// last_failure was refreshed, so the next call inside the timeout is rejected.
	*now = now.Add(30 * time.Second)
	if err := b.Allow(ctx); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen inside refreshed timeout, got %v", err)
	}
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	b, _, now := newTestBreaker(t, Config{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	failTimes(t, b, 1)
	*now = now.Add(2 * time.Minute)

	if err := b.Allow(ctx); err != nil {
		t.Fatalf("first trial rejected: %v", err)
	}
	if err := b.Allow(ctx); !errors.Is(err, ErrOpen) {
		t.Fatalf("second concurrent trial must be rejected, got %v", err)
	}
}

func TestBreakerIgnoresUnexpectedErrors(t *testing.T) {
	cfg := Config{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		IsFailure:        func(err error) bool { return errors.Is(err, errUpstream) },
	}
	b, _, _ := newTestBreaker(t, cfg)
	ctx := context.Background()

	b.Record(ctx, errors.New("nil pointer dereference"))
	if got := b.State(ctx); got != StateClosed {
		t.Fatalf("programming error must not trip breaker, state = %q", got)
	}

	b.Record(ctx, errUpstream)
	if got := b.State(ctx); got != StateOpen {
		t.Fatalf("expected counted failure to trip, state = %q", got)
	}
}

func TestBreakerUncountedTrialOutcomeFreesSlot(t *testing.T) {
	cfg := Config{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		IsFailure:        func(err error) bool { return errors.Is(err, errUpstream) },
	}
	b, _, now := newTestBreaker(t, cfg)
	ctx := context.Background()

	failTimes(t, b, 1)
	*now = now.Add(2 * time.Minute)

	if err := b.Allow(ctx); err != nil {
		t.Fatalf("trial call rejected: %v", err)
	}
	// The trial finished with an error outside the failure class. That
	// outcome neither closes nor reopens the breaker, but the trial slot
	// must come free for the next caller.
	b.Record(ctx, errors.New("404 not found"))

	if err := b.Allow(ctx); err != nil {
		t.Fatalf("breaker stuck after uncounted trial outcome: %v", err)
	}
	b.Record(ctx, nil)
	if got := b.State(ctx); got != StateClosed {
		t.Fatalf("state after trial success = %q, want closed", got)
	}
}

func TestBreakerLateFailureWhileOpenKeepsDeadline(t *testing.T) {
	b, _, now := newTestBreaker(t, Config{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	failTimes(t, b, 1)

	// A slow in-flight call fails after the breaker already tripped. The
	// reset deadline still counts from the trip, not from this outcome.
	*now = now.Add(30 * time.Second)
	b.Record(ctx, errUpstream)

	*now = now.Add(31 * time.Second)
	if err := b.Allow(ctx); err != nil {
		t.Fatalf("late failure extended the cooldown: %v", err)
	}
	if got := b.State(ctx); got != StateHalfOpen {
		t.Fatalf("state = %q, want half_open", got)
	}
}

func TestBreakerOnTripHook(t *testing.T) {
	b, _, _ := newTestBreaker(t, Config{FailureThreshold: 2, ResetTimeout: time.Minute})
	tripped := ""
	b.OnTrip(func(name string) { tripped = name })

	failTimes(t, b, 2)
	if tripped != "test-provider" {
		t.Fatalf("expected trip hook to fire with provider name, got %q", tripped)
	}
}

func TestBreakerReset(t *testing.T) {
	b, _, _ := newTestBreaker(t, Config{FailureThreshold: 1, ResetTimeout: time.Hour})
	ctx := context.Background()

	failTimes(t, b, 1)
	if got := b.State(ctx); got != StateOpen {
		t.Fatalf("state = %q, want open", got)
	}
	if err := b.Reset(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got := b.State(ctx); got != StateClosed {
		t.Fatalf("state after reset = %q, want closed", got)
	}
	if err := b.Allow(ctx); err != nil {
		t.Fatalf("call after reset rejected: %v", err)
	}
}
