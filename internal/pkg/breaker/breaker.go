package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// State describes the circuit breaker state machine.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
var ErrOpen = errors.New("circuit breaker is open")

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
)

// Config controls when a breaker trips and when it probes again.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// IsFailure decides whether an error counts toward the failure threshold.
	// Errors outside this class still propagate but leave the breaker alone,
	// so programming errors cannot trip it. Nil counts every error.
	IsFailure func(error) bool
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	return c
}

// Store holds breaker state per key. The in-process implementation protects
// state with a mutex; the Redis implementation keeps transitions atomic via
// scripts so multiple app instances share one breaker.
type Store interface {
	// Acquire reports whether a call may proceed. When the breaker is open
	// and the reset timeout has elapsed it transitions to half-open and
	// admits exactly one trial call.
	Acquire(ctx context.Context, key string, threshold int, resetTimeout time.Duration) (State, bool, error)
	// Success records a successful call: failure count drops to zero and the
	// breaker closes.
	Success(ctx context.Context, key string) error
	// Failure records a counted failure. It returns the resulting state and
	// whether this call tripped the breaker open.
	Failure(ctx context.Context, key string, threshold int, resetTimeout time.Duration) (State, bool, error)
	// Release frees the half-open trial slot after a call whose outcome
	// counts neither as success nor failure, so the next caller can run
	// its own trial.
	Release(ctx context.Context, key string) error
	// State returns the current state without side effects.
	State(ctx context.Context, key string) (State, error)
	// Reset forces the breaker back to closed.
	Reset(ctx context.Context, key string) error
}

// Breaker is a per-provider failure containment guard. Use Allow before the
// risky call and Record with its outcome afterwards, or wrap both with Execute.
type Breaker struct {
	name   string
	cfg    Config
	store  Store
	onTrip func(name string)
}

// New creates a breaker for one provider backed by the given store.
func New(name string, cfg Config, store Store) *Breaker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Breaker{name: name, cfg: cfg.withDefaults(), store: store}
}

// OnTrip registers a hook invoked when the breaker transitions to open.
func (b *Breaker) OnTrip(fn func(name string)) {
	b.onTrip = fn
}

// Allow returns ErrOpen when the call must be rejected without attempting it.
func (b *Breaker) Allow(ctx context.Context) error {
	state, ok, err := b.store.Acquire(ctx, b.name, b.cfg.FailureThreshold, b.cfg.ResetTimeout)
	if err != nil {
		// A broken state store must not take the caller down with it.
		log.Warnf("[Breaker] %s: state store unavailable, allowing call: %v", b.name, err)
		return nil
	}
	if !ok {
		return ErrOpen
	}
	if state == StateHalfOpen {
		log.Infof("[Breaker] %s: half-open, admitting trial call", b.name)
	}
	return nil
}

// Record applies a call outcome to the breaker. Errors that do not match the
// configured failure class are ignored.
func (b *Breaker) Record(ctx context.Context, callErr error) {
	if callErr == nil {
		if err := b.store.Success(ctx, b.name); err != nil {
			log.Warnf("[Breaker] %s: recording success failed: %v", b.name, err)
		}
		return
	}
	if b.cfg.IsFailure != nil && !b.cfg.IsFailure(callErr) {
		// The outcome does not count, but a half-open trial slot must not
		// stay reserved for a call that already finished.
		if err := b.store.Release(ctx, b.name); err != nil {
			log.Warnf("[Breaker] %s: releasing trial slot failed: %v", b.name, err)
		}
		return
	}
	state, tripped, err := b.store.Failure(ctx, b.name, b.cfg.FailureThreshold, b.cfg.ResetTimeout)
	if err != nil {
		log.Warnf("[Breaker] %s: recording failure failed: %v", b.name, err)
		return
	}
	if tripped {
		log.Warnf("[Breaker] %s: tripped open after %d failures", b.name, b.cfg.FailureThreshold)
		if b.onTrip != nil {
			b.onTrip(b.name)
		}
	} else if state == StateOpen {
		log.Infof("[Breaker] %s: trial call failed, staying open", b.name)
	}
}

// Execute runs fn under the breaker guard.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(ctx); err != nil {
		return err
	}
	callErr := fn(ctx)
	b.Record(ctx, callErr)
	return callErr
}

// State returns the current breaker state.
func (b *Breaker) State(ctx context.Context) State {
	state, err := b.store.State(ctx, b.name)
	if err != nil {
		return StateClosed
	}
	return state
}

// Reset forces the breaker closed, e.g. from the admin API after an incident.
func (b *Breaker) Reset(ctx context.Context) error {
	return b.store.Reset(ctx, b.name)
}
