package breaker

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state       State
	failures    int
	lastFailure time.Time
	trial       bool
}

// MemoryStore keeps breaker state in-process behind a mutex. This is the
// default backend for single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process breaker state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (s *MemoryStore) entry(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{state: StateClosed}
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) Acquire(_ context.Context, key string, _ int, resetTimeout time.Duration) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	switch e.state {
	case StateClosed:
		return StateClosed, true, nil
	case StateOpen:
		if s.now().Sub(e.lastFailure) >= resetTimeout {
			e.state = StateHalfOpen
			e.trial = true
			return StateHalfOpen, true, nil
		}
		return StateOpen, false, nil
	default: // half-open
		if e.trial {
			// A trial call is already in flight.
			return StateHalfOpen, false, nil
		}
		e.trial = true
		return StateHalfOpen, true, nil
	}
}

func (s *MemoryStore) Success(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	e.state = StateClosed
	e.failures = 0
	e.trial = false
	return nil
}

func (s *MemoryStore) Failure(_ context.Context, key string, threshold int, _ time.Duration) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	switch e.state {
	case StateHalfOpen:
		e.state = StateOpen
		e.lastFailure = s.now()
		e.trial = false
		return StateOpen, false, nil
	case StateOpen:
		// A late-completing call failed while the breaker is already open.
		// The cooldown keeps its original deadline.
		return StateOpen, false, nil
	}
	e.failures++
	if e.failures >= threshold {
		e.state = StateOpen
		e.lastFailure = s.now()
		return StateOpen, true, nil
	}
	return StateClosed, false, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	if e.state == StateHalfOpen {
		e.trial = false
	}
	return nil
}

func (s *MemoryStore) State(_ context.Context, key string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry(key).state, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
