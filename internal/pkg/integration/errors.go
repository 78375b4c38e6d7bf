package integration

import (
	"errors"
	"fmt"

	"github.com/mkessler-dev/HostPulse/internal/pkg/breaker"
)

// ErrRateLimited is returned when the request budget for the current window
// is exhausted. The call was not attempted and nothing was recorded; callers
// should back off until the window rolls over.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrCircuitOpen is returned when the provider's breaker rejects the call.
// Callers should use a fallback provider or fail fast.
var ErrCircuitOpen = breaker.ErrOpen

// ErrTimeout marks a provider call cancelled by its deadline.
var ErrTimeout = errors.New("provider call timed out")

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps connection-level failures (DNS, refused, reset).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error counts toward the breaker failure
// threshold. Timeouts, transport failures and 5xx responses are transient;
// 4xx responses are request errors and leave the breaker alone.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500 || he.StatusCode == 429
	}
	return false
}
