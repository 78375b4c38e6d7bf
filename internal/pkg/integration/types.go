package integration

import (
	"encoding/json"
	"time"

	"github.com/mkessler-dev/HostPulse/internal/pkg/breaker"
)

// Request describes one provider call.
type Request struct {
	Endpoint string
	Method   string
	Payload  interface{}
	Headers  map[string]string
	// Timeout bounds this single call. Zero uses the client default.
	Timeout time.Duration
}

// Response is the structured result of a provider call.
type Response struct {
	StatusCode int
	Body       []byte
}

// DecodeJSON unmarshals the response body into out.
func (r *Response) DecodeJSON(out interface{}) error {
	return json.Unmarshal(r.Body, out)
}

// HealthResult is the outcome of a provider health probe. HealthCheck never
// returns an error; failures are captured here.
type HealthResult struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail"`
}

// Metrics aggregates request records over a trailing window.
type Metrics struct {
	Service           string        `json:"service"`
	TotalRequests     int64         `json:"total_requests"`
	ErrorCount        int64         `json:"error_count"`
	ErrorRate         float64       `json:"error_rate"`
	AvgResponseTimeMS float64       `json:"avg_response_time_ms"`
	CircuitState      breaker.State `json:"circuit_state"`
}
