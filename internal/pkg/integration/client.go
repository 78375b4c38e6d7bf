package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/mkessler-dev/HostPulse/app/models"
	"github.com/mkessler-dev/HostPulse/internal/pkg/breaker"
	"github.com/mkessler-dev/HostPulse/internal/pkg/ratelimit"
)

const (
	DefaultCallTimeout = 30 * time.Second

	// Response bodies are logged for audit, not replay. Cap what we store.
	maxStoredResponseBytes = 16 * 1024
)

// CallFunc performs one raw provider call. Implementations return a typed
// error (*HTTPError, *TransportError) or nil with a structured response.
type CallFunc func(ctx context.Context, req Request) (*Response, error)

// Config describes one provider integration.
type Config struct {
	// Name identifies the provider; it keys rate-limit windows, breaker
	// state and every persisted record.
	Name string `validate:"required,lowercase"`
	// DefaultTimeout bounds calls whose Request carries no explicit timeout.
	DefaultTimeout time.Duration
	// RateLimit allows this many calls per RateWindow. Zero disables the gate.
	RateLimit  int
	RateWindow time.Duration
	// Breaker thresholds. Zero values use the breaker defaults.
	FailureThreshold int
	ResetTimeout     time.Duration
	// CostPerCallCents is attached to every successful request record for
	// providers billed per call. Usage-based costs go through RecordCost.
	CostPerCallCents int64
}

// RateGate is the request-budget check consumed by clients. Satisfied by
// *ratelimit.Limiter.
type RateGate interface {
	Allow(ctx context.Context, identifier string, limit int, window time.Duration) bool
}

var _ RateGate = (*ratelimit.Limiter)(nil)

// Deps are the shared collaborators a client runs against.
type Deps struct {
	BreakerStore breaker.Store
	Limiter      RateGate
	Recorder     *Recorder
	Repo         Repository
}

// Client wraps one provider's request execution with rate limiting, circuit
// breaking and latency/cost/error recording. All providers go through this
// type; the per-provider constructors only differ in CallFunc and probe.
type Client struct {
	cfg     Config
	call    CallFunc
	probe   Request
	breaker *breaker.Breaker
	deps    Deps
}

// NewClient builds a provider client. probe is the lightweight request used
// by HealthCheck.
func NewClient(cfg Config, call CallFunc, probe Request, deps Deps) *Client {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultCallTimeout
	}

	c := &Client{cfg: cfg, call: call, probe: probe, deps: deps}
	c.breaker = breaker.New(cfg.Name, breaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		IsFailure:        IsTransient,
	}, deps.BreakerStore)
	c.breaker.OnTrip(c.onBreakerTrip)
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Breaker exposes the client's breaker for the admin API.
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}

// Execute runs one provider call: rate-limit gate, breaker guard, the call
// itself under its timeout, then outcome recording. Exactly one request
// record is written per call, success or failure; rejected calls (rate
// limit, open breaker) never reach the provider but still record an error
// row with zero response time, so dashboards see the blocked traffic.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if c.deps.Limiter != nil && !c.deps.Limiter.Allow(ctx, "integration:"+c.cfg.Name, c.cfg.RateLimit, c.cfg.RateWindow) {
		c.recordOutcome(req, nil, 0, ErrRateLimited)
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, ErrRateLimited)
	}
	if err := c.breaker.Allow(ctx); err != nil {
		c.recordOutcome(req, nil, 0, err)
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.call(callCtx, req)
	elapsed := time.Since(start)

	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	// Breaker accounting happens in completion order, whatever the outcome.
	c.breaker.Record(ctx, err)
	c.recordOutcome(req, resp, elapsed, err)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}
	return resp, nil
}

func (c *Client) recordOutcome(req Request, resp *Response, elapsed time.Duration, callErr error) {
	rec := &models.RequestRecord{
		RequestID:      uuid.NewString(),
		Service:        c.cfg.Name,
		Endpoint:       req.Endpoint,
		Method:         req.Method,
		ResponseTimeMS: elapsed.Milliseconds(),
	}
	switch payload := req.Payload.(type) {
	case nil:
	case []byte:
		// Raw bodies are stored as-is; marshalling would base64 them.
		rec.RequestData = string(payload)
	default:
		if data, err := json.Marshal(payload); err == nil {
			rec.RequestData = string(data)
		}
	}
	if callErr != nil {
		rec.Status = models.RequestStatusError
		rec.ErrorMessage = callErr.Error()
	} else {
		rec.Status = models.RequestStatusSuccess
		rec.CostCents = c.cfg.CostPerCallCents
		if resp != nil {
			body := resp.Body
			if len(body) > maxStoredResponseBytes {
				body = body[:maxStoredResponseBytes]
			}
			rec.ResponseData = string(body)
		}
	}
	if c.deps.Recorder != nil {
		c.deps.Recorder.RecordRequest(rec)
	}
}

func (c *Client) onBreakerTrip(name string) {
	if c.deps.Recorder != nil {
		c.deps.Recorder.RecordAlert(&models.Alert{
			Integration: name,
			AlertType:   models.AlertTypeCircuitOpen,
			Severity:    models.AlertSeverityCritical,
			Title:       fmt.Sprintf("Circuit breaker open for %s", name),
			Message:     fmt.Sprintf("%s tripped after %d consecutive failures; calls fail fast until the reset timeout elapses", name, c.cfg.FailureThreshold),
		})
	}
	if c.deps.Repo != nil {
		if _, err := c.deps.Repo.UpdateHealth(name, false, "circuit breaker open"); err != nil {
			log.Errorf("[Integration] %s: health update after breaker trip failed: %v", name, err)
		}
	}
}

// HealthCheck runs the provider's probe and updates its health row. It never
// returns an error; failures land in the result. The probe bypasses the rate
// limiter and breaker so an open breaker can still observe recovery.
func (c *Client) HealthCheck(ctx context.Context) HealthResult {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := HealthResult{Healthy: true, Detail: "ok"}
	if _, err := c.call(probeCtx, c.probe); err != nil {
		result = HealthResult{Healthy: false, Detail: err.Error()}
	}

	if c.deps.Repo != nil {
		if _, err := c.deps.Repo.UpdateHealth(c.cfg.Name, result.Healthy, result.Detail); err != nil {
			result.Detail = fmt.Sprintf("%s (health update failed: %v)", result.Detail, err)
		}
	}
	return result
}

// RecordCost appends one usage-based cost record, e.g. one per recipient of
// a bulk email send. amountCents is the total for quantity units.
func (c *Client) RecordCost(costType string, amountCents int64, currency string, quantity int64) {
	if c.deps.Recorder == nil {
		return
	}
	if quantity <= 0 {
		quantity = 1
	}
	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	c.deps.Recorder.RecordCost(&models.CostRecord{
		Integration:   c.cfg.Name,
		CostType:      costType,
		AmountCents:   amountCents,
		Currency:      currency,
		Quantity:      quantity,
		BillingPeriod: now.Format("2006-01"),
		PeriodStart:   periodStart,
		PeriodEnd:     periodStart.AddDate(0, 1, 0),
	})
}

// Metrics aggregates this provider's request records over a trailing window.
func (c *Client) Metrics(ctx context.Context, window time.Duration) (*Metrics, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	total, errCount, avgMS, err := c.deps.Repo.RequestStats(c.cfg.Name, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	m := &Metrics{
		Service:           c.cfg.Name,
		TotalRequests:     total,
		ErrorCount:        errCount,
		AvgResponseTimeMS: avgMS,
		CircuitState:      c.breaker.State(ctx),
	}
	if total > 0 {
		m.ErrorRate = float64(errCount) / float64(total)
	}
	return m, nil
}
