package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mkessler-dev/HostPulse/app/models"
	"github.com/mkessler-dev/HostPulse/internal/pkg/cache"
)

var (
	// ErrNoValidator means no signature validator is registered for the
	// service. This is a configuration error, never a silent pass.
	ErrNoValidator = errors.New("no signature validator registered for service")
	// ErrNoHandler means a retry needs a handler that is no longer
	// registered for the service.
	ErrNoHandler = errors.New("no handler registered for service")
	// ErrMalformedPayload marks a body that is not valid JSON.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrHandlerFailed wraps a handler error; the event is already stored
	// as failed and can be retried.
	ErrHandlerFailed = errors.New("webhook handler failed")
	// ErrNotRetryable means retry was requested for an event that is not
	// in the failed state.
	ErrNotRetryable = errors.New("webhook event is not in a retryable state")
)

const (
	sigFailureKeyPrefix  = "webhook:sigfail:"
	sigFailureWindow     = 15 * time.Minute
	sigFailureAlertCount = 10
)

// Handler processes one verified webhook event. Delivery is at-least-once:
// providers redeliver and operators retry, so handlers must apply side
// effects idempotently (e.g. upsert by external id). The returned string is
// stored as the event's response data.
type Handler func(ctx context.Context, event *models.WebhookEvent) (string, error)

// IdentityFunc extracts the provider event id and event type from a
// delivery. The id becomes the idempotency key together with the service.
type IdentityFunc func(rawBody []byte, headers map[string]string) (eventID, eventType string)

// AlertSink receives alerts raised by the gateway. Satisfied by
// *integration.Recorder.
type AlertSink interface {
	RecordAlert(alert *models.Alert)
}

// Result describes the outcome of receiving or retrying an event.
type Result struct {
	Event        *models.WebhookEvent `json:"event"`
	Duplicate    bool                 `json:"duplicate"`
	ResponseData string               `json:"response_data,omitempty"`
}

// Gateway verifies inbound provider callbacks, records them idempotently and
// dispatches them to registered handlers. The registration maps are built at
// startup and read-only afterwards.
type Gateway struct {
	repo       Repository
	alerts     AlertSink
	mu         sync.RWMutex
	validators map[string]Validator
	handlers   map[string]Handler
	identities map[string]IdentityFunc
}

// NewGateway creates a webhook gateway over the given event repository.
// alerts may be nil.
func NewGateway(repo Repository, alerts AlertSink) *Gateway {
	return &Gateway{
		repo:       repo,
		alerts:     alerts,
		validators: make(map[string]Validator),
		handlers:   make(map[string]Handler),
		identities: make(map[string]IdentityFunc),
	}
}

// RegisterValidator installs the signature validator for a service.
func (g *Gateway) RegisterValidator(service string, v Validator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validators[strings.ToLower(service)] = v
}

// RegisterHandler installs the event handler for a service. Services with a
// validator but no handler record events as ignored.
func (g *Gateway) RegisterHandler(service string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[strings.ToLower(service)] = h
}

// RegisterIdentity overrides event id/type extraction for a service.
func (g *Gateway) RegisterIdentity(service string, fn IdentityFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.identities[strings.ToLower(service)] = fn
}

// Receive runs the full inbound pipeline for one delivery: signature check
// over the raw bytes, idempotent persistence, handler dispatch, status
// update. Invalid signatures are rejected before anything is persisted so
// unauthenticated probes cannot pollute the event log.
func (g *Gateway) Receive(ctx context.Context, service string, rawBody []byte, headers map[string]string, requestURL string) (*Result, error) {
	service = strings.ToLower(strings.TrimSpace(service))

	g.mu.RLock()
	validator := g.validators[service]
	handler := g.handlers[service]
	identity := g.identities[service]
	g.mu.RUnlock()

	if validator == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoValidator, service)
	}
	if err := validator.Validate(rawBody, headers, requestURL); err != nil {
		g.countSignatureFailure(ctx, service)
		if errors.Is(err, ErrSignatureInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if !json.Valid(rawBody) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedPayload)
	}

	if identity == nil {
		identity = genericIdentity
	}
	eventID, eventType := identity(rawBody, headers)
	if eventID == "" {
		// Without a provider id, the payload hash still dedupes byte-exact
		// redeliveries.
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	headersJSON, _ := json.Marshal(headers)
	created, stored, err := g.repo.CreateIfNotExists(&models.WebhookEvent{
		Service:         service,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		HeadersJSON:     string(headersJSON),
		Status:          models.WebhookStatusReceived,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		log.Infof("[Webhook] %s: duplicate delivery of event %s", service, eventID)
		return &Result{Event: stored, Duplicate: true}, nil
	}

	if handler == nil {
		if err := g.repo.UpdateStatus(stored.ID, models.WebhookStatusIgnored, "", "no handler registered"); err != nil {
			return nil, err
		}
		stored.Status = models.WebhookStatusIgnored
		return &Result{Event: stored}, nil
	}

	return g.dispatch(ctx, stored, handler)
}

// Retry re-invokes the handler for a failed event with its stored payload.
// The signature is not re-validated; the event was authenticated at receipt.
func (g *Gateway) Retry(ctx context.Context, eventID uint) (*Result, error) {
	event, err := g.repo.GetByID(eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.WebhookStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, event.Status)
	}

	g.mu.RLock()
	handler := g.handlers[event.Service]
	g.mu.RUnlock()
	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, event.Service)
	}

	return g.dispatch(ctx, event, handler)
}

// dispatch invokes the handler and settles the event's status for this
// processing attempt. Handler panics and errors never propagate uncaught;
// they become a failed status with the event already durably recorded.
func (g *Gateway) dispatch(ctx context.Context, event *models.WebhookEvent, handler Handler) (*Result, error) {
	responseData, handlerErr := g.invoke(ctx, event, handler)

	if handlerErr != nil {
		if err := g.repo.UpdateStatus(event.ID, models.WebhookStatusFailed, "", handlerErr.Error()); err != nil {
			log.Errorf("[Webhook] %s: status update failed for event %d: %v", event.Service, event.ID, err)
		}
		event.Status = models.WebhookStatusFailed
		event.ProcessingError = handlerErr.Error()
		return &Result{Event: event}, fmt.Errorf("%w: %v", ErrHandlerFailed, handlerErr)
	}

	if err := g.repo.UpdateStatus(event.ID, models.WebhookStatusProcessed, responseData, ""); err != nil {
		return nil, err
	}
	event.Status = models.WebhookStatusProcessed
	event.ResponseData = responseData
	event.ProcessingError = ""
	return &Result{Event: event, ResponseData: responseData}, nil
}

func (g *Gateway) invoke(ctx context.Context, event *models.WebhookEvent, handler Handler) (responseData string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, event)
}

// countSignatureFailure tracks rejections per service in a rolling Redis
// window and raises an alert when they spike, which usually means a rotated
// secret or someone probing the endpoint.
func (g *Gateway) countSignatureFailure(ctx context.Context, service string) {
	client := cache.GetClient()
	if client == nil {
		return
	}
	key := sigFailureKeyPrefix + service

	pipe := client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, sigFailureWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Debugf("[Webhook] signature-failure counter unavailable: %v", err)
		return
	}

	if count := incr.Val(); count == sigFailureAlertCount && g.alerts != nil {
		g.alerts.RecordAlert(&models.Alert{
			Integration: service,
			AlertType:   models.AlertTypeSignatureFailure,
			Severity:    models.AlertSeverityWarning,
			Title:       fmt.Sprintf("Webhook signature failures spiking for %s", service),
			Message:     fmt.Sprintf("%d invalid signatures within %s; check for secret rotation or probing", count, sigFailureWindow),
		})
	}
}

// genericIdentity pulls the common id/type field spellings out of a JSON
// payload.
func genericIdentity(rawBody []byte, headers map[string]string) (string, string) {
	var probe struct {
		ID        string `json:"id"`
		EventID   string `json:"event_id"`
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	_ = json.Unmarshal(rawBody, &probe)

	id := probe.ID
	if id == "" {
		id = probe.EventID
	}
	eventType := probe.Type
	if eventType == "" {
		eventType = probe.EventType
	}
	return strings.TrimSpace(id), strings.TrimSpace(eventType)
}
