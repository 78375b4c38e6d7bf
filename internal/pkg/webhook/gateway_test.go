package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mkessler-dev/HostPulse/app/models"
)

type fakeEventRepo struct {
	mu     sync.Mutex
	nextID uint
	events map[uint]*models.WebhookEvent
	byKey  map[string]uint
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		nextID: 1,
		events: make(map[uint]*models.WebhookEvent),
		byKey:  make(map[string]uint),
	}
}

func (r *fakeEventRepo) key(service, providerEventID string) string {
	return service + "|" + providerEventID
}

func (r *fakeEventRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(event.Service, event.ProviderEventID)
	if id, ok := r.byKey[k]; ok {
		copied := *r.events[id]
		return false, &copied, nil
	}
	copied := *event
	copied.ID = r.nextID
	r.nextID++
	r.events[copied.ID] = &copied
	r.byKey[k] = copied.ID
	out := copied
	return true, &out, nil
}

func (r *fakeEventRepo) UpdateStatus(id uint, status, responseData, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return fmt.Errorf("event %d not found", id)
	}
	now := time.Now()
	event.Status = status
	event.ResponseData = responseData
	event.ProcessingError = processingError
	event.ProcessedAt = &now
	return nil
}

func (r *fakeEventRepo) GetByID(id uint) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("event %d not found", id)
	}
	copied := *event
	return &copied, nil
}

func (r *fakeEventRepo) ListByStatus(status string, limit int) ([]models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WebhookEvent
	for _, event := range r.events {
		if event.Status == status {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) ListArchivable(before time.Time, limit int) ([]models.WebhookEvent, error) {
	return nil, nil
}

func (r *fakeEventRepo) MarkArchived(ids []uint) error { return nil }

func (r *fakeEventRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type passValidator struct{}

func (passValidator) Validate([]byte, map[string]string, string) error { return nil }

type failValidator struct{}

func (failValidator) Validate([]byte, map[string]string, string) error {
	return ErrSignatureInvalid
}

func TestGatewayReceiveProcessesEvent(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})

	var handled *models.WebhookEvent
	g.RegisterHandler("stripe", func(_ context.Context, event *models.WebhookEvent) (string, error) {
		handled = event
		return "payment recorded", nil
	})

	body := []byte(`{"id":"evt_100","type":"charge.succeeded"}`)
	result, err := g.Receive(context.Background(), "stripe", body, map[string]string{}, "")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first delivery reported as duplicate")
	}
	if result.Event.Status != models.WebhookStatusProcessed {
		t.Fatalf("status = %q, want %q", result.Event.Status, models.WebhookStatusProcessed)
	}
	if result.ResponseData != "payment recorded" {
		t.Fatalf("response data = %q", result.ResponseData)
	}
	if handled == nil || handled.ProviderEventID != "evt_100" {
		t.Fatalf("handler saw event %+v", handled)
	}
	if handled.EventType != "charge.succeeded" {
		t.Fatalf("event type = %q", handled.EventType)
	}
}

func TestGatewayReceiveRejectsInvalidSignatureWithoutPersisting(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", failValidator{})

	_, err := g.Receive(context.Background(), "stripe", []byte(`{"id":"evt_1"}`), map[string]string{}, "")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if repo.count() != 0 {
		t.Fatalf("rejected delivery was persisted, %d events stored", repo.count())
	}
}

func TestGatewayReceiveRequiresValidator(t *testing.T) {
	g := NewGateway(newFakeEventRepo(), nil)
	_, err := g.Receive(context.Background(), "unknown", []byte(`{}`), map[string]string{}, "")
	if !errors.Is(err, ErrNoValidator) {
		t.Fatalf("expected ErrNoValidator, got %v", err)
	}
}

func TestGatewayReceiveRejectsMalformedJSON(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})

	_, err := g.Receive(context.Background(), "stripe", []byte(`{not json`), map[string]string{}, "")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if repo.count() != 0 {
		t.Fatal("malformed delivery was persisted")
	}
}

func TestGatewayReceiveDuplicateDelivery(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})

	calls := 0
	g.RegisterHandler("stripe", func(context.Context, *models.WebhookEvent) (string, error) {
		calls++
		return "ok", nil
	})

	body := []byte(`{"id":"evt_dup","type":"charge.succeeded"}`)
	if _, err := g.Receive(context.Background(), "stripe", body, nil, ""); err != nil {
		t.Fatalf("first Receive: %v", err)
	}
	result, err := g.Receive(context.Background(), "stripe", body, nil, "")
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("redelivery not reported as duplicate")
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if repo.count() != 1 {
		t.Fatalf("%d events stored, want 1", repo.count())
	}
}

func TestGatewayReceiveIgnoresWhenNoHandler(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})

	result, err := g.Receive(context.Background(), "stripe", []byte(`{"id":"evt_2"}`), nil, "")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if result.Event.Status != models.WebhookStatusIgnored {
		t.Fatalf("status = %q, want %q", result.Event.Status, models.WebhookStatusIgnored)
	}
}

func TestGatewayReceiveHandlerFailureStoresEvent(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})
	g.RegisterHandler("stripe", func(context.Context, *models.WebhookEvent) (string, error) {
		return "", errors.New("downstream unavailable")
	})

	result, err := g.Receive(context.Background(), "stripe", []byte(`{"id":"evt_3"}`), nil, "")
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if result == nil || result.Event.Status != models.WebhookStatusFailed {
		t.Fatalf("result = %+v", result)
	}

	stored, getErr := repo.GetByID(result.Event.ID)
	if getErr != nil {
		t.Fatalf("GetByID: %v", getErr)
	}
	if stored.Status != models.WebhookStatusFailed {
		t.Fatalf("stored status = %q, want %q", stored.Status, models.WebhookStatusFailed)
	}
	if !strings.Contains(stored.ProcessingError, "downstream unavailable") {
		t.Fatalf("processing error = %q", stored.ProcessingError)
	}
}

func TestGatewayReceiveRecoversFromHandlerPanic(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})
	g.RegisterHandler("stripe", func(context.Context, *models.WebhookEvent) (string, error) {
		panic("boom")
	})

	result, err := g.Receive(context.Background(), "stripe", []byte(`{"id":"evt_4"}`), nil, "")
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if result.Event.Status != models.WebhookStatusFailed {
		t.Fatalf("status = %q", result.Event.Status)
	}
	if !strings.Contains(result.Event.ProcessingError, "panicked") {
		t.Fatalf("processing error = %q", result.Event.ProcessingError)
	}
}

func TestGatewayRetryFailedEvent(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})

	attempts := 0
	g.RegisterHandler("stripe", func(context.Context, *models.WebhookEvent) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("transient")
		}
		return "recovered", nil
	})

	result, err := g.Receive(context.Background(), "stripe", []byte(`{"id":"evt_5"}`), nil, "")
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected first attempt to fail, got %v", err)
	}

	retried, err := g.Retry(context.Background(), result.Event.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Event.Status != models.WebhookStatusProcessed {
		t.Fatalf("status after retry = %q", retried.Event.Status)
	}
	if retried.ResponseData != "recovered" {
		t.Fatalf("response data = %q", retried.ResponseData)
	}
	if repo.count() != 1 {
		t.Fatalf("%d events stored after retry, want 1", repo.count())
	}
}

func TestGatewayRetryRejectsProcessedEvent(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})
	g.RegisterHandler("stripe", func(context.Context, *models.WebhookEvent) (string, error) {
		return "ok", nil
	})

	result, err := g.Receive(context.Background(), "stripe", []byte(`{"id":"evt_6"}`), nil, "")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if _, err := g.Retry(context.Background(), result.Event.ID); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}
}

func TestGatewayRetryWithoutHandler(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("stripe", passValidator{})
	g.RegisterHandler("stripe", func(context.Context, *models.WebhookEvent) (string, error) {
		return "", errors.New("transient")
	})

	result, err := g.Receive(context.Background(), "stripe", []byte(`{"id":"evt_7"}`), nil, "")
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected handler failure, got %v", err)
	}

	// The handler registration is gone by the time the operator retries,
	// e.g. after a redeploy with the integration disabled.
	g.handlers = map[string]Handler{}
	if _, err := g.Retry(context.Background(), result.Event.ID); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestGatewayFallsBackToPayloadHashIdentity(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("smtp", passValidator{})

	body := []byte(`{"status":"bounced","recipient":"a@example.com"}`)
	result, err := g.Receive(context.Background(), "smtp", body, nil, "")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !strings.HasPrefix(result.Event.ProviderEventID, "hash:") {
		t.Fatalf("provider event id = %q, want hash fallback", result.Event.ProviderEventID)
	}

	again, err := g.Receive(context.Background(), "smtp", body, nil, "")
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	if !again.Duplicate {
		t.Fatal("byte-identical redelivery not deduplicated")
	}
}

func TestGatewayCustomIdentity(t *testing.T) {
	repo := newFakeEventRepo()
	g := NewGateway(repo, nil)
	g.RegisterValidator("twilio", passValidator{})
	g.RegisterIdentity("twilio", func(_ []byte, headers map[string]string) (string, string) {
		return headers["I-Twilio-Idempotency-Token"], "sms.status"
	})

	headers := map[string]string{"I-Twilio-Idempotency-Token": "tok-42"}
	result, err := g.Receive(context.Background(), "twilio", []byte(`{"MessageStatus":"delivered"}`), headers, "")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if result.Event.ProviderEventID != "tok-42" {
		t.Fatalf("provider event id = %q", result.Event.ProviderEventID)
	}
	if result.Event.EventType != "sms.status" {
		t.Fatalf("event type = %q", result.Event.EventType)
	}
}
