package integration

import (
	"context"
	"sync"
	"time"

	"github.com/mkessler-dev/HostPulse/app/models"
)

// fakeRepo is an in-memory Repository for exercising clients and routers
// without a database.
type fakeRepo struct {
	mu       sync.Mutex
	requests []models.RequestRecord
	costs    []models.CostRecord
	alerts   []models.Alert
	health   map[string]*models.IntegrationHealth
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{health: make(map[string]*models.IntegrationHealth)}
}

func (f *fakeRepo) CreateRequestRecord(rec *models.RequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, *rec)
	return nil
}

func (f *fakeRepo) CreateCostRecord(rec *models.CostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.costs = append(f.costs, *rec)
	return nil
}

func (f *fakeRepo) CreateAlert(alert *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, *alert)
	return nil
}

func (f *fakeRepo) UpdateHealth(service string, healthy bool, detail string) (*models.IntegrationHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.health[service]
	if !ok {
		h = &models.IntegrationHealth{Service: service, Status: models.IntegrationStatusActive}
		f.health[service] = h
	}
	now := time.Now()
	h.LastHealthCheck = &now
	if healthy {
		h.Status = models.IntegrationStatusActive
		h.LastError = ""
		h.SuccessCount++
	} else {
		h.Status = models.IntegrationStatusError
		h.LastError = detail
		h.ErrorCount++
	}
	return h, nil
}

func (f *fakeRepo) ListHealth() ([]models.IntegrationHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.IntegrationHealth, 0, len(f.health))
	for _, h := range f.health {
		out = append(out, *h)
	}
	return out, nil
}

func (f *fakeRepo) ListAlerts(limit int) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Alert(nil), f.alerts...), nil
}

func (f *fakeRepo) RequestStats(service string, since time.Time) (int64, int64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total, errCount, sumMS int64
	for _, rec := range f.requests {
		if rec.Service != service {
			continue
		}
		total++
		sumMS += rec.ResponseTimeMS
		if rec.Status == models.RequestStatusError {
			errCount++
		}
	}
	avg := 0.0
	if total > 0 {
		avg = float64(sumMS) / float64(total)
	}
	return total, errCount, avg, nil
}

func (f *fakeRepo) requestsFor(service string) []models.RequestRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RequestRecord
	for _, rec := range f.requests {
		if rec.Service == service {
			out = append(out, rec)
		}
	}
	return out
}

// fakeGate is a RateGate with a fixed verdict.
type fakeGate struct {
	allow bool
	calls int
}

func (g *fakeGate) Allow(_ context.Context, _ string, _ int, _ time.Duration) bool {
	g.calls++
	return g.allow
}
