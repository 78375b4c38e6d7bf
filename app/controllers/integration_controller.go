package controllers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mkessler-dev/HostPulse/app/models"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
	"github.com/mkessler-dev/HostPulse/internal/pkg/webhook"
)

// EventArchiver runs one archival batch. Satisfied by *archive.Archiver.
type EventArchiver interface {
	Run(ctx context.Context) (int, error)
}

// FailOpenCounter reports rate-limit decisions taken without a reachable
// counter store. Satisfied by *ratelimit.Limiter.
type FailOpenCounter interface {
	FailOpenCount() int64
}

var (
	integrationRegistry *integration.Registry
	integrationRouter   *integration.Router
	integrationRepo     integration.Repository
	integrationRecorder *integration.Recorder
	webhookRepo         webhook.Repository
	eventArchiver       EventArchiver
	rateLimiter         FailOpenCounter
)

// InitializeIntegrationController wires the dependencies used by the
// operator API routes. archiver and limiter may be nil when archiving or
// rate limiting is disabled.
func InitializeIntegrationController(registry *integration.Registry, repo integration.Repository, recorder *integration.Recorder, whRepo webhook.Repository, archiver EventArchiver, limiter FailOpenCounter) {
	integrationRegistry = registry
	integrationRouter = integration.NewRouter(registry)
	integrationRepo = repo
	integrationRecorder = recorder
	webhookRepo = whRepo
	eventArchiver = archiver
	rateLimiter = limiter
}

// HandleCapabilityCall executes a provider request through the fallback
// router, or against one named provider when the body asks for it.
func HandleCapabilityCall(c *fiber.Ctx) error {
	var body struct {
		Provider string          `json:"provider"`
		Endpoint string          `json:"endpoint"`
		Method   string          `json:"method"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	req := integration.Request{
		Endpoint: body.Endpoint,
		Method:   strings.ToUpper(strings.TrimSpace(body.Method)),
	}
	if len(body.Payload) > 0 {
		req.Payload = []byte(body.Payload)
	}

	var resp *integration.Response
	var err error
	if body.Provider != "" {
		resp, err = integrationRouter.DoWith(c.UserContext(), body.Provider, req)
	} else {
		resp, err = integrationRouter.Do(c.UserContext(), c.Params("capability"), req)
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "bad_gateway", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status_code": resp.StatusCode,
		"body":        json.RawMessage(resp.Body),
	})
}

// HandleIntegrationHealth lists the stored health state of all providers.
func HandleIntegrationHealth(c *fiber.Ctx) error {
	health, err := integrationRepo.ListHealth()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load health records"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"integrations": health})
}

// HandleIntegrationMetrics returns request statistics and breaker state for
// one provider over a query-selectable window.
func HandleIntegrationMetrics(c *fiber.Ctx) error {
	name := c.Params("name")
	client, ok := integrationRegistry.Get(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown provider"})
	}

	window := time.Duration(c.QueryInt("window_hours", 24)) * time.Hour
	metrics, err := client.Metrics(c.UserContext(), window)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to compute metrics"})
	}
	return c.Status(fiber.StatusOK).JSON(metrics)
}

// HandleIntegrationHealthCheck probes one provider immediately.
func HandleIntegrationHealthCheck(c *fiber.Ctx) error {
	client, ok := integrationRegistry.Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown provider"})
	}
	result := client.HealthCheck(c.UserContext())
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleBreakerReset force-closes one provider's circuit breaker.
func HandleBreakerReset(c *fiber.Ctx) error {
	name := c.Params("name")
	client, ok := integrationRegistry.Get(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown provider"})
	}
	if err := client.Breaker().Reset(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to reset breaker"})
	}
	log.Infof("[Admin] circuit breaker for %s reset", name)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "reset", "provider": name})
}

// HandleListAlerts returns recent alerts, newest first.
func HandleListAlerts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	alerts, err := integrationRepo.ListAlerts(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load alerts"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"alerts": alerts})
}

// HandleListWebhookEvents lists stored webhook events filtered by status.
func HandleListWebhookEvents(c *fiber.Ctx) error {
	status := c.Query("status", models.WebhookStatusFailed)
	limit := c.QueryInt("limit", 50)
	events, err := webhookRepo.ListByStatus(status, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load webhook events"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"events": events})
}

// HandleArchiveRun triggers one archival batch.
func HandleArchiveRun(c *fiber.Ctx) error {
	if eventArchiver == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Event archiving is disabled"})
	}
	n, err := eventArchiver.Run(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"archived": n})
}

// HandleOpsStats reports internal counters for monitoring the monitor.
func HandleOpsStats(c *fiber.Ctx) error {
	stats := fiber.Map{"providers": integrationRegistry.Names()}
	if integrationRecorder != nil {
		stats["telemetry_dropped"] = integrationRecorder.Dropped()
	}
	if rateLimiter != nil {
		stats["ratelimit_fail_open"] = rateLimiter.FailOpenCount()
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}
