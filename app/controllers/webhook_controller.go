package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mkessler-dev/HostPulse/internal/pkg/webhook"
)

var webhookGateway *webhook.Gateway

// InitializeWebhookController wires the gateway used by the webhook routes.
func InitializeWebhookController(gateway *webhook.Gateway) {
	webhookGateway = gateway
}

// HandleWebhookReceive ingests one provider callback. The raw body bytes go
// to the gateway untouched so signature verification sees exactly what the
// provider signed.
func HandleWebhookReceive(c *fiber.Ctx) error {
	if webhookGateway == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Webhook gateway is not initialized"})
	}

	service := c.Params("service")
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	requestURL := c.BaseURL() + c.OriginalURL()

	result, err := webhookGateway.Receive(c.UserContext(), service, c.Body(), headers, requestURL)
	switch {
	case err == nil:
		if result.Duplicate {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "duplicate", "event_id": result.Event.ID})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": result.Event.Status, "event_id": result.Event.ID})
	case errors.Is(err, webhook.ErrSignatureInvalid):
		log.Warnf("[Webhook] %s: rejected delivery: %v", service, err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid webhook signature"})
	case errors.Is(err, webhook.ErrMalformedPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Payload is not valid JSON"})
	case errors.Is(err, webhook.ErrNoValidator):
		log.Errorf("[Webhook] %s: no validator configured", service)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown webhook service"})
	case errors.Is(err, webhook.ErrHandlerFailed):
		// The event is stored; the provider may redeliver or an operator
		// can retry it.
		log.Errorf("[Webhook] %s: processing failed: %v", service, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Event stored but processing failed", "event_id": result.Event.ID})
	default:
		log.Errorf("[Webhook] %s: %v", service, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Webhook processing failed"})
	}
}

// HandleWebhookRetry re-runs the handler for a failed event.
func HandleWebhookRetry(c *fiber.Ctx) error {
	if webhookGateway == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Webhook gateway is not initialized"})
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid event id"})
	}

	result, err := webhookGateway.Retry(c.UserContext(), uint(id))
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": result.Event.Status, "event_id": result.Event.ID, "response_data": result.ResponseData})
	case errors.Is(err, webhook.ErrNotRetryable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
	case errors.Is(err, webhook.ErrNoHandler):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unprocessable_entity", "message": err.Error()})
	case errors.Is(err, webhook.ErrHandlerFailed):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Retry failed", "event_id": result.Event.ID})
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Event not found"})
	}
}
