package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/mkessler-dev/HostPulse/app/controllers"
	"github.com/mkessler-dev/HostPulse/internal/pkg/cache"
	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// Provider callbacks authenticate by signature, not API key. No HTTP
	// rate limit here: providers burst on redelivery and the gateway is
	// idempotent anyway.
	app.Post("/webhooks/:service", controllers.HandleWebhookReceive)

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        envLimit("API_RATE_LIMIT", 120),
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	}))

	v1 := api.Group("/v1")
	v1.Post("/call/:capability", controllers.HandleCapabilityCall)

	admin := v1.Group("/admin", middleware.AdminAPIKeyMiddleware())
	admin.Get("/integrations/health", controllers.HandleIntegrationHealth)
	admin.Get("/integrations/:name/metrics", controllers.HandleIntegrationMetrics)
	admin.Post("/integrations/:name/healthcheck", controllers.HandleIntegrationHealthCheck)
	admin.Post("/integrations/:name/breaker/reset", controllers.HandleBreakerReset)
	admin.Get("/alerts", controllers.HandleListAlerts)
	admin.Get("/webhooks", controllers.HandleListWebhookEvents)
	admin.Post("/webhooks/:id/retry", controllers.HandleWebhookRetry)
	admin.Post("/webhooks/archive", controllers.HandleArchiveRun)
	admin.Get("/stats", controllers.HandleOpsStats)
}

// newLimiterStorage backs the HTTP rate limiter with Redis so limits hold
// across instances. Uses database 1; the application cache uses 0.
func newLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func envLimit(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
