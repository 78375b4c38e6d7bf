package main

import (
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mkessler-dev/HostPulse/app/controllers"
	"github.com/mkessler-dev/HostPulse/internal/pkg/archive"
	"github.com/mkessler-dev/HostPulse/internal/pkg/breaker"
	"github.com/mkessler-dev/HostPulse/internal/pkg/cache"
	"github.com/mkessler-dev/HostPulse/internal/pkg/database"
	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
	"github.com/mkessler-dev/HostPulse/internal/pkg/providers"
	"github.com/mkessler-dev/HostPulse/internal/pkg/ratelimit"
	"github.com/mkessler-dev/HostPulse/internal/pkg/router"
	"github.com/mkessler-dev/HostPulse/internal/pkg/webhook"
)

func main() {
	app, shutdown := NewApplication()

	// graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("[App] shutting down")
		if err := app.Shutdown(); err != nil {
			log.Errorf("[App] shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	shutdown()
	if err != nil {
		stdlog.Fatal(err)
	}
}

// NewApplication wires the full service: storage, telemetry, providers,
// webhook gateway, background health sweep and the HTTP surface. The
// returned func stops the background work in dependency order.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	redisClient := cache.GetClient()

	repo := integration.NewRepository(db)
	recorder := integration.NewRecorder(repo, 1024, 2)
	recorder.Start()

	// Breaker state lives in Redis so instances agree on open circuits;
	// BREAKER_STORE=memory keeps it process-local for single-node setups.
	var breakerStore breaker.Store
	if env.GetEnv("BREAKER_STORE", "redis") == "memory" || redisClient == nil {
		breakerStore = breaker.NewMemoryStore()
	} else {
		breakerStore = breaker.NewRedisStore(redisClient)
	}

	deps := integration.Deps{
		BreakerStore: breakerStore,
		Recorder:     recorder,
		Repo:         repo,
	}
	var limiter *ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.New(redisClient)
		deps.Limiter = limiter
	}

	webhookRepo := webhook.NewRepository(db)
	gateway := webhook.NewGateway(webhookRepo, recorder)

	registry, err := providers.Setup(deps, gateway)
	if err != nil {
		stdlog.Fatalf("provider setup failed: %v", err)
	}

	var archiver controllers.EventArchiver
	if cfg, err := archive.LoadConfig(); err != nil {
		stdlog.Fatalf("archive config invalid: %v", err)
	} else if cfg.IsEnabled() {
		a, err := archive.NewArchiver(cfg, webhookRepo)
		if err != nil {
			stdlog.Fatalf("archive setup failed: %v", err)
		}
		archiver = a
	}

	controllers.InitializeWebhookController(gateway)
	var failOpen controllers.FailOpenCounter
	if limiter != nil {
		failOpen = limiter
	}
	controllers.InitializeIntegrationController(registry, repo, recorder, webhookRepo, archiver, failOpen)

	sweepInterval := 60 * time.Second
	integration.StartHealthMonitor(registry, recorder, sweepInterval)

	app := fiber.New(fiber.Config{
		AppName:   "HostPulse",
		BodyLimit: 2 * 1024 * 1024,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.NewApiRouter())

	shutdown := func() {
		integration.StopHealthMonitor()
		recorder.Stop()
	}
	return app, shutdown
}
