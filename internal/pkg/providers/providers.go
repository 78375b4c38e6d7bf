// Package providers wires the concrete external services into the
// integration registry: construction from environment config, capability
// bindings with fallback order and webhook registration.
package providers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
	"github.com/mkessler-dev/HostPulse/internal/pkg/webhook"
)

// builder constructs one provider client, or reports enabled=false when its
// environment configuration is absent.
type builder func(deps integration.Deps) (client *integration.Client, enabled bool, err error)

// Setup builds the registry of all configured providers and binds them to
// capabilities in fallback order. Providers without credentials in the
// environment are skipped, not errors; a misconfigured enabled provider is.
func Setup(deps integration.Deps, gateway *webhook.Gateway) (*integration.Registry, error) {
	registry := integration.NewRegistry()

	type entry struct {
		capability string
		build      builder
	}
	// Order inside a capability is the router's fallback order.
	entries := []entry{
		{integration.CapabilityPayment, newStripeClient},
		{integration.CapabilitySMS, newTwilioClient},
		{integration.CapabilityEmail, newResendClient},
		{integration.CapabilityEmail, newSMTPClient},
		{integration.CapabilityGeocoding, newGoogleMapsClient},
		{integration.CapabilityGeocoding, newNominatimClient},
		{integration.CapabilityWeather, newOpenWeatherClient},
		{integration.CapabilityCurrency, newExchangeRateClient},
	}

	bindings := make(map[string][]string)
	for _, e := range entries {
		client, enabled, err := e.build(deps)
		if err != nil {
			return nil, err
		}
		if !enabled {
			continue
		}
		if err := registry.Register(client); err != nil {
			return nil, err
		}
		bindings[e.capability] = append(bindings[e.capability], client.Name())
		log.Infof("[Providers] %s registered for %s", client.Name(), e.capability)
	}

	for capability, names := range bindings {
		if err := registry.Bind(capability, names...); err != nil {
			return nil, err
		}
	}

	if gateway != nil {
		registerWebhooks(gateway, deps)
	}
	return registry, nil
}

// registerWebhooks installs validators and handlers for every provider that
// calls back, whether or not its outbound client is enabled. Secrets are
// still required: a service without one simply has no validator and the
// gateway rejects its deliveries as unconfigured.
func registerWebhooks(gateway *webhook.Gateway, deps integration.Deps) {
	if secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", ""); secret != "" {
		registerStripeWebhook(gateway, secret, deps.Recorder)
	}
	if token := env.GetEnv("TWILIO_AUTH_TOKEN", ""); token != "" {
		registerTwilioWebhook(gateway, token)
	}
	if secret := env.GetEnv("RESEND_WEBHOOK_SECRET", ""); secret != "" {
		registerResendWebhook(gateway, secret)
	}
}

func envInt(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Warnf("[Providers] %s=%q is not a number, using %d", key, raw, def)
		return def
	}
	return n
}

func envSeconds(key string, def time.Duration) time.Duration {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Warnf("[Providers] %s=%q is not a positive number of seconds, using %s", key, raw, def)
		return def
	}
	return time.Duration(n) * time.Second
}

// baseConfig fills the shared tuning knobs for one provider from the
// environment, e.g. STRIPE_RATE_LIMIT / STRIPE_FAILURE_THRESHOLD.
func baseConfig(name, envPrefix string) integration.Config {
	return integration.Config{
		Name:             name,
		DefaultTimeout:   envSeconds(envPrefix+"_TIMEOUT_SECONDS", integration.DefaultCallTimeout),
		RateLimit:        envInt(envPrefix+"_RATE_LIMIT", 100),
		RateWindow:       envSeconds(envPrefix+"_RATE_WINDOW_SECONDS", time.Minute),
		FailureThreshold: envInt(envPrefix+"_FAILURE_THRESHOLD", 0),
		ResetTimeout:     envSeconds(envPrefix+"_RESET_TIMEOUT_SECONDS", 0),
	}
}
