package providers

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
)

const (
	googleMapsBaseURL = "https://maps.googleapis.com/maps/api"
	nominatimBaseURL  = "https://nominatim.openstreetmap.org"
)

// GoogleMapsConfig holds the geocoding provider credentials.
type GoogleMapsConfig struct {
	APIKey string `validate:"required"`
}

func (c GoogleMapsConfig) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

func newGoogleMapsClient(deps integration.Deps) (*integration.Client, bool, error) {
	apiKey := env.GetEnv("GOOGLE_MAPS_API_KEY", "")
	if apiKey == "" {
		return nil, false, nil
	}
	cfg := GoogleMapsConfig{APIKey: apiKey}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("googlemaps config: %w", err)
	}

	call := integration.NewHTTPCall(googleMapsBaseURL, nil, integration.NewDefaultHTTPClient())

	probe := integration.Request{
		Endpoint: "/geocode/json?address=Berlin&key=" + cfg.APIKey,
		Method:   "GET",
		Timeout:  10 * time.Second,
	}
	conf := baseConfig("googlemaps", "GOOGLE_MAPS")
	// Geocoding is billed per request.
	conf.CostPerCallCents = int64(envInt("GOOGLE_MAPS_COST_PER_CALL_CENTS", 1))
	client := integration.NewClient(conf, call, probe, deps)
	return client, true, nil
}

// newNominatimClient is the keyless community fallback for geocoding. The
// usage policy requires an identifying User-Agent and at most 1 req/s.
func newNominatimClient(deps integration.Deps) (*integration.Client, bool, error) {
	if env.GetEnv("NOMINATIM_ENABLED", "true") != "true" {
		return nil, false, nil
	}

	call := integration.NewHTTPCall(nominatimBaseURL, map[string]string{
		"User-Agent": env.GetEnv("NOMINATIM_USER_AGENT", "HostPulse/1.0 (ops@hostpulse.dev)"),
	}, integration.NewDefaultHTTPClient())

	probe := integration.Request{
		Endpoint: "/status?format=json",
		Method:   "GET",
		Timeout:  10 * time.Second,
	}
	conf := baseConfig("nominatim", "NOMINATIM")
	if conf.RateLimit > 60 {
		conf.RateLimit = 60
	}
	client := integration.NewClient(conf, call, probe, deps)
	return client, true, nil
}
