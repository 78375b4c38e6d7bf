package providers

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
)

const openWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// OpenWeatherConfig holds the weather provider credentials.
type OpenWeatherConfig struct {
	APIKey string `validate:"required"`
}

func (c OpenWeatherConfig) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

func newOpenWeatherClient(deps integration.Deps) (*integration.Client, bool, error) {
	apiKey := env.GetEnv("OPENWEATHER_API_KEY", "")
	if apiKey == "" {
		return nil, false, nil
	}
	cfg := OpenWeatherConfig{APIKey: apiKey}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("openweather config: %w", err)
	}

	call := integration.NewHTTPCall(openWeatherBaseURL, nil, integration.NewDefaultHTTPClient())

	probe := integration.Request{
		Endpoint: "/weather?q=Berlin&appid=" + cfg.APIKey,
		Method:   "GET",
		Timeout:  10 * time.Second,
	}
	client := integration.NewClient(baseConfig("openweather", "OPENWEATHER"), call, probe, deps)
	return client, true, nil
}
