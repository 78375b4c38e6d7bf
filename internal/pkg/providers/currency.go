package providers

import (
	"time"

	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
)

const exchangeRateBaseURL = "https://open.er-api.com/v6"

// newExchangeRateClient serves currency conversion rates. The open endpoint
// needs no key; rates refresh daily so a low rate limit is plenty.
func newExchangeRateClient(deps integration.Deps) (*integration.Client, bool, error) {
	if env.GetEnv("EXCHANGERATE_ENABLED", "true") != "true" {
		return nil, false, nil
	}

	call := integration.NewHTTPCall(exchangeRateBaseURL, nil, integration.NewDefaultHTTPClient())

	probe := integration.Request{
		Endpoint: "/latest/USD",
		Method:   "GET",
		Timeout:  10 * time.Second,
	}
	conf := baseConfig("exchangerate", "EXCHANGERATE")
	if conf.RateLimit > 30 {
		conf.RateLimit = 30
	}
	client := integration.NewClient(conf, call, probe, deps)
	return client, true, nil
}
