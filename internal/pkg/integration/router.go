package integration

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// Router maps a capability to its preference-ordered provider clients and
// falls back to the next provider when the preferred one fails.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Do executes the request against the capability's providers in preference
// order. Any failure, including rate-limit and open-breaker rejections,
// moves on to the next provider; the last error surfaces if all fail.
//
// Fallback is a single linear pass, never a retry loop: worst-case latency
// is bounded by the provider count and already-degraded providers are not
// hammered twice.
func (r *Router) Do(ctx context.Context, capability string, req Request) (*Response, error) {
	clients := r.registry.ClientsFor(capability)
	if len(clients) == 0 {
		return nil, fmt.Errorf("no providers bound for capability %q", capability)
	}

	var lastErr error
	for i, client := range clients {
		resp, err := client.Execute(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i < len(clients)-1 {
			log.Warnf("[Router] %s: provider %s failed, falling back to %s: %v",
				capability, client.Name(), clients[i+1].Name(), err)
		} else {
			log.Warnf("[Router] %s: provider %s failed, no fallback left: %v",
				capability, client.Name(), err)
		}
	}
	return nil, fmt.Errorf("all %s providers failed: %w", capability, lastErr)
}

// DoWith executes against one explicitly named provider. No fallback occurs
// on this path; the caller asked for exactly this provider.
func (r *Router) DoWith(ctx context.Context, provider string, req Request) (*Response, error) {
	client, ok := r.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return client.Execute(ctx, req)
}
