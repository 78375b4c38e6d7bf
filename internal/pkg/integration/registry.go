package integration

import (
	"fmt"
	"sort"
	"sync"
)

// Capability names route outbound calls to provider groups.
const (
	CapabilityPayment   = "payment"
	CapabilityEmail     = "email"
	CapabilitySMS       = "sms"
	CapabilityGeocoding = "geocoding"
	CapabilityWeather   = "weather"
	CapabilityCurrency  = "currency"
)

// Registry holds the closed set of provider clients and the preference-
// ordered provider lists per capability. It is built once at startup and
// read-only afterwards; the mutex only guards against misuse during setup.
type Registry struct {
	mu           sync.RWMutex
	clients      map[string]*Client
	capabilities map[string][]string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:      make(map[string]*Client),
		capabilities: make(map[string][]string),
	}
}

// Register adds a provider client under its configured name.
func (r *Registry) Register(client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := client.Name()
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("provider %q registered twice", name)
	}
	r.clients[name] = client
	return nil
}

// Bind maps a capability to providers in preference order. Every provider
// must already be registered.
func (r *Registry) Bind(capability string, providers ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(providers) == 0 {
		return fmt.Errorf("capability %q bound with no providers", capability)
	}
	for _, p := range providers {
		if _, ok := r.clients[p]; !ok {
			return fmt.Errorf("capability %q references unknown provider %q", capability, p)
		}
	}
	r.capabilities[capability] = append([]string(nil), providers...)
	return nil
}

// Get returns the client for an explicitly named provider.
func (r *Registry) Get(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// ClientsFor returns the preference-ordered clients for a capability.
func (r *Registry) ClientsFor(capability string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.capabilities[capability]
	clients := make([]*Client, 0, len(names))
	for _, name := range names {
		if c, ok := r.clients[name]; ok {
			clients = append(clients, c)
		}
	}
	return clients
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// All returns every registered client.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, name := range r.namesLocked() {
		clients = append(clients, r.clients[name])
	}
	return clients
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
