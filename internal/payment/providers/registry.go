// Package providers holds the payment processor registry.
package providers

import (
	"strings"

	"github.com/tapmenu/platform/internal/payment/domain"
)

// Registry maps provider name to implementation. It selects the configured
// active provider for outbound invoice creation and dispatches inbound
// webhooks by path segment.
type Registry struct {
	providers map[string]domain.Provider
	active    string
}

func NewRegistry(active string, providers ...domain.Provider) *Registry {
	registry := &Registry{
		providers: map[string]domain.Provider{},
		active:    strings.ToLower(strings.TrimSpace(active)),
	}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		registry.providers[name] = provider
	}
	return registry
}

func (r *Registry) Resolve(name string) (domain.Provider, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return provider, nil
}

// Active returns the provider configured for outbound invoice creation.
func (r *Registry) Active() (domain.Provider, error) {
	return r.Resolve(r.active)
}

func (r *Registry) ActiveName() string {
	return r.active
}
