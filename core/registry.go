package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry indexes provider adapters by canonical ID: trimmed and
// lowercased, so "HubSpot" and "hubspot" resolve to the same adapter.
// Registration is write-once per ID.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// BuildRegistry registers the given providers in order, failing on the first
// nil, blank-ID, or duplicate entry.
func BuildRegistry(providers ...Provider) (*ProviderRegistry, error) {
	registry := NewProviderRegistry()
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func canonicalProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	id := canonicalProviderID(provider.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.providers[id] = provider
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (Provider, bool) {
	id := canonicalProviderID(providerID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	provider, ok := r.providers[id]
	r.mu.RUnlock()
	return provider, ok
}

// List returns the registered providers ordered by canonical ID.
func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	providers := make([]Provider, 0, len(ids))
	for _, id := range ids {
		providers = append(providers, r.providers[id])
	}
	return providers
}

var _ Registry = (*ProviderRegistry)(nil)
