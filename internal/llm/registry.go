package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Settings configures a provider instance.
type Settings struct {
	APIKey string
	Model  string
}

// ProviderFactory creates a new provider instance.
type ProviderFactory func(Settings) (Provider, error)

var (
	registryMu sync.RWMutex
	providers  = make(map[string]ProviderFactory)
)

// RegisterProvider registers a provider factory with the given name.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = factory
}

// NewProvider creates a provider by name.
func NewProvider(name string, settings Settings) (Provider, error) {
	registryMu.RLock()
	factory, exists := providers[name]
	registryMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
	return factory(settings)
}

// Providers lists the registered provider names.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
