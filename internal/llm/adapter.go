package llm

import (
	"context"

	"github.com/kandev/agentflow/internal/common/config"
)

// providerBaseURLs gives each cloud provider family a default endpoint; an
// operator may override via config in a future revision, but the registry
// contract only requires the provider field to select a driver.
var providerBaseURLs = map[string]string{
	ProviderPrimary:   "https://api.primary-provider.example/v1",
	ProviderAlternate: "https://api.alternate-provider.example/v1",
}

// Adapter implements the complete()/stream() contract of §4.2, dispatching
// each call to the driver bound to the model's registry entry.
type Adapter struct {
	registry *Registry
	drivers  map[string]Driver
}

// NewAdapter builds an adapter from cfg's registry path and per-provider
// credentials, binding one driver per provider family.
func NewAdapter(cfg config.LLMConfig) (*Adapter, error) {
	registry, err := LoadRegistry(cfg.ModelRegistryPath)
	if err != nil {
		return nil, err
	}

	drivers := map[string]Driver{
		ProviderPrimary:   NewHTTPDriver(providerBaseURLs[ProviderPrimary], cfg.Credentials[ProviderPrimary]),
		ProviderAlternate: NewHTTPDriver(providerBaseURLs[ProviderAlternate], cfg.Credentials[ProviderAlternate]),
		ProviderLocal:     NewStubDriver(),
	}

	return &Adapter{registry: registry, drivers: drivers}, nil
}

// NewAdapterWithDrivers builds an Adapter from an already-loaded registry and
// an explicit provider-to-driver binding, bypassing NewAdapter's cfg-driven
// wiring. Exported for tests that need to script differentiated, role-aware
// responses (e.g. a multi-agent routing test) rather than NewAdapter's
// single shared stub driver.
func NewAdapterWithDrivers(registry *Registry, drivers map[string]Driver) *Adapter {
	return &Adapter{registry: registry, drivers: drivers}
}

// Known reports whether modelID is registered, for submission-time validation.
func (a *Adapter) Known(modelID string) bool {
	return a.registry.Known(modelID)
}

// Complete resolves modelID to its provider driver and issues a single
// non-streaming completion call.
func (a *Adapter) Complete(ctx context.Context, modelID string, messages []Message, opts Options) (string, Metadata, error) {
	entry, err := a.registry.Lookup(modelID)
	if err != nil {
		return "", Metadata{}, err
	}
	driver, ok := a.drivers[entry.Provider]
	if !ok {
		driver = a.drivers[ProviderLocal]
	}
	if opts.Temperature == 0 {
		opts.Temperature = entry.DefaultOpts.Temperature
	}
	text, meta, err := driver.Complete(ctx, entry.NativeModel, messages, opts)
	meta.Provider = entry.Provider
	return text, meta, err
}

// Stream resolves modelID and issues a streaming completion call.
func (a *Adapter) Stream(ctx context.Context, modelID string, messages []Message, opts Options) (<-chan Chunk, error) {
	entry, err := a.registry.Lookup(modelID)
	if err != nil {
		return nil, err
	}
	driver, ok := a.drivers[entry.Provider]
	if !ok {
		driver = a.drivers[ProviderLocal]
	}
	return driver.Stream(ctx, entry.NativeModel, messages, opts)
}
