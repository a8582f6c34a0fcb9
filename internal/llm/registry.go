package llm

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kandev/agentflow/internal/common/apperr"
)

// registryFile is the on-disk shape of model_registry_path (§6.5).
type registryFile struct {
	Models []struct {
		ID          string  `yaml:"id"`
		Provider    string  `yaml:"provider"`
		NativeModel string  `yaml:"native_model"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"models"`
}

// Registry maps a public model id to its provider binding.
type Registry struct {
	entries map[string]ModelEntry
}

// defaultModels is used when no registry file is configured, covering the
// minimum §4.2 requires: a primary cloud provider, an alternate cloud
// provider, and a locally-served HTTP model.
func defaultModels() []ModelEntry {
	return []ModelEntry{
		{ID: "primary-chat", Provider: ProviderPrimary, NativeModel: "primary-chat-v1", DefaultOpts: Options{Temperature: 0.7}},
		{ID: "alternate-chat", Provider: ProviderAlternate, NativeModel: "alternate-chat-v1", DefaultOpts: Options{Temperature: 0.7}},
		{ID: "local-chat", Provider: ProviderLocal, NativeModel: "local-default", DefaultOpts: Options{Temperature: 0.7}},
	}
}

// LoadRegistry reads path (if non-empty and present) and merges it over the
// built-in defaults; an empty or missing path yields the defaults alone.
func LoadRegistry(path string) (*Registry, error) {
	entries := map[string]ModelEntry{}
	for _, m := range defaultModels() {
		entries[m.ID] = m
	}

	if path == "" {
		return &Registry{entries: entries}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Registry{entries: entries}, nil
	}
	if err != nil {
		return nil, apperr.InternalError("failed to read model registry file", err)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, apperr.InternalError("failed to parse model registry file", err)
	}
	for _, m := range rf.Models {
		entries[m.ID] = ModelEntry{
			ID:          m.ID,
			Provider:    m.Provider,
			NativeModel: m.NativeModel,
			DefaultOpts: Options{Temperature: m.Temperature},
		}
	}
	return &Registry{entries: entries}, nil
}

// Lookup resolves a model id to its registry entry, or unknown_model.
func (r *Registry) Lookup(modelID string) (ModelEntry, error) {
	entry, ok := r.entries[modelID]
	if !ok {
		return ModelEntry{}, apperr.UnknownModel(modelID)
	}
	return entry, nil
}

// Known reports whether modelID is registered, used by submission validation.
func (r *Registry) Known(modelID string) bool {
	_, ok := r.entries[modelID]
	return ok
}
