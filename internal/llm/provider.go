package llm

import "github.com/kandev/agentflow/internal/common/config"

// Provide builds the LLM Adapter from configuration, following the same
// (service, cleanup, error) shape as the other ambient providers.
func Provide(cfg *config.Config) (*Adapter, func() error, error) {
	adapter, err := NewAdapter(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	return adapter, func() error { return nil }, nil
}
