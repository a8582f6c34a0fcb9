package workflow

import (
	"github.com/kandev/agentflow/internal/common/config"
	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/events/bus"
	"github.com/kandev/agentflow/internal/llm"
	"github.com/kandev/agentflow/internal/project"
	"github.com/kandev/agentflow/internal/publisher"
)

// Provide builds the Engine from its already-constructed dependencies.
func Provide(cfg *config.Config, b bus.EventBus, adapter *llm.Adapter, projects *project.Store, pub *publisher.Service, log *logger.Logger) (*Engine, func() error, error) {
	engine := NewEngine(b, adapter, projects, pub, cfg.Engine, log)
	return engine, func() error { return nil }, nil
}
