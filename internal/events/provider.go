package events

import (
	"fmt"
	"strings"

	"github.com/kandev/agentflow/internal/common/config"
	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/events/bus"
)

// ProvidedBus wraps the active event bus implementation.
type ProvidedBus struct {
	Bus    bus.EventBus
	Memory *bus.MemoryEventBus
	NATS   *bus.NATSEventBus
}

// Provide builds the event bus selected by cfg.EventBus.Driver.
func Provide(cfg *config.Config, log *logger.Logger) (*ProvidedBus, func() error, error) {
	switch strings.ToLower(cfg.EventBus.Driver) {
	case "nats":
		natsBus, err := bus.NewNATSEventBus(cfg.EventBus, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		cleanup := func() error {
			natsBus.Close()
			return nil
		}
		return &ProvidedBus{Bus: natsBus, NATS: natsBus}, cleanup, nil
	default:
		memBus := bus.NewMemoryEventBus(log)
		return &ProvidedBus{Bus: memBus, Memory: memBus}, func() error { return nil }, nil
	}
}
