package publisher

import (
	"context"

	"github.com/kandev/agentflow/internal/common/config"
	"github.com/kandev/agentflow/internal/common/logger"
)

// Provide builds the Service wrapping whichever Client binding is available.
// The binding itself may be nil (Publish then fails with publish_failed)
// rather than treated as fatal at process startup. Workflow submission does
// not check for it, so its absence surfaces only when a publish is requested.
func Provide(cfg *config.Config, log *logger.Logger) (*Service, func() error, error) {
	client, method, err := NewClient(context.Background(), cfg.Publisher, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("repository publisher binding resolved: " + method)

	svc := NewService(client, log)
	return svc, func() error { return nil }, nil
}
