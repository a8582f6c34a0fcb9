package publisher

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/agentflow/internal/common/config"
	"github.com/kandev/agentflow/internal/common/logger"
)

// NewClient selects the publisher binding named by cfg.Binding ("pat" or
// "cli"), falling back to the other binding when the preferred one has no
// usable credentials or CLI installation — the same fallback-chain shape
// the teacher uses to pick between its gh-CLI and PAT-token GitHub clients.
func NewClient(ctx context.Context, cfg config.PublisherConfig, log *logger.Logger) (Client, string, error) {
	wantCLI := cfg.Binding == "cli"

	if wantCLI && CLIAvailable("gh") {
		log.Info("using hosting CLI for repository publishing")
		return NewCLIClient("gh"), "cli", nil
	}
	if wantCLI {
		log.Warn("publisher.binding=cli requested but the CLI is not installed, falling back to token auth",
			zap.String("cli", "gh"))
	}

	if cfg.Token != "" {
		log.Info("using PAT client for repository publishing")
		return NewPATClient(cfg.BaseURL), "pat", nil
	}

	if CLIAvailable("gh") {
		log.Info("no publisher token configured, falling back to hosting CLI")
		return NewCLIClient("gh"), "cli", nil
	}

	return nil, "none", nil
}
