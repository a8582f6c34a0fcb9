package workflow

import (
	"context"

	"github.com/kandev/agentflow/internal/events"
	"github.com/kandev/agentflow/internal/events/bus"
)

const eventSource = "workflow-engine"

func publish(ctx context.Context, b bus.EventBus, workflowID, kind string, data map[string]interface{}) {
	ev := bus.NewEvent(kind, eventSource, data)
	_ = b.Publish(ctx, events.Subject(workflowID, kind), ev)
}

func emitTurnStarted(ctx context.Context, b bus.EventBus, workflowID string, turnIndex int, from, to string) {
	publish(ctx, b, workflowID, events.KindTurnStarted, map[string]interface{}{
		"workflow_id": workflowID,
		"turn_index":  turnIndex,
		"from":        from,
		"to":          to,
	})
}

func emitAgentMessage(ctx context.Context, b bus.EventBus, workflowID string, turn Turn) {
	publish(ctx, b, workflowID, events.KindAgentMessage, map[string]interface{}{
		"workflow_id": workflowID,
		"turn_index":  turn.Index,
		"from":        turn.FromAgentID,
		"to":          turn.ToAgentID,
		"content":     turn.Content,
		"timestamp":   turn.Timestamp,
	})
}

func emitArtifactWritten(ctx context.Context, b bus.EventBus, workflowID string, turnIndex int, relativePath string, kind FileKind, size int) {
	publish(ctx, b, workflowID, events.KindArtifactWritten, map[string]interface{}{
		"workflow_id":   workflowID,
		"turn_index":    turnIndex,
		"relative_path": relativePath,
		"kind":          kind,
		"bytes":         size,
	})
}

func emitWarning(ctx context.Context, b bus.EventBus, workflowID, code, detail string) {
	publish(ctx, b, workflowID, events.KindWarning, map[string]interface{}{
		"workflow_id": workflowID,
		"code":        code,
		"detail":      detail,
	})
}

func emitStatus(ctx context.Context, b bus.EventBus, workflowID string, status Status, reason Reason) {
	publish(ctx, b, workflowID, events.KindWorkflowStatus, map[string]interface{}{
		"workflow_id": workflowID,
		"status":      status,
		"reason":      reason,
	})
}
