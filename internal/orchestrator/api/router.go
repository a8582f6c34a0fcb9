// Package api exposes the Workflow Engine over HTTP: submission, status,
// event streaming, and publication (§6.1–6.3).
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/events/bus"
	gatewayws "github.com/kandev/agentflow/internal/gateway/websocket"
	"github.com/kandev/agentflow/internal/orchestrator/scheduler"
	"github.com/kandev/agentflow/internal/workflow"
)

// SetupRoutes mounts the workflow HTTP surface under router. wsHub must
// already be running (its Run loop is started by the composition root).
func SetupRoutes(router *gin.RouterGroup, engine *workflow.Engine, sched *scheduler.Scheduler, eventBus bus.EventBus, wsHub *gatewayws.Hub, log *logger.Logger) {
	handler := NewHandler(engine, sched, eventBus, log)
	wsHandler := gatewayws.NewHandler(wsHub, eventBus, log)

	router.POST("/workflows", handler.SubmitWorkflow)
	router.GET("/workflows/:id", handler.GetWorkflow)
	router.GET("/workflows/:id/events", handler.StreamEvents)
	router.GET("/workflows/:id/ws", wsHandler.HandleConnection)
	router.POST("/workflows/:id/publish", handler.PublishWorkflow)
	router.POST("/workflows/:id/cancel", handler.CancelWorkflow)
}
