package websocket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/events"
	"github.com/kandev/agentflow/internal/events/bus"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades GET /workflows/{id}/ws into a persistent event stream.
type Handler struct {
	hub    *Hub
	bus    bus.EventBus
	logger *logger.Logger
}

// NewHandler creates a new WebSocket handler fed by bus.
func NewHandler(hub *Hub, eventBus bus.EventBus, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		bus:    eventBus,
		logger: log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleConnection upgrades the HTTP request and streams workflowID's
// events until the client disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	workflowID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID, workflowID, conn, h.hub, h.logger)
	h.hub.Register(client)

	sub, err := h.bus.Subscribe(events.WildcardSubject(workflowID), func(_ context.Context, ev *bus.Event) error {
		h.hub.BroadcastToWorkflow(workflowID, ev)
		return nil
	})
	if err != nil {
		h.logger.Error("failed to subscribe to workflow events", zap.Error(err))
		h.hub.Unregister(client)
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	go client.WritePump()
	client.ReadPump()
}
