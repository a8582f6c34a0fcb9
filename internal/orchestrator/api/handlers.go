package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agentflow/internal/common/apperr"
	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/events"
	"github.com/kandev/agentflow/internal/events/bus"
	"github.com/kandev/agentflow/internal/orchestrator/scheduler"
	"github.com/kandev/agentflow/internal/publisher"
	"github.com/kandev/agentflow/internal/workflow"
)

// Handler serves the workflow HTTP surface (§6.1–6.3).
type Handler struct {
	engine    *workflow.Engine
	scheduler *scheduler.Scheduler
	bus       bus.EventBus
	logger    *logger.Logger
}

// NewHandler creates a workflow API handler.
func NewHandler(engine *workflow.Engine, sched *scheduler.Scheduler, eventBus bus.EventBus, log *logger.Logger) *Handler {
	return &Handler{
		engine:    engine,
		scheduler: sched,
		bus:       eventBus,
		logger:    log.WithFields(zap.String("component", "workflow-api")),
	}
}

func writeAppErr(c *gin.Context, err error) {
	c.JSON(apperr.GetHTTPStatus(err), gin.H{
		"code":    appErrCode(err),
		"message": err.Error(),
	})
}

func appErrCode(err error) string {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "internal_error"
}

// submitRequest is the wire shape of POST /workflows (§6.1).
type submitRequest struct {
	Task            string      `json:"task"`
	Agents          []agentWire `json:"agents"`
	Edges           []edgeWire  `json:"edges"`
	AwaitCompletion bool        `json:"await_completion"`
	DeadlineSeconds int         `json:"deadline_seconds"`
}

type agentWire struct {
	ID            string `json:"id"`
	Role          string `json:"role"`
	Model         string `json:"model"`
	SystemPrompt  string `json:"system_prompt"`
	MemoryEnabled bool   `json:"memory_enabled"`
}

type edgeWire struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (r submitRequest) toDomain() workflow.Request {
	agents := make([]workflow.Agent, len(r.Agents))
	for i, a := range r.Agents {
		agents[i] = workflow.Agent{
			ID:            a.ID,
			Role:          workflow.Role(a.Role),
			Model:         a.Model,
			SystemPrompt:  a.SystemPrompt,
			MemoryEnabled: a.MemoryEnabled,
		}
	}
	edges := make([]workflow.Edge, len(r.Edges))
	for i, e := range r.Edges {
		edges[i] = workflow.Edge{From: e.From, To: e.To}
	}
	return workflow.Request{
		Task:            r.Task,
		Agents:          agents,
		Edges:           edges,
		AwaitCompletion: r.AwaitCompletion,
		DeadlineSeconds: r.DeadlineSeconds,
	}
}

// SubmitWorkflow handles POST /workflows.
func (h *Handler) SubmitWorkflow(c *gin.Context) {
	var wire submitRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		writeAppErr(c, apperr.InvalidRequest(err.Error()))
		return
	}

	req := wire.toDomain()
	id, err := h.engine.Register(req)
	if err != nil {
		writeAppErr(c, err)
		return
	}

	if err := h.scheduler.EnqueueJob(id, req); err != nil {
		h.logger.Error("failed to enqueue workflow job", zap.String("workflow_id", id), zap.Error(err))
		writeAppErr(c, apperr.InternalError("failed to schedule workflow", err))
		return
	}

	if req.AwaitCompletion {
		h.awaitTerminal(c, id, req.DeadlineSeconds)
		return
	}

	snap, _ := h.engine.Status(id)
	c.JSON(http.StatusOK, gin.H{"workflow_id": id, "status": snap.Status})
}

// awaitTerminal polls status until workflowID reaches a terminal state or
// the caller's deadline elapses, per §4.1's "await completion" contract.
func (h *Handler) awaitTerminal(c *gin.Context, workflowID string, deadlineSeconds int) {
	if deadlineSeconds <= 0 {
		deadlineSeconds = 1200
	}
	deadline := time.Now().Add(time.Duration(deadlineSeconds) * time.Second)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap, err := h.engine.Status(workflowID)
		if err != nil {
			writeAppErr(c, err)
			return
		}
		if isTerminal(snap.Status) || time.Now().After(deadline) {
			c.JSON(http.StatusOK, gin.H{"workflow_id": workflowID, "status": snap.Status, "snapshot": snap})
			return
		}
		<-ticker.C
	}
}

func isTerminal(s workflow.Status) bool {
	return s == workflow.StatusCompleted || s == workflow.StatusFailed || s == workflow.StatusCancelled
}

// GetWorkflow handles GET /workflows/{id} (§6.2).
func (h *Handler) GetWorkflow(c *gin.Context) {
	id := c.Param("id")
	snap, err := h.engine.Status(id)
	if err != nil {
		writeAppErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// StreamEvents handles GET /workflows/{id}/events as Server-Sent Events
// (§6.2). The stream closes after the final workflow_status event.
func (h *Handler) StreamEvents(c *gin.Context) {
	id := c.Param("id")
	kindFilter := c.Query("kind")

	if _, err := h.engine.Status(id); err != nil {
		writeAppErr(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	msgCh := make(chan *bus.Event, 64)
	sub, err := h.bus.Subscribe(events.WildcardSubject(id), func(_ context.Context, ev *bus.Event) error {
		select {
		case msgCh <- ev:
		default:
		}
		return nil
	})
	if err != nil {
		writeAppErr(c, apperr.InternalError("failed to subscribe to workflow events", err))
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-msgCh:
			if kindFilter != "" && ev.Type != kindFilter {
				return true
			}
			c.SSEvent(ev.Type, ev.Data)
			return ev.Type != events.KindWorkflowStatus
		case <-clientGone:
			return false
		}
	})
}

// PublishWorkflow handles POST /workflows/{id}/publish (§6.3).
func (h *Handler) PublishWorkflow(c *gin.Context) {
	id := c.Param("id")

	snap, err := h.engine.Status(id)
	if err != nil {
		writeAppErr(c, err)
		return
	}
	if snap.Status != workflow.StatusCompleted {
		writeAppErr(c, apperr.InvalidRequest("workflow must be completed before publishing"))
		return
	}

	var body struct {
		Visibility string `json:"visibility"`
		Token      string `json:"token"`
		Username   string `json:"username"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAppErr(c, apperr.InvalidRequest(err.Error()))
		return
	}

	visibility := publisher.VisibilityPrivate
	if body.Visibility == string(publisher.VisibilityPublic) {
		visibility = publisher.VisibilityPublic
	}

	result, err := h.engine.Publish(c.Request.Context(), id, publisher.Credentials{Token: strings.TrimSpace(body.Token), Username: strings.TrimSpace(body.Username)}, visibility)
	if err != nil {
		writeAppErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelWorkflow handles POST /workflows/{id}/cancel.
func (h *Handler) CancelWorkflow(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Cancel(id); err != nil {
		writeAppErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id, "status": "cancelling"})
}
