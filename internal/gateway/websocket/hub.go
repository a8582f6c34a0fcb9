// Package websocket provides the WebSocket gateway that streams a running
// workflow's events to clients that prefer a persistent duplex connection
// over Server-Sent Events (§4.8, §6.2).
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/agentflow/internal/common/logger"
)

// Hub manages all WebSocket client connections for one process, with one
// subscriber set per workflow. It is fed by the same event bus subscription
// the SSE endpoint uses — never by a separate event-production path.
type Hub struct {
	clients map[*Client]bool

	workflowSubscribers map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:             make(map[*Client]bool),
		workflowSubscribers: make(map[string]map[*Client]bool),
		register:            make(chan *Client),
		unregister:          make(chan *Client),
		logger:              log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run starts the hub's main processing loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.workflowSubscribers = make(map[string]map[*Client]bool)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if clients, ok := h.workflowSubscribers[client.workflowID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.workflowSubscribers, client.workflowID)
		}
	}
	h.logger.Debug("client unregistered", zap.String("client_id", client.ID))
}

// Register adds a client to the hub and subscribes it to one workflow's
// events for the lifetime of the connection.
func (h *Hub) Register(client *Client) {
	h.register <- client
	h.mu.Lock()
	if _, ok := h.workflowSubscribers[client.workflowID]; !ok {
		h.workflowSubscribers[client.workflowID] = make(map[*Client]bool)
	}
	h.workflowSubscribers[client.workflowID][client] = true
	h.mu.Unlock()
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToWorkflow delivers an event to every client subscribed to
// workflowID. The event bus itself delivers to this hub's one subscription
// synchronously and in order (§5, §8); backpressure from here on is the
// hub's own problem. When a client's send buffer is full the event is
// skipped for that client (non-blocking send) and the skip is logged
// locally; the client stays registered, and no warning event is published
// onto the bus for it.
func (h *Hub) BroadcastToWorkflow(workflowID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal workflow event", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := h.workflowSubscribers[workflowID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping event",
				zap.String("client_id", client.ID),
				zap.String("workflow_id", workflowID))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
