package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"ecocontrol/internal/metrics"
)

// Client represents a connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans plant updates out to the connected dashboards. A dashboard that
// cannot keep up with the tick rate misses messages instead of stalling the
// simulation; misses are counted per message type.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub. m may be nil.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger.With(slog.String("component", "ws")),
		metrics: m,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.metrics.WebSocketClients(len(h.clients))
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.metrics.WebSocketClients(len(h.clients))
}

// Broadcast sends an envelope to all connected clients.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var dropped int
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			dropped++
		}
	}
	if dropped == 0 {
		return
	}

	msgType := envelopeType(msg)
	for i := 0; i < dropped; i++ {
		h.metrics.WebSocketDropped(msgType)
	}
	h.logger.Warn("client buffer full, dropping message",
		slog.String("type", msgType),
		slog.Int("clients", dropped))
}

// envelopeType returns the type of an encoded Envelope, or "unknown".
func envelopeType(msg []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &env); err != nil || env.Type == "" {
		return "unknown"
	}
	return env.Type
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
