package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the part of simulator.Engine the dashboard drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	SetSpeed(speed float64)
	Forward(d time.Duration) error
	Status() simulator.Status
}

// Handler manages WebSocket connections and routes messages to the engine.
type Handler struct {
	ctx     context.Context
	hub     *Hub
	engine  Controller
	sensors []model.Sensor
	logger  *slog.Logger
}

// NewHandler serves the dashboard of one engine. Runs started from the
// dashboard end with ctx.
func NewHandler(ctx context.Context, hub *Hub, engine Controller, sensors []model.Sensor) *Handler {
	return &Handler{ctx: ctx, hub: hub, engine: engine, sensors: sensors, logger: hub.logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	go client.writePump()

	h.sendSensors(client)
	h.sendSimState(client)

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", slog.Any("err", err))
			}
			return
		}

		h.handleMessage(msg)
	}
}

func (h *Handler) handleMessage(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.logger.Warn("invalid message", slog.Any("err", err))
		return
	}

	switch env.Type {
	case TypeSimStart:
		if err := h.engine.Start(h.ctx); err != nil {
			h.logger.Warn("start failed", slog.Any("err", err))
		}
		h.broadcastSimState()

	case TypeSimStop:
		h.engine.Stop()

	case TypeSimSetSpeed:
		var p SetSpeedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn("invalid set_speed payload", slog.Any("err", err))
			return
		}
		h.engine.SetSpeed(p.Speed)
		h.broadcastSimState()

	case TypeSimForward:
		var p ForwardPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn("invalid forward payload", slog.Any("err", err))
			return
		}
		if err := h.engine.Forward(time.Duration(p.Hours * float64(time.Hour))); err != nil {
			h.logger.Warn("forward failed", slog.Any("err", err))
		}

	default:
		h.logger.Warn("unknown message type", slog.String("type", env.Type))
	}
}

func (h *Handler) broadcastSimState() {
	msg, err := NewEnvelope(TypeSimState, SimStateFromStatus(h.engine.Status()))
	if err != nil {
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) sendSensors(c *Client) {
	msg, err := NewEnvelope(TypeSensors, SensorsFromModel(h.sensors))
	if err != nil {
		h.logger.Error("creating sensors message", slog.Any("err", err))
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Handler) sendSimState(c *Client) {
	msg, err := NewEnvelope(TypeSimState, SimStateFromStatus(h.engine.Status()))
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
