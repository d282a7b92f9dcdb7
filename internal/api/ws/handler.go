package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// Handler upgrades HTTP connections and subscribes them to the hub.
type Handler struct {
	hub *Hub
}

// NewHandler creates a WebSocket handler backed by hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleConnection handles WebSocket upgrade and keeps the connection
// open until the client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.add(conn)
	defer h.hub.remove(client)

	client.deliver(map[string]interface{}{
		"type":    "system",
		"message": "Connected to trace stream",
	})

	// Read loop: the stream is one-way, but we still service pings and
	// use read errors to detect disconnects.
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if t, _ := msg["type"].(string); t == "ping" {
			client.deliver(map[string]interface{}{"type": "pong"})
		}
	}
}
