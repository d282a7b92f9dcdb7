// Package ws streams newly persisted trace summaries to connected
// dashboard clients over WebSocket.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentlens/agentlens/internal/infrastructure/logging"
	"github.com/agentlens/agentlens/internal/infrastructure/monitoring"
	"github.com/agentlens/agentlens/internal/trace"
)

const clientBuffer = 16

// Hub fans trace events out to subscribed connections. Slow clients
// are disconnected rather than allowed to stall the broadcast path.
type Hub struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan interface{}
	done chan struct{}
	once sync.Once
}

// deliver queues an event unless the client is gone or its buffer is
// full. Reports whether the event was queued.
func (c *client) deliver(event interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Broadcast sends a saved-trace event to every connected client.
// Safe to call from any goroutine.
func (h *Hub) Broadcast(summary trace.Summary) {
	event := map[string]interface{}{
		"type":      "trace_saved",
		"trace":     summary,
		"timestamp": time.Now().Unix(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.deliver(event) {
			h.logger.Warn("dropping slow stream client")
			go h.remove(c)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan interface{}, clientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamClientConnected()
	}
	go c.writeLoop(h.logger)
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.stop()
	if h.metrics != nil {
		h.metrics.StreamClientDisconnected()
	}
}

func (c *client) writeLoop(logger *logging.Logger) {
	defer c.conn.Close()
	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}
