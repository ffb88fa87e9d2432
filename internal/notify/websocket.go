package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"alert-service/internal/logging"
	"alert-service/internal/models"
)

const (
	maxConnections = 100
	// Messages queued per connection before a slow client is dropped.
	sendBuffer = 16
	writeWait  = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the open websocket connections that receive dispatched alerts.
// Each connection has its own writer goroutine, so Notify never waits on a client.
type Hub struct {
	connections map[*websocket.Conn]*client
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{connections: make(map[*websocket.Conn]*client), logger: logger}
}

// Add registers a connection. It returns false when the hub is full.
func (h *Hub) Add(conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.connections) >= maxConnections {
		h.logger.Warnf("Max websocket connections reached (%d)", maxConnections)
		return false
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.connections[conn] = c
	go h.writePump(c)
	h.logger.Infof("Added websocket connection %s (total: %d)", conn.RemoteAddr(), len(h.connections))
	return true
}

// Remove drops a connection and stops its writer.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.drop(conn) {
		h.logger.Infof("Removed websocket connection %s (remaining: %d)", conn.RemoteAddr(), len(h.connections))
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

// Notify queues the alerts for every connection. A client whose queue is full
// is disconnected.
func (h *Hub) Notify(ctx context.Context, alerts []models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	message, err := json.Marshal(map[string]interface{}{"type": "dispatch", "payload": alerts})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch: %w", err)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, c := range h.connections {
		select {
		case c.send <- message:
		default:
			h.logger.Warnf("Websocket client %s is not reading, disconnecting", conn.RemoteAddr())
			h.drop(conn)
			_ = conn.Close()
		}
	}
	return nil
}

func (h *Hub) writePump(c *client) {
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send websocket message to %s: %v", c.conn.RemoteAddr(), err)
			h.Remove(c.conn)
			_ = c.conn.Close()
			return
		}
	}
}

// drop must be called with the mutex held.
func (h *Hub) drop(conn *websocket.Conn) bool {
	c, ok := h.connections[conn]
	if !ok {
		return false
	}
	delete(h.connections, conn)
	close(c.send)
	return true
}
