package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when a user has no live connections to
// deliver to.
var ErrNotConnected = errors.New("user has no active connections")

const sendBufferSize = 32

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks the live WebSocket connections per user and delivers
// actuator commands to them. Slow connections are skipped rather than
// allowed to block delivery to everyone else.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	// OnEmpty, if set, is invoked after a user's last connection is
	// removed.
	OnEmpty func(userID string)
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
	}
}

// Add registers conn for userID and services it until the peer
// disconnects or the hub is closed.
func (h *Hub) Add(userID string, conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(userID, c)
	go h.readPump(userID, c)
}

func (h *Hub) writePump(userID string, c *client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("ws write failed", "user_id", userID, "error", err)
			break
		}
	}
	c.conn.Close()
}

// readPump discards inbound frames; its job is to notice the close.
func (h *Hub) readPump(userID string, c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(userID, c)
}

func (h *Hub) remove(userID string, c *client) {
	h.mu.Lock()
	conns, ok := h.clients[userID]
	if ok {
		if _, present := conns[c]; present {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	empty := len(h.clients[userID]) == 0
	h.mu.Unlock()

	if ok && empty && h.OnEmpty != nil {
		h.OnEmpty(userID)
	}
}

// SendJSON delivers v to every live connection of userID. A connection
// whose buffer is full is skipped.
func (h *Hub) SendJSON(userID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling ws command: %w", err)
	}

	h.mu.RLock()
	conns := h.clients[userID]
	if len(conns) == 0 {
		h.mu.RUnlock()
		return ErrNotConnected
	}
	for c := range conns {
		select {
		case c.send <- payload:
		default:
			slog.Debug("dropping ws command for slow connection", "user_id", userID)
		}
	}
	h.mu.RUnlock()
	return nil
}

// ConnectionCount returns the number of live connections for userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close drops every connection. OnEmpty is not invoked; this is
// process shutdown, not a user going away.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for c := range conns {
			close(c.send)
			delete(conns, c)
		}
		delete(h.clients, userID)
	}
}
