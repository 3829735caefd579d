// Package overlay connects browser overlays to per-user dialogue engines over
// websockets.
package overlay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

// Conn is the part of *websocket.Conn the hub writes through.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Client is one registered socket with its outbound queue.
type Client struct {
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Enqueue queues data without blocking. It reports false if the queue is
// full or the client has stopped.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Pump writes queued frames until ctx ends, the client is stopped, or a
// write fails.
func (c *Client) Pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks the sockets open for each user and fans frames out to them.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*Client
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active: make(map[string]map[string]*Client),
		logger: logger,
	}
}

// Register adds conn for a user/session, replacing and closing any socket
// already registered under the same session.
func (h *Hub) Register(userID, sessionID string, conn Conn) *Client {
	c := newClient(conn)

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*Client)
	}
	if existing, exists := h.active[userID][sessionID]; exists {
		existing.stop()
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}

	h.active[userID][sessionID] = c
	h.logger.Info("Overlay socket registered", "user_id", userID, "session_id", sessionID)
	return c
}

// Unregister removes c if it is still the registered client for the
// user/session, and reports whether it was.
func (h *Hub) Unregister(userID, sessionID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.stop()
	sessions, ok := h.active[userID]
	if !ok {
		return false
	}
	current, exists := sessions[sessionID]
	if !exists || current != c {
		return false
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(h.active, userID)
	}
	h.logger.Info("Overlay socket unregistered", "user_id", userID, "session_id", sessionID)
	return true
}

// Get returns the client registered for a user/session.
func (h *Hub) Get(userID, sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessions, ok := h.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns how many sockets a user has open.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Broadcast queues data on every socket the user has open and returns how
// many accepted it. Slow sockets drop frames rather than stall the engine.
func (h *Hub) Broadcast(userID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for sid, c := range h.active[userID] {
		if c.Enqueue(data) {
			n++
			continue
		}
		h.logger.Warn("Dropping overlay frame for slow socket", "user_id", userID, "session_id", sid)
	}
	return n
}

// CloseUser terminates every socket a user has open.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[userID]
	if !ok {
		return
	}
	for sid, c := range sessions {
		c.stop()
		_ = c.conn.Close(websocket.StatusNormalClosure, "session closed")
		h.logger.Info("Overlay socket closed", "user_id", userID, "session_id", sid)
	}
	delete(h.active, userID)
}
