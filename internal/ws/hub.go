package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afk-console/backend/internal/session"
)

// ErrTooManyConnections is returned by AddClient when the hub is full.
var ErrTooManyConnections = errors.New("too many websocket connections")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

type client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	// room is guarded by hub.mu.
	room string
	// joined is only touched by the read loop.
	joined *session.Session
}

func newClient(conn *websocket.Conn, h *Hub) *client {
	return &client{
		conn: conn,
		hub:  h,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.RemoveClient(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.RemoveClient(c)
				return
			}
		}
	}
}

// Hub tracks websocket clients and the session room each one has joined.
// It implements session.Publisher: Publish never blocks, and a client
// whose queue is full is disconnected.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	rooms    map[string]map[*client]bool
	maxConns int
	logger   *slog.Logger
}

// NewHub returns an empty hub. maxConns <= 0 means unlimited.
func NewHub(maxConns int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[*client]bool),
		rooms:    make(map[string]map[*client]bool),
		maxConns: maxConns,
		logger:   logger,
	}
}

// AddClient registers conn and starts its write pump.
func (h *Hub) AddClient(conn *websocket.Conn) (*client, error) {
	c := newClient(conn, h)

	h.mu.Lock()
	if h.maxConns > 0 && len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	h.clients[c] = true
	h.mu.Unlock()

	go c.writePump()
	return c, nil
}

// RemoveClient unregisters c and closes its queue. It is safe to call more
// than once.
func (h *Hub) RemoveClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.leaveLocked(c)
	close(c.send)
}

// Join moves c into room, leaving any room it was in.
func (h *Hub) Join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.leaveLocked(c)
	members := h.rooms[room]
	if members == nil {
		members = make(map[*client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	c.room = room
}

func (h *Hub) leaveLocked(c *client) {
	if c.room == "" {
		return
	}
	if members := h.rooms[c.room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// Publish sends ev to every client in the room named by sessionID.
func (h *Hub) Publish(sessionID string, ev session.Event) {
	data, err := encode(MessageType(ev.Type), ev.Payload)
	if err != nil {
		h.logger.Error("ws marshal failed", "type", ev.Type, "error", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[sessionID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("ws client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		h.RemoveClient(c)
	}
}

// Send queues one message for c alone.
func (h *Hub) Send(c *client, t MessageType, payload interface{}) {
	data, err := encode(t, payload)
	if err != nil {
		h.logger.Error("ws marshal failed", "type", t, "error", err)
		return
	}

	h.mu.RLock()
	ok := h.clients[c]
	queued := false
	if ok {
		select {
		case c.send <- data:
			queued = true
		default:
		}
	}
	h.mu.RUnlock()

	if ok && !queued {
		h.logger.Warn("ws client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		h.RemoveClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		h.leaveLocked(c)
		close(c.send)
	}
}
