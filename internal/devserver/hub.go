package devserver

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type pushMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	userID string
	role   string
}

// Hub tracks live notification connections and the product/order groups
// each one has subscribed to.
type Hub struct {
	mu          sync.Mutex
	connections map[string]*client             // by connection id
	groups      map[string]map[string]struct{} // group -> connection ids
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*client),
		groups:      make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(connID, userID, role string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.connections[connID]; exists && old != nil {
		_ = old.conn.Close()
	}
	h.connections[connID] = &client{id: connID, conn: conn, userID: userID, role: role}
}

func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, exists := h.connections[connID]; exists && c != nil {
		_ = c.conn.Close()
		delete(h.connections, connID)
	}
	for _, members := range h.groups {
		delete(members, connID)
	}
}

func (h *Hub) Join(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]struct{})
	}
	h.groups[group][connID] = struct{}{}
}

func (h *Hub) Leave(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, connID)
	}
}

// Broadcast pushes an event to every connection.
func (h *Hub) Broadcast(event string, data any) {
	h.send(event, data, func(*client) bool { return true })
}

// BroadcastRole pushes an event to every connection of users with the role.
func (h *Hub) BroadcastRole(role, event string, data any) {
	h.send(event, data, func(c *client) bool { return c.role == role })
}

// BroadcastUser pushes an event to every connection of one user.
func (h *Hub) BroadcastUser(userID, event string, data any) {
	h.send(event, data, func(c *client) bool { return c.userID == userID })
}

// BroadcastGroup pushes an event to every member of a subscription group.
func (h *Hub) BroadcastGroup(group, event string, data any) {
	h.send(event, data, func(c *client) bool {
		members, ok := h.groups[group]
		if !ok {
			return false
		}
		_, member := members[c.id]
		return member
	})
}

func (h *Hub) OnlineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.connections {
		if c != nil {
			_ = c.conn.Close()
		}
		delete(h.connections, id)
	}
}

func (h *Hub) send(event string, data any, match func(*client) bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("devserver: encoding %s push: %v", event, err)
		return
	}
	msg := pushMessage{Event: event, Data: raw}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.connections {
		if c == nil || !match(c) {
			continue
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			_ = c.conn.Close()
			delete(h.connections, id)
		}
	}
}
