package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a real-time notification pushed to every attached surface.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
	Data   any            `json:"data,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub maintains the set of attached clients and broadcasts messages. The
// most recent retained message is replayed to clients as they register.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	retained []byte
	onAttach func()
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// OnAttach sets fn to run each time a client registers, before the retained
// message is replayed to it. Must be called before clients connect.
func (h *Hub) OnAttach(fn func()) {
	h.mu.Lock()
	h.onAttach = fn
	h.mu.Unlock()
}

// Register adds a client and queues the retained message for it.
func (h *Hub) Register(c *Client) {
	h.mu.RLock()
	onAttach := h.onAttach
	h.mu.RUnlock()
	if onAttach != nil {
		onAttach()
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.retained != nil {
		select {
		case c.send <- h.retained:
		default:
		}
	}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	h.send(msg, false)
}

// BroadcastRetained sends msg to all clients and keeps it for late joiners.
func (h *Hub) BroadcastRetained(msg Message) {
	h.send(msg, true)
}

func (h *Hub) send(msg Message, retain bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	if retain {
		h.mu.Lock()
		h.retained = data
		h.mu.Unlock()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client; drop rather than block the publisher.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Attached reports whether any live surface is connected.
func (h *Hub) Attached() bool {
	return h.ClientCount() > 0
}
