package websocket

import (
	"encoding/json"
	"sync"

	"loyalty/internal/events"
)

// Frame is the wire shape pushed to connected clients.
type Frame struct {
	Event string       `json:"event"`
	Data  events.Event `json:"data"`
}

// Hub tracks live connections per user and pushes domain events to the
// user they concern. Slow clients are skipped, never waited on.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Attach subscribes the hub to the event bus. Events without a connected
// recipient are dropped.
func (h *Hub) Attach(bus *events.Bus) {
	bus.Subscribe(func(event events.Event) {
		h.Push(event)
	})
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) Push(event events.Event) {
	payload, err := json.Marshal(Frame{Event: event.Name(), Data: event})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[event.User()] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
