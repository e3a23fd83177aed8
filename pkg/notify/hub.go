// Package notify delivers real-time events to connected clients over
// WebSocket and fans them out across instances through RabbitMQ.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Message types pushed to clients.
const (
	TypeDiscussion   = "discussion"
	TypeNotification = "notification"
	TypeOrderUpdate  = "order_update"
	TypePing         = "ping"
	TypePong         = "pong"
)

// Message is one event pushed over a WebSocket connection.
type Message struct {
	Type   string `json:"type"`
	UserID string `json:"-"`
	Data   any    `json:"data"`
}

// Hub tracks connected clients and routes events to them. Broadcast
// messages reach everyone; messages with a UserID reach only that user's
// connections.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub creates a hub. Call Run before registering clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events until ctx is cancelled, then closes all clients.
// Register and unregister sends racing the shutdown are released through
// the done channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected", "total_clients", total)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", "total_clients", total)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Publish queues a message for delivery. Drops the message if the hub's
// buffer is full rather than blocking the caller.
func (h *Hub) Publish(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("hub broadcast buffer full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if msg.UserID != "" && client.userID != msg.UserID {
			continue
		}
		select {
		case client.send <- msg:
		default:
			// Slow consumer: skip rather than block the hub.
			h.logger.Warn("client send buffer full, dropping message", "type", msg.Type)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
