package websocket

import (
	"context"
	"sync"
	"time"
	"watchtower/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	broadcastQueue = 16
)

// Hub fans messages out to connected live viewers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	alerts     chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		alerts:     make(chan []byte, broadcastQueue),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.closeAll()

	for {
		// Alerts go out ahead of any frames already queued.
		select {
		case message := <-h.alerts:
			h.send(message)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", total)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.alerts:
			h.send(message)

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *Hub) send(message []byte) {
	h.mutex.RLock()
	var failed []*websocket.Conn
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Error("Error sending message: %v", err)
			failed = append(failed, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range failed {
		h.remove(client)
	}
}

func (h *Hub) remove(client *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mutex.Unlock()

	if ok {
		client.Close()
		h.logger.Info("Client disconnected. Total: %d", total)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Register adds a viewer. After the hub has stopped the connection is closed.
func (h *Hub) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes and closes a viewer.
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for every viewer. It never blocks; it reports
// false when the message was dropped because the queue is full.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		return false
	}
}

// BroadcastAlert queues an alert message. Alerts have their own queue, so a
// backlog of frames never crowds them out.
func (h *Hub) BroadcastAlert(message []byte) bool {
	select {
	case h.alerts <- message:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
