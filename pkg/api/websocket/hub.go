package websocket

import (
	"encoding/json"
	"sync"

	"github.com/0xmhha/duelwatch/pkg/notify"
	"go.uber.org/zap"
)

const (
	// DefaultMaxClients is the maximum number of concurrent WebSocket clients
	DefaultMaxClients = 10000

	broadcastBuffer = 256
)

// ClientObserver is told the client count whenever it changes
type ClientObserver interface {
	ObserveClients(n int)
}

// Hub maintains the set of active clients and fans notifications out to them
type Hub struct {
	clients map[*Client]bool
	stopped bool
	mu      sync.Mutex

	broadcast chan notify.Notification

	done     chan struct{}
	stopOnce sync.Once

	maxClients int
	observer   ClientObserver
	logger     *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan notify.Notification, broadcastBuffer),
		done:       make(chan struct{}),
		maxClients: DefaultMaxClients,
		logger:     logger,
	}
}

// SetObserver installs a client count observer; call before Run
func (h *Hub) SetObserver(o ClientObserver) {
	h.observer = o
}

// Run runs the hub event loop until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case n := <-h.broadcast:
			h.broadcastNotification(n)
		}
	}
}

// Register adds a client; it reports false when the hub is stopped or full
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	if h.stopped || len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		h.logger.Warn("rejecting websocket client", zap.Int("max_clients", h.maxClients))
		return false
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.observeCount(count)
	h.logger.Debug("client registered", zap.Int("total_clients", count))
	return true
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.observeCount(count)
	h.logger.Debug("client unregistered", zap.Int("total_clients", count))
}

func (h *Hub) observeCount(n int) {
	if h.observer != nil {
		h.observer.ObserveClients(n)
	}
}

func (h *Hub) broadcastNotification(n notify.Notification) {
	payload, err := json.Marshal(notify.Wrap(n))
	if err != nil {
		h.logger.Error("failed to marshal notification", zap.Error(err))
		return
	}
	message, err := json.Marshal(Message{Type: TypeNotification, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.Lock()
	sent, evicted := 0, 0
	for client := range h.clients {
		if !client.Wants(n.Kind()) {
			continue
		}
		select {
		case client.send <- message:
			sent++
		default:
			// a client that cannot keep up is dropped rather than stalling the rest
			close(client.send)
			delete(h.clients, client)
			evicted++
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	if evicted > 0 {
		h.logger.Warn("evicted slow websocket clients", zap.Int("evicted", evicted))
		h.observeCount(count)
	}
	h.logger.Debug("notification broadcasted",
		zap.String("kind", string(n.Kind())),
		zap.Int("recipients", sent))
}

// Publish queues n for broadcast; it never blocks and reports whether n was queued
func (h *Hub) Publish(n notify.Notification) bool {
	select {
	case h.broadcast <- n:
		return true
	default:
		h.logger.Warn("broadcast channel full, dropping notification",
			zap.String("kind", string(n.Kind())))
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop ends Run and closes every client connection
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		h.stopped = true
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()

		h.observeCount(0)
		h.logger.Info("websocket hub stopped")
	})
}
