package websocket

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/0xmhha/duelwatch/pkg/notify"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// kinds starts as every notification kind
	kinds map[notify.Kind]bool
	mu    sync.RWMutex

	logger *zap.Logger
}

// NewClient creates a client subscribed to every notification kind
func NewClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	kinds := make(map[notify.Kind]bool, len(notify.AllKinds))
	for _, k := range notify.AllKinds {
		kinds[k] = true
	}
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, constants.ClientSendBufferSize),
		kinds:  kinds,
		logger: logger,
	}
}

// Wants reports whether the client receives kind. Subscription loss is
// always delivered.
func (c *Client) Wants(kind notify.Kind) bool {
	if kind == notify.KindSubscriptionLost {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kinds[kind]
}

// Kinds returns the subscribed kinds, sorted
func (c *Client) Kinds() []notify.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]notify.Kind, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadPump reads client frames until the connection fails
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		c.handleMessage(message)
	}
}

// WritePump writes queued frames and keepalive pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		c.handleSubscription(msg.Payload, true)
	case TypeUnsubscribe:
		c.handleSubscription(msg.Payload, false)
	case TypePing:
		c.sendMessage(Message{Type: TypePong})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *Client) handleSubscription(payload json.RawMessage, subscribe bool) {
	var req SubscribeRequest
	if err := json.Unmarshal(payload, &req); err != nil || len(req.Kinds) == 0 {
		c.sendError("invalid subscription request")
		return
	}
	for _, k := range req.Kinds {
		if _, ok := notify.ParseKind(string(k)); !ok {
			c.sendError(fmt.Sprintf("unknown notification kind: %s", k))
			return
		}
	}

	c.mu.Lock()
	if subscribe {
		c.kinds = make(map[notify.Kind]bool, len(req.Kinds))
	}
	for _, k := range req.Kinds {
		if subscribe {
			c.kinds[k] = true
		} else {
			delete(c.kinds, k)
		}
	}
	c.mu.Unlock()

	verb := "subscribed"
	if !subscribe {
		verb = "unsubscribed"
	}
	c.sendPayload(TypeSuccess, SuccessMessage{Message: verb, Kinds: c.Kinds()})
}

func (c *Client) sendPayload(typ string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal payload", zap.Error(err))
		return
	}
	c.sendMessage(Message{Type: typ, Payload: payload})
}

func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message")
	}
}

func (c *Client) sendError(msg string) {
	c.sendPayload(TypeError, ErrorMessage{Error: msg})
}
