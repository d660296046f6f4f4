package websocket

import (
	"encoding/json"

	"github.com/0xmhha/duelwatch/pkg/notify"
)

// Message types exchanged with clients
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeNotification = "notification"
	TypeSuccess      = "success"
	TypeError        = "error"
)

// Message is the frame exchanged in both directions
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest selects notification kinds. On subscribe the listed kinds
// replace the current set; on unsubscribe they are removed from it.
type SubscribeRequest struct {
	Kinds []notify.Kind `json:"kinds"`
}

// ErrorMessage is the payload of an error frame
type ErrorMessage struct {
	Error string `json:"error"`
}

// SuccessMessage is the payload of a success frame
type SuccessMessage struct {
	Message string        `json:"message"`
	Kinds   []notify.Kind `json:"kinds,omitempty"`
}
