package types

import (
	"encoding/json"
	"time"
)

const (
	WireEventJoin    = "join"
	WireEventLeave   = "leave"
	WireEventChat    = "chat"
	WireEventAck     = "ack"
	WireEventHistory = "history"
	WireEventInfo    = "info"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// The different payloads transferred from the client to here.

// JoinPayload asks to join (or leave) the named room. The optional filter
// expression is evaluated against future broadcasts to this session.
type JoinPayload struct {
	Room string `json:"room" mapstructure:"room"`
}

// ChatPayload carries a posted message. Filter is an optional target filter
// expression restricting which sessions receive the broadcast.
type ChatPayload struct {
	Room   string `json:"room" mapstructure:"room"`
	Text   string `json:"message" mapstructure:"message"`
	Filter string `json:"filter" mapstructure:"filter"`
}

// The payloads sent from here to the client.

// Author identifies the sender of a broadcast chat message.
type Author struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

// OutboundChat is the broadcast form of a message.
type OutboundChat struct {
	Room      string    `json:"room"`
	Author    Author    `json:"author"`
	Text      string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}

// AckPayload acknowledges a client request, carrying the error if it failed.
type AckPayload struct {
	Event string `json:"event"`
	Room  string `json:"room"`
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HistoryPayload replays recent room messages to a freshly joined session.
type HistoryPayload struct {
	Room     string         `json:"room"`
	Messages []OutboundChat `json:"messages"`
}

// InfoPayload is broadcast when the number of connected sessions changes.
type InfoPayload struct {
	Room        string `json:"room"`
	Connections int    `json:"connections"`
}

func NewWireMessage(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: data})
}

// Outbound converts a stored message into its broadcast form.
func (m *Message) Outbound(roomName string) OutboundChat {
	return OutboundChat{
		Room:      roomName,
		Author:    Author{Id: m.AuthorId, Username: m.AuthorNick},
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}
