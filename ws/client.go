package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/types"
)

// Client is a middleman between the websocket connection and the session hub.
type Client struct {
	sessions *SessionHub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte

	session   *Session
	doneChan  chan struct{}
	closeOnce sync.Once
}

func NewClient(sessions *SessionHub, conn *websocket.Conn, session *Session, doneChan chan struct{}) *Client {
	return &Client{
		sessions: sessions,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		session:  session,
		doneChan: doneChan,
	}
}

// Deliver implements Sink. It never blocks the calling hub loop. A connection
// whose send buffer is saturated gets torn down rather than silently losing
// frames: as long as the connection lives, it sees every broadcast.
func (c *Client) Deliver(data []byte) bool {
	select {
	case <-c.doneChan:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	case <-c.doneChan:
		return false
	default:
		globals.AppLogger.Warn("send buffer saturated, closing connection")
		c.shutdown()
		return false
	}
}

// shutdown closes the connection and the done channel exactly once. The
// closing connection unblocks ReadLoop, whose deferred cleanup detaches the
// session from its rooms.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.doneChan)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) sendAck(event, room string, err error) {
	ack := types.AckPayload{Event: event, Room: room, Ok: err == nil}
	if err != nil {
		ack.Error = types.Code(err)
	}
	data, mErr := types.NewWireMessage(types.WireEventAck, ack)
	if mErr != nil {
		globals.AppLogger.Error("could not marshal ack", "error", mErr)
		return
	}
	c.Deliver(data)
}

// ReadLoop pumps events from the websocket connection to the session hub.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.sessions.Disconnect(c.session)
		c.shutdown()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpected", "error", err)
			}
			return
		}

		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			globals.AppLogger.Debug("could not unmarshal ws message", "error", err)
			return
		}

		payload := make(map[string]interface{})
		if len(message.Data) > 0 {
			if err := json.Unmarshal(message.Data, &payload); err != nil {
				globals.AppLogger.Debug("could not unmarshal payload", "error", err)
				return
			}
		}

		switch message.Event {
		case types.WireEventJoin:
			join := types.JoinPayload{}
			if err := mapstructure.WeakDecode(payload, &join); err != nil {
				globals.AppLogger.Debug("could not decode join payload", "error", err)
				return
			}
			err := c.sessions.Join(c.session, join.Room)
			c.sendAck(types.WireEventJoin, join.Room, err)

		case types.WireEventLeave:
			leave := types.JoinPayload{}
			if err := mapstructure.WeakDecode(payload, &leave); err != nil {
				globals.AppLogger.Debug("could not decode leave payload", "error", err)
				return
			}
			c.sessions.Leave(c.session, leave.Room)
			c.sendAck(types.WireEventLeave, leave.Room, nil)

		case types.WireEventChat:
			chat := types.ChatPayload{}
			if err := mapstructure.WeakDecode(payload, &chat); err != nil {
				globals.AppLogger.Debug("could not decode chat payload", "error", err)
				return
			}
			// no ack on success, only failures are reported back
			if err := c.sessions.Post(c.session, chat.Room, chat.Text, chat.Filter); err != nil {
				c.sendAck(types.WireEventChat, chat.Room, err)
			}

		default:
			globals.AppLogger.Debug("unknown event", "event", message.Event)
		}
	}
}

// WriteLoop pumps frames from the session hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
