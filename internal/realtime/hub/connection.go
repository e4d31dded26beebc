package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 32
)

// Connection wraps one accepted WebSocket, tracking the identity it
// authenticated with and the set of rooms it has joined.
type Connection struct {
	ID     string
	Role   string
	UserID string

	conn connWriter
	hub  *Hub
	send chan []byte

	mu              sync.Mutex
	subscribedRooms map[string]bool
}

// clientMessage is the shape of every inbound frame: subscribe, unsubscribe,
// or publish, per spec.md §4.9 / §6's WebSocket surface.
type clientMessage struct {
	Action  string          `json:"action"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// serverEvent is what every outbound frame looks like, including the
// reserved connect/disconnect/error events and application broadcasts.
type serverEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Meta    *EventMeta      `json:"meta,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// EventMeta is the server-controlled envelope attached to every broadcast.
type EventMeta struct {
	Channel      string `json:"channel"`
	MessageID    string `json:"messageId"`
	SenderType   string `json:"senderType"`
	SenderID     string `json:"senderId,omitempty"`
	TimestampUTC string `json:"timestamp"`
}

// Reserved event names, per spec.md §4.9.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventError        = "error"
)

// Error codes, per spec.md §4.9.
const (
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrNotSubscribed = "NOT_SUBSCRIBED"
	ErrInternalError = "INTERNAL_ERROR"
)

func (c *Connection) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribedRooms[channel]
}

func (c *Connection) addSubscription(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribedRooms[channel] = true
}

func (c *Connection) removeSubscription(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribedRooms, channel)
}

func (c *Connection) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscribedRooms))
	for ch := range c.subscribedRooms {
		out = append(out, ch)
	}
	return out
}

func (c *Connection) sendEvent(evt serverEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
		// Slow consumer; drop rather than block the hub.
	}
}

// readPump reads client frames until the connection errors or closes,
// dispatching subscribe/unsubscribe/publish actions to the hub.
func (c *Connection) readPump(logger *slog.Logger) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read error", "connection", c.ID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendEvent(serverEvent{Event: EventError, Code: ErrInternalError, Message: "malformed frame"})
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.hub.handleSubscribe(c, msg.Channel)
		case "unsubscribe":
			c.hub.handleUnsubscribe(c, msg.Channel)
		case "publish":
			c.hub.handlePublish(c, msg.Channel, msg.Event, msg.Payload)
		default:
			c.sendEvent(serverEvent{Event: EventError, Code: ErrInternalError, Message: "unknown action"})
		}
	}
}

// writePump drains the outbound queue to the socket and keeps the
// connection alive with periodic pings, mirroring the teacher's idiom of
// pairing one goroutine per direction with a shared ticker.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
