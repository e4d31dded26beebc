// Package hub implements C9: the process-singleton WebSocket hub owning
// connections, room membership, and the RLS-gated subscribe/publish surface
// other components call into. Grounded on the teacher's internal/auth
// connection-state idiom (context-scoped identity, mutex-guarded registries)
// and on the read/write-pump split shown in other retrieved streaming
// servers, generalized from one fixed timeline set to arbitrary named rooms.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insforge/core/internal/dbsession"
	"github.com/insforge/core/internal/telemetry"
)

// Hub owns every live connection and the room membership index. One
// instance per process; broadcast iterates a snapshot of a room so
// concurrent joins/leaves never race a send.
type Hub struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
	rooms       map[string]map[*Connection]bool
}

// New constructs a Hub backed by pool for RLS-gated subscribe/publish checks.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Hub {
	return &Hub{
		pool:        pool,
		logger:      logger,
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[*Connection]bool),
	}
}

// Register wraps an accepted websocket.Conn in a Connection, starts its
// read/write pumps, and returns it. The caller has already authenticated
// the handshake and resolved role/userID.
func (h *Hub) Register(wsConn connWriter, role, userID string) *Connection {
	c := &Connection{
		ID:              uuid.NewString(),
		Role:            role,
		UserID:          userID,
		conn:            wsConn,
		hub:             h,
		send:            make(chan []byte, sendBufferSize),
		subscribedRooms: make(map[string]bool),
	}

	h.mu.Lock()
	h.connections[c.ID] = c
	h.mu.Unlock()

	go c.writePump()
	go c.readPump(h.logger)

	c.sendEvent(serverEvent{Event: EventConnect})
	return c
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	delete(h.connections, c.ID)
	h.mu.Unlock()

	for _, room := range c.subscriptions() {
		h.leaveRoom(room, c)
	}
	close(c.send)
}

func (h *Hub) joinRoom(room string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Connection]bool)
	}
	h.rooms[room][c] = true
}

func (h *Hub) leaveRoom(room string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// GetRoomSize returns the number of connections joined to roomName,
// consulted by C10 to decide whether a WS broadcast is worth attempting.
func (h *Hub) GetRoomSize(roomName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey(roomName)])
}

func roomKey(channel string) string {
	return "realtime:" + channel
}

func (h *Hub) handleSubscribe(c *Connection, channel string) {
	ok, err := h.checkSubscribeRLS(context.Background(), c, channel)
	if err != nil {
		c.sendEvent(serverEvent{Event: EventError, Code: ErrInternalError, Message: "subscribe check failed"})
		return
	}
	if !ok {
		c.sendEvent(serverEvent{Event: EventConnectError, Code: ErrUnauthorized, Channel: channel})
		return
	}

	h.joinRoom(roomKey(channel), c)
	c.addSubscription(channel)
	c.sendEvent(serverEvent{Event: "subscribed", Channel: channel})
}

func (h *Hub) handleUnsubscribe(c *Connection, channel string) {
	h.leaveRoom(roomKey(channel), c)
	c.removeSubscription(channel)
}

func (h *Hub) handlePublish(c *Connection, channel, eventName string, payload json.RawMessage) {
	if !c.isSubscribed(channel) {
		c.sendEvent(serverEvent{Event: EventError, Code: ErrNotSubscribed, Channel: channel})
		return
	}

	if err := h.insertMessage(context.Background(), c, channel, eventName, payload); err != nil {
		h.logger.Error("publish insert failed", "channel", channel, "error", err)
		c.sendEvent(serverEvent{Event: EventError, Code: ErrInternalError, Channel: channel})
	}
}

// checkSubscribeRLS runs the RLS-gated existence check spec.md §4.9
// describes: a SELECT for an enabled realtime.channels row whose SQL-LIKE
// pattern matches channel, executed under the connection's own role/user-id
// session context so Postgres row-level security decides which rows are
// visible.
func (h *Hub) checkSubscribeRLS(ctx context.Context, c *Connection, channel string) (bool, error) {
	var found bool
	err := dbsession.Run(ctx, h.pool, dbsession.Identity{Role: c.Role, UserID: c.UserID}, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "SELECT 1 FROM realtime.channels WHERE $1 LIKE pattern AND enabled LIMIT 1", channel)
		var one int
		err := row.Scan(&one)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// insertMessage records a client-published message under the connection's
// own RLS identity; the INSERT succeeds only if policy permits it, and the
// database trigger path re-emits the message back through C10.
func (h *Hub) insertMessage(ctx context.Context, c *Connection, channel, eventName string, payload json.RawMessage) error {
	return dbsession.Run(ctx, h.pool, dbsession.Identity{Role: c.Role, UserID: c.UserID}, func(ctx context.Context, tx pgx.Tx) error {
		var senderID any
		if c.UserID != "" {
			senderID = c.UserID
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO realtime.messages (channel_name, event_name, payload, sender_type, sender_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			channel, eventName, []byte(payload), senderType(c), senderID,
		)
		return err
	})
}

func senderType(c *Connection) string {
	if c.Role == "" || c.Role == "anon" {
		return "anon"
	}
	return "user"
}

// BroadcastToRoom wraps payload in a server-controlled envelope and emits it
// to every connection currently joined to roomName. It iterates a snapshot
// so a concurrent join/leave never races the send loop.
func (h *Hub) BroadcastToRoom(roomName, eventName string, payload json.RawMessage, senderType, senderID, messageID string) int {
	h.mu.RLock()
	members := h.rooms[roomKey(roomName)]
	snapshot := make([]*Connection, 0, len(members))
	for c := range members {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	evt := serverEvent{
		Event:   eventName,
		Channel: roomName,
		Payload: payload,
		Meta: &EventMeta{
			Channel:      roomName,
			MessageID:    messageID,
			SenderType:   senderType,
			SenderID:     senderID,
			TimestampUTC: timeNowRFC3339(),
		},
	}

	for _, c := range snapshot {
		c.sendEvent(evt)
	}

	telemetry.RealtimeAudienceSize.Observe(float64(len(snapshot)))
	return len(snapshot)
}

func timeNowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// connWriter is the subset of *websocket.Conn the hub needs, kept as an
// interface so tests can substitute an in-memory fake.
type connWriter interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadLimit(int64)
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	SetPongHandler(func(string) error)
	Close() error
}
