package hub

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

type fakeConn struct {
	written [][]byte
}

func (f *fakeConn) ReadMessage() (int, []byte, error)     { return 0, nil, nil }
func (f *fakeConn) WriteMessage(_ int, data []byte) error { f.written = append(f.written, data); return nil }
func (f *fakeConn) SetReadLimit(int64)                    {}
func (f *fakeConn) SetReadDeadline(time.Time) error       { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetPongHandler(func(string) error)     {}
func (f *fakeConn) Close() error                          { return nil }

func newTestConnection(h *Hub, role, userID string) *Connection {
	return &Connection{
		ID:              "conn-1",
		Role:            role,
		UserID:          userID,
		conn:            &fakeConn{},
		hub:             h,
		send:            make(chan []byte, sendBufferSize),
		subscribedRooms: make(map[string]bool),
	}
}

func TestGetRoomSizeReflectsJoinsAndLeaves(t *testing.T) {
	h := New(nil, slog.Default())
	c := newTestConnection(h, "authenticated", "user-1")

	h.joinRoom(roomKey("widgets"), c)
	if got := h.GetRoomSize("widgets"); got != 1 {
		t.Fatalf("GetRoomSize = %d, want 1", got)
	}

	h.leaveRoom(roomKey("widgets"), c)
	if got := h.GetRoomSize("widgets"); got != 0 {
		t.Fatalf("GetRoomSize after leave = %d, want 0", got)
	}
}

func TestBroadcastToRoomDeliversToAllMembers(t *testing.T) {
	h := New(nil, slog.Default())
	a := newTestConnection(h, "authenticated", "user-a")
	b := newTestConnection(h, "authenticated", "user-b")
	h.joinRoom(roomKey("widgets"), a)
	h.joinRoom(roomKey("widgets"), b)

	n := h.BroadcastToRoom("widgets", "update", json.RawMessage(`{"x":1}`), "user", "user-a", "msg-1")
	if n != 2 {
		t.Fatalf("BroadcastToRoom returned %d, want 2", n)
	}

	select {
	case raw := <-a.send:
		var evt serverEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Event != "update" || evt.Meta == nil || evt.Meta.MessageID != "msg-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("connection a received nothing")
	}
}

func TestHandlePublishRejectsUnsubscribedConnection(t *testing.T) {
	h := New(nil, slog.Default())
	c := newTestConnection(h, "authenticated", "user-1")

	h.handlePublish(c, "widgets", "ping", json.RawMessage(`{}`))

	select {
	case raw := <-c.send:
		var evt serverEvent
		_ = json.Unmarshal(raw, &evt)
		if evt.Code != ErrNotSubscribed {
			t.Fatalf("code = %q, want %q", evt.Code, ErrNotSubscribed)
		}
	default:
		t.Fatal("expected a NOT_SUBSCRIBED error event")
	}
}

func TestUnregisterClearsRoomMembership(t *testing.T) {
	h := New(nil, slog.Default())
	c := newTestConnection(h, "authenticated", "user-1")
	h.connections[c.ID] = c
	h.joinRoom(roomKey("widgets"), c)
	c.addSubscription("widgets")

	h.unregister(c)

	if got := h.GetRoomSize("widgets"); got != 0 {
		t.Fatalf("GetRoomSize after unregister = %d, want 0", got)
	}
}
