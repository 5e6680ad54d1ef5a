package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newWSServer(t *testing.T, hub *Hub, origins []string, room uuid.UUID) string {
	t.Helper()
	log, _ := test.NewNullLogger()
	h := NewWebSocketHandler(hub, time.Second, origins, log)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeRoom(w, r, room)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketReceivesRoomEvents(t *testing.T) {
	hub, _ := newTestHub()
	room := uuid.New()
	url := newWSServer(t, hub, []string{"http://localhost:3000"}, room)

	ws, err := websocket.Dial(url, "", "http://localhost:3000")
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hub.ConnCount(room) == 1 }, time.Second, 5*time.Millisecond)

	itemID := uuid.New()
	hub.BroadcastToRoom(context.Background(), room, NewReservationCancelledEvent(room, ReservationCancelledPayload{ItemID: itemID}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	var frame string
	require.NoError(t, websocket.Message.Receive(ws, &frame))

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(frame), &msg))
	assert.Equal(t, EventReservationCancelled, msg.Event)
	assert.Equal(t, room, msg.WishlistID)
	assert.JSONEq(t, `{"item_id":"`+itemID.String()+`"}`, string(msg.Payload))

	ws.Close()
	require.Eventually(t, func() bool { return hub.RoomCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketRejectsUnknownOrigin(t *testing.T) {
	hub, _ := newTestHub()
	room := uuid.New()
	url := newWSServer(t, hub, []string{"http://localhost:3000"}, room)

	_, err := websocket.Dial(url, "", "http://evil.example")
	assert.Error(t, err)
	assert.Equal(t, 0, hub.RoomCount())
}

func TestWebSocketWildcardOrigin(t *testing.T) {
	hub, _ := newTestHub()
	room := uuid.New()
	url := newWSServer(t, hub, []string{"*"}, room)

	ws, err := websocket.Dial(url, "", "http://anything.example")
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hub.ConnCount(room) == 1 }, time.Second, 5*time.Millisecond)
}
