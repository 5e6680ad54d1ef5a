package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wishlist_backend/internal/metrics"
)

// maxConcurrentSends bounds the goroutines one broadcast may start.
const maxConcurrentSends = 64

// Conn is a connected viewer. Implementations must be safe for concurrent
// Send calls and must bound how long a Send can block.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Hub tracks the sockets watching each wishlist in this process.
type Hub struct {
	mu      sync.Mutex
	rooms   map[uuid.UUID]map[Conn]struct{}
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewHub(log logrus.FieldLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[uuid.UUID]map[Conn]struct{}),
		log:     log,
		metrics: m,
	}
}

// Connect adds conn to the wishlist's room, creating the room if needed.
func (h *Hub) Connect(conn Conn, wishlistID uuid.UUID) {
	h.mu.Lock()
	room, ok := h.rooms[wishlistID]
	if !ok {
		room = make(map[Conn]struct{})
		h.rooms[wishlistID] = room
	}
	_, existed := room[conn]
	room[conn] = struct{}{}
	roomSize, rooms := len(room), len(h.rooms)
	h.mu.Unlock()

	if !existed {
		h.metrics.WSConnections.Inc()
	}
	h.metrics.WSRooms.Set(float64(rooms))
	h.log.WithFields(logrus.Fields{
		"wishlist_id": wishlistID,
		"room_size":   roomSize,
	}).Debug("ws connected")
}

// Disconnect removes conn and drops the room once it is empty.
func (h *Hub) Disconnect(conn Conn, wishlistID uuid.UUID) {
	h.mu.Lock()
	room, ok := h.rooms[wishlistID]
	if !ok {
		h.mu.Unlock()
		return
	}
	_, existed := room[conn]
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, wishlistID)
	}
	roomSize, rooms := len(room), len(h.rooms)
	h.mu.Unlock()

	if existed {
		h.metrics.WSConnections.Dec()
	}
	h.metrics.WSRooms.Set(float64(rooms))
	h.log.WithFields(logrus.Fields{
		"wishlist_id": wishlistID,
		"room_size":   roomSize,
	}).Debug("ws disconnected")
}

// BroadcastToRoom sends msg to every socket currently in the room. Failed
// sends are logged and never affect the other sockets or the caller.
func (h *Hub) BroadcastToRoom(ctx context.Context, wishlistID uuid.UUID, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).WithField("event", msg.Event).Warn("failed to encode ws event")
		return
	}
	h.broadcastRaw(ctx, wishlistID, data)
}

func (h *Hub) broadcastRaw(ctx context.Context, wishlistID uuid.UUID, data []byte) {
	conns := h.snapshot(wishlistID)
	if len(conns) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, conn := range conns {
		g.Go(func() error {
			if err := conn.Send(ctx, data); err != nil {
				h.metrics.BroadcastSends.WithLabelValues("error").Inc()
				h.log.WithError(err).WithField("wishlist_id", wishlistID).Warn("ws send failed")
				return nil
			}
			h.metrics.BroadcastSends.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Hub) snapshot(wishlistID uuid.UUID) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[wishlistID]
	conns := make([]Conn, 0, len(room))
	for conn := range room {
		conns = append(conns, conn)
	}
	return conns
}

// RoomCount returns the number of rooms with at least one socket.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// ConnCount returns the number of sockets in one room.
func (h *Hub) ConnCount(wishlistID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[wishlistID])
}

// CloseAll closes every socket, which ends their read loops and with them
// their room membership.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var conns []Conn
	for _, room := range h.rooms {
		for conn := range room {
			conns = append(conns, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.log.WithError(err).Debug("ws close failed")
		}
	}
}
