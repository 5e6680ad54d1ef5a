// Package realtime fans wishlist changes out to connected viewers. Every
// wishlist has a room of sockets in each process; a Redis channel carries
// events between processes.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a change viewers are told about.
type EventType string

const (
	EventReservationCreated   EventType = "reservation_created"
	EventReservationCancelled EventType = "reservation_cancelled"
	EventContributionAdded    EventType = "contribution_added"
	EventItemUpdated          EventType = "item_updated"
)

// Message is the wire format sent to sockets and over the relay channel.
// Payloads carry item ids and amounts only, never a session or owner id.
type Message struct {
	Event      EventType       `json:"event"`
	WishlistID uuid.UUID       `json:"wishlist_id"`
	Payload    json.RawMessage `json:"payload"`
}

type ReservationCreatedPayload struct {
	ItemID        uuid.UUID `json:"item_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReservationCancelledPayload struct {
	ItemID uuid.UUID `json:"item_id"`
}

type ContributionAddedPayload struct {
	ItemID           uuid.UUID `json:"item_id"`
	ContributedTotal string    `json:"contributed_total"`
	TargetPrice      string    `json:"target_price"`
	ProgressPercent  float64   `json:"progress_percent"`
}

type ItemUpdatedPayload struct {
	ItemID      uuid.UUID `json:"item_id"`
	Title       string    `json:"title"`
	TargetPrice string    `json:"target_price"`
}

func NewReservationCreatedEvent(wishlistID uuid.UUID, p ReservationCreatedPayload) Message {
	return newMessage(EventReservationCreated, wishlistID, p)
}

func NewReservationCancelledEvent(wishlistID uuid.UUID, p ReservationCancelledPayload) Message {
	return newMessage(EventReservationCancelled, wishlistID, p)
}

func NewContributionAddedEvent(wishlistID uuid.UUID, p ContributionAddedPayload) Message {
	return newMessage(EventContributionAdded, wishlistID, p)
}

// NewItemUpdatedEvent is emitted by the item editing flow after an owner
// changes an item.
func NewItemUpdatedEvent(wishlistID uuid.UUID, p ItemUpdatedPayload) Message {
	return newMessage(EventItemUpdated, wishlistID, p)
}

// newMessage only takes the payload structs above, which always marshal.
func newMessage(event EventType, wishlistID uuid.UUID, payload any) Message {
	raw, _ := json.Marshal(payload)
	return Message{Event: event, WishlistID: wishlistID, Payload: raw}
}
