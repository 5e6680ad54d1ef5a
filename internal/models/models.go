package models

import (
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

// Rows below mirror the storage schema and are never encoded directly into
// responses; see public.go for the outward-facing shapes.

type Wishlist struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Description *string
	EventDate   *time.Time
	IsPublic    bool
	ShareToken  uuid.UUID
	CreatedAt   time.Time
}

type WishItem struct {
	ID                     uuid.UUID
	WishlistID             uuid.UUID
	Title                  string
	Description            *string
	ProductURL             *string
	ImageURL               *string
	TargetPrice            apd.Decimal
	AllowGroupContribution bool
	IsDeleted              bool
	CreatedAt              time.Time
}

// Reservation holds an item for one anonymous viewer. SessionID must never be
// copied into a response type.
type Reservation struct {
	ID          uuid.UUID
	ItemID      uuid.UUID
	SessionID   string
	CreatedAt   time.Time
	CancelledAt *time.Time
}

func (r *Reservation) IsActive() bool {
	return r.CancelledAt == nil
}

type Contribution struct {
	ID        uuid.UUID
	ItemID    uuid.UUID
	SessionID string
	Amount    apd.Decimal
	CreatedAt time.Time
}
