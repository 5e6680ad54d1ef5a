package store

import (
	"context"
	"errors"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"wishlist_backend/internal/models"
)

var (
	// ErrDBReservationTaken is returned by CreateReservation when another
	// active reservation for the item won the one-active-per-item constraint.
	ErrDBReservationTaken = errors.New("database: item already has an active reservation")
	ErrDBUnknownDriver    = errors.New("database: unknown driver")
)

// Store runs units of work against durable storage.
type Store interface {
	// WithTx runs fn in a single transaction. The transaction commits only if
	// fn returns nil; any error rolls every write back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Seeder inserts fixture rows outside any unit of work. Owner CRUD lives in
// another service; this is used by the seed command and tests.
type Seeder interface {
	InsertWishlist(ctx context.Context, w *models.Wishlist) error
	InsertItem(ctx context.Context, item *models.WishItem) error
}

// Tx is the set of reads and writes the engines need inside a unit of work.
// Lookups return (nil, nil) when nothing matches.
type Tx interface {
	// GetItem returns a non-deleted item. With forUpdate set, the item row
	// stays exclusively locked until the transaction ends.
	GetItem(ctx context.Context, itemID uuid.UUID, forUpdate bool) (*models.WishItem, error)

	GetActiveReservation(ctx context.Context, itemID uuid.UUID) (*models.Reservation, error)
	GetOpenReservationForSession(ctx context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error)
	CreateReservation(ctx context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error)
	// CancelReservation sets cancelled_at on the given active reservation if
	// it belongs to sessionID, reporting whether a row changed.
	CancelReservation(ctx context.Context, reservationID uuid.UUID, sessionID string) (bool, error)
	ActiveReservationItemIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	CreateContribution(ctx context.Context, itemID uuid.UUID, sessionID string, amount *apd.Decimal) (*models.Contribution, error)
	SumContributions(ctx context.Context, itemID uuid.UUID) (*apd.Decimal, error)
	// SumContributionsByItems returns a total for every requested id, zero
	// for items without contributions.
	SumContributionsByItems(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]*apd.Decimal, error)

	GetWishlistByShareToken(ctx context.Context, token uuid.UUID) (*models.Wishlist, error)
	ListVisibleItems(ctx context.Context, wishlistID uuid.UUID) ([]*models.WishItem, error)
}
