package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishlist_backend/internal/models"
)

type seededStore interface {
	Store
	Seeder
}

func seedWishlist(t *testing.T, s Seeder) *models.Wishlist {
	t.Helper()
	w := &models.Wishlist{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Title:      "Birthday",
		IsPublic:   true,
		ShareToken: uuid.New(),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.InsertWishlist(context.Background(), w))
	return w
}

func seedItem(t *testing.T, s Seeder, wishlistID uuid.UUID, target string, deleted bool) *models.WishItem {
	t.Helper()
	item := &models.WishItem{
		ID:                     uuid.New(),
		WishlistID:             wishlistID,
		Title:                  "Headphones",
		AllowGroupContribution: true,
		IsDeleted:              deleted,
		CreatedAt:              time.Now().UTC(),
	}
	_, _, err := item.TargetPrice.SetString(target)
	require.NoError(t, err)
	require.NoError(t, s.InsertItem(context.Background(), item))
	return item
}

func mustDecimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

// runStoreContract exercises the behavior every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) seededStore) {
	ctx := context.Background()

	t.Run("get item skips deleted", func(t *testing.T) {
		s := newStore(t)
		w := seedWishlist(t, s)
		live := seedItem(t, s, w.ID, "100.00", false)
		gone := seedItem(t, s, w.ID, "100.00", true)

		err := s.WithTx(ctx, func(tx Tx) error {
			item, err := tx.GetItem(ctx, live.ID, true)
			require.NoError(t, err)
			require.NotNil(t, item)
			assert.Equal(t, "Headphones", item.Title)
			assert.Equal(t, 0, item.TargetPrice.Cmp(mustDecimal(t, "100")))

			item, err = tx.GetItem(ctx, gone.ID, false)
			require.NoError(t, err)
			assert.Nil(t, item)

			item, err = tx.GetItem(ctx, uuid.New(), false)
			require.NoError(t, err)
			assert.Nil(t, item)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("one active reservation per item", func(t *testing.T) {
		s := newStore(t)
		w := seedWishlist(t, s)
		item := seedItem(t, s, w.ID, "10", false)

		var first *models.Reservation
		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			var err error
			first, err = tx.CreateReservation(ctx, item.ID, "session-a")
			return err
		}))
		assert.True(t, first.IsActive())

		err := s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.CreateReservation(ctx, item.ID, "session-b")
			return err
		})
		assert.ErrorIs(t, err, ErrDBReservationTaken)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			ok, err := tx.CancelReservation(ctx, first.ID, "session-b")
			require.NoError(t, err)
			assert.False(t, ok, "another session cannot cancel")

			ok, err = tx.CancelReservation(ctx, first.ID, "session-a")
			require.NoError(t, err)
			assert.True(t, ok)

			active, err := tx.GetActiveReservation(ctx, item.ID)
			require.NoError(t, err)
			assert.Nil(t, active)

			second, err := tx.CreateReservation(ctx, item.ID, "session-b")
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)
			return nil
		}))
	})

	t.Run("open reservation lookup is per session", func(t *testing.T) {
		s := newStore(t)
		w := seedWishlist(t, s)
		item := seedItem(t, s, w.ID, "10", false)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			r, err := tx.CreateReservation(ctx, item.ID, "session-a")
			require.NoError(t, err)

			mine, err := tx.GetOpenReservationForSession(ctx, item.ID, "session-a")
			require.NoError(t, err)
			require.NotNil(t, mine)
			assert.Equal(t, r.ID, mine.ID)

			theirs, err := tx.GetOpenReservationForSession(ctx, item.ID, "session-b")
			require.NoError(t, err)
			assert.Nil(t, theirs)
			return nil
		}))
	})

	t.Run("failed unit of work rolls back", func(t *testing.T) {
		s := newStore(t)
		w := seedWishlist(t, s)
		item := seedItem(t, s, w.ID, "100", false)
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.CreateReservation(ctx, item.ID, "session-a")
			require.NoError(t, err)
			_, err = tx.CreateContribution(ctx, item.ID, "session-a", mustDecimal(t, "40"))
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			active, err := tx.GetActiveReservation(ctx, item.ID)
			require.NoError(t, err)
			assert.Nil(t, active)

			total, err := tx.SumContributions(ctx, item.ID)
			require.NoError(t, err)
			assert.True(t, total.IsZero())
			return nil
		}))
	})

	t.Run("bulk lookups", func(t *testing.T) {
		s := newStore(t)
		w := seedWishlist(t, s)
		a := seedItem(t, s, w.ID, "100", false)
		b := seedItem(t, s, w.ID, "100", false)
		c := seedItem(t, s, w.ID, "100", false)
		seedItem(t, s, w.ID, "100", true)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.CreateReservation(ctx, b.ID, "session-a")
			require.NoError(t, err)
			_, err = tx.CreateContribution(ctx, a.ID, "session-a", mustDecimal(t, "10.10"))
			require.NoError(t, err)
			_, err = tx.CreateContribution(ctx, a.ID, "session-b", mustDecimal(t, "20.20"))
			require.NoError(t, err)
			return nil
		}))

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			items, err := tx.ListVisibleItems(ctx, w.ID)
			require.NoError(t, err)
			assert.Len(t, items, 3)

			ids := []uuid.UUID{a.ID, b.ID, c.ID}
			active, err := tx.ActiveReservationItemIDs(ctx, ids)
			require.NoError(t, err)
			assert.Equal(t, map[uuid.UUID]bool{b.ID: true}, active)

			sums, err := tx.SumContributionsByItems(ctx, ids)
			require.NoError(t, err)
			require.Len(t, sums, 3)
			assert.Equal(t, 0, sums[a.ID].Cmp(mustDecimal(t, "30.30")))
			assert.True(t, sums[b.ID].IsZero())
			assert.True(t, sums[c.ID].IsZero())

			total, err := tx.SumContributions(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, total.Cmp(mustDecimal(t, "30.30")))
			return nil
		}))
	})

	t.Run("wishlist by share token", func(t *testing.T) {
		s := newStore(t)
		w := seedWishlist(t, s)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			got, err := tx.GetWishlistByShareToken(ctx, w.ShareToken)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, w.ID, got.ID)

			got, err = tx.GetWishlistByShareToken(ctx, uuid.New())
			require.NoError(t, err)
			assert.Nil(t, got)
			return nil
		}))
	})
}
