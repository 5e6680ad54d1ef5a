package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"wishlist_backend/internal/models"
	"wishlist_backend/internal/money"
	"wishlist_backend/internal/store"
)

// WishlistService builds the anonymous, share-token view of a wishlist.
type WishlistService struct {
	store store.Store
	now   func() time.Time
}

func NewWishlistService(st store.Store) *WishlistService {
	return &WishlistService{store: st, now: time.Now}
}

// BuildPublicView returns the public projection for token, or ErrNotFound
// when no wishlist has that token or the wishlist is private. Reservation
// state and contribution totals are loaded with one bulk query each,
// whatever the number of items.
func (s *WishlistService) BuildPublicView(ctx context.Context, token uuid.UUID) (*models.PublicWishlist, error) {
	var view *models.PublicWishlist

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWishlistByShareToken(ctx, token)
		if err != nil {
			return err
		}
		if w == nil || !w.IsPublic {
			return ErrNotFound
		}

		items, err := tx.ListVisibleItems(ctx, w.ID)
		if err != nil {
			return err
		}

		view = &models.PublicWishlist{
			ID:              w.ID,
			ShareToken:      w.ShareToken,
			Title:           w.Title,
			Description:     w.Description,
			IsPublic:        w.IsPublic,
			EventDatePassed: eventDatePassed(w.EventDate, s.now()),
			Items:           make([]models.PublicItem, 0, len(items)),
		}
		if w.EventDate != nil {
			view.EventDate = &models.Date{Time: *w.EventDate}
		}
		if len(items) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		reserved, err := tx.ActiveReservationItemIDs(ctx, ids)
		if err != nil {
			return err
		}
		totals, err := tx.SumContributionsByItems(ctx, ids)
		if err != nil {
			return err
		}

		for _, item := range items {
			total, ok := totals[item.ID]
			if !ok {
				total = money.Zero()
			}
			progress, err := money.ProgressPercent(total, &item.TargetPrice)
			if err != nil {
				return err
			}
			view.Items = append(view.Items, models.PublicItem{
				ID:                          item.ID,
				Title:                       item.Title,
				Description:                 item.Description,
				ProductURL:                  item.ProductURL,
				ImageURL:                    item.ImageURL,
				TargetPrice:                 money.Format(&item.TargetPrice),
				AllowGroupContribution:      item.AllowGroupContribution,
				Reserved:                    reserved[item.ID],
				ContributedTotal:            money.Format(total),
				ContributionProgressPercent: money.PercentFloat(progress),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// eventDatePassed reports whether the event day is strictly before today's
// UTC date.
func eventDatePassed(eventDate *time.Time, now time.Time) bool {
	if eventDate == nil {
		return false
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ey, em, ed := eventDate.Date()
	return time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC).Before(today)
}
