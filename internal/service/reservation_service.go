package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wishlist_backend/internal/metrics"
	"wishlist_backend/internal/models"
	"wishlist_backend/internal/realtime"
	"wishlist_backend/internal/store"
)

// ReservationService lets anonymous viewers claim an item so two people do
// not buy the same gift. One active reservation per item is guaranteed by
// the store's unique constraint, not by locking here.
type ReservationService struct {
	store   store.Store
	events  EventEmitter
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewReservationService(st store.Store, events EventEmitter, log logrus.FieldLogger, m *metrics.Metrics) *ReservationService {
	return &ReservationService{
		store:   st,
		events:  events,
		log:     log,
		metrics: m,
	}
}

// Reserve returns the session's active reservation for the item, creating it
// if nobody holds one. It fails with ErrNotFound for a missing or deleted
// item and ErrConflict when another session holds the item, including when
// that session won a concurrent insert.
func (s *ReservationService) Reserve(ctx context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error) {
	var (
		reservation *models.Reservation
		wishlistID  uuid.UUID
		outcome     string
	)

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		item, err := tx.GetItem(ctx, itemID, false)
		if err != nil {
			return err
		}
		if item == nil {
			outcome = "not_found"
			return ErrNotFound
		}
		wishlistID = item.WishlistID

		active, err := tx.GetActiveReservation(ctx, itemID)
		if err != nil {
			return err
		}
		if active != nil {
			if active.SessionID == sessionID {
				reservation, outcome = active, "existing"
				return nil
			}
			outcome = "conflict"
			return ErrConflict
		}

		existing, err := tx.GetOpenReservationForSession(ctx, itemID, sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			reservation, outcome = existing, "existing"
			return nil
		}

		created, err := tx.CreateReservation(ctx, itemID, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrDBReservationTaken) {
				outcome = "race_lost"
				return ErrConflict
			}
			return err
		}
		reservation, outcome = created, "created"
		return nil
	})
	if err != nil {
		switch outcome {
		case "race_lost":
			s.log.WithField("item_id", itemID).Info("reservation_race_lost")
		case "":
			outcome = "error"
		}
		s.metrics.Reservations.WithLabelValues(outcome).Inc()
		return nil, err
	}

	s.metrics.Reservations.WithLabelValues(outcome).Inc()
	if outcome == "created" {
		s.log.WithFields(logrus.Fields{
			"item_id":        itemID,
			"wishlist_id":    wishlistID,
			"reservation_id": reservation.ID,
		}).Info("reservation_created")
	}

	s.events.Emit(realtime.NewReservationCreatedEvent(wishlistID, realtime.ReservationCreatedPayload{
		ItemID:        itemID,
		ReservationID: reservation.ID,
		CreatedAt:     reservation.CreatedAt,
	}))
	return reservation, nil
}

// Cancel releases the session's own active reservation. It returns the
// item's wishlist id, or uuid.Nil when the item itself is gone, and
// ErrNotFound when the session holds no active reservation for the item.
func (s *ReservationService) Cancel(ctx context.Context, itemID uuid.UUID, sessionID string) (uuid.UUID, error) {
	var wishlistID uuid.UUID

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetOpenReservationForSession(ctx, itemID, sessionID)
		if err != nil {
			return err
		}
		if r == nil {
			return ErrNotFound
		}

		item, err := tx.GetItem(ctx, itemID, false)
		if err != nil {
			return err
		}
		if item != nil {
			wishlistID = item.WishlistID
		}

		ok, err := tx.CancelReservation(ctx, r.ID, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Reservations.WithLabelValues("cancel_not_found").Inc()
		} else {
			s.metrics.Reservations.WithLabelValues("error").Inc()
		}
		return uuid.Nil, err
	}

	s.metrics.Reservations.WithLabelValues("cancelled").Inc()
	s.log.WithFields(logrus.Fields{
		"item_id":     itemID,
		"wishlist_id": wishlistID,
	}).Info("reservation_cancelled")

	if wishlistID != uuid.Nil {
		s.events.Emit(realtime.NewReservationCancelledEvent(wishlistID, realtime.ReservationCancelledPayload{
			ItemID: itemID,
		}))
	}
	return wishlistID, nil
}
