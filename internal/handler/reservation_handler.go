package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wishlist_backend/internal/models"
	"wishlist_backend/internal/service"
)

type reservationService interface {
	Reserve(ctx context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error)
	Cancel(ctx context.Context, itemID uuid.UUID, sessionID string) (uuid.UUID, error)
}

type ReservationHandler struct {
	logger       logrus.FieldLogger
	reservations reservationService
	sessions     *SessionResolver
}

func NewReservationHandler(logger logrus.FieldLogger, reservations reservationService, sessions *SessionResolver) *ReservationHandler {
	return &ReservationHandler{
		logger:       logger,
		reservations: reservations,
		sessions:     sessions,
	}
}

// Reserve handles POST /api/items/{itemID}/reserve.
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID", h.logger)
	if !ok {
		return
	}
	sessionID, err := h.sessions.Resolve(w, r)
	if err != nil {
		writeInternalError(w, err, h.logger)
		return
	}

	reservation, err := h.reservations.Reserve(r.Context(), itemID, sessionID)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			writeError(w, http.StatusNotFound, codeNotFound, err.Error(), h.logger)
		case service.ErrConflict:
			writeError(w, http.StatusConflict, codeConflict, err.Error(), h.logger)
		default:
			writeInternalError(w, err, h.logger)
		}
		return
	}

	writeJSON(w, http.StatusCreated, models.NewPublicReservation(reservation), h.logger)
}

// Cancel handles DELETE /api/items/{itemID}/reserve.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID", h.logger)
	if !ok {
		return
	}
	sessionID, err := h.sessions.Resolve(w, r)
	if err != nil {
		writeInternalError(w, err, h.logger)
		return
	}

	if _, err := h.reservations.Cancel(r.Context(), itemID, sessionID); err != nil {
		switch err {
		case service.ErrNotFound:
			writeError(w, http.StatusNotFound, codeNotFound, "No active reservation found for this item and session", h.logger)
		default:
			writeInternalError(w, err, h.logger)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string, logger logrus.FieldLogger) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "Invalid "+param+" format", logger)
		return uuid.Nil, false
	}
	return id, true
}
