package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wishlist_backend/internal/models"
	"wishlist_backend/internal/service"
)

type publicViewService interface {
	BuildPublicView(ctx context.Context, token uuid.UUID) (*models.PublicWishlist, error)
}

type roomServer interface {
	ServeRoom(w http.ResponseWriter, r *http.Request, wishlistID uuid.UUID)
}

type WishlistHandler struct {
	logger    logrus.FieldLogger
	wishlists publicViewService
	rooms     roomServer
}

func NewWishlistHandler(logger logrus.FieldLogger, wishlists publicViewService, rooms roomServer) *WishlistHandler {
	return &WishlistHandler{
		logger:    logger,
		wishlists: wishlists,
		rooms:     rooms,
	}
}

// PublicView handles GET /api/wishlists/public/{token}.
func (h *WishlistHandler) PublicView(w http.ResponseWriter, r *http.Request) {
	token, ok := pathUUID(w, r, "token", h.logger)
	if !ok {
		return
	}

	view, err := h.wishlists.BuildPublicView(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "Wishlist not found", h.logger)
			return
		}
		writeInternalError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, view, h.logger)
}

// Subscribe handles GET /api/ws/{wishlistID}. The connection stays in the
// wishlist's room until it closes.
func (h *WishlistHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	wishlistID, ok := pathUUID(w, r, "wishlistID", h.logger)
	if !ok {
		return
	}
	h.rooms.ServeRoom(w, r, wishlistID)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	logger logrus.FieldLogger
	store  pinger
}

func NewHealthHandler(logger logrus.FieldLogger, store pinger) *HealthHandler {
	return &HealthHandler{logger: logger, store: store}
}

func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// Ready reports 503 while the store is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}
