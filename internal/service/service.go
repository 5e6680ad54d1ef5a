package service

import (
	"errors"

	"wishlist_backend/internal/realtime"
)

var (
	ErrNotFound         = errors.New("item not found")
	ErrConflict         = errors.New("item is already reserved by someone else")
	ErrInvalidRequest   = errors.New("item not found, does not allow group contribution, amount invalid, or would exceed target price")
	ErrAlreadyFulfilled = errors.New("item is already fully funded")
)

// EventEmitter takes domain events once their transaction has committed.
// Emit must not block on delivery.
type EventEmitter interface {
	Emit(msg realtime.Message)
}
