// Package idempotency remembers contribution responses so that a client
// retrying with the same Idempotency-Key gets the first answer back instead
// of contributing twice.
package idempotency

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxKeyLength is the number of characters of the client key that are kept.
const MaxKeyLength = 128

// Key scopes a client supplied idempotency key to one session and one item.
// The same client key from another session or for another item is a
// different entry.
type Key struct {
	ClientKey string
	SessionID string
	ItemID    uuid.UUID
}

// NewKey trims and truncates raw. It reports false when the header was blank,
// in which case the request is not cached at all.
func NewKey(raw, sessionID string, itemID uuid.UUID) (Key, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, false
	}
	if utf8.RuneCountInString(raw) > MaxKeyLength {
		raw = string([]rune(raw)[:MaxKeyLength])
	}
	return Key{ClientKey: raw, SessionID: sessionID, ItemID: itemID}, true
}

// Cache stores serialized response bodies. Backend failures are treated as
// misses: losing an entry only means a retry is processed again.
type Cache interface {
	Get(ctx context.Context, key Key) ([]byte, bool)
	Put(ctx context.Context, key Key, body []byte)
}
