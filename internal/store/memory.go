package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"wishlist_backend/internal/models"
	"wishlist_backend/internal/money"
)

// MemoryStore keeps everything in process memory. It enforces the same
// contracts as PostgresStore: one active reservation per item is checked at
// insert time, GetItem(forUpdate) holds a per-item lock until the unit of
// work ends, and a failed unit of work undoes its writes.
//
// Writes become visible to other units of work immediately rather than at
// commit, so a reservation that is later rolled back can briefly cause a
// Conflict for a concurrent caller.
type MemoryStore struct {
	mu            sync.Mutex
	wishlists     map[uuid.UUID]*models.Wishlist
	items         map[uuid.UUID]*models.WishItem
	itemOrder     []uuid.UUID
	reservations  []*models.Reservation
	contributions []*models.Contribution

	itemLocks *keyedMutex
	queries   atomic.Int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wishlists: make(map[uuid.UUID]*models.Wishlist),
		items:     make(map[uuid.UUID]*models.WishItem),
		itemLocks: newKeyedMutex(),
		now:       time.Now,
	}
}

// Queries returns how many Tx operations have run against the store.
func (s *MemoryStore) Queries() int64 {
	return s.queries.Load()
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &memTx{s: s, held: make(map[uuid.UUID]func())}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
		tx.release()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *MemoryStore) InsertWishlist(_ context.Context, w *models.Wishlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.wishlists {
		if existing.ShareToken == w.ShareToken {
			return fmt.Errorf("failed to insert wishlist: share token %s already used", w.ShareToken)
		}
	}
	cp := *w
	s.wishlists[w.ID] = &cp
	return nil
}

func (s *MemoryStore) InsertItem(_ context.Context, item *models.WishItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wishlists[item.WishlistID]; !ok {
		return fmt.Errorf("failed to insert item: wishlist %s not found", item.WishlistID)
	}
	s.items[item.ID] = copyItem(item)
	s.itemOrder = append(s.itemOrder, item.ID)
	return nil
}

type memTx struct {
	s    *MemoryStore
	undo []func()
	held map[uuid.UUID]func()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) release() {
	for id, unlock := range t.held {
		unlock()
		delete(t.held, id)
	}
}

func (t *memTx) GetItem(ctx context.Context, itemID uuid.UUID, forUpdate bool) (*models.WishItem, error) {
	t.s.queries.Add(1)
	if forUpdate {
		if _, ok := t.held[itemID]; !ok {
			unlock, err := t.s.itemLocks.Lock(ctx, itemID)
			if err != nil {
				return nil, fmt.Errorf("failed to lock item: %w", err)
			}
			t.held[itemID] = unlock
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	item, ok := t.s.items[itemID]
	if !ok || item.IsDeleted {
		return nil, nil
	}
	return copyItem(item), nil
}

func (t *memTx) GetActiveReservation(_ context.Context, itemID uuid.UUID) (*models.Reservation, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, r := range t.s.reservations {
		if r.ItemID == itemID && r.IsActive() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetOpenReservationForSession(_ context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.s.reservations) - 1; i >= 0; i-- {
		r := t.s.reservations[i]
		if r.ItemID == itemID && r.SessionID == sessionID && r.IsActive() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateReservation(_ context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, r := range t.s.reservations {
		if r.ItemID == itemID && r.IsActive() {
			return nil, ErrDBReservationTaken
		}
	}

	r := &models.Reservation{
		ID:        uuid.New(),
		ItemID:    itemID,
		SessionID: sessionID,
		CreatedAt: t.s.now().UTC(),
	}
	t.s.reservations = append(t.s.reservations, r)
	t.undo = append(t.undo, func() {
		t.s.reservations = removeReservation(t.s.reservations, r.ID)
	})

	cp := *r
	return &cp, nil
}

func (t *memTx) CancelReservation(_ context.Context, reservationID uuid.UUID, sessionID string) (bool, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, r := range t.s.reservations {
		if r.ID != reservationID || r.SessionID != sessionID || !r.IsActive() {
			continue
		}
		cancelledAt := t.s.now().UTC()
		r.CancelledAt = &cancelledAt
		t.undo = append(t.undo, func() { r.CancelledAt = nil })
		return true, nil
	}
	return false, nil
}

func (t *memTx) ActiveReservationItemIDs(_ context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	t.s.queries.Add(1)
	wanted := make(map[uuid.UUID]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := make(map[uuid.UUID]bool)
	for _, r := range t.s.reservations {
		if wanted[r.ItemID] && r.IsActive() {
			active[r.ItemID] = true
		}
	}
	return active, nil
}

func (t *memTx) CreateContribution(_ context.Context, itemID uuid.UUID, sessionID string, amount *apd.Decimal) (*models.Contribution, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("failed to create contribution: amount %s violates amount > 0", amount)
	}
	c := &models.Contribution{
		ID:        uuid.New(),
		ItemID:    itemID,
		SessionID: sessionID,
		CreatedAt: t.s.now().UTC(),
	}
	c.Amount.Set(amount)
	t.s.contributions = append(t.s.contributions, c)
	t.undo = append(t.undo, func() {
		t.s.contributions = removeContribution(t.s.contributions, c.ID)
	})

	cp := *c
	cp.Amount.Set(&c.Amount)
	return &cp, nil
}

func (t *memTx) SumContributions(_ context.Context, itemID uuid.UUID) (*apd.Decimal, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var amounts []*apd.Decimal
	for _, c := range t.s.contributions {
		if c.ItemID == itemID {
			amounts = append(amounts, &c.Amount)
		}
	}
	return money.Sum(amounts...)
}

func (t *memTx) SumContributionsByItems(_ context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]*apd.Decimal, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	grouped := make(map[uuid.UUID][]*apd.Decimal, len(itemIDs))
	for _, id := range itemIDs {
		grouped[id] = nil
	}
	for _, c := range t.s.contributions {
		if _, ok := grouped[c.ItemID]; ok {
			grouped[c.ItemID] = append(grouped[c.ItemID], &c.Amount)
		}
	}

	sums := make(map[uuid.UUID]*apd.Decimal, len(grouped))
	for id, amounts := range grouped {
		total, err := money.Sum(amounts...)
		if err != nil {
			return nil, err
		}
		sums[id] = total
	}
	return sums, nil
}

func (t *memTx) GetWishlistByShareToken(_ context.Context, token uuid.UUID) (*models.Wishlist, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, w := range t.s.wishlists {
		if w.ShareToken == token {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) ListVisibleItems(_ context.Context, wishlistID uuid.UUID) ([]*models.WishItem, error) {
	t.s.queries.Add(1)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var items []*models.WishItem
	for _, id := range t.s.itemOrder {
		item := t.s.items[id]
		if item.WishlistID == wishlistID && !item.IsDeleted {
			items = append(items, copyItem(item))
		}
	}
	return items, nil
}

func copyItem(item *models.WishItem) *models.WishItem {
	cp := *item
	cp.TargetPrice = apd.Decimal{}
	cp.TargetPrice.Set(&item.TargetPrice)
	return &cp
}

func removeReservation(rs []*models.Reservation, id uuid.UUID) []*models.Reservation {
	for i, r := range rs {
		if r.ID == id {
			return append(rs[:i], rs[i+1:]...)
		}
	}
	return rs
}

func removeContribution(cs []*models.Contribution, id uuid.UUID) []*models.Contribution {
	for i, c := range cs {
		if c.ID == id {
			return append(cs[:i], cs[i+1:]...)
		}
	}
	return cs
}

// keyedMutex hands out one mutex per item id and forgets ids nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*refLock)}
}

// Lock blocks until id is free or ctx is done. The returned func releases it.
func (k *keyedMutex) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.forget(id, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.forget(id, l)
		})
	}, nil
}

func (k *keyedMutex) forget(id uuid.UUID, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}
