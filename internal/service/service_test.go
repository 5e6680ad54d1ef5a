package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"wishlist_backend/internal/metrics"
	"wishlist_backend/internal/models"
	"wishlist_backend/internal/realtime"
	"wishlist_backend/internal/store"
)

type recordingEmitter struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (e *recordingEmitter) Emit(msg realtime.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

func (e *recordingEmitter) events() []realtime.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]realtime.Message(nil), e.messages...)
}

type fixture struct {
	store    *store.MemoryStore
	emitter  *recordingEmitter
	metrics  *metrics.Metrics
	wishlist *models.Wishlist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	w := &models.Wishlist{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Title:      "Birthday",
		IsPublic:   true,
		ShareToken: uuid.New(),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.InsertWishlist(context.Background(), w))
	return &fixture{
		store:    st,
		emitter:  &recordingEmitter{},
		metrics:  metrics.New(),
		wishlist: w,
	}
}

type itemOpt func(*models.WishItem)

func deleted(item *models.WishItem)       { item.IsDeleted = true }
func noGroupFunding(item *models.WishItem) { item.AllowGroupContribution = false }

func (f *fixture) addItem(t *testing.T, target string, opts ...itemOpt) *models.WishItem {
	t.Helper()
	item := &models.WishItem{
		ID:                     uuid.New(),
		WishlistID:             f.wishlist.ID,
		Title:                  "Item " + target,
		AllowGroupContribution: true,
		CreatedAt:              time.Now().UTC(),
	}
	item.TargetPrice.Set(dec(t, target))
	for _, opt := range opts {
		opt(item)
	}
	require.NoError(t, f.store.InsertItem(context.Background(), item))
	return item
}

func (f *fixture) reservations() *ReservationService {
	log, _ := test.NewNullLogger()
	return NewReservationService(f.store, f.emitter, log, f.metrics)
}

func (f *fixture) contributions(minAmount *apd.Decimal) *ContributionService {
	log, _ := test.NewNullLogger()
	return NewContributionService(f.store, f.emitter, minAmount, log, f.metrics)
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

// faultyStore wraps a Store and lets a test replace individual Tx methods.
type faultyStore struct {
	store.Store
	wrap func(store.Tx) store.Tx
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(s.wrap(tx))
	})
}
