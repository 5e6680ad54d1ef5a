package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishlist_backend/internal/models"
	"wishlist_backend/internal/realtime"
	"wishlist_backend/internal/store"
)

func seedContribution(t *testing.T, f *fixture, itemID uuid.UUID, amount string) {
	t.Helper()
	out, err := f.contributions(nil).Contribute(context.Background(), itemID, "seed", dec(t, amount))
	require.NoError(t, err)
	require.True(t, out.Accepted())
}

func assertDecimal(t *testing.T, want string, got *apd.Decimal) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, 0, got.Cmp(dec(t, want)), "want %s got %s", want, got)
}

func TestContributeConcurrentCannotOvershootTarget(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, "100")
	svc := f.contributions(nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []*ContributionOutcome
	)
	for _, session := range []string{"a", "b"} {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			out, err := svc.Contribute(context.Background(), item.ID, session, dec(t, "60"))
			assert.NoError(t, err)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(session)
	}
	wg.Wait()

	require.Len(t, outcomes, 2)
	var accepted, rejected *ContributionOutcome
	for _, out := range outcomes {
		if out.Accepted() {
			accepted = out
		} else {
			rejected = out
		}
	}
	require.NotNil(t, accepted, "one contribution fits")
	require.NotNil(t, rejected, "the other would overshoot")

	assertDecimal(t, "60", accepted.NewTotal)
	assertDecimal(t, "60", rejected.NewTotal)
	assert.Equal(t, RejectNone, rejected.RejectReason)
	assert.ErrorIs(t, rejected.Err(), ErrInvalidRequest)

	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		total, err := tx.SumContributions(ctx, item.ID)
		require.NoError(t, err)
		assertDecimal(t, "60", total)
		return nil
	}))
}

func TestContributeManyConcurrentNeverExceedsTarget(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, "100")
	svc := f.contributions(nil)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Contribute(context.Background(), item.ID, "s", dec(t, "7.25"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		total, err := tx.SumContributions(ctx, item.ID)
		require.NoError(t, err)
		// 13 * 7.25 = 94.25, a 14th would make 101.50.
		assertDecimal(t, "94.25", total)
		return nil
	}))
}

func TestContributeRejections(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		existing   string
		amount     string
		minAmount  string
		opts       []itemOpt
		wantReason RejectReason
		wantTotal  string
		wantTarget string
		wantErr    error
	}{
		{
			name: "would exceed target", target: "100", existing: "95", amount: "10",
			wantReason: RejectNone, wantTotal: "95", wantTarget: "100", wantErr: ErrInvalidRequest,
		},
		{
			name: "already fully funded", target: "100", existing: "100", amount: "5",
			wantReason: RejectFullyFunded, wantTotal: "100", wantTarget: "100", wantErr: ErrAlreadyFulfilled,
		},
		{
			name: "zero amount", target: "100", amount: "0",
			wantTotal: "0", wantTarget: "100", wantErr: ErrInvalidRequest,
		},
		{
			name: "negative amount", target: "100", amount: "-5",
			wantTotal: "0", wantTarget: "100", wantErr: ErrInvalidRequest,
		},
		{
			name: "below minimum", target: "100", amount: "0.50", minAmount: "1",
			wantTotal: "0", wantTarget: "100", wantErr: ErrInvalidRequest,
		},
		{
			name: "group funding disabled", target: "100", amount: "5", opts: []itemOpt{noGroupFunding},
			wantTotal: "0", wantTarget: "0", wantErr: ErrInvalidRequest,
		},
		{
			name: "deleted item", target: "100", amount: "5", opts: []itemOpt{deleted},
			wantTotal: "0", wantTarget: "0", wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			item := f.addItem(t, tt.target, tt.opts...)
			if tt.existing != "" {
				seedContribution(t, f, item.ID, tt.existing)
			}
			var minAmount *apd.Decimal
			if tt.minAmount != "" {
				minAmount = dec(t, tt.minAmount)
			}
			before := len(f.emitter.events())

			out, err := f.contributions(minAmount).Contribute(context.Background(), item.ID, "s", dec(t, tt.amount))
			require.NoError(t, err)
			assert.False(t, out.Accepted())
			assert.Nil(t, out.Contribution)
			assert.Equal(t, uuid.Nil, out.WishlistID)
			assert.Equal(t, tt.wantReason, out.RejectReason)
			assertDecimal(t, tt.wantTotal, out.NewTotal)
			assertDecimal(t, tt.wantTarget, out.Target)
			assert.ErrorIs(t, out.Err(), tt.wantErr)
			assert.Len(t, f.emitter.events(), before, "rejections emit nothing")
		})
	}
}

func TestContributeMissingItem(t *testing.T) {
	f := newFixture(t)
	out, err := f.contributions(nil).Contribute(context.Background(), uuid.New(), "s", dec(t, "5"))
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err(), ErrInvalidRequest)
}

func TestContributeAccepted(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, "99.99")
	svc := f.contributions(dec(t, "1"))
	ctx := context.Background()

	out, err := svc.Contribute(ctx, item.ID, "s", dec(t, "33.33"))
	require.NoError(t, err)
	require.True(t, out.Accepted())
	assert.NoError(t, out.Err())
	assertDecimal(t, "33.33", out.NewTotal)
	assertDecimal(t, "99.99", out.Target)
	assertDecimal(t, "33.33", out.Progress)
	assert.Equal(t, f.wishlist.ID, out.WishlistID)
	assertDecimal(t, "33.33", &out.Contribution.Amount)

	out, err = svc.Contribute(ctx, item.ID, "s", dec(t, "66.66"))
	require.NoError(t, err)
	require.True(t, out.Accepted())
	assertDecimal(t, "99.99", out.NewTotal)
	assertDecimal(t, "100", out.Progress)

	events := f.emitter.events()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventContributionAdded, events[1].Event)
	assert.JSONEq(t, `{
		"item_id": "`+item.ID.String()+`",
		"contributed_total": "99.99",
		"target_price": "99.99",
		"progress_percent": 100
	}`, string(events[1].Payload))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Contributions.WithLabelValues("added")))
}

type failingInsert struct{ store.Tx }

func (failingInsert) CreateContribution(context.Context, uuid.UUID, string, *apd.Decimal) (*models.Contribution, error) {
	return nil, errors.New("disk full")
}

func TestContributeStorageFailurePropagates(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, "100")
	broken := &faultyStore{Store: f.store, wrap: func(tx store.Tx) store.Tx { return failingInsert{tx} }}
	log, _ := test.NewNullLogger()
	svc := NewContributionService(broken, f.emitter, nil, log, f.metrics)

	out, err := svc.Contribute(context.Background(), item.ID, "s", dec(t, "10"))
	assert.Error(t, err)
	assert.Nil(t, out)
	assert.Empty(t, f.emitter.events())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Contributions.WithLabelValues("error")))

	// The item lock was released with the failed transaction.
	out, err = f.contributions(nil).Contribute(context.Background(), item.ID, "s", dec(t, "10"))
	require.NoError(t, err)
	assert.True(t, out.Accepted())
}
