package service

import (
	"context"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wishlist_backend/internal/metrics"
	"wishlist_backend/internal/models"
	"wishlist_backend/internal/money"
	"wishlist_backend/internal/realtime"
	"wishlist_backend/internal/store"
)

// RejectReason tells callers why a contribution was refused when the
// difference matters to the visitor.
type RejectReason string

const (
	RejectNone        RejectReason = ""
	RejectFullyFunded RejectReason = "fully_funded"
)

// ContributionOutcome is the result of one contribution attempt. Business
// rejections are outcomes, not errors: Contribution is nil and RejectReason
// is RejectFullyFunded or RejectNone.
type ContributionOutcome struct {
	Contribution *models.Contribution
	NewTotal     *apd.Decimal
	Target       *apd.Decimal
	Progress     *apd.Decimal
	// WishlistID is uuid.Nil unless the contribution was recorded.
	WishlistID   uuid.UUID
	RejectReason RejectReason
}

func (o *ContributionOutcome) Accepted() bool {
	return o.Contribution != nil
}

// Err maps a rejected outcome to ErrAlreadyFulfilled or ErrInvalidRequest.
// It returns nil for an accepted outcome.
func (o *ContributionOutcome) Err() error {
	switch {
	case o.Accepted():
		return nil
	case o.RejectReason == RejectFullyFunded:
		return ErrAlreadyFulfilled
	default:
		return ErrInvalidRequest
	}
}

// ContributionService pools money toward an item without ever letting the
// total pass the item's target price.
type ContributionService struct {
	store   store.Store
	events  EventEmitter
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	// minAmount is nil when any positive amount is accepted.
	minAmount *apd.Decimal
}

func NewContributionService(st store.Store, events EventEmitter, minAmount *apd.Decimal, log logrus.FieldLogger, m *metrics.Metrics) *ContributionService {
	return &ContributionService{
		store:     st,
		events:    events,
		log:       log,
		metrics:   m,
		minAmount: minAmount,
	}
}

// Contribute records amount toward the item if it fits under the target.
// The item row is locked for the whole check-then-insert so contributions to
// the same item are strictly ordered. The returned error is only ever a
// storage failure.
func (s *ContributionService) Contribute(ctx context.Context, itemID uuid.UUID, sessionID string, amount *apd.Decimal) (*ContributionOutcome, error) {
	var (
		outcome *ContributionOutcome
		label   string
	)

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		item, err := tx.GetItem(ctx, itemID, true)
		if err != nil {
			return err
		}
		if item == nil || !item.AllowGroupContribution {
			outcome, label = rejected(money.Zero(), money.Zero(), money.Zero()), "not_eligible"
			return nil
		}
		target := new(apd.Decimal).Set(&item.TargetPrice)

		if amount.Sign() <= 0 || (s.minAmount != nil && amount.Cmp(s.minAmount) < 0) {
			outcome, label = rejected(money.Zero(), target, money.Zero()), "invalid_amount"
			return nil
		}

		current, err := tx.SumContributions(ctx, itemID)
		if err != nil {
			return err
		}
		progress, err := money.ProgressPercent(current, target)
		if err != nil {
			return err
		}

		if current.Cmp(target) >= 0 {
			outcome, label = rejected(current, target, progress), "fully_funded"
			outcome.RejectReason = RejectFullyFunded
			return nil
		}

		newTotal, err := money.Sum(current, amount)
		if err != nil {
			return err
		}
		if newTotal.Cmp(target) > 0 {
			outcome, label = rejected(current, target, progress), "exceeds_target"
			return nil
		}

		c, err := tx.CreateContribution(ctx, itemID, sessionID, amount)
		if err != nil {
			return err
		}
		newProgress, err := money.ProgressPercent(newTotal, target)
		if err != nil {
			return err
		}

		outcome = &ContributionOutcome{
			Contribution: c,
			NewTotal:     newTotal,
			Target:       target,
			Progress:     newProgress,
			WishlistID:   item.WishlistID,
		}
		label = "added"
		return nil
	})
	if err != nil {
		s.metrics.Contributions.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.Contributions.WithLabelValues(label).Inc()

	if !outcome.Accepted() {
		s.log.WithFields(logrus.Fields{
			"item_id": itemID,
			"reason":  label,
		}).Info("contribution_rejected")
		return outcome, nil
	}

	s.log.WithFields(logrus.Fields{
		"item_id":     itemID,
		"wishlist_id": outcome.WishlistID,
		"amount":      money.Format(amount),
		"new_total":   money.Format(outcome.NewTotal),
	}).Info("contribution_added")

	s.events.Emit(realtime.NewContributionAddedEvent(outcome.WishlistID, realtime.ContributionAddedPayload{
		ItemID:           itemID,
		ContributedTotal: money.Format(outcome.NewTotal),
		TargetPrice:      money.Format(outcome.Target),
		ProgressPercent:  money.PercentFloat(outcome.Progress),
	}))
	return outcome, nil
}

func rejected(total, target, progress *apd.Decimal) *ContributionOutcome {
	return &ContributionOutcome{
		NewTotal: total,
		Target:   target,
		Progress: progress,
	}
}
