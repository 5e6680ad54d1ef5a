package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"wishlist_backend/internal/models"
)

type demoItem struct {
	title       string
	target      string
	groupFunded bool
}

var demoItems = []demoItem{
	{"Wireless headphones", "89.99", true},
	{"Book: Clean Code", "35.00", false},
	{"Coffee maker", "120.00", true},
}

var demoContributions = []string{"20.00", "15.50"}

// SeedDemo creates a public wishlist with three items and two sample
// contributions toward the first group-funded item.
func SeedDemo(ctx context.Context, st Store, seeder Seeder) (*models.Wishlist, error) {
	now := time.Now().UTC()
	description := "Demo list for testing reserve and contribute."
	w := &models.Wishlist{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Title:       "My Birthday Wishlist",
		Description: &description,
		IsPublic:    true,
		ShareToken:  uuid.New(),
		CreatedAt:   now,
	}
	if err := seeder.InsertWishlist(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to seed wishlist: %w", err)
	}

	var funded *models.WishItem
	for _, d := range demoItems {
		target, _, err := apd.NewFromString(d.target)
		if err != nil {
			return nil, fmt.Errorf("failed to parse demo price %q: %w", d.target, err)
		}
		item := &models.WishItem{
			ID:                     uuid.New(),
			WishlistID:             w.ID,
			Title:                  d.title,
			AllowGroupContribution: d.groupFunded,
			CreatedAt:              now,
		}
		item.TargetPrice.Set(target)
		if err := seeder.InsertItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to seed item %q: %w", d.title, err)
		}
		if funded == nil && d.groupFunded {
			funded = item
		}
	}

	err := st.WithTx(ctx, func(tx Tx) error {
		for _, raw := range demoContributions {
			amount, _, err := apd.NewFromString(raw)
			if err != nil {
				return err
			}
			if _, err := tx.CreateContribution(ctx, funded.ID, uuid.NewString(), amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed contributions: %w", err)
	}

	return w, nil
}
