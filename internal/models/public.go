package models

import (
	"time"

	"github.com/google/uuid"
)

// PublicWishlist is what an anonymous visitor sees through a share token.
// It has no owner, reserver or contributor identity fields, so nothing can
// leak them by accident.
type PublicWishlist struct {
	ID              uuid.UUID    `json:"id"`
	ShareToken      uuid.UUID    `json:"share_token"`
	Title           string       `json:"title"`
	Description     *string      `json:"description"`
	EventDate       *Date        `json:"event_date"`
	IsPublic        bool         `json:"is_public"`
	EventDatePassed bool         `json:"event_date_passed"`
	Items           []PublicItem `json:"items"`
}

type PublicItem struct {
	ID                          uuid.UUID `json:"id"`
	Title                       string    `json:"title"`
	Description                 *string   `json:"description"`
	ProductURL                  *string   `json:"product_url"`
	ImageURL                    *string   `json:"image_url"`
	TargetPrice                 string    `json:"target_price"`
	AllowGroupContribution      bool      `json:"allow_group_contribution"`
	Reserved                    bool      `json:"reserved"`
	ContributedTotal            string    `json:"contributed_total"`
	ContributionProgressPercent float64   `json:"contribution_progress_percent"`
}

// PublicReservation is the reservation shape returned to the reserving
// viewer. It carries no session identifier.
type PublicReservation struct {
	ID          uuid.UUID  `json:"id"`
	ItemID      uuid.UUID  `json:"item_id"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

func NewPublicReservation(r *Reservation) PublicReservation {
	return PublicReservation{
		ID:          r.ID,
		ItemID:      r.ItemID,
		CreatedAt:   r.CreatedAt,
		CancelledAt: r.CancelledAt,
	}
}

// Date is a calendar date encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) < 2 {
		return &time.ParseError{Layout: dateLayout, Value: s}
	}
	t, err := time.Parse(dateLayout, s[1:len(s)-1])
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}
