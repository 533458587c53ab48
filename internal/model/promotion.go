package model

import "time"

// DiscountType selects how a promotion's value is applied.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Promotion is a discount code that may be attached to a reservation.
// PercentOff is used for PERCENTAGE promotions and AmountOffCents for
// FIXED_AMOUNT ones. StartDate and EndDate are inclusive calendar days.
type Promotion struct {
	ID              uint64       `json:"id"`
	Code            string       `json:"code"`
	DiscountType    DiscountType `json:"discount_type"`
	PercentOff      float64      `json:"percent_off,omitempty"`
	AmountOffCents  int64        `json:"amount_off_cents,omitempty"`
	StartDate       time.Time    `json:"start_date"`
	EndDate         time.Time    `json:"end_date"`
	MaxUses         *int         `json:"max_uses,omitempty"`
	CurrentUses     int          `json:"current_uses"`
	MinBookingCents int64        `json:"min_booking_cents"`
	IsActive        bool         `json:"is_active"`
}
