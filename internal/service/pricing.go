package service

import (
	"math"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// TaxPolicy computes the tax owed on a taxable amount in cents.
type TaxPolicy interface {
	TaxCents(taxableCents int64) int64
}

// PercentTax is a flat percentage tax, e.g. PercentTax(10) for 10%.
type PercentTax float64

// TaxCents rounds half away from zero to whole cents.
func (p PercentTax) TaxCents(taxableCents int64) int64 {
	if taxableCents <= 0 || p <= 0 {
		return 0
	}
	return roundCents(float64(taxableCents) * float64(p) / 100)
}

func roundCents(v float64) int64 { return int64(math.Round(v)) }

// LineItem is one room's price for a stay.
type LineItem struct {
	RoomID         uint64
	DailyRateCents int64
	Nights         int
	SubtotalCents  int64
}

// Quote is the full price of a reservation.
type Quote struct {
	Lines         []LineItem
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	FinalCents    int64
}

// RoomRate pairs a room with the nightly rate being charged for it.
type RoomRate struct {
	RoomID         uint64
	DailyRateCents int64
}

// Pricer turns rates, dates and an optional promotion into amounts.
// It never reads or writes storage.
type Pricer struct {
	tax TaxPolicy
	now func() time.Time
}

// NewPricer returns a Pricer using the given tax policy. A nil clock
// means time.Now.
func NewPricer(tax TaxPolicy, now func() time.Time) *Pricer {
	if tax == nil {
		tax = PercentTax(0)
	}
	if now == nil {
		now = time.Now
	}
	return &Pricer{tax: tax, now: now}
}

// PriceRoom returns nights and subtotal for one room. Nights are the
// day difference rounded up.
func (p *Pricer) PriceRoom(rateCents int64, checkIn, checkOut time.Time) (LineItem, error) {
	const op = "price room"
	if rateCents < 0 {
		return LineItem{}, validationf(op, "daily rate cannot be negative")
	}
	nights := utils.Nights(checkIn, checkOut)
	if nights <= 0 {
		return LineItem{}, validationf(op, "check-out date must be after check-in date")
	}
	return LineItem{DailyRateCents: rateCents, Nights: nights, SubtotalCents: rateCents * int64(nights)}, nil
}

// Quote prices every room for the stay, applies the promotion (if any)
// to the summed subtotal, and taxes what remains. An inapplicable
// promotion is an error, never silently dropped.
func (p *Pricer) Quote(rates []RoomRate, checkIn, checkOut time.Time, promo *model.Promotion) (Quote, error) {
	var q Quote
	for _, r := range rates {
		line, err := p.PriceRoom(r.DailyRateCents, checkIn, checkOut)
		if err != nil {
			return Quote{}, err
		}
		line.RoomID = r.RoomID
		q.Lines = append(q.Lines, line)
		q.SubtotalCents += line.SubtotalCents
	}
	if promo != nil {
		d, err := p.Discount(promo, q.SubtotalCents)
		if err != nil {
			return Quote{}, err
		}
		q.DiscountCents = d
	}
	return p.Totals(q.SubtotalCents, q.DiscountCents, q), nil
}

// Totals fills tax and final amount for the given subtotal and discount.
// The discount is capped at the subtotal so the final amount is never
// negative.
func (p *Pricer) Totals(subtotal, discount int64, q Quote) Quote {
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	q.SubtotalCents = subtotal
	q.DiscountCents = discount
	q.TaxCents = p.tax.TaxCents(subtotal - discount)
	q.FinalCents = subtotal - discount + q.TaxCents
	return q
}

// Discount validates a promotion against today's date and the booking
// subtotal and returns the discount in cents, capped at the subtotal.
func (p *Pricer) Discount(promo *model.Promotion, subtotalCents int64) (int64, error) {
	const op = "apply promotion"
	today := utils.Day(p.now())
	switch {
	case !promo.IsActive:
		return 0, validationf(op, "promotion %s is not active", promo.Code)
	case today.Before(utils.Day(promo.StartDate)) || today.After(utils.Day(promo.EndDate)):
		return 0, validationf(op, "promotion %s is not valid today", promo.Code)
	case promo.MaxUses != nil && promo.CurrentUses >= *promo.MaxUses:
		return 0, validationf(op, "promotion %s has reached its usage limit", promo.Code)
	case subtotalCents < promo.MinBookingCents:
		return 0, validationf(op, "booking amount below the minimum for promotion %s", promo.Code)
	}
	var d int64
	switch promo.DiscountType {
	case model.DiscountPercentage:
		if promo.PercentOff < 0 || promo.PercentOff > 100 {
			return 0, validationf(op, "promotion %s has an invalid percentage", promo.Code)
		}
		d = roundCents(float64(subtotalCents) * promo.PercentOff / 100)
	case model.DiscountFixedAmount:
		if promo.AmountOffCents < 0 {
			return 0, validationf(op, "promotion %s has an invalid amount", promo.Code)
		}
		d = promo.AmountOffCents
	default:
		return 0, validationf(op, "promotion %s has unknown discount type %q", promo.Code, promo.DiscountType)
	}
	if d > subtotalCents {
		d = subtotalCents
	}
	return d, nil
}
