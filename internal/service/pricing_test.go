package service

import (
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

var (
	july1 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	july4 = time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
)

func fixedNow() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }

func TestQuoteWithoutPromotion(t *testing.T) {
	p := NewPricer(PercentTax(10), fixedNow)
	q, err := p.Quote([]RoomRate{{RoomID: 1, DailyRateCents: 10000}}, july1, july4, nil)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Lines[0].Nights != 3 || q.SubtotalCents != 30000 || q.TaxCents != 3000 || q.DiscountCents != 0 || q.FinalCents != 33000 {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestQuoteSumsRooms(t *testing.T) {
	p := NewPricer(PercentTax(10), fixedNow)
	q, err := p.Quote([]RoomRate{{RoomID: 1, DailyRateCents: 10000}, {RoomID: 2, DailyRateCents: 15000}}, july1, july4, nil)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if len(q.Lines) != 2 || q.Lines[1].SubtotalCents != 45000 || q.SubtotalCents != 75000 || q.FinalCents != 82500 {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func promotion(kind model.DiscountType) *model.Promotion {
	return &model.Promotion{
		ID: 1, Code: "SUMMER", DiscountType: kind, IsActive: true,
		StartDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestQuoteAppliesPercentagePromotionBeforeTax(t *testing.T) {
	promo := promotion(model.DiscountPercentage)
	promo.PercentOff = 15
	p := NewPricer(PercentTax(10), fixedNow)
	q, err := p.Quote([]RoomRate{{RoomID: 1, DailyRateCents: 10000}}, july1, july4, promo)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.DiscountCents != 4500 || q.TaxCents != 2550 || q.FinalCents != 28050 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if q.FinalCents != q.SubtotalCents-q.DiscountCents+q.TaxCents {
		t.Fatal("final amount does not add up")
	}
}

func TestFixedDiscountIsCappedAtSubtotal(t *testing.T) {
	promo := promotion(model.DiscountFixedAmount)
	promo.AmountOffCents = 50000
	p := NewPricer(PercentTax(10), fixedNow)
	q, err := p.Quote([]RoomRate{{RoomID: 1, DailyRateCents: 10000}}, july1, july4, promo)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.DiscountCents != 30000 || q.TaxCents != 0 || q.FinalCents != 0 {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestInapplicablePromotionsAreRejected(t *testing.T) {
	maxUses := 5
	cases := map[string]func(*model.Promotion){
		"inactive":      func(p *model.Promotion) { p.IsActive = false },
		"not started":   func(p *model.Promotion) { p.StartDate = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) },
		"expired":       func(p *model.Promotion) { p.EndDate = time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC) },
		"used up":       func(p *model.Promotion) { p.MaxUses = &maxUses; p.CurrentUses = 5 },
		"below minimum": func(p *model.Promotion) { p.MinBookingCents = 30001 },
		"unknown type":  func(p *model.Promotion) { p.DiscountType = "BOGO" },
	}
	p := NewPricer(PercentTax(10), fixedNow)
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			promo := promotion(model.DiscountPercentage)
			promo.PercentOff = 10
			mutate(promo)
			_, err := p.Quote([]RoomRate{{RoomID: 1, DailyRateCents: 10000}}, july1, july4, promo)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestPromotionValidOnLastDay(t *testing.T) {
	promo := promotion(model.DiscountFixedAmount)
	promo.AmountOffCents = 1000
	promo.EndDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := NewPricer(PercentTax(0), fixedNow)
	if d, err := p.Discount(promo, 30000); err != nil || d != 1000 {
		t.Fatalf("Discount = %d, %v", d, err)
	}
}

func TestPriceRoomValidation(t *testing.T) {
	p := NewPricer(PercentTax(10), fixedNow)
	if _, err := p.PriceRoom(-1, july1, july4); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative rate err = %v", err)
	}
	if _, err := p.PriceRoom(10000, july4, july4); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero nights err = %v", err)
	}
	line, err := p.PriceRoom(0, july1, july4)
	if err != nil || line.SubtotalCents != 0 || line.Nights != 3 {
		t.Fatalf("free room = %+v, %v", line, err)
	}
}

func TestPercentTaxRoundsHalfAwayFromZero(t *testing.T) {
	if got := PercentTax(7.5).TaxCents(3333); got != 250 {
		t.Fatalf("TaxCents = %d, want 250", got)
	}
	if got := PercentTax(10).TaxCents(5); got != 1 {
		t.Fatalf("TaxCents = %d, want 1", got)
	}
	if got := PercentTax(10).TaxCents(0); got != 0 {
		t.Fatalf("TaxCents = %d, want 0", got)
	}
}

func TestTwoNightsWithoutTaxPolicy(t *testing.T) {
	p := NewPricer(nil, fixedNow)
	q, err := p.Quote([]RoomRate{{RoomID: 1, DailyRateCents: 10000}}, july1, july1.AddDate(0, 0, 2), nil)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.SubtotalCents != 20000 || q.DiscountCents != 0 || q.TaxCents != 0 || q.FinalCents != 20000 {
		t.Fatalf("unexpected quote %+v", q)
	}
}
