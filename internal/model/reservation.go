package model

import "time"

// Reservation is a guest's booking of one or more rooms for a
// contiguous range of nights. Amounts are integer cents. CheckInDate
// and CheckOutDate are UTC calendar days; CheckOutDate is exclusive.
//
// Invariants kept by the lifecycle:
//
//   - CheckOutDate > CheckInDate
//   - NumberOfGuests >= 1
//   - FinalAmountCents = TotalPriceCents - DiscountAmountCents + TaxAmountCents
//   - CancellationDate and CancellationReason are set only when Status is CANCELLED
type Reservation struct {
	ID                  uint64              `json:"id"`                    // reservations.id
	GuestID             uint64              `json:"guest_id"`              // reservations.guest_id
	BookingDate         time.Time           `json:"booking_date"`          // reservations.booking_date
	CheckInDate         time.Time           `json:"check_in_date"`         // reservations.check_in_date
	CheckOutDate        time.Time           `json:"check_out_date"`        // reservations.check_out_date
	NumberOfGuests      int                 `json:"number_of_guests"`      // reservations.number_of_guests
	SpecialRequests     *string             `json:"special_requests,omitempty"`
	Status              Status              `json:"status"`
	PaymentStatus       PaymentStatus       `json:"payment_status"`
	PaymentRef          *string             `json:"payment_ref,omitempty"`
	TotalPriceCents     int64               `json:"total_price_cents"`
	TaxAmountCents      int64               `json:"tax_amount_cents"`
	DiscountAmountCents int64               `json:"discount_amount_cents"`
	FinalAmountCents    int64               `json:"final_amount_cents"`
	PromotionID         *uint64             `json:"promotion_id,omitempty"`
	CancellationDate    *time.Time          `json:"cancellation_date,omitempty"`
	CancellationReason  *string             `json:"cancellation_reason,omitempty"`
	UpdatedAt           time.Time           `json:"updated_at"`
	Details             []ReservationDetail `json:"details"`
}

// ReservationDetail is one room booked under a reservation. The stay
// dates are copied from the parent so overlap queries never need a join
// to decide whether a room is taken.
type ReservationDetail struct {
	ID             uint64    `json:"id"`             // reservation_details.id
	ReservationID  uint64    `json:"reservation_id"` // reservation_details.reservation_id
	RoomID         uint64    `json:"room_id"`
	CheckInDate    time.Time `json:"check_in_date"`
	CheckOutDate   time.Time `json:"check_out_date"`
	DailyRateCents int64     `json:"daily_rate_cents"`
	TotalNights    int       `json:"total_nights"`
	SubtotalCents  int64     `json:"subtotal_cents"`
}

// RoomIDs returns the rooms held by the reservation in detail order.
func (r *Reservation) RoomIDs() []uint64 {
	ids := make([]uint64, 0, len(r.Details))
	for _, d := range r.Details {
		ids = append(ids, d.RoomID)
	}
	return ids
}

// StaySpan is the date range one reservation occupies on a room.
type StaySpan struct {
	ReservationID uint64
	CheckInDate   time.Time
	CheckOutDate  time.Time
}

// Blocks reports whether this span prevents booking [checkIn, checkOut).
// A span whose check-out is not after its check-in cannot be reasoned
// about and is treated as blocking.
func (s StaySpan) Blocks(checkIn, checkOut time.Time) bool {
	if !s.CheckOutDate.After(s.CheckInDate) {
		return true
	}
	return s.CheckInDate.Before(checkOut) && s.CheckOutDate.After(checkIn)
}
