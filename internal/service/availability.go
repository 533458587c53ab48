package service

import (
	"context"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// SpanStore returns the stays on a room that may collide with a range.
type SpanStore interface {
	Spans(ctx context.Context, roomID uint64, checkIn, checkOut time.Time, excludeID uint64) ([]model.StaySpan, error)
}

// Availability answers whether a room is free for a range of nights. A
// room is taken when any non-cancelled reservation holds it for a night
// in [checkIn, checkOut). Rows with unusable dates count as taken.
type Availability struct {
	store SpanStore
}

func NewAvailability(store SpanStore) *Availability { return &Availability{store: store} }

// IsAvailable reports whether roomID is free for the whole range.
func (a *Availability) IsAvailable(ctx context.Context, roomID uint64, checkIn, checkOut time.Time) (bool, error) {
	return a.IsAvailableExcluding(ctx, roomID, checkIn, checkOut, 0)
}

// IsAvailableExcluding is IsAvailable ignoring the rows of one
// reservation, used when that reservation changes its own dates.
func (a *Availability) IsAvailableExcluding(ctx context.Context, roomID uint64, checkIn, checkOut time.Time, excludeID uint64) (bool, error) {
	if !checkOut.After(checkIn) {
		return false, validationf("check availability", "check-out date must be after check-in date")
	}
	spans, err := a.store.Spans(ctx, roomID, checkIn, checkOut, excludeID)
	if err != nil {
		return false, FromStore("check availability", "room", err)
	}
	for _, s := range spans {
		if s.ReservationID == excludeID && excludeID != 0 {
			continue
		}
		if s.Blocks(checkIn, checkOut) {
			return false, nil
		}
	}
	return true, nil
}
