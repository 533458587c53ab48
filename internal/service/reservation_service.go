package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// ReservationStore is the persistence the lifecycle needs.
// repository.ReservationRepo is the production implementation.
type ReservationStore interface {
	SpanStore
	Create(ctx context.Context, res *model.Reservation, details []model.ReservationDetail) (*model.Reservation, error)
	FindByID(ctx context.Context, id uint64) (*model.Reservation, error)
	FindAll(ctx context.Context) ([]model.Reservation, error)
	FindByGuest(ctx context.Context, guestID uint64) ([]model.Reservation, error)
	FindByStatus(ctx context.Context, status model.Status) ([]model.Reservation, error)
	FindByDateRange(ctx context.Context, start, end time.Time) ([]model.Reservation, error)
	Update(ctx context.Context, id uint64, p repository.Patch) (*model.Reservation, error)
	SetStatus(ctx context.Context, id uint64, from, to model.Status, reason *string, at time.Time) (*model.Reservation, error)
}

// RoomCatalog looks up rooms by ID. Missing IDs are absent from the map.
type RoomCatalog interface {
	GetRooms(ctx context.Context, ids []uint64) (map[uint64]model.Room, error)
}

// PromotionCatalog looks up promotions by ID.
type PromotionCatalog interface {
	GetPromotion(ctx context.Context, id uint64) (*model.Promotion, error)
}

// Notifier delivers guest notifications. Failures are logged and never
// undo the operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// DefaultCancelReason is recorded when a cancellation carries no reason.
const DefaultCancelReason = "No reason provided"

// DeleteReason is recorded when a reservation is removed via delete.
const DeleteReason = "Deleted by request"

// Lifecycle owns every state change of a reservation: creation with
// availability and pricing, edits, and the status machine
// PENDING -> CONFIRMED -> CHECKED_IN -> CHECKED_OUT -> COMPLETED with
// the CANCELLED and NO_SHOW side exits.
type Lifecycle struct {
	store  ReservationStore
	rooms  RoomCatalog
	promos PromotionCatalog
	avail  *Availability
	pricer *Pricer
	notify Notifier
	logger *logrus.Logger
	now    func() time.Time
}

// LifecycleDeps groups the collaborators of a Lifecycle. Notifier may be
// nil; Now defaults to time.Now.
type LifecycleDeps struct {
	Store      ReservationStore
	Rooms      RoomCatalog
	Promotions PromotionCatalog
	Pricer     *Pricer
	Notifier   Notifier
	Logger     *logrus.Logger
	Now        func() time.Time
}

func NewLifecycle(d LifecycleDeps) *Lifecycle {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Pricer == nil {
		d.Pricer = NewPricer(nil, d.Now)
	}
	return &Lifecycle{
		store:  d.Store,
		rooms:  d.Rooms,
		promos: d.Promotions,
		avail:  NewAvailability(d.Store),
		pricer: d.Pricer,
		notify: d.Notifier,
		logger: d.Logger,
		now:    d.Now,
	}
}

// RoomRequest selects a room for a new reservation. When DailyRateCents
// is nil the room's base rate is charged.
type RoomRequest struct {
	RoomID         uint64
	DailyRateCents *int64
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	GuestID         uint64
	CheckInDate     time.Time
	CheckOutDate    time.Time
	NumberOfGuests  int
	SpecialRequests *string
	Rooms           []RoomRequest
	PromotionID     *uint64
}

// Create validates and prices a booking and stores it as PENDING and
// UNPAID. Availability is checked here for a fast answer and again by
// the store inside the write transaction, which decides races.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	const op = "create reservation"
	checkIn, checkOut := utils.Day(req.CheckInDate), utils.Day(req.CheckOutDate)
	switch {
	case req.GuestID == 0:
		return nil, validationf(op, "guest is required")
	case checkIn.Before(utils.Day(l.now())):
		return nil, validationf(op, "check-in date cannot be in the past")
	case !checkOut.After(checkIn):
		return nil, validationf(op, "check-out date must be after check-in date")
	case req.NumberOfGuests < 1:
		return nil, validationf(op, "number of guests must be at least 1")
	case len(req.Rooms) == 0:
		return nil, validationf(op, "at least one room must be selected")
	}

	ids := make([]uint64, 0, len(req.Rooms))
	seen := make(map[uint64]bool, len(req.Rooms))
	for _, rr := range req.Rooms {
		if seen[rr.RoomID] {
			return nil, validationf(op, "room %d selected more than once", rr.RoomID)
		}
		seen[rr.RoomID] = true
		ids = append(ids, rr.RoomID)
	}
	rooms, err := l.rooms.GetRooms(ctx, ids)
	if err != nil {
		return nil, FromStore(op, "room", err)
	}
	rates := make([]RoomRate, 0, len(req.Rooms))
	capacity := 0
	for _, rr := range req.Rooms {
		room, ok := rooms[rr.RoomID]
		if !ok {
			return nil, notFoundf(op, "room %d not found", rr.RoomID)
		}
		capacity += room.MaxOccupancy
		rate := room.BaseRateCents
		if rr.DailyRateCents != nil {
			rate = *rr.DailyRateCents
		}
		rates = append(rates, RoomRate{RoomID: rr.RoomID, DailyRateCents: rate})
	}
	if capacity > 0 && req.NumberOfGuests > capacity {
		return nil, validationf(op, "%d guests exceed the selected rooms' capacity of %d", req.NumberOfGuests, capacity)
	}

	for _, id := range ids {
		ok, err := l.avail.IsAvailable(ctx, id, checkIn, checkOut)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conflictf(op, "room %d is not available for the selected dates", id)
		}
	}

	var promo *model.Promotion
	if req.PromotionID != nil {
		promo, err = l.promos.GetPromotion(ctx, *req.PromotionID)
		if err != nil {
			return nil, FromStore(op, "promotion", err)
		}
	}
	quote, err := l.pricer.Quote(rates, checkIn, checkOut, promo)
	if err != nil {
		return nil, err
	}

	res := &model.Reservation{
		GuestID:             req.GuestID,
		BookingDate:         l.now().UTC(),
		CheckInDate:         checkIn,
		CheckOutDate:        checkOut,
		NumberOfGuests:      req.NumberOfGuests,
		SpecialRequests:     req.SpecialRequests,
		Status:              model.StatusPending,
		PaymentStatus:       model.PaymentUnpaid,
		TotalPriceCents:     quote.SubtotalCents,
		DiscountAmountCents: quote.DiscountCents,
		TaxAmountCents:      quote.TaxCents,
		FinalAmountCents:    quote.FinalCents,
		PromotionID:         req.PromotionID,
	}
	details := make([]model.ReservationDetail, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		details = append(details, model.ReservationDetail{
			RoomID:         line.RoomID,
			CheckInDate:    checkIn,
			CheckOutDate:   checkOut,
			DailyRateCents: line.DailyRateCents,
			TotalNights:    line.Nights,
			SubtotalCents:  line.SubtotalCents,
		})
	}

	created, err := l.store.Create(ctx, res, details)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, &Error{Kind: KindConflict, Op: op, Msg: "a selected room was booked for these dates in the meantime", Err: err}
		}
		return nil, FromStore(op, "reservation", err)
	}
	l.logger.WithFields(logrus.Fields{
		"reservation_id": created.ID,
		"guest_id":       created.GuestID,
		"rooms":          ids,
		"check_in":       utils.FormatDate(checkIn),
		"check_out":      utils.FormatDate(checkOut),
		"final_cents":    created.FinalAmountCents,
	}).Info("reservation created")
	return created, nil
}

// Get returns one reservation.
func (l *Lifecycle) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, FromStore("get reservation", "reservation", err)
	}
	return res, nil
}

// Filter selects reservations for List. At most one criterion may be
// set; a date range needs both ends.
type Filter struct {
	Status  *model.Status
	From    *time.Time
	To      *time.Time
	GuestID *uint64
}

// List returns reservations matching the filter. Status, guest and
// plain listings are newest booking first; date ranges are ordered by
// check-in date and include only stays that lie wholly inside the range.
func (l *Lifecycle) List(ctx context.Context, f Filter) ([]model.Reservation, error) {
	const op = "list reservations"
	hasRange := f.From != nil || f.To != nil
	set := 0
	for _, on := range []bool{f.Status != nil, hasRange, f.GuestID != nil} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, validationf(op, "filter by only one of status, date range or guest")
	}
	var (
		list []model.Reservation
		err  error
	)
	switch {
	case f.Status != nil:
		if !f.Status.Valid() {
			return nil, validationf(op, "unknown status %q", *f.Status)
		}
		list, err = l.store.FindByStatus(ctx, *f.Status)
	case hasRange:
		if f.From == nil || f.To == nil {
			return nil, validationf(op, "date range needs both start and end")
		}
		from, to := utils.Day(*f.From), utils.Day(*f.To)
		if to.Before(from) {
			return nil, validationf(op, "end date is before start date")
		}
		list, err = l.store.FindByDateRange(ctx, from, to)
	case f.GuestID != nil:
		list, err = l.store.FindByGuest(ctx, *f.GuestID)
	default:
		list, err = l.store.FindAll(ctx)
	}
	if err != nil {
		return nil, FromStore(op, "reservation", err)
	}
	return list, nil
}

// CheckAvailability reports whether a room is free for the range.
func (l *Lifecycle) CheckAvailability(ctx context.Context, roomID uint64, checkIn, checkOut time.Time) (bool, error) {
	const op = "check availability"
	checkIn, checkOut = utils.Day(checkIn), utils.Day(checkOut)
	if !checkOut.After(checkIn) {
		return false, validationf(op, "check-out date must be after check-in date")
	}
	rooms, err := l.rooms.GetRooms(ctx, []uint64{roomID})
	if err != nil {
		return false, FromStore(op, "room", err)
	}
	if _, ok := rooms[roomID]; !ok {
		return false, notFoundf(op, "room %d not found", roomID)
	}
	return l.avail.IsAvailable(ctx, roomID, checkIn, checkOut)
}

// UpdateRequest lists the fields Update may change. Nil means unchanged.
// TotalPriceCents overrides the room subtotal; FinalAmountCents, when
// given, must equal what the other amounts imply.
type UpdateRequest struct {
	CheckInDate      *time.Time
	CheckOutDate     *time.Time
	NumberOfGuests   *int
	SpecialRequests  *string
	TotalPriceCents  *int64
	FinalAmountCents *int64
}

// Update edits a PENDING or CONFIRMED reservation. Moving the dates
// re-checks availability against all other reservations and reprices
// every room at its booked nightly rate, keeping the discount.
func (l *Lifecycle) Update(ctx context.Context, id uint64, req UpdateRequest) (*model.Reservation, error) {
	const op = "update reservation"
	cur, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, FromStore(op, "reservation", err)
	}
	if !cur.Status.Editable() {
		return nil, &Error{
			Kind: KindInvalidTransition, Op: op, From: cur.Status, To: cur.Status,
			Msg: fmt.Sprintf("reservation in status %s can no longer be modified", cur.Status),
		}
	}

	checkIn, checkOut := cur.CheckInDate, cur.CheckOutDate
	if req.CheckInDate != nil {
		checkIn = utils.Day(*req.CheckInDate)
	}
	if req.CheckOutDate != nil {
		checkOut = utils.Day(*req.CheckOutDate)
	}
	if !checkOut.After(checkIn) {
		return nil, validationf(op, "check-out date must be after check-in date")
	}
	datesChanged := !checkIn.Equal(cur.CheckInDate) || !checkOut.Equal(cur.CheckOutDate)
	if !checkIn.Equal(cur.CheckInDate) && checkIn.Before(utils.Day(l.now())) {
		return nil, validationf(op, "check-in date cannot be in the past")
	}

	patch := repository.Patch{
		SpecialRequests: req.SpecialRequests,
		AllowedStatuses: []model.Status{model.StatusPending, model.StatusConfirmed},
	}
	if req.NumberOfGuests != nil {
		n := *req.NumberOfGuests
		if n < 1 {
			return nil, validationf(op, "number of guests must be at least 1")
		}
		if err := l.checkCapacity(ctx, op, cur.RoomIDs(), n); err != nil {
			return nil, err
		}
		patch.NumberOfGuests = &n
	}

	subtotal := cur.TotalPriceCents
	if datesChanged {
		for _, roomID := range cur.RoomIDs() {
			ok, err := l.avail.IsAvailableExcluding(ctx, roomID, checkIn, checkOut, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, conflictf(op, "room %d is not available for the new dates", roomID)
			}
		}
		patch.CheckInDate, patch.CheckOutDate = &checkIn, &checkOut
		nights := int64(utils.Nights(checkIn, checkOut))
		subtotal = 0
		for _, d := range cur.Details {
			subtotal += d.DailyRateCents * nights
		}
	}
	if req.TotalPriceCents != nil {
		if *req.TotalPriceCents < 0 {
			return nil, validationf(op, "total price cannot be negative")
		}
		subtotal = *req.TotalPriceCents
	}
	if datesChanged || req.TotalPriceCents != nil || req.FinalAmountCents != nil {
		q := l.pricer.Totals(subtotal, cur.DiscountAmountCents, Quote{})
		if req.FinalAmountCents != nil && *req.FinalAmountCents != q.FinalCents {
			return nil, validationf(op, "final amount must equal total - discount + tax (%d)", q.FinalCents)
		}
		patch.TotalPriceCents = &q.SubtotalCents
		patch.DiscountAmountCents = &q.DiscountCents
		patch.TaxAmountCents = &q.TaxCents
		patch.FinalAmountCents = &q.FinalCents
	}
	if patch.Empty() {
		return cur, nil
	}

	updated, err := l.store.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			if latest, ferr := l.store.FindByID(ctx, id); ferr == nil {
				return nil, &Error{
					Kind: KindInvalidTransition, Op: op, From: latest.Status, To: latest.Status,
					Msg: fmt.Sprintf("reservation in status %s can no longer be modified", latest.Status),
				}
			}
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, &Error{Kind: KindConflict, Op: op, Msg: "a room was booked for the new dates in the meantime", Err: err}
		}
		return nil, FromStore(op, "reservation", err)
	}
	l.logger.WithFields(logrus.Fields{
		"reservation_id": id,
		"dates_changed":  datesChanged,
		"final_cents":    updated.FinalAmountCents,
	}).Info("reservation updated")
	return updated, nil
}

func (l *Lifecycle) checkCapacity(ctx context.Context, op string, roomIDs []uint64, guests int) error {
	rooms, err := l.rooms.GetRooms(ctx, roomIDs)
	if err != nil {
		return FromStore(op, "room", err)
	}
	capacity := 0
	for _, id := range roomIDs {
		capacity += rooms[id].MaxOccupancy
	}
	if capacity > 0 && guests > capacity {
		return validationf(op, "%d guests exceed the booked rooms' capacity of %d", guests, capacity)
	}
	return nil
}

// Confirm moves a PENDING reservation to CONFIRMED, normally after the
// payment succeeded.
func (l *Lifecycle) Confirm(ctx context.Context, id uint64) (*model.Reservation, error) {
	return l.transition(ctx, "confirm reservation", id, model.StatusConfirmed, nil, nil)
}

// Cancel cancels a PENDING or CONFIRMED reservation and frees its rooms.
// An empty reason is recorded as DefaultCancelReason.
func (l *Lifecycle) Cancel(ctx context.Context, id uint64, reason string) (*model.Reservation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	return l.transition(ctx, "cancel reservation", id, model.StatusCancelled, &reason, nil)
}

// Delete is the removal entry point of the public API. Reservations are
// never physically deleted; they are cancelled with DeleteReason.
func (l *Lifecycle) Delete(ctx context.Context, id uint64) (*model.Reservation, error) {
	return l.Cancel(ctx, id, DeleteReason)
}

// CheckIn moves a CONFIRMED reservation to CHECKED_IN, no earlier than
// its check-in date.
func (l *Lifecycle) CheckIn(ctx context.Context, id uint64) (*model.Reservation, error) {
	const op = "check in"
	return l.transition(ctx, op, id, model.StatusCheckedIn, nil, func(res *model.Reservation) error {
		if utils.Day(l.now()).Before(res.CheckInDate) {
			return validationf(op, "check-in is not allowed before %s", utils.FormatDate(res.CheckInDate))
		}
		return nil
	})
}

// CheckOut moves a CHECKED_IN reservation to CHECKED_OUT.
func (l *Lifecycle) CheckOut(ctx context.Context, id uint64) (*model.Reservation, error) {
	return l.transition(ctx, "check out", id, model.StatusCheckedOut, nil, nil)
}

// MarkNoShow flags a PENDING or CONFIRMED reservation whose guest never
// arrived.
func (l *Lifecycle) MarkNoShow(ctx context.Context, id uint64) (*model.Reservation, error) {
	return l.transition(ctx, "mark no-show", id, model.StatusNoShow, nil, nil)
}

// Complete closes a stay whose check-out date has passed.
func (l *Lifecycle) Complete(ctx context.Context, id uint64) (*model.Reservation, error) {
	return l.transition(ctx, "complete reservation", id, model.StatusCompleted, nil, nil)
}

// transition validates and applies one status change. The write is a
// compare-and-set on the status read here, so a concurrent change makes
// this call fail with KindInvalidTransition instead of overwriting it.
func (l *Lifecycle) transition(ctx context.Context, op string, id uint64, to model.Status, reason *string, guard func(*model.Reservation) error) (*model.Reservation, error) {
	cur, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, FromStore(op, "reservation", err)
	}
	if !cur.Status.CanTransitionTo(to) {
		return nil, invalidTransition(op, cur.Status, to)
	}
	if guard != nil {
		if err := guard(cur); err != nil {
			return nil, err
		}
	}
	updated, err := l.store.SetStatus(ctx, id, cur.Status, to, reason, l.now())
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			if latest, ferr := l.store.FindByID(ctx, id); ferr == nil {
				return nil, invalidTransition(op, latest.Status, to)
			}
		}
		return nil, FromStore(op, "reservation", err)
	}
	l.logger.WithFields(logrus.Fields{
		"reservation_id": id,
		"from":           cur.Status,
		"to":             to,
	}).Info("reservation status changed")
	l.publish(ctx, updated)
	return updated, nil
}

func (l *Lifecycle) publish(ctx context.Context, res *model.Reservation) {
	if l.notify == nil {
		return
	}
	kind := model.NotifyStatusUpdated
	switch res.Status {
	case model.StatusConfirmed:
		kind = model.NotifyBookingConfirmed
	case model.StatusCancelled:
		kind = model.NotifyBookingCancelled
	}
	n := model.Notification{
		Kind:          kind,
		ReservationID: res.ID,
		GuestID:       res.GuestID,
		Status:        res.Status,
		CheckInDate:   res.CheckInDate,
		CheckOutDate:  res.CheckOutDate,
	}
	if err := l.notify.Notify(ctx, n); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"reservation_id": res.ID,
			"kind":           kind,
		}).Warn("notification not delivered")
	}
}
