// Package storetest provides an in-memory implementation of the
// reservation stores with the same semantics as the MySQL repositories.
// It is used by tests of the packages built on top of them.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// Memory is a goroutine-safe store. Create and Update hold the lock for
// the whole check-then-write, standing in for the row locks taken by
// repository.ReservationRepo.
type Memory struct {
	mu           sync.Mutex
	nextID       uint64
	nextDetailID uint64
	reservations map[uint64]*model.Reservation
	rooms        map[uint64]model.Room
	promotions   map[uint64]*model.Promotion
	guests       map[uint64]string
	hotels       map[uint64]string
	reviews      map[[2]uint64]bool

	// Err, when set, is returned by every call.
	Err error
}

func NewMemory() *Memory {
	return &Memory{
		reservations: make(map[uint64]*model.Reservation),
		rooms:        make(map[uint64]model.Room),
		promotions:   make(map[uint64]*model.Promotion),
		guests:       make(map[uint64]string),
		hotels:       make(map[uint64]string),
		reviews:      make(map[[2]uint64]bool),
	}
}

// AddRoom registers a room.
func (m *Memory) AddRoom(r model.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = r
}

// AddPromotion registers a promotion.
func (m *Memory) AddPromotion(p model.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions[p.ID] = &p
}

// AddGuest registers a guest email.
func (m *Memory) AddGuest(id uint64, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guests[id] = email
}

// AddHotel registers a hotel name.
func (m *Memory) AddHotel(id uint64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotels[id] = name
}

// AddReview records that a guest reviewed a hotel.
func (m *Memory) AddReview(hotelID, guestID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[[2]uint64{hotelID, guestID}] = true
}

// Put stores a reservation as-is, bypassing all checks. It returns the
// assigned ID.
func (m *Memory) Put(res model.Reservation) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	res.ID = m.nextID
	for i := range res.Details {
		m.nextDetailID++
		res.Details[i].ID = m.nextDetailID
		res.Details[i].ReservationID = res.ID
	}
	m.reservations[res.ID] = &res
	return res.ID
}

// Promotion returns a copy of a stored promotion.
func (m *Memory) Promotion(id uint64) model.Promotion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.promotions[id]
}

func clone(r *model.Reservation) *model.Reservation {
	c := *r
	c.Details = append([]model.ReservationDetail{}, r.Details...)
	return &c
}

func (m *Memory) spansLocked(roomID uint64, checkIn, checkOut time.Time, excludeID uint64) []model.StaySpan {
	var out []model.StaySpan
	for _, r := range m.reservations {
		if r.ID == excludeID || r.Status == model.StatusCancelled {
			continue
		}
		for _, d := range r.Details {
			if d.RoomID != roomID || !d.CheckInDate.Before(checkOut) {
				continue
			}
			if d.CheckOutDate.After(checkIn) || !d.CheckOutDate.After(d.CheckInDate) {
				out = append(out, model.StaySpan{ReservationID: r.ID, CheckInDate: d.CheckInDate, CheckOutDate: d.CheckOutDate})
			}
		}
	}
	return out
}

func (m *Memory) blockedLocked(roomID uint64, checkIn, checkOut time.Time, excludeID uint64) bool {
	for _, s := range m.spansLocked(roomID, checkIn, checkOut, excludeID) {
		if s.Blocks(checkIn, checkOut) {
			return true
		}
	}
	return false
}

func (m *Memory) Spans(_ context.Context, roomID uint64, checkIn, checkOut time.Time, excludeID uint64) ([]model.StaySpan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.spansLocked(roomID, checkIn, checkOut, excludeID), nil
}

func (m *Memory) Create(_ context.Context, res *model.Reservation, details []model.ReservationDetail) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, d := range details {
		if _, ok := m.rooms[d.RoomID]; !ok {
			return nil, repository.ErrInvalidReference
		}
		if m.blockedLocked(d.RoomID, res.CheckInDate, res.CheckOutDate, 0) {
			return nil, repository.ErrConflict
		}
	}
	if res.PromotionID != nil {
		p, ok := m.promotions[*res.PromotionID]
		if !ok {
			return nil, repository.ErrInvalidReference
		}
		if p.MaxUses != nil && p.CurrentUses >= *p.MaxUses {
			return nil, repository.ErrPromotionExhausted
		}
		p.CurrentUses++
	}
	stored := clone(res)
	stored.Details = append([]model.ReservationDetail{}, details...)
	m.nextID++
	stored.ID = m.nextID
	for i := range stored.Details {
		m.nextDetailID++
		stored.Details[i].ID = m.nextDetailID
		stored.Details[i].ReservationID = stored.ID
	}
	stored.UpdatedAt = stored.BookingDate
	m.reservations[stored.ID] = stored
	return clone(stored), nil
}

func (m *Memory) FindByID(_ context.Context, id uint64) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(r), nil
}

func (m *Memory) FindByPaymentRef(_ context.Context, ref string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, r := range m.reservations {
		if r.PaymentRef != nil && *r.PaymentRef == ref {
			return clone(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *Memory) filter(keep func(*model.Reservation) bool, byCheckIn bool) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]model.Reservation, 0)
	for _, r := range m.reservations {
		if keep(r) {
			out = append(out, *clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if byCheckIn {
			if !out[i].CheckInDate.Equal(out[j].CheckInDate) {
				return out[i].CheckInDate.Before(out[j].CheckInDate)
			}
			return out[i].ID < out[j].ID
		}
		if !out[i].BookingDate.Equal(out[j].BookingDate) {
			return out[i].BookingDate.After(out[j].BookingDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) FindAll(context.Context) ([]model.Reservation, error) {
	return m.filter(func(*model.Reservation) bool { return true }, false)
}

func (m *Memory) FindByGuest(_ context.Context, guestID uint64) ([]model.Reservation, error) {
	return m.filter(func(r *model.Reservation) bool { return r.GuestID == guestID }, false)
}

func (m *Memory) FindByStatus(_ context.Context, status model.Status) ([]model.Reservation, error) {
	return m.filter(func(r *model.Reservation) bool { return r.Status == status }, false)
}

func (m *Memory) FindByDateRange(_ context.Context, start, end time.Time) ([]model.Reservation, error) {
	return m.filter(func(r *model.Reservation) bool {
		return !r.CheckInDate.Before(start) && !r.CheckOutDate.After(end)
	}, true)
}

func (m *Memory) Update(_ context.Context, id uint64, p repository.Patch) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if len(p.AllowedStatuses) > 0 {
		allowed := false
		for _, s := range p.AllowedStatuses {
			allowed = allowed || s == r.Status
		}
		if !allowed {
			return nil, repository.ErrStatusChanged
		}
	}
	checkIn, checkOut := r.CheckInDate, r.CheckOutDate
	if p.CheckInDate != nil {
		checkIn = utils.Day(*p.CheckInDate)
	}
	if p.CheckOutDate != nil {
		checkOut = utils.Day(*p.CheckOutDate)
	}
	if !checkOut.After(checkIn) {
		return nil, repository.ErrInvalidDates
	}
	next := clone(r)
	if !checkIn.Equal(r.CheckInDate) || !checkOut.Equal(r.CheckOutDate) {
		for _, d := range r.Details {
			if m.blockedLocked(d.RoomID, checkIn, checkOut, id) {
				return nil, repository.ErrConflict
			}
		}
		nights := utils.Nights(checkIn, checkOut)
		for i := range next.Details {
			next.Details[i].CheckInDate = checkIn
			next.Details[i].CheckOutDate = checkOut
			next.Details[i].TotalNights = nights
			next.Details[i].SubtotalCents = next.Details[i].DailyRateCents * int64(nights)
		}
	}
	next.CheckInDate, next.CheckOutDate = checkIn, checkOut
	if p.NumberOfGuests != nil {
		next.NumberOfGuests = *p.NumberOfGuests
	}
	if p.SpecialRequests != nil {
		v := *p.SpecialRequests
		next.SpecialRequests = &v
	}
	if p.TotalPriceCents != nil {
		next.TotalPriceCents = *p.TotalPriceCents
	}
	if p.DiscountAmountCents != nil {
		next.DiscountAmountCents = *p.DiscountAmountCents
	}
	if p.TaxAmountCents != nil {
		next.TaxAmountCents = *p.TaxAmountCents
	}
	if p.FinalAmountCents != nil {
		next.FinalAmountCents = *p.FinalAmountCents
	}
	m.reservations[id] = next
	return clone(next), nil
}

func (m *Memory) SetStatus(_ context.Context, id uint64, from, to model.Status, reason *string, at time.Time) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.Status != from {
		return nil, repository.ErrStatusChanged
	}
	r.Status = to
	if to == model.StatusCancelled {
		ts := at.UTC()
		r.CancellationDate = &ts
		if reason != nil {
			v := *reason
			r.CancellationReason = &v
		}
	}
	return clone(r), nil
}

func (m *Memory) SetPayment(_ context.Context, id uint64, status model.PaymentStatus, ref *string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.PaymentStatus = status
	if ref != nil {
		v := *ref
		r.PaymentRef = &v
	}
	return clone(r), nil
}

func (m *Memory) GetRooms(_ context.Context, ids []uint64) (map[uint64]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[uint64]model.Room, len(ids))
	for _, id := range ids {
		if r, ok := m.rooms[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (m *Memory) GetPromotion(_ context.Context, id uint64) (*model.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.promotions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *Memory) DueForCompletion(_ context.Context, now time.Time) ([]model.Reservation, error) {
	return m.filter(func(r *model.Reservation) bool {
		switch r.Status {
		case model.StatusConfirmed, model.StatusCheckedIn, model.StatusCheckedOut:
			return r.CheckOutDate.Before(now)
		}
		return false
	}, true)
}

func (m *Memory) DueForNoShow(_ context.Context, cutoff time.Time) ([]model.Reservation, error) {
	return m.filter(func(r *model.Reservation) bool {
		return r.Status == model.StatusConfirmed && r.CheckInDate.Before(cutoff)
	}, true)
}

func (m *Memory) ReminderTargets(_ context.Context, from, to time.Time) ([]model.ReminderTarget, error) {
	return m.targets(func(r *model.Reservation, _ uint64) bool {
		return r.Status == model.StatusConfirmed && r.CheckInDate.After(from) && !r.CheckInDate.After(to)
	})
}

func (m *Memory) ReviewReminderTargets(_ context.Context, from, to time.Time) ([]model.ReminderTarget, error) {
	return m.targets(func(r *model.Reservation, hotelID uint64) bool {
		if r.Status != model.StatusCheckedOut && r.Status != model.StatusCompleted {
			return false
		}
		return r.CheckOutDate.After(from) && r.CheckOutDate.Before(to) && !m.reviews[[2]uint64{hotelID, r.GuestID}]
	})
}

func (m *Memory) targets(keep func(*model.Reservation, uint64) bool) ([]model.ReminderTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]model.ReminderTarget, 0)
	for _, r := range m.reservations {
		seen := map[uint64]bool{}
		for _, d := range r.Details {
			hotelID := m.rooms[d.RoomID].HotelID
			if seen[hotelID] || !keep(r, hotelID) {
				continue
			}
			seen[hotelID] = true
			out = append(out, model.ReminderTarget{
				ReservationID: r.ID, GuestID: r.GuestID, GuestEmail: m.guests[r.GuestID],
				HotelID: hotelID, HotelName: m.hotels[hotelID], Status: r.Status,
				CheckInDate: r.CheckInDate, CheckOutDate: r.CheckOutDate,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReservationID != out[j].ReservationID {
			return out[i].ReservationID < out[j].ReservationID
		}
		return out[i].HotelID < out[j].HotelID
	})
	return out, nil
}
