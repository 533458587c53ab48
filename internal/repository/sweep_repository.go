package repository

import (
	"context"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// DueForCompletion returns reservations that are still active
// (CONFIRMED, CHECKED_IN or CHECKED_OUT) although their check-out date
// is before now.
func (r *ReservationRepo) DueForCompletion(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	return r.list(ctx, "list reservations due for completion",
		"status IN (?, ?, ?) AND check_out_date < ?", "check_out_date ASC, id ASC",
		model.StatusConfirmed, model.StatusCheckedIn, model.StatusCheckedOut, now.UTC())
}

// DueForNoShow returns CONFIRMED reservations whose check-in date is
// before cutoff.
func (r *ReservationRepo) DueForNoShow(ctx context.Context, cutoff time.Time) ([]model.Reservation, error) {
	return r.list(ctx, "list reservations due for no-show",
		"status = ? AND check_in_date < ?", "check_in_date ASC, id ASC",
		model.StatusConfirmed, cutoff.UTC())
}

// ReminderTargets returns CONFIRMED reservations checking in within
// (from, to], one row per hotel the reservation has rooms in.
func (r *ReservationRepo) ReminderTargets(ctx context.Context, from, to time.Time) ([]model.ReminderTarget, error) {
	const q = `SELECT DISTINCT r.id, r.guest_id, g.email, h.id, h.name, r.status, r.check_in_date, r.check_out_date
               FROM reservations r
               JOIN guests g ON g.id = r.guest_id
               JOIN reservation_details d ON d.reservation_id = r.id
               JOIN rooms rm ON rm.id = d.room_id
               JOIN hotels h ON h.id = rm.hotel_id
               WHERE r.status = ? AND r.check_in_date > ? AND r.check_in_date <= ?
               ORDER BY r.id, h.id`
	return r.targets(ctx, "list check-in reminders", q, model.StatusConfirmed, from.UTC(), to.UTC())
}

// ReviewReminderTargets returns checked-out or completed reservations
// whose check-out date falls within (from, to) and whose guest has not
// yet reviewed the hotel.
func (r *ReservationRepo) ReviewReminderTargets(ctx context.Context, from, to time.Time) ([]model.ReminderTarget, error) {
	const q = `SELECT DISTINCT r.id, r.guest_id, g.email, h.id, h.name, r.status, r.check_in_date, r.check_out_date
               FROM reservations r
               JOIN guests g ON g.id = r.guest_id
               JOIN reservation_details d ON d.reservation_id = r.id
               JOIN rooms rm ON rm.id = d.room_id
               JOIN hotels h ON h.id = rm.hotel_id
               WHERE r.status IN (?, ?) AND r.check_out_date > ? AND r.check_out_date < ?
                 AND NOT EXISTS (SELECT 1 FROM reviews rv WHERE rv.hotel_id = h.id AND rv.guest_id = r.guest_id)
               ORDER BY r.id, h.id`
	return r.targets(ctx, "list review reminders", q, model.StatusCheckedOut, model.StatusCompleted, from.UTC(), to.UTC())
}

func (r *ReservationRepo) targets(ctx context.Context, op, q string, args ...interface{}) ([]model.ReminderTarget, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	out := make([]model.ReminderTarget, 0)
	for rows.Next() {
		var t model.ReminderTarget
		var status string
		if err := rows.Scan(&t.ReservationID, &t.GuestID, &t.GuestEmail, &t.HotelID, &t.HotelName,
			&status, &t.CheckInDate, &t.CheckOutDate); err != nil {
			return nil, classify(op, err)
		}
		t.Status = model.Status(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}
