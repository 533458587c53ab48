package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// ReservationRepo persists reservations and their per-room detail rows.
// All dates are stored as UTC calendar days. Writes that touch room
// inventory lock the affected rooms rows (SELECT ... FOR UPDATE) and
// re-check overlap inside the same transaction, so two concurrent
// bookings of the same room and nights cannot both commit.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const reservationColumns = `id, guest_id, booking_date, check_in_date, check_out_date, number_of_guests,
       special_requests, status, payment_status, payment_ref,
       total_price_cents, tax_amount_cents, discount_amount_cents, final_amount_cents,
       promotion_id, cancellation_date, cancellation_reason, updated_at`

func scanReservation(s scanner) (*model.Reservation, error) {
	var res model.Reservation
	var special, payRef, reason sql.NullString
	var promoID sql.NullInt64
	var cancelledAt sql.NullTime
	var status, payStatus string
	if err := s.Scan(
		&res.ID, &res.GuestID, &res.BookingDate, &res.CheckInDate, &res.CheckOutDate, &res.NumberOfGuests,
		&special, &status, &payStatus, &payRef,
		&res.TotalPriceCents, &res.TaxAmountCents, &res.DiscountAmountCents, &res.FinalAmountCents,
		&promoID, &cancelledAt, &reason, &res.UpdatedAt,
	); err != nil {
		return nil, err
	}
	res.Status = model.Status(status)
	res.PaymentStatus = model.PaymentStatus(payStatus)
	if special.Valid {
		v := special.String
		res.SpecialRequests = &v
	}
	if payRef.Valid {
		v := payRef.String
		res.PaymentRef = &v
	}
	if promoID.Valid {
		v := uint64(promoID.Int64)
		res.PromotionID = &v
	}
	if cancelledAt.Valid {
		v := cancelledAt.Time.UTC()
		res.CancellationDate = &v
	}
	if reason.Valid {
		v := reason.String
		res.CancellationReason = &v
	}
	res.CheckInDate = utils.Day(res.CheckInDate)
	res.CheckOutDate = utils.Day(res.CheckOutDate)
	res.Details = []model.ReservationDetail{}
	return &res, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Create stores a reservation and its detail rows in one transaction.
// The rooms are locked in id order, overlap is re-checked, the
// promotion (if any) has its usage counter claimed, and the stored row
// is read back. It returns ErrConflict when a room is already taken,
// ErrPromotionExhausted when the promotion ran out of uses, and
// ErrInvalidReference when a room, guest or promotion does not exist.
// On any failure nothing is written.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation, details []model.ReservationDetail) (*model.Reservation, error) {
	const op = "create reservation"
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	roomIDs := make([]uint64, 0, len(details))
	for _, d := range details {
		roomIDs = append(roomIDs, d.RoomID)
	}
	if err := lockRoomsTx(ctx, tx, roomIDs); err != nil {
		return nil, classify(op, err)
	}
	for _, d := range details {
		spans, err := findSpans(ctx, tx, d.RoomID, res.CheckInDate, res.CheckOutDate, 0)
		if err != nil {
			return nil, classify(op, err)
		}
		if anyBlocks(spans, res.CheckInDate, res.CheckOutDate) {
			return nil, ErrConflict
		}
	}

	id, err := r.CreateTx(ctx, tx, res)
	if err != nil {
		return nil, classify(op, err)
	}
	if err := r.CreateDetailsBulkTx(ctx, tx, id, details); err != nil {
		return nil, classify(op, err)
	}
	if res.PromotionID != nil {
		if err := claimPromotionTx(ctx, tx, *res.PromotionID); err != nil {
			return nil, classify(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(op, err)
	}
	committed = true
	return r.FindByID(ctx, id)
}

// CreateTx inserts the reservation row within an existing transaction
// and returns the generated ID. The caller must commit or roll back.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) (uint64, error) {
	const q = `INSERT INTO reservations
               (guest_id, booking_date, check_in_date, check_out_date, number_of_guests, special_requests,
                status, payment_status, total_price_cents, tax_amount_cents, discount_amount_cents,
                final_amount_cents, promotion_id)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.GuestID, res.BookingDate, res.CheckInDate, res.CheckOutDate, res.NumberOfGuests, res.SpecialRequests,
		res.Status, res.PaymentStatus, res.TotalPriceCents, res.TaxAmountCents, res.DiscountAmountCents,
		res.FinalAmountCents, res.PromotionID,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateDetailsBulkTx inserts all detail rows of a reservation in a
// single statement. Passing an empty slice has no effect.
func (r *ReservationRepo) CreateDetailsBulkTx(ctx context.Context, tx *sql.Tx, reservationID uint64, details []model.ReservationDetail) error {
	if len(details) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_details
              (reservation_id, room_id, check_in_date, check_out_date, daily_rate_cents, total_nights, subtotal_cents)
              VALUES `
	args := make([]interface{}, 0, len(details)*7)
	for i, d := range details {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, reservationID, d.RoomID, d.CheckInDate, d.CheckOutDate, d.DailyRateCents, d.TotalNights, d.SubtotalCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// lockRoomsTx takes row locks on the given rooms in ascending id order.
// Locking in a fixed order keeps two bookings of overlapping room sets
// from deadlocking. A missing room yields ErrInvalidReference.
func lockRoomsTx(ctx context.Context, tx *sql.Tx, roomIDs []uint64) error {
	if len(roomIDs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(roomIDs))
	for _, id := range roomIDs {
		args = append(args, id)
	}
	q := `SELECT id FROM rooms WHERE id IN (` + placeholders(len(roomIDs)) + `) ORDER BY id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := make(map[uint64]bool, len(roomIDs))
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range roomIDs {
		if !found[id] {
			return ErrInvalidReference
		}
	}
	return nil
}

// bookedRoomIDsTx returns the rooms held by a reservation, locking its
// detail rows.
func bookedRoomIDsTx(ctx context.Context, tx *sql.Tx, reservationID uint64) ([]uint64, error) {
	const q = `SELECT room_id FROM reservation_details WHERE reservation_id = ? ORDER BY room_id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// claimPromotionTx increments a promotion's usage counter unless it has
// reached its cap, in which case it returns ErrPromotionExhausted.
func claimPromotionTx(ctx context.Context, tx *sql.Tx, promotionID uint64) error {
	const q = `UPDATE promotions SET current_uses = current_uses + 1
               WHERE id = ? AND (max_uses IS NULL OR current_uses < max_uses)`
	result, err := tx.ExecContext(ctx, q, promotionID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrPromotionExhausted
	}
	return nil
}

// findSpans returns the stays held on a room that may collide with
// [checkIn, checkOut): every non-cancelled detail row that starts before
// checkOut and either ends after checkIn or has unusable dates. Rows of
// excludeID are ignored so a reservation never conflicts with itself.
func findSpans(ctx context.Context, q querier, roomID uint64, checkIn, checkOut time.Time, excludeID uint64) ([]model.StaySpan, error) {
	const sel = `SELECT d.reservation_id, d.check_in_date, d.check_out_date
                 FROM reservation_details d
                 JOIN reservations r ON r.id = d.reservation_id
                 WHERE d.room_id = ? AND r.status <> ? AND d.reservation_id <> ?
                   AND d.check_in_date < ?
                   AND (d.check_out_date > ? OR d.check_out_date <= d.check_in_date)`
	rows, err := q.QueryContext(ctx, sel, roomID, model.StatusCancelled, excludeID, checkOut, checkIn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var spans []model.StaySpan
	for rows.Next() {
		var s model.StaySpan
		if err := rows.Scan(&s.ReservationID, &s.CheckInDate, &s.CheckOutDate); err != nil {
			return nil, err
		}
		spans = append(spans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return spans, nil
}

func anyBlocks(spans []model.StaySpan, checkIn, checkOut time.Time) bool {
	for _, s := range spans {
		if s.Blocks(checkIn, checkOut) {
			return true
		}
	}
	return false
}

// Spans returns the stays on roomID that may collide with the requested
// range, ignoring reservation excludeID (pass 0 to ignore none).
func (r *ReservationRepo) Spans(ctx context.Context, roomID uint64, checkIn, checkOut time.Time, excludeID uint64) ([]model.StaySpan, error) {
	spans, err := findSpans(ctx, r.db, roomID, checkIn, checkOut, excludeID)
	if err != nil {
		return nil, classify("find room stays", err)
	}
	return spans, nil
}

// FindByID returns a reservation with its detail rows, or ErrNotFound.
func (r *ReservationRepo) FindByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	const op = "find reservation"
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if err != nil {
		return nil, classify(op, err)
	}
	if err := loadDetails(ctx, r.db, []*model.Reservation{res}); err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// FindByPaymentRef returns the reservation carrying the given payment
// gateway reference, or ErrNotFound.
func (r *ReservationRepo) FindByPaymentRef(ctx context.Context, ref string) (*model.Reservation, error) {
	const op = "find reservation by payment"
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE payment_ref = ?`, ref))
	if err != nil {
		return nil, classify(op, err)
	}
	if err := loadDetails(ctx, r.db, []*model.Reservation{res}); err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// FindAll lists every reservation, newest booking first.
func (r *ReservationRepo) FindAll(ctx context.Context) ([]model.Reservation, error) {
	return r.list(ctx, "list reservations", "", "booking_date DESC, id DESC")
}

// FindByGuest lists a guest's reservations, newest booking first.
func (r *ReservationRepo) FindByGuest(ctx context.Context, guestID uint64) ([]model.Reservation, error) {
	return r.list(ctx, "list reservations by guest", "guest_id = ?", "booking_date DESC, id DESC", guestID)
}

// FindByStatus lists reservations in the given status, newest booking first.
func (r *ReservationRepo) FindByStatus(ctx context.Context, status model.Status) ([]model.Reservation, error) {
	return r.list(ctx, "list reservations by status", "status = ?", "booking_date DESC, id DESC", status)
}

// FindByDateRange lists reservations whose whole stay lies within
// [start, end], ordered by check-in date.
func (r *ReservationRepo) FindByDateRange(ctx context.Context, start, end time.Time) ([]model.Reservation, error) {
	return r.list(ctx, "list reservations by dates", "check_in_date >= ? AND check_out_date <= ?", "check_in_date ASC, id ASC", start, end)
}

func (r *ReservationRepo) list(ctx context.Context, op, where, order string, args ...interface{}) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY ` + order
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	ptrs := make([]*model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		ptrs = append(ptrs, res)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	rows.Close()
	if err := loadDetails(ctx, r.db, ptrs); err != nil {
		return nil, classify(op, err)
	}
	out := make([]model.Reservation, 0, len(ptrs))
	for _, p := range ptrs {
		out = append(out, *p)
	}
	return out, nil
}

// loadDetails populates the detail rows of all given reservations in a
// single query.
func loadDetails(ctx context.Context, q querier, list []*model.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[uint64]*model.Reservation, len(list))
	ids := make([]interface{}, 0, len(list))
	for _, res := range list {
		index[res.ID] = res
		ids = append(ids, res.ID)
	}
	sel := `SELECT id, reservation_id, room_id, check_in_date, check_out_date, daily_rate_cents, total_nights, subtotal_cents
            FROM reservation_details
            WHERE reservation_id IN (` + placeholders(len(ids)) + `)
            ORDER BY reservation_id, id`
	rows, err := q.QueryContext(ctx, sel, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var d model.ReservationDetail
		if err := rows.Scan(&d.ID, &d.ReservationID, &d.RoomID, &d.CheckInDate, &d.CheckOutDate,
			&d.DailyRateCents, &d.TotalNights, &d.SubtotalCents); err != nil {
			return err
		}
		d.CheckInDate = utils.Day(d.CheckInDate)
		d.CheckOutDate = utils.Day(d.CheckOutDate)
		if res, ok := index[d.ReservationID]; ok {
			res.Details = append(res.Details, d)
		}
	}
	return rows.Err()
}

// Patch lists the reservation fields an update may change. Nil fields
// are left untouched. When AllowedStatuses is non-empty the update only
// applies while the stored status is one of them; otherwise
// ErrStatusChanged is returned.
type Patch struct {
	CheckInDate         *time.Time
	CheckOutDate        *time.Time
	NumberOfGuests      *int
	SpecialRequests     *string
	TotalPriceCents     *int64
	DiscountAmountCents *int64
	TaxAmountCents      *int64
	FinalAmountCents    *int64
	AllowedStatuses     []model.Status
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.CheckInDate == nil && p.CheckOutDate == nil && p.NumberOfGuests == nil &&
		p.SpecialRequests == nil && p.TotalPriceCents == nil && p.DiscountAmountCents == nil &&
		p.TaxAmountCents == nil && p.FinalAmountCents == nil
}

// Update applies a patch to a reservation in one transaction. When the
// stay dates move, the rooms are locked, overlap is re-checked against
// every other reservation, and the detail rows get the new dates,
// nights and subtotals. It returns ErrNotFound, ErrStatusChanged,
// ErrInvalidDates or ErrConflict as appropriate.
func (r *ReservationRepo) Update(ctx context.Context, id uint64, p Patch) (*model.Reservation, error) {
	const op = "update reservation"
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cur, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, classify(op, err)
	}
	if len(p.AllowedStatuses) > 0 && !statusIn(cur.Status, p.AllowedStatuses) {
		return nil, ErrStatusChanged
	}
	checkIn, checkOut := cur.CheckInDate, cur.CheckOutDate
	if p.CheckInDate != nil {
		checkIn = utils.Day(*p.CheckInDate)
	}
	if p.CheckOutDate != nil {
		checkOut = utils.Day(*p.CheckOutDate)
	}
	if !checkOut.After(checkIn) {
		return nil, ErrInvalidDates
	}

	if !checkIn.Equal(cur.CheckInDate) || !checkOut.Equal(cur.CheckOutDate) {
		// Every read before the overlap probe must be a locking read: the
		// first plain SELECT fixes the snapshot, and it has to be taken
		// after the room locks so bookings committed meanwhile are seen.
		roomIDs, err := bookedRoomIDsTx(ctx, tx, id)
		if err != nil {
			return nil, classify(op, err)
		}
		if err := lockRoomsTx(ctx, tx, roomIDs); err != nil {
			return nil, classify(op, err)
		}
		for _, roomID := range roomIDs {
			spans, err := findSpans(ctx, tx, roomID, checkIn, checkOut, id)
			if err != nil {
				return nil, classify(op, err)
			}
			if anyBlocks(spans, checkIn, checkOut) {
				return nil, ErrConflict
			}
		}
		nights := utils.Nights(checkIn, checkOut)
		const upd = `UPDATE reservation_details
                     SET check_in_date = ?, check_out_date = ?, total_nights = ?, subtotal_cents = daily_rate_cents * ?
                     WHERE reservation_id = ?`
		if _, err := tx.ExecContext(ctx, upd, checkIn, checkOut, nights, nights, id); err != nil {
			return nil, classify(op, err)
		}
	}

	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	if p.CheckInDate != nil {
		sets = append(sets, "check_in_date = ?")
		args = append(args, checkIn)
	}
	if p.CheckOutDate != nil {
		sets = append(sets, "check_out_date = ?")
		args = append(args, checkOut)
	}
	if p.NumberOfGuests != nil {
		sets = append(sets, "number_of_guests = ?")
		args = append(args, *p.NumberOfGuests)
	}
	if p.SpecialRequests != nil {
		sets = append(sets, "special_requests = ?")
		args = append(args, *p.SpecialRequests)
	}
	if p.TotalPriceCents != nil {
		sets = append(sets, "total_price_cents = ?")
		args = append(args, *p.TotalPriceCents)
	}
	if p.DiscountAmountCents != nil {
		sets = append(sets, "discount_amount_cents = ?")
		args = append(args, *p.DiscountAmountCents)
	}
	if p.TaxAmountCents != nil {
		sets = append(sets, "tax_amount_cents = ?")
		args = append(args, *p.TaxAmountCents)
	}
	if p.FinalAmountCents != nil {
		sets = append(sets, "final_amount_cents = ?")
		args = append(args, *p.FinalAmountCents)
	}
	if len(sets) > 0 {
		args = append(args, id)
		q := `UPDATE reservations SET ` + strings.Join(sets, ", ") + `, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return nil, classify(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(op, err)
	}
	committed = true
	return r.FindByID(ctx, id)
}

func statusIn(s model.Status, set []model.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// SetStatus moves a reservation from status `from` to `to` with a
// single compare-and-set UPDATE. When `to` is CANCELLED the
// cancellation date and reason are recorded as well. If the row exists
// but no longer has status `from`, ErrStatusChanged is returned and
// nothing is written.
func (r *ReservationRepo) SetStatus(ctx context.Context, id uint64, from, to model.Status, reason *string, at time.Time) (*model.Reservation, error) {
	const op = "set reservation status"
	var result sql.Result
	var err error
	if to == model.StatusCancelled {
		const q = `UPDATE reservations
                   SET status = ?, cancellation_date = ?, cancellation_reason = ?, updated_at = CURRENT_TIMESTAMP
                   WHERE id = ? AND status = ?`
		result, err = r.db.ExecContext(ctx, q, to, at.UTC(), reason, id, from)
	} else {
		const q = `UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
		result, err = r.db.ExecContext(ctx, q, to, id, from)
	}
	if err != nil {
		return nil, classify(op, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if err := r.exists(ctx, id); err != nil {
			return nil, classify(op, err)
		}
		return nil, ErrStatusChanged
	}
	return r.FindByID(ctx, id)
}

// SetPayment records the payment status of a reservation. A nil ref
// keeps the stored payment reference.
func (r *ReservationRepo) SetPayment(ctx context.Context, id uint64, status model.PaymentStatus, ref *string) (*model.Reservation, error) {
	const op = "set reservation payment"
	const q = `UPDATE reservations
               SET payment_status = ?, payment_ref = COALESCE(?, payment_ref), updated_at = CURRENT_TIMESTAMP
               WHERE id = ?`
	result, err := r.db.ExecContext(ctx, q, status, ref, id)
	if err != nil {
		return nil, classify(op, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *ReservationRepo) exists(ctx context.Context, id uint64) error {
	var one int
	return r.db.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ? LIMIT 1`, id).Scan(&one)
}
