package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

var reservationCols = []string{
	"id", "guest_id", "booking_date", "check_in_date", "check_out_date", "number_of_guests",
	"special_requests", "status", "payment_status", "payment_ref",
	"total_price_cents", "tax_amount_cents", "discount_amount_cents", "final_amount_cents",
	"promotion_id", "cancellation_date", "cancellation_reason", "updated_at",
}

var detailCols = []string{
	"id", "reservation_id", "room_id", "check_in_date", "check_out_date", "daily_rate_cents", "total_nights", "subtotal_cents",
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func newMock(t *testing.T) (*ReservationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReservationRepo(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func reservationRow(id uint64, status model.Status, in, out time.Time) *sqlmock.Rows {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(reservationCols).AddRow(
		id, 9, now, in, out, 2,
		nil, string(status), "UNPAID", nil,
		30000, 3000, 0, 33000,
		nil, nil, nil, now,
	)
}

func newReservation() (*model.Reservation, []model.ReservationDetail) {
	in, out := day(2025, 7, 1), day(2025, 7, 4)
	res := &model.Reservation{
		GuestID: 9, BookingDate: time.Now().UTC(), CheckInDate: in, CheckOutDate: out,
		NumberOfGuests: 2, Status: model.StatusPending, PaymentStatus: model.PaymentUnpaid,
		TotalPriceCents: 30000, TaxAmountCents: 3000, FinalAmountCents: 33000,
	}
	details := []model.ReservationDetail{{
		RoomID: 7, CheckInDate: in, CheckOutDate: out, DailyRateCents: 10000, TotalNights: 3, SubtotalCents: 30000,
	}}
	return res, details
}

func TestCreateStoresReservationAndDetails(t *testing.T) {
	repo, mock := newMock(t)
	res, details := newReservation()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM rooms WHERE id IN (?) ORDER BY id FOR UPDATE")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("FROM reservation_details d JOIN reservations r ON r.id = d.reservation_id")).
		WithArgs(7, "CANCELLED", 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}))
	mock.ExpectExec(q("INSERT INTO reservations")).WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectExec(q("INSERT INTO reservation_details")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(q("FROM reservations WHERE id = ?")).
		WithArgs(10).
		WillReturnRows(reservationRow(10, model.StatusPending, day(2025, 7, 1), day(2025, 7, 4)))
	mock.ExpectQuery(q("FROM reservation_details WHERE reservation_id IN (?)")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(detailCols).AddRow(1, 10, 7, day(2025, 7, 1), day(2025, 7, 4), 10000, 3, 30000))

	got, err := repo.Create(context.Background(), res, details)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.ID != 10 || got.Status != model.StatusPending || len(got.Details) != 1 || got.Details[0].RoomID != 7 {
		t.Fatalf("unexpected reservation %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateRollsBackWhenRoomTaken(t *testing.T) {
	repo, mock := newMock(t)
	res, details := newReservation()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM rooms WHERE id IN (?) ORDER BY id FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("FROM reservation_details d JOIN reservations r")).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}).
			AddRow(42, day(2025, 7, 3), day(2025, 7, 6)))
	mock.ExpectRollback()

	if _, err := repo.Create(context.Background(), res, details); !errors.Is(err, ErrConflict) {
		t.Fatalf("Create err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateRollsBackOnForeignKeyFailure(t *testing.T) {
	repo, mock := newMock(t)
	res, details := newReservation()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("FROM reservation_details d")).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}))
	mock.ExpectExec(q("INSERT INTO reservations")).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "guest_id fk"})
	mock.ExpectRollback()

	if _, err := repo.Create(context.Background(), res, details); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("Create err = %v, want ErrInvalidReference", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateRejectsMissingRoom(t *testing.T) {
	repo, mock := newMock(t)
	res, details := newReservation()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	if _, err := repo.Create(context.Background(), res, details); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("Create err = %v, want ErrInvalidReference", err)
	}
}

func TestCreateFailsWhenPromotionExhausted(t *testing.T) {
	repo, mock := newMock(t)
	res, details := newReservation()
	promo := uint64(3)
	res.PromotionID = &promo

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("FROM reservation_details d")).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}))
	mock.ExpectExec(q("INSERT INTO reservations")).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(q("INSERT INTO reservation_details")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("UPDATE promotions SET current_uses = current_uses + 1")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), res, details)
	if !errors.Is(err, ErrPromotionExhausted) || errors.Is(err, ErrConflict) {
		t.Fatalf("Create err = %v, want ErrPromotionExhausted", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(q("FROM reservations WHERE id = ?")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows(reservationCols))

	if _, err := repo.FindByID(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByID err = %v, want ErrNotFound", err)
	}
}

func TestSetStatusDetectsConcurrentChange(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(q("UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?")).
		WithArgs("CONFIRMED", 5, "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM reservations WHERE id = ?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	_, err := repo.SetStatus(context.Background(), 5, model.StatusPending, model.StatusConfirmed, nil, time.Now())
	if !errors.Is(err, ErrStatusChanged) {
		t.Fatalf("SetStatus err = %v, want ErrStatusChanged", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSetStatusMissingReservation(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(q("UPDATE reservations SET status = ?")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM reservations WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	_, err := repo.SetStatus(context.Background(), 5, model.StatusPending, model.StatusConfirmed, nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetStatus err = %v, want ErrNotFound", err)
	}
}

func TestSetStatusCancelRecordsReason(t *testing.T) {
	repo, mock := newMock(t)
	reason := "guest request"
	mock.ExpectExec(q("SET status = ?, cancellation_date = ?, cancellation_reason = ?")).
		WithArgs("CANCELLED", sqlmock.AnyArg(), reason, 5, "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM reservations WHERE id = ?")).
		WillReturnRows(reservationRow(5, model.StatusCancelled, day(2025, 7, 1), day(2025, 7, 4)))
	mock.ExpectQuery(q("FROM reservation_details WHERE reservation_id IN (?)")).
		WillReturnRows(sqlmock.NewRows(detailCols))

	got, err := repo.SetStatus(context.Background(), 5, model.StatusConfirmed, model.StatusCancelled, &reason, time.Now())
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateRejectsNonEditableStatus(t *testing.T) {
	repo, mock := newMock(t)
	guests := 3
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM reservations WHERE id = ? FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(reservationRow(5, model.StatusCheckedIn, day(2025, 7, 1), day(2025, 7, 4)))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), 5, Patch{
		NumberOfGuests:  &guests,
		AllowedStatuses: []model.Status{model.StatusPending, model.StatusConfirmed},
	})
	if !errors.Is(err, ErrStatusChanged) {
		t.Fatalf("Update err = %v, want ErrStatusChanged", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateRejectsInvertedDates(t *testing.T) {
	repo, mock := newMock(t)
	out := day(2025, 6, 30)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(reservationRow(5, model.StatusPending, day(2025, 7, 1), day(2025, 7, 4)))
	mock.ExpectRollback()

	if _, err := repo.Update(context.Background(), 5, Patch{CheckOutDate: &out}); !errors.Is(err, ErrInvalidDates) {
		t.Fatalf("Update err = %v, want ErrInvalidDates", err)
	}
}

func TestUpdateDatesChecksOtherReservations(t *testing.T) {
	repo, mock := newMock(t)
	newOut := day(2025, 7, 6)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM reservations WHERE id = ? FOR UPDATE")).
		WillReturnRows(reservationRow(5, model.StatusConfirmed, day(2025, 7, 1), day(2025, 7, 4)))
	mock.ExpectQuery(q("SELECT room_id FROM reservation_details WHERE reservation_id = ? ORDER BY room_id FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"room_id"}).AddRow(7))
	mock.ExpectQuery(q("SELECT id FROM rooms WHERE id IN (?) ORDER BY id FOR UPDATE")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("FROM reservation_details d JOIN reservations r")).
		WithArgs(7, "CANCELLED", 5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}).
			AddRow(8, day(2025, 7, 5), day(2025, 7, 7)))
	mock.ExpectRollback()

	if _, err := repo.Update(context.Background(), 5, Patch{CheckOutDate: &newOut}); !errors.Is(err, ErrConflict) {
		t.Fatalf("Update err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateDatesRewritesDetails(t *testing.T) {
	repo, mock := newMock(t)
	newOut := day(2025, 7, 6)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(reservationRow(5, model.StatusConfirmed, day(2025, 7, 1), day(2025, 7, 4)))
	mock.ExpectQuery(q("SELECT room_id FROM reservation_details")).
		WillReturnRows(sqlmock.NewRows([]string{"room_id"}).AddRow(7))
	mock.ExpectQuery(q("SELECT id FROM rooms")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("FROM reservation_details d")).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}))
	mock.ExpectExec(q("UPDATE reservation_details")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 5, 5, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE reservations SET check_out_date = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(q("FROM reservations WHERE id = ?")).
		WillReturnRows(reservationRow(5, model.StatusConfirmed, day(2025, 7, 1), day(2025, 7, 6)))
	mock.ExpectQuery(q("FROM reservation_details WHERE reservation_id IN (?)")).
		WillReturnRows(sqlmock.NewRows(detailCols).AddRow(1, 5, 7, day(2025, 7, 1), day(2025, 7, 6), 10000, 5, 50000))

	got, err := repo.Update(context.Background(), 5, Patch{CheckOutDate: &newOut})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Details[0].TotalNights != 5 || !got.CheckOutDate.Equal(newOut) {
		t.Fatalf("unexpected reservation %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateDatesLocksRoomsBeforeReadingStays(t *testing.T) {
	repo, mock := newMock(t)
	newIn, newOut := day(2025, 7, 2), day(2025, 7, 5)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM reservations WHERE id = ? FOR UPDATE")).
		WillReturnRows(reservationRow(5, model.StatusPending, day(2025, 7, 1), day(2025, 7, 4)))
	mock.ExpectQuery(q("FROM reservation_details WHERE reservation_id = ? ORDER BY room_id FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"room_id"}).AddRow(7).AddRow(9))
	mock.ExpectQuery(q("SELECT id FROM rooms WHERE id IN (?,?) ORDER BY id FOR UPDATE")).
		WithArgs(7, 9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7).AddRow(9))
	// A stay committed by another booking while this one waited for the
	// room locks must be found.
	mock.ExpectQuery(q("FROM reservation_details d JOIN reservations r")).
		WithArgs(7, "CANCELLED", 5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}))
	mock.ExpectQuery(q("FROM reservation_details d JOIN reservations r")).
		WithArgs(9, "CANCELLED", 5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "check_in_date", "check_out_date"}).
			AddRow(12, day(2025, 7, 4), day(2025, 7, 6)))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), 5, Patch{CheckInDate: &newIn, CheckOutDate: &newOut})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Update err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListByGuestLoadsDetailsInOneQuery(t *testing.T) {
	repo, mock := newMock(t)
	rows := sqlmock.NewRows(reservationCols)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []int64{2, 1} {
		rows.AddRow(id, 9, now, day(2025, 7, 1), day(2025, 7, 4), 2, nil, "PENDING", "UNPAID", nil,
			30000, 3000, 0, 33000, nil, nil, nil, now)
	}
	mock.ExpectQuery(q("FROM reservations WHERE guest_id = ? ORDER BY booking_date DESC, id DESC")).
		WithArgs(9).
		WillReturnRows(rows)
	mock.ExpectQuery(q("WHERE reservation_id IN (?,?)")).
		WithArgs(2, 1).
		WillReturnRows(sqlmock.NewRows(detailCols).
			AddRow(1, 1, 7, day(2025, 7, 1), day(2025, 7, 4), 10000, 3, 30000).
			AddRow(2, 2, 8, day(2025, 7, 1), day(2025, 7, 4), 10000, 3, 30000))

	got, err := repo.FindByGuest(context.Background(), 9)
	if err != nil {
		t.Fatalf("FindByGuest: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[0].Details[0].RoomID != 8 || got[1].Details[0].RoomID != 7 {
		t.Fatalf("unexpected list %+v", got)
	}
}
