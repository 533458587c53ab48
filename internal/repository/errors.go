// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation service to distinguish between different failure
// scenarios without inspecting driver errors. For example, ErrConflict
// signals that a write lost a race for a room, while
// ErrInvalidReference reports that a guest, room or promotion named by
// the write does not exist.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a reservation they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as another reservation holding one of the
// rooms for an overlapping night, a duplicate key or a deadlock.
var ErrConflict = errors.New("conflict")

// ErrInvalidReference is returned when a foreign key constraint fails,
// e.g. a reservation for a guest or room that does not exist.
var ErrInvalidReference = errors.New("invalid reference")

// ErrInvalidDates is returned when a patch would leave the check-out
// date on or before the check-in date.
var ErrInvalidDates = errors.New("check-out date must be after check-in date")

// ErrPromotionExhausted is returned when a promotion reaches its usage
// cap between pricing and the write that claims it.
var ErrPromotionExhausted = errors.New("promotion usage limit reached")

// ErrStatusChanged is returned by compare-and-set writes when the row
// no longer has the status the caller observed.
var ErrStatusChanged = errors.New("status changed concurrently")

// StorageError wraps any other database failure with the operation
// that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// MySQL server error numbers the repositories translate.
const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlRowIsReferenced  = 1451
	mysqlNoReferencedRow  = 1452
	mysqlNoReferencedRow2 = 1216
)

// classify maps driver errors onto the sentinels above. Errors that are
// already sentinels pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, s := range []error{ErrNotFound, ErrForbidden, ErrConflict, ErrInvalidReference, ErrInvalidDates, ErrStatusChanged, ErrPromotionExhausted} {
		if errors.Is(err, s) {
			return err
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlNoReferencedRow, mysqlNoReferencedRow2, mysqlRowIsReferenced:
			return fmt.Errorf("%w: %s", ErrInvalidReference, me.Message)
		case mysqlDuplicateEntry, mysqlDeadlock, mysqlLockWaitTimeout:
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		}
	}
	return &StorageError{Op: op, Err: err}
}
