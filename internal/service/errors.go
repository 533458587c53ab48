package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Kind classifies service failures. Handlers map each kind to one HTTP
// status; callers match kinds with errors.Is against the Err* values.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindInvalidTransition
	KindStorage
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindStorage:
		return "storage"
	case KindGateway:
		return "gateway"
	}
	return "unknown"
}

// Error is the error type returned by every service operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	// From and To are set for KindInvalidTransition.
	From model.Status
	To   model.Status
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works for every conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Op == "" && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrStorage           = &Error{Kind: KindStorage}
	ErrGateway           = &Error{Kind: KindGateway}
)

// KindOf returns the kind of err, or KindStorage for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStorage
}

func validationf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func invalidTransition(op string, from, to model.Status) error {
	return &Error{
		Kind: KindInvalidTransition, Op: op, From: from, To: to,
		Msg: fmt.Sprintf("cannot move reservation from %s to %s", from, to),
	}
}

// GatewayError wraps a payment gateway failure.
func GatewayError(op string, err error) error {
	return &Error{Kind: KindGateway, Op: op, Msg: "payment gateway error", Err: err}
}

// FromStore translates repository errors into service errors. what names
// the addressed entity for not-found messages.
func FromStore(op, what string, err error) error {
	var se *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &se):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Msg: what + " not found", Err: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Kind: KindConflict, Op: op, Msg: "conflicting reservation or concurrent update, retry", Err: err}
	case errors.Is(err, repository.ErrInvalidReference):
		return &Error{Kind: KindNotFound, Op: op, Msg: "referenced guest, room or promotion does not exist", Err: err}
	case errors.Is(err, repository.ErrPromotionExhausted):
		return &Error{Kind: KindValidation, Op: op, Msg: "promotion has reached its usage limit", Err: err}
	case errors.Is(err, repository.ErrInvalidDates):
		return &Error{Kind: KindValidation, Op: op, Msg: err.Error(), Err: err}
	case errors.Is(err, repository.ErrForbidden):
		return &Error{Kind: KindNotFound, Op: op, Msg: what + " not found", Err: err}
	}
	return &Error{Kind: KindStorage, Op: op, Msg: "storage failure", Err: err}
}
