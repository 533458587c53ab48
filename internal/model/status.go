package model

import "strings"

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// transitions lists, for every status, the statuses it may move to.
// Statuses missing from the map (or mapped to nothing) are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled, StatusNoShow, StatusCompleted},
	StatusCheckedIn:  {StatusCheckedOut, StatusCompleted},
	StatusCheckedOut: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// ParseStatus accepts a status name in any letter case and reports
// whether it names a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := transitions[st]
	return st, ok
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Editable reports whether dates, guest count or amounts may still be
// changed while the reservation is in this status.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// BlocksInventory reports whether a reservation in this status holds
// its rooms for the booked nights. Only cancellation releases them.
func (s Status) BlocksInventory() bool {
	return s != StatusCancelled
}

// PaymentStatus tracks money movement for a reservation independently
// of its lifecycle status.
type PaymentStatus string

const (
	PaymentUnpaid            PaymentStatus = "UNPAID"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)
