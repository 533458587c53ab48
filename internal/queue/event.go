// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// NotificationEvent is published whenever a guest should hear about a
// reservation: status changes and the sweeper's reminders. It carries
// enough information for downstream consumers to send or log the message
// without querying the primary database.
type NotificationEvent struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	ReservationID uint64 `json:"reservation_id"`
	GuestID       uint64 `json:"guest_id"`
	GuestEmail    string `json:"guest_email,omitempty"`
	HotelID       uint64 `json:"hotel_id,omitempty"`
	HotelName     string `json:"hotel_name,omitempty"`
	Status        string `json:"status"`
	CheckInDate   string `json:"check_in_date"`
	CheckOutDate  string `json:"check_out_date"`
	OccurredAt    string `json:"occurred_at"`
}

// NewNotificationEvent stamps n with a fresh event ID and the time it
// was raised.
func NewNotificationEvent(n model.Notification, at time.Time) NotificationEvent {
	return NotificationEvent{
		ID:            uuid.NewString(),
		Kind:          string(n.Kind),
		ReservationID: n.ReservationID,
		GuestID:       n.GuestID,
		GuestEmail:    n.GuestEmail,
		HotelID:       n.HotelID,
		HotelName:     n.HotelName,
		Status:        string(n.Status),
		CheckInDate:   utils.FormatDate(n.CheckInDate),
		CheckOutDate:  utils.FormatDate(n.CheckOutDate),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}
