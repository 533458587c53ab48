package model

import "time"

// NotificationKind names the guest-facing message a notification asks for.
type NotificationKind string

const (
	NotifyBookingConfirmed NotificationKind = "booking.confirmed"
	NotifyBookingCancelled NotificationKind = "booking.cancelled"
	NotifyStatusUpdated    NotificationKind = "booking.status_updated"
	NotifyCheckInReminder  NotificationKind = "booking.check_in_reminder"
	NotifyReviewReminder   NotificationKind = "review.reminder"
)

// Notification is handed to the delivery channel (a message queue in
// production). Delivery is best effort.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	ReservationID uint64           `json:"reservation_id"`
	GuestID       uint64           `json:"guest_id"`
	GuestEmail    string           `json:"guest_email,omitempty"`
	HotelID       uint64           `json:"hotel_id,omitempty"`
	HotelName     string           `json:"hotel_name,omitempty"`
	Status        Status           `json:"status,omitempty"`
	CheckInDate   time.Time        `json:"check_in_date"`
	CheckOutDate  time.Time        `json:"check_out_date"`
}

// ReminderTarget is a reservation matched by a reminder sweep together
// with the guest and hotel data the reminder needs.
type ReminderTarget struct {
	ReservationID uint64
	GuestID       uint64
	GuestEmail    string
	HotelID       uint64
	HotelName     string
	Status        Status
	CheckInDate   time.Time
	CheckOutDate  time.Time
}
