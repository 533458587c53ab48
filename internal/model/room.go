package model

// Room is a bookable unit of a hotel. Rooms are reference data owned
// by inventory management; reservations only read them.
type Room struct {
	ID            uint64 `json:"id"`
	HotelID       uint64 `json:"hotel_id"`
	RoomNumber    string `json:"room_number"`
	RoomType      string `json:"room_type"`
	BaseRateCents int64  `json:"base_rate_cents"`
	MaxOccupancy  int    `json:"max_occupancy"`
}
