package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// RoomRepo reads room reference data. Rooms are maintained by inventory
// management; the reservation engine never writes them.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// GetRooms returns the rooms with the given IDs keyed by ID. IDs that do
// not exist are simply absent from the map.
func (r *RoomRepo) GetRooms(ctx context.Context, ids []uint64) (map[uint64]model.Room, error) {
	out := make(map[uint64]model.Room, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	q := `SELECT id, hotel_id, room_number, room_type, base_rate_cents, max_occupancy
          FROM rooms WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("find rooms", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rm model.Room
		if err := rows.Scan(&rm.ID, &rm.HotelID, &rm.RoomNumber, &rm.RoomType, &rm.BaseRateCents, &rm.MaxOccupancy); err != nil {
			return nil, classify("find rooms", err)
		}
		out[rm.ID] = rm
	}
	if err := rows.Err(); err != nil {
		return nil, classify("find rooms", err)
	}
	return out, nil
}
