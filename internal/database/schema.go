package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables the reservation engine reads and writes.
// hotels, rooms, guests, promotions and reviews are owned by other
// services in production; the definitions here cover the columns this
// service relies on so a fresh database is usable for development.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS hotels (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(200) NOT NULL
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		hotel_id BIGINT UNSIGNED NOT NULL,
		room_number VARCHAR(20) NOT NULL,
		room_type VARCHAR(50) NOT NULL,
		base_rate_cents BIGINT NOT NULL DEFAULT 0,
		max_occupancy INT NOT NULL DEFAULT 1,
		UNIQUE KEY uq_rooms_hotel_number (hotel_id, room_number),
		CONSTRAINT fk_rooms_hotel FOREIGN KEY (hotel_id) REFERENCES hotels(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS guests (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		full_name VARCHAR(200) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS promotions (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(50) NOT NULL UNIQUE,
		discount_type ENUM('PERCENTAGE','FIXED_AMOUNT') NOT NULL,
		percent_off DECIMAL(5,2) NULL,
		amount_off_cents BIGINT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		max_uses INT NULL,
		current_uses INT NOT NULL DEFAULT 0,
		min_booking_cents BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reviews (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		hotel_id BIGINT UNSIGNED NOT NULL,
		guest_id BIGINT UNSIGNED NOT NULL,
		rating TINYINT NOT NULL,
		body TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_reviews_hotel_guest (hotel_id, guest_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		guest_id BIGINT UNSIGNED NOT NULL,
		booking_date DATETIME NOT NULL,
		check_in_date DATE NOT NULL,
		check_out_date DATE NOT NULL,
		number_of_guests INT NOT NULL,
		special_requests TEXT NULL,
		status ENUM('PENDING','CONFIRMED','CHECKED_IN','CHECKED_OUT','COMPLETED','CANCELLED','NO_SHOW') NOT NULL DEFAULT 'PENDING',
		payment_status ENUM('UNPAID','PAID','REFUNDED','PARTIALLY_REFUNDED') NOT NULL DEFAULT 'UNPAID',
		payment_ref VARCHAR(255) NULL,
		total_price_cents BIGINT NOT NULL,
		tax_amount_cents BIGINT NOT NULL DEFAULT 0,
		discount_amount_cents BIGINT NOT NULL DEFAULT 0,
		final_amount_cents BIGINT NOT NULL,
		promotion_id BIGINT UNSIGNED NULL,
		cancellation_date DATETIME NULL,
		cancellation_reason VARCHAR(500) NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_reservations_guest (guest_id),
		KEY idx_reservations_status (status),
		KEY idx_reservations_dates (check_in_date, check_out_date),
		UNIQUE KEY uq_reservations_payment_ref (payment_ref),
		CONSTRAINT fk_reservations_guest FOREIGN KEY (guest_id) REFERENCES guests(id),
		CONSTRAINT fk_reservations_promotion FOREIGN KEY (promotion_id) REFERENCES promotions(id),
		CONSTRAINT chk_reservations_dates CHECK (check_out_date > check_in_date),
		CONSTRAINT chk_reservations_guests CHECK (number_of_guests >= 1)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reservation_details (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		reservation_id BIGINT UNSIGNED NOT NULL,
		room_id BIGINT UNSIGNED NOT NULL,
		check_in_date DATE NOT NULL,
		check_out_date DATE NOT NULL,
		daily_rate_cents BIGINT NOT NULL,
		total_nights INT NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		UNIQUE KEY uq_details_reservation_room (reservation_id, room_id),
		KEY idx_details_room_dates (room_id, check_in_date, check_out_date),
		CONSTRAINT fk_details_reservation FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE CASCADE,
		CONSTRAINT fk_details_room FOREIGN KEY (room_id) REFERENCES rooms(id)
	) ENGINE=InnoDB`,
}

// Migrate creates any missing tables. Existing tables are left alone.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
