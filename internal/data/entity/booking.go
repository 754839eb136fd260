package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
)

type Booking struct {
	Base
	SeatID         uuid.UUID     `db:"seat_id"`
	UserID         uuid.UUID     `db:"user_id"`
	Status         BookingStatus `db:"status"`
	IdempotencyKey string        `db:"idempotency_key"`
	ExpiresAt      *time.Time    `db:"expires_at"`
}
