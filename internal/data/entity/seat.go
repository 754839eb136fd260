package entity

import "time"

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusHold      SeatStatus = "HOLD"
	SeatStatusBooked    SeatStatus = "BOOKED"
)

// Seat is mutated only through version-guarded writes. HoldExpiresAt is set
// iff Status is HOLD and may already be in the past until the hold reaper runs.
type Seat struct {
	Base
	Status        SeatStatus `db:"status"`
	Version       int64      `db:"version"`
	HoldExpiresAt *time.Time `db:"hold_expires_at"`
}

// HoldActive reports whether the seat is held and the hold has not expired at now.
func (s *Seat) HoldActive(now time.Time) bool {
	return s.Status == SeatStatusHold && s.HoldExpiresAt != nil && s.HoldExpiresAt.After(now)
}
