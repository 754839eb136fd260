package response

import (
	"time"

	"seat-reservation/internal/data/entity"
)

type SeatResponse struct {
	ID            string            `json:"id"`
	Status        entity.SeatStatus `json:"status"`
	Version       int64             `json:"version"`
	HoldExpiresAt *time.Time        `json:"hold_expires_at,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SeatDetailResponse adds the seat's confirmed booking count. It stays at
// most 1 while bookings are only ever made through the reserve flow.
type SeatDetailResponse struct {
	SeatResponse
	ConfirmedBookings int64 `json:"confirmed_bookings"`
}

type SeedSeatsResponse struct {
	Created int      `json:"created"`
	SeatIDs []string `json:"seat_ids"`
}

func SeatToResponse(s *entity.Seat) SeatResponse {
	return SeatResponse{
		ID:            s.ID.String(),
		Status:        s.Status,
		Version:       s.Version,
		HoldExpiresAt: s.HoldExpiresAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
