package response

import (
	"time"

	"seat-reservation/internal/data/entity"
)

type BookingResponse struct {
	ID             string               `json:"id"`
	SeatID         string               `json:"seat_id"`
	UserID         string               `json:"user_id"`
	Status         entity.BookingStatus `json:"status"`
	IdempotencyKey string               `json:"idempotency_key"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

type BookingDetailResponse struct {
	BookingResponse
	Seat *SeatResponse `json:"seat,omitempty"`
}

func BookingToResponse(b *entity.Booking) BookingResponse {
	return BookingResponse{
		ID:             b.ID.String(),
		SeatID:         b.SeatID.String(),
		UserID:         b.UserID.String(),
		Status:         b.Status,
		IdempotencyKey: b.IdempotencyKey,
		ExpiresAt:      b.ExpiresAt,
		CreatedAt:      b.CreatedAt,
	}
}
