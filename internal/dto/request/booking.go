package request

// ReserveSeatRequest is hashed for idempotency, so field names are part of
// the request fingerprint.
type ReserveSeatRequest struct {
	SeatID string `json:"seat_id" validate:"required,uuid"`
	UserID string `json:"user_id" validate:"required,uuid"`
}
