package wire

import (
	"seat-reservation/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireBooking(r chi.Router, bookingHandler *adaptor.BookingHandler) {
	r.Route("/api/bookings", func(r chi.Router) {
		// POST /api/bookings - Reserve a seat (requires Idempotency-Key)
		r.Post("/", bookingHandler.ReserveSeat)

		// GET /api/bookings/{id} - Booking with seat snapshot
		r.Get("/{id}", bookingHandler.GetBooking)
	})
}
