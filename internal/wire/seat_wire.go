package wire

import (
	"seat-reservation/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireSeat(r chi.Router, seatHandler *adaptor.SeatHandler) {
	r.Route("/api/seats", func(r chi.Router) {
		r.Post("/seed", seatHandler.SeedSeats)
		r.Get("/{id}", seatHandler.GetSeat)
		r.Post("/{id}/hold", seatHandler.HoldSeat)
	})
}
