package adaptor

import (
	"encoding/json"
	"net/http"

	"seat-reservation/internal/dto/request"
	"seat-reservation/internal/usecase"
	"seat-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SeatHandler struct {
	service usecase.SeatService
	log     *zap.Logger
}

func NewSeatHandler(service usecase.SeatService, log *zap.Logger) *SeatHandler {
	return &SeatHandler{
		service: service,
		log:     log.With(zap.String("handler", "seat")),
	}
}

// SeedSeats handles POST /api/seats/seed
func (h *SeatHandler) SeedSeats(w http.ResponseWriter, r *http.Request) {
	var req request.SeedSeatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	res, err := h.service.SeedSeats(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "seed seats")
		return
	}

	utils.ResponseCreated(w, "success", res)
}

// GetSeat handles GET /api/seats/{id}
func (h *SeatHandler) GetSeat(w http.ResponseWriter, r *http.Request) {
	seat, err := h.service.GetSeat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "get seat")
		return
	}

	utils.ResponseSuccess(w, "success", seat)
}

// HoldSeat handles POST /api/seats/{id}/hold
func (h *SeatHandler) HoldSeat(w http.ResponseWriter, r *http.Request) {
	seat, err := h.service.HoldSeat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "hold seat")
		return
	}

	utils.ResponseSuccess(w, "success", seat)
}
