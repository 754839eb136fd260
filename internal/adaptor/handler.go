package adaptor

import (
	"errors"
	"net/http"

	"seat-reservation/internal/domain"
	"seat-reservation/internal/usecase"
	"seat-reservation/pkg/utils"

	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the client-chosen key for POST /api/bookings.
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

type Handler struct {
	Booking *BookingHandler
	Seat    *SeatHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Booking: NewBookingHandler(service.Booking, log),
		Seat:    NewSeatHandler(service.Seat, log),
	}
}

// writeServiceError maps domain errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	if reason, ok := domain.ConflictReason(err); ok {
		log.Warn(operation+" conflict",
			zap.Error(err),
			zap.String("operation", operation),
			zap.String("reason", string(reason)))
		details := map[string]string{"reason": string(reason)}
		if reason == domain.ReasonPayloadMismatch {
			utils.ResponseUnprocessable(w, err.Error(), details)
			return
		}
		utils.ResponseConflict(w, err.Error(), details)
		return
	}

	switch {
	case domain.IsValidation(err):
		log.Warn(operation+" validation failed",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, err.Error(), validationDetails(err))

	case domain.IsNotFound(err):
		log.Warn(operation+" failed - not found",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseNotFound(w, err.Error())

	default:
		log.Error("Failed to "+operation,
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}

func validationDetails(err error) map[string]string {
	var v domain.ValidationError
	if !errors.As(err, &v) {
		return nil
	}
	if len(v.Fields) > 0 {
		return v.Fields
	}
	if v.Field != "" {
		return map[string]string{v.Field: v.Msg}
	}
	return nil
}
