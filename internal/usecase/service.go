package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"seat-reservation/internal/data/repository"
	"seat-reservation/internal/domain"
	"seat-reservation/internal/event"
	"seat-reservation/internal/idempotency"
	"seat-reservation/pkg/clock"
	"seat-reservation/pkg/metrics"
	"seat-reservation/pkg/redlock"
	"seat-reservation/pkg/utils"

	"go.uber.org/zap"
)

// Locker runs body while holding a named distributed lock.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl, extendInterval time.Duration, body func(ctx context.Context) error) error
}

type Service struct {
	Booking BookingService
	Seat    SeatService
}

type Deps struct {
	Repo      *repository.Repository
	Locker    Locker
	Publisher event.Publisher
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Config    *utils.Config
}

func NewService(deps Deps, log *zap.Logger) *Service {
	if deps.Publisher == nil {
		deps.Publisher = event.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}

	idem := idempotency.New(deps.Repo.Idempotency, deps.Config.Reservation.IdempotencyTTL, deps.Clock, log, deps.Metrics)

	return &Service{
		Booking: NewBookingService(deps, idem, log),
		Seat:    NewSeatService(deps, log),
	}
}

func seatLockKey(id string) string { return "seat:" + id }

// lockError turns an exhausted lock acquisition into a conflict the caller
// can retry.
func lockError(err error) error {
	if errors.Is(err, redlock.ErrLockUnavailable) {
		return domain.ConflictError{
			Resource: "seat",
			Reason:   domain.ReasonLockUnavailable,
			Msg:      "seat is busy, retry shortly",
			Err:      err,
		}
	}
	return err
}

// resultLabel maps an operation error onto a metrics label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if reason, ok := domain.ConflictReason(err); ok {
		return strings.ToLower(string(reason))
	}
	switch {
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
