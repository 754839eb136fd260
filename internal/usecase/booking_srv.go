package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"
	"seat-reservation/internal/domain"
	"seat-reservation/internal/dto/request"
	"seat-reservation/internal/dto/response"
	"seat-reservation/internal/event"
	"seat-reservation/internal/idempotency"
	"seat-reservation/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService interface {
	// ReserveSeat books a seat at most once per idempotency key.
	ReserveSeat(ctx context.Context, idempotencyKey string, req *request.ReserveSeatRequest) (*ReserveResult, error)
	GetBooking(ctx context.Context, bookingID string) (*response.BookingDetailResponse, error)
}

// ReserveResult carries the stored response so replays are byte-identical.
type ReserveResult struct {
	Replayed   bool
	StatusCode int
	Body       json.RawMessage
}

type bookingService struct {
	deps Deps
	idem *idempotency.Coordinator
	log  *zap.Logger
}

func NewBookingService(deps Deps, idem *idempotency.Coordinator, log *zap.Logger) BookingService {
	return &bookingService{
		deps: deps,
		idem: idem,
		log:  log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) ReserveSeat(ctx context.Context, idempotencyKey string, req *request.ReserveSeatRequest) (*ReserveResult, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Reserve seat validation failed", zap.Any("errors", errs))
		return nil, domain.ValidationError{Msg: "validation failed: " + utils.FormatValidationErrors(errs), Fields: errs}
	}

	seatID, err := uuid.Parse(req.SeatID)
	if err != nil {
		return nil, domain.ValidationError{Field: "seat_id", Msg: "must be a valid UUID", Err: err}
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, domain.ValidationError{Field: "user_id", Msg: "must be a valid UUID", Err: err}
	}

	outcome, err := s.idem.CheckOrCreate(ctx, idempotencyKey, req, func(ctx context.Context) (*idempotency.Result, error) {
		booking, err := s.reserve(ctx, idempotencyKey, seatID, userID)
		if err != nil {
			return nil, err
		}
		return &idempotency.Result{StatusCode: http.StatusCreated, Data: response.BookingToResponse(booking)}, nil
	})
	s.deps.Metrics.Reservation("reserve", resultLabel(err))
	if err != nil {
		return nil, err
	}

	return &ReserveResult{
		Replayed:   outcome.Replayed,
		StatusCode: outcome.StatusCode,
		Body:       outcome.Data,
	}, nil
}

// reserve books seatID under the seat lock in one read-committed transaction.
// The booking row goes in first; the version-guarded seat update then decides
// whether this call won.
func (s *bookingService) reserve(ctx context.Context, key string, seatID, userID uuid.UUID) (*entity.Booking, error) {
	cfg := s.deps.Config
	var booking *entity.Booking

	err := s.deps.Locker.WithLock(ctx, seatLockKey(seatID.String()), cfg.Lock.TTL, cfg.Lock.ExtendInterval, func(ctx context.Context) error {
		return s.deps.Repo.WithTx(ctx, func(tx *repository.Repository) error {
			seat, err := tx.Seat.FindByID(ctx, seatID)
			if err != nil {
				return fmt.Errorf("load seat %s: %w", seatID, err)
			}
			if seat == nil {
				return domain.NotFoundError{Resource: "seat", ID: seatID.String()}
			}

			now := s.deps.Clock.Now()
			switch {
			case seat.Status == entity.SeatStatusBooked:
				return domain.ConflictError{Resource: "seat", Reason: domain.ReasonAlreadyBooked, Msg: "seat is already booked"}
			case seat.HoldActive(now):
				return domain.ConflictError{Resource: "seat", Reason: domain.ReasonOnHold, Msg: "seat is on hold"}
			}

			b := &entity.Booking{
				Base:           entity.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
				SeatID:         seatID,
				UserID:         userID,
				Status:         entity.BookingStatusConfirmed,
				IdempotencyKey: key,
			}
			if ttl := cfg.Reservation.BookingTTL; ttl > 0 {
				expiresAt := now.Add(ttl)
				b.ExpiresAt = &expiresAt
			}

			if err := tx.Booking.Create(ctx, b); err != nil {
				if errors.Is(err, repository.ErrDuplicateKey) {
					return domain.ConflictError{Resource: "booking", Reason: domain.ReasonDuplicateKey, Msg: "idempotency key already has a booking", Err: err}
				}
				return err
			}

			expected := seat.Version
			seat.Status = entity.SeatStatusBooked
			seat.HoldExpiresAt = nil
			seat.UpdatedAt = now

			n, err := tx.Seat.UpdateVersioned(ctx, seat, expected)
			if err != nil {
				return err
			}
			if n == 0 {
				s.log.Warn("Seat version changed during reservation",
					zap.String("seat_id", seatID.String()),
					zap.Int64("expected_version", expected),
				)
				return domain.ConflictError{Resource: "seat", Reason: domain.ReasonVersionMismatch, Msg: "seat was modified concurrently"}
			}

			booking = b
			return nil
		})
	})
	if err != nil {
		return nil, lockError(err)
	}

	s.log.Info("Seat reserved",
		zap.String("booking_id", booking.ID.String()),
		zap.String("seat_id", seatID.String()),
		zap.String("user_id", userID.String()),
	)
	s.publish(ctx, event.NewBookingEvent(event.BookingConfirmed, booking, booking.CreatedAt))

	return booking, nil
}

func (s *bookingService) publish(ctx context.Context, e event.Event) {
	err := s.deps.Publisher.Publish(context.WithoutCancel(ctx), e)
	s.deps.Metrics.EventPublished(string(e.Type), err)
	if err != nil {
		s.log.Warn("Failed to publish event",
			zap.Error(err),
			zap.String("type", string(e.Type)),
			zap.String("booking_id", e.BookingID),
		)
	}
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*response.BookingDetailResponse, error) {
	id, err := uuid.Parse(bookingID)
	if err != nil {
		return nil, domain.ValidationError{Field: "id", Msg: "must be a valid UUID", Err: err}
	}

	booking, err := s.deps.Repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", bookingID, err)
	}
	if booking == nil {
		return nil, domain.NotFoundError{Resource: "booking", ID: bookingID}
	}

	detail := &response.BookingDetailResponse{BookingResponse: response.BookingToResponse(booking)}

	seat, err := s.deps.Repo.Seat.FindByID(ctx, booking.SeatID)
	if err != nil {
		return nil, fmt.Errorf("get seat for booking %s: %w", bookingID, err)
	}
	if seat != nil {
		sr := response.SeatToResponse(seat)
		detail.Seat = &sr
	}

	return detail, nil
}
