package usecase

import (
	"context"
	"fmt"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"
	"seat-reservation/internal/domain"
	"seat-reservation/internal/dto/request"
	"seat-reservation/internal/dto/response"
	"seat-reservation/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SeatService interface {
	SeedSeats(ctx context.Context, req *request.SeedSeatsRequest) (*response.SeedSeatsResponse, error)
	GetSeat(ctx context.Context, seatID string) (*response.SeatDetailResponse, error)
	HoldSeat(ctx context.Context, seatID string) (*response.SeatResponse, error)
}

type seatService struct {
	deps Deps
	log  *zap.Logger
}

func NewSeatService(deps Deps, log *zap.Logger) SeatService {
	return &seatService{
		deps: deps,
		log:  log.With(zap.String("service", "seat")),
	}
}

func (s *seatService) SeedSeats(ctx context.Context, req *request.SeedSeatsRequest) (*response.SeedSeatsResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, domain.ValidationError{Msg: "validation failed: " + utils.FormatValidationErrors(errs), Fields: errs}
	}

	now := s.deps.Clock.Now()
	seats := make([]*entity.Seat, req.Count)
	ids := make([]string, req.Count)
	for i := range seats {
		seats[i] = &entity.Seat{
			Base:   entity.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Status: entity.SeatStatusAvailable,
		}
		ids[i] = seats[i].ID.String()
	}

	if err := s.deps.Repo.Seat.CreateBatch(ctx, seats); err != nil {
		return nil, fmt.Errorf("seed %d seats: %w", req.Count, err)
	}

	s.log.Info("Seats seeded", zap.Int("count", req.Count))
	return &response.SeedSeatsResponse{Created: req.Count, SeatIDs: ids}, nil
}

func (s *seatService) GetSeat(ctx context.Context, seatID string) (*response.SeatDetailResponse, error) {
	id, err := uuid.Parse(seatID)
	if err != nil {
		return nil, domain.ValidationError{Field: "id", Msg: "must be a valid UUID", Err: err}
	}

	seat, err := s.deps.Repo.Seat.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get seat %s: %w", seatID, err)
	}
	if seat == nil {
		return nil, domain.NotFoundError{Resource: "seat", ID: seatID}
	}

	confirmed, err := s.deps.Repo.Booking.CountBySeat(ctx, id, entity.BookingStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("count bookings for seat %s: %w", seatID, err)
	}

	return &response.SeatDetailResponse{
		SeatResponse:      response.SeatToResponse(seat),
		ConfirmedBookings: confirmed,
	}, nil
}

// HoldSeat places a HOLD lasting HOLD_TTL on an AVAILABLE seat, or on one
// whose previous hold already lapsed.
func (s *seatService) HoldSeat(ctx context.Context, seatID string) (*response.SeatResponse, error) {
	id, err := uuid.Parse(seatID)
	if err != nil {
		return nil, domain.ValidationError{Field: "id", Msg: "must be a valid UUID", Err: err}
	}

	cfg := s.deps.Config
	var held *entity.Seat

	err = s.deps.Locker.WithLock(ctx, seatLockKey(id.String()), cfg.Lock.TTL, cfg.Lock.ExtendInterval, func(ctx context.Context) error {
		return s.deps.Repo.WithTx(ctx, func(tx *repository.Repository) error {
			seat, err := tx.Seat.FindByID(ctx, id)
			if err != nil {
				return fmt.Errorf("load seat %s: %w", seatID, err)
			}
			if seat == nil {
				return domain.NotFoundError{Resource: "seat", ID: seatID}
			}

			now := s.deps.Clock.Now()
			switch {
			case seat.Status == entity.SeatStatusBooked:
				return domain.ConflictError{Resource: "seat", Reason: domain.ReasonAlreadyBooked, Msg: "seat is already booked"}
			case seat.HoldActive(now):
				return domain.ConflictError{Resource: "seat", Reason: domain.ReasonOnHold, Msg: "seat is on hold"}
			}

			expected := seat.Version
			expiresAt := now.Add(cfg.Reservation.HoldTTL)
			seat.Status = entity.SeatStatusHold
			seat.HoldExpiresAt = &expiresAt
			seat.UpdatedAt = now

			n, err := tx.Seat.UpdateVersioned(ctx, seat, expected)
			if err != nil {
				return err
			}
			if n == 0 {
				return domain.ConflictError{Resource: "seat", Reason: domain.ReasonVersionMismatch, Msg: "seat was modified concurrently"}
			}

			held = seat
			return nil
		})
	})
	s.deps.Metrics.Reservation("hold", resultLabel(err))
	if err != nil {
		return nil, lockError(err)
	}

	s.log.Info("Seat held",
		zap.String("seat_id", seatID),
		zap.Timep("hold_expires_at", held.HoldExpiresAt),
	)
	res := response.SeatToResponse(held)
	return &res, nil
}
