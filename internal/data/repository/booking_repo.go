package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type BookingRepository interface {
	// Create returns ErrDuplicateKey when the idempotency key was already used.
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	CountBySeat(ctx context.Context, seatID uuid.UUID, status entity.BookingStatus) (int64, error)

	// ExpireDue marks CONFIRMED bookings whose expires_at is before now as
	// EXPIRED and returns them.
	ExpireDue(ctx context.Context, now time.Time) ([]*entity.Booking, error)
}

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, seat_id, user_id, status, idempotency_key, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.SeatID,
		booking.UserID,
		booking.Status,
		booking.IdempotencyKey,
		booking.ExpiresAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if isUniqueViolation(err) {
		return fmt.Errorf("create booking for key %s: %w", booking.IdempotencyKey, ErrDuplicateKey)
	}
	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("seat_id", booking.SeatID.String()),
			zap.String("user_id", booking.UserID.String()),
		)
		return fmt.Errorf("create booking %s: %w", booking.ID.String(), err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `
		SELECT id, seat_id, user_id, status, idempotency_key, expires_at, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	var booking entity.Booking
	err := r.db.QueryRow(ctx, query, id).Scan(
		&booking.ID,
		&booking.SeatID,
		&booking.UserID,
		&booking.Status,
		&booking.IdempotencyKey,
		&booking.ExpiresAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return &booking, nil
}

func (r *bookingRepository) CountBySeat(ctx context.Context, seatID uuid.UUID, status entity.BookingStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE seat_id = $1 AND status = $2`

	var count int64
	if err := r.db.QueryRow(ctx, query, seatID, status).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings by seat",
			zap.Error(err),
			zap.String("seat_id", seatID.String()),
		)
		return 0, fmt.Errorf("count bookings by seat %s: %w", seatID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) ExpireDue(ctx context.Context, now time.Time) ([]*entity.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'CONFIRMED' AND expires_at IS NOT NULL AND expires_at < $1
		RETURNING id, seat_id, user_id, status, idempotency_key, expires_at, created_at, updated_at
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		r.log.Error("Failed to expire bookings", zap.Error(err))
		return nil, fmt.Errorf("expire bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		var booking entity.Booking
		err := rows.Scan(
			&booking.ID,
			&booking.SeatID,
			&booking.UserID,
			&booking.Status,
			&booking.IdempotencyKey,
			&booking.ExpiresAt,
			&booking.CreatedAt,
			&booking.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, &booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired bookings: %w", err)
	}

	return bookings, nil
}
