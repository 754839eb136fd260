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

type SeatRepository interface {
	CreateBatch(ctx context.Context, seats []*entity.Seat) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Seat, error)

	// UpdateVersioned writes status and hold expiry only if the stored version
	// still equals expectedVersion, bumping it by one. It returns the number of
	// affected rows; zero means another writer got there first.
	UpdateVersioned(ctx context.Context, seat *entity.Seat, expectedVersion int64) (int64, error)

	// Reaper bulk updates
	ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error)
	ReleaseBooked(ctx context.Context, seatIDs []uuid.UUID, now time.Time) (int64, error)
}

type seatRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewSeatRepository(db database.Querier, log *zap.Logger) SeatRepository {
	return &seatRepository{
		db:  db,
		log: log.With(zap.String("repository", "seat")),
	}
}

// seatBatchSize keeps each INSERT well under the 65535 bind parameter limit.
const seatBatchSize = 1000

func (r *seatRepository) CreateBatch(ctx context.Context, seats []*entity.Seat) error {
	for start := 0; start < len(seats); start += seatBatchSize {
		end := min(start+seatBatchSize, len(seats))
		if err := r.insertChunk(ctx, seats[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *seatRepository) insertChunk(ctx context.Context, seats []*entity.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	query := `INSERT INTO seats (id, status, version, hold_expires_at, created_at, updated_at) VALUES `
	args := make([]any, 0, len(seats)*6)

	for i, seat := range seats {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			i*6+1, i*6+2, i*6+3, i*6+4, i*6+5, i*6+6)

		args = append(args,
			seat.ID,
			seat.Status,
			seat.Version,
			seat.HoldExpiresAt,
			seat.CreatedAt,
			seat.UpdatedAt,
		)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.Error("Failed to create batch seats",
			zap.Error(err),
			zap.Int("count", len(seats)),
		)
		return fmt.Errorf("failed to create batch seats: %w", err)
	}

	return nil
}

func (r *seatRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Seat, error) {
	query := `
		SELECT id, status, version, hold_expires_at, created_at, updated_at
		FROM seats
		WHERE id = $1
	`

	var seat entity.Seat
	err := r.db.QueryRow(ctx, query, id).Scan(
		&seat.ID,
		&seat.Status,
		&seat.Version,
		&seat.HoldExpiresAt,
		&seat.CreatedAt,
		&seat.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find seat by ID",
			zap.Error(err),
			zap.String("seat_id", id.String()),
		)
		return nil, fmt.Errorf("failed to find seat: %w", err)
	}

	return &seat, nil
}

func (r *seatRepository) UpdateVersioned(ctx context.Context, seat *entity.Seat, expectedVersion int64) (int64, error) {
	query := `
		UPDATE seats
		SET status = $3, hold_expires_at = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.Exec(ctx, query,
		seat.ID,
		expectedVersion,
		seat.Status,
		seat.HoldExpiresAt,
		seat.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to update seat",
			zap.Error(err),
			zap.String("seat_id", seat.ID.String()),
			zap.Int64("expected_version", expectedVersion),
		)
		return 0, fmt.Errorf("failed to update seat: %w", err)
	}

	affected := result.RowsAffected()
	if affected > 0 {
		seat.Version = expectedVersion + 1
	}
	return affected, nil
}

func (r *seatRepository) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE seats
		SET status = 'AVAILABLE', hold_expires_at = NULL, version = version + 1, updated_at = $1
		WHERE status = 'HOLD' AND hold_expires_at < $1
	`

	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		r.log.Error("Failed to release expired holds", zap.Error(err))
		return 0, fmt.Errorf("failed to release expired holds: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *seatRepository) ReleaseBooked(ctx context.Context, seatIDs []uuid.UUID, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE seats
		SET status = 'AVAILABLE', hold_expires_at = NULL, version = version + 1, updated_at = $2
		WHERE id = ANY($1) AND status = 'BOOKED'
	`

	result, err := r.db.Exec(ctx, query, seatIDs, now)
	if err != nil {
		r.log.Error("Failed to release booked seats",
			zap.Error(err),
			zap.Int("seat_count", len(seatIDs)),
		)
		return 0, fmt.Errorf("failed to release booked seats: %w", err)
	}
	return result.RowsAffected(), nil
}
