package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type seatRepository struct {
	db  dbtx
	log *zap.Logger
}

func NewSeatRepository(db dbtx, log *zap.Logger) repository.SeatRepository {
	return &seatRepository{
		db:  db,
		log: log.With(zap.String("repository", "seat"), zap.String("driver", "mysql")),
	}
}

const seatBatchSize = 1000

func (r *seatRepository) CreateBatch(ctx context.Context, seats []*entity.Seat) error {
	for start := 0; start < len(seats); start += seatBatchSize {
		end := min(start+seatBatchSize, len(seats))
		chunk := seats[start:end]

		query := `INSERT INTO seats (id, status, version, hold_expires_at, created_at, updated_at) VALUES `
		args := make([]any, 0, len(chunk)*6)
		for i, seat := range chunk {
			if i > 0 {
				query += ", "
			}
			query += "(?, ?, ?, ?, ?, ?)"
			args = append(args, seat.ID, seat.Status, seat.Version, seat.HoldExpiresAt, seat.CreatedAt, seat.UpdatedAt)
		}

		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.log.Error("Failed to create batch seats",
				zap.Error(err),
				zap.Int("count", len(chunk)),
			)
			return fmt.Errorf("failed to create batch seats: %w", err)
		}
	}
	return nil
}

func (r *seatRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Seat, error) {
	query := `
		SELECT id, status, version, hold_expires_at, created_at, updated_at
		FROM seats
		WHERE id = ?
	`

	var seat entity.Seat
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&seat.ID,
		&seat.Status,
		&seat.Version,
		&seat.HoldExpiresAt,
		&seat.CreatedAt,
		&seat.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
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
		SET status = ?, hold_expires_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		seat.Status,
		seat.HoldExpiresAt,
		seat.UpdatedAt,
		seat.ID,
		expectedVersion,
	)
	if err != nil {
		r.log.Error("Failed to update seat",
			zap.Error(err),
			zap.String("seat_id", seat.ID.String()),
			zap.Int64("expected_version", expectedVersion),
		)
		return 0, fmt.Errorf("failed to update seat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		seat.Version = expectedVersion + 1
	}
	return affected, nil
}

func (r *seatRepository) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE seats
		SET status = 'AVAILABLE', hold_expires_at = NULL, version = version + 1, updated_at = ?
		WHERE status = 'HOLD' AND hold_expires_at < ?
	`

	result, err := r.db.ExecContext(ctx, query, now, now)
	if err != nil {
		r.log.Error("Failed to release expired holds", zap.Error(err))
		return 0, fmt.Errorf("failed to release expired holds: %w", err)
	}
	return result.RowsAffected()
}

func (r *seatRepository) ReleaseBooked(ctx context.Context, seatIDs []uuid.UUID, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		UPDATE seats
		SET status = 'AVAILABLE', hold_expires_at = NULL, version = version + 1, updated_at = ?
		WHERE status = 'BOOKED' AND id IN (%s)
	`, placeholders(len(seatIDs)))

	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, now)
	for _, id := range seatIDs {
		args = append(args, id)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to release booked seats",
			zap.Error(err),
			zap.Int("seat_count", len(seatIDs)),
		)
		return 0, fmt.Errorf("failed to release booked seats: %w", err)
	}
	return result.RowsAffected()
}
