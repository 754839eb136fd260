package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type IdempotencyRepository interface {
	// Create inserts a new record; ErrDuplicateKey means another caller won the race.
	Create(ctx context.Context, record *entity.IdempotencyRecord) error
	FindByKey(ctx context.Context, key string) (*entity.IdempotencyRecord, error)

	// Finalize moves an IN_PROGRESS record to a terminal state. Records that
	// are no longer IN_PROGRESS are left untouched and 0 is returned.
	Finalize(ctx context.Context, key string, state entity.IdempotencyState, statusCode *int, data []byte, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type idempotencyRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewIdempotencyRepository(db database.Querier, log *zap.Logger) IdempotencyRepository {
	return &idempotencyRepository{
		db:  db,
		log: log.With(zap.String("repository", "idempotency")),
	}
}

func (r *idempotencyRepository) Create(ctx context.Context, record *entity.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (key, state, request_hash, response_data, status_code, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		record.Key,
		record.State,
		record.RequestHash,
		record.ResponseData,
		record.StatusCode,
		record.CreatedAt,
		record.UpdatedAt,
		record.ExpiresAt,
	)

	if isUniqueViolation(err) {
		return fmt.Errorf("create idempotency record %s: %w", record.Key, ErrDuplicateKey)
	}
	if err != nil {
		r.log.Error("Failed to create idempotency record",
			zap.Error(err),
			zap.String("key", record.Key),
		)
		return fmt.Errorf("create idempotency record %s: %w", record.Key, err)
	}

	return nil
}

func (r *idempotencyRepository) FindByKey(ctx context.Context, key string) (*entity.IdempotencyRecord, error) {
	query := `
		SELECT key, state, request_hash, response_data, status_code, created_at, updated_at, expires_at
		FROM idempotency_records
		WHERE key = $1
	`

	var record entity.IdempotencyRecord
	err := r.db.QueryRow(ctx, query, key).Scan(
		&record.Key,
		&record.State,
		&record.RequestHash,
		&record.ResponseData,
		&record.StatusCode,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.ExpiresAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find idempotency record",
			zap.Error(err),
			zap.String("key", key),
		)
		return nil, fmt.Errorf("find idempotency record %s: %w", key, err)
	}

	return &record, nil
}

func (r *idempotencyRepository) Finalize(ctx context.Context, key string, state entity.IdempotencyState, statusCode *int, data []byte, now time.Time) (int64, error) {
	query := `
		UPDATE idempotency_records
		SET state = $2, status_code = $3, response_data = $4, updated_at = $5
		WHERE key = $1 AND state = 'IN_PROGRESS'
	`

	result, err := r.db.Exec(ctx, query, key, state, statusCode, data, now)
	if err != nil {
		r.log.Error("Failed to finalize idempotency record",
			zap.Error(err),
			zap.String("key", key),
			zap.String("state", string(state)),
		)
		return 0, fmt.Errorf("finalize idempotency record %s: %w", key, err)
	}

	return result.RowsAffected(), nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM idempotency_records WHERE expires_at < $1`

	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		r.log.Error("Failed to delete expired idempotency records", zap.Error(err))
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	return result.RowsAffected(), nil
}
