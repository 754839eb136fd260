package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"

	"go.uber.org/zap"
)

type idempotencyRepository struct {
	db  dbtx
	log *zap.Logger
}

func NewIdempotencyRepository(db dbtx, log *zap.Logger) repository.IdempotencyRepository {
	return &idempotencyRepository{
		db:  db,
		log: log.With(zap.String("repository", "idempotency"), zap.String("driver", "mysql")),
	}
}

func (r *idempotencyRepository) Create(ctx context.Context, record *entity.IdempotencyRecord) error {
	query := "INSERT INTO idempotency_records (`key`, state, request_hash, response_data, status_code, created_at, updated_at, expires_at) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

	_, err := r.db.ExecContext(ctx, query,
		record.Key,
		record.State,
		record.RequestHash,
		record.ResponseData,
		record.StatusCode,
		record.CreatedAt,
		record.UpdatedAt,
		record.ExpiresAt,
	)

	if isDuplicateEntry(err) {
		return fmt.Errorf("create idempotency record %s: %w", record.Key, repository.ErrDuplicateKey)
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
	query := "SELECT `key`, state, request_hash, response_data, status_code, created_at, updated_at, expires_at " +
		"FROM idempotency_records WHERE `key` = ?"

	var record entity.IdempotencyRecord
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&record.Key,
		&record.State,
		&record.RequestHash,
		&record.ResponseData,
		&record.StatusCode,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.ExpiresAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
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
	query := "UPDATE idempotency_records SET state = ?, status_code = ?, response_data = ?, updated_at = ? " +
		"WHERE `key` = ? AND state = 'IN_PROGRESS'"

	result, err := r.db.ExecContext(ctx, query, state, statusCode, data, now, key)
	if err != nil {
		r.log.Error("Failed to finalize idempotency record",
			zap.Error(err),
			zap.String("key", key),
			zap.String("state", string(state)),
		)
		return 0, fmt.Errorf("finalize idempotency record %s: %w", key, err)
	}

	return result.RowsAffected()
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE expires_at < ?`, now)
	if err != nil {
		r.log.Error("Failed to delete expired idempotency records", zap.Error(err))
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	return result.RowsAffected()
}
