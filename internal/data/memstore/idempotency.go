package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"
)

type idempotencyRepository struct {
	s *Store
	t *txn
}

func cloneRecord(record entity.IdempotencyRecord) entity.IdempotencyRecord {
	record.ResponseData = slices.Clone(record.ResponseData)
	if record.StatusCode != nil {
		code := *record.StatusCode
		record.StatusCode = &code
	}
	return record
}

func (r *idempotencyRepository) Create(ctx context.Context, record *entity.IdempotencyRecord) error {
	return r.s.autocommit(r.t, func(t *txn) error {
		if err := r.s.lockRow(ctx, t, idemLockKey(record.Key)); err != nil {
			return err
		}
		if _, ok := r.s.record(t, record.Key); ok {
			return fmt.Errorf("create idempotency record %s: %w", record.Key, repository.ErrDuplicateKey)
		}

		delete(t.idemDeleted, record.Key)
		t.idem[record.Key] = cloneRecord(*record)
		return nil
	})
}

func (r *idempotencyRepository) FindByKey(_ context.Context, key string) (*entity.IdempotencyRecord, error) {
	var found *entity.IdempotencyRecord
	err := r.s.autocommit(r.t, func(t *txn) error {
		if record, ok := r.s.record(t, key); ok {
			c := cloneRecord(record)
			found = &c
		}
		return nil
	})
	return found, err
}

func (r *idempotencyRepository) Finalize(ctx context.Context, key string, state entity.IdempotencyState, statusCode *int, data []byte, now time.Time) (int64, error) {
	var affected int64
	err := r.s.autocommit(r.t, func(t *txn) error {
		lock := idemLockKey(key)
		_, alreadyHeld := t.held[lock]
		if err := r.s.lockRow(ctx, t, lock); err != nil {
			return err
		}

		record, ok := r.s.record(t, key)
		if !ok || record.State != entity.IdempotencyInProgress {
			if !alreadyHeld {
				r.s.unlockRow(t, lock)
			}
			return nil
		}

		record.State = state
		record.StatusCode = statusCode
		record.ResponseData = data
		record.UpdatedAt = now
		t.idem[key] = cloneRecord(record)
		affected = 1
		return nil
	})
	return affected, err
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := r.s.autocommit(r.t, func(t *txn) error {
		for _, key := range r.s.recordKeys(t) {
			if record, ok := r.s.record(t, key); !ok || !record.ExpiresAt.Before(now) {
				continue
			}

			lock := idemLockKey(key)
			_, alreadyHeld := t.held[lock]
			if err := r.s.lockRow(ctx, t, lock); err != nil {
				return err
			}

			record, ok := r.s.record(t, key)
			if !ok || !record.ExpiresAt.Before(now) {
				if !alreadyHeld {
					r.s.unlockRow(t, lock)
				}
				continue
			}

			delete(t.idem, key)
			t.idemDeleted[key] = true
			deleted++
		}
		return nil
	})
	return deleted, err
}
