package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"

	"github.com/google/uuid"
)

type seatRepository struct {
	s *Store
	t *txn
}

func cloneSeat(seat entity.Seat) entity.Seat {
	if seat.HoldExpiresAt != nil {
		at := *seat.HoldExpiresAt
		seat.HoldExpiresAt = &at
	}
	return seat
}

func (r *seatRepository) CreateBatch(ctx context.Context, seats []*entity.Seat) error {
	return r.s.autocommit(r.t, func(t *txn) error {
		for _, seat := range seats {
			if err := r.s.lockRow(ctx, t, seatLockKey(seat.ID)); err != nil {
				return err
			}
			if _, ok := r.s.seat(t, seat.ID); ok {
				return fmt.Errorf("failed to create batch seats: seat %s: %w", seat.ID, repository.ErrDuplicateKey)
			}
			t.seats[seat.ID] = cloneSeat(*seat)
		}
		return nil
	})
}

func (r *seatRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.Seat, error) {
	var found *entity.Seat
	err := r.s.autocommit(r.t, func(t *txn) error {
		if seat, ok := r.s.seat(t, id); ok {
			c := cloneSeat(seat)
			found = &c
		}
		return nil
	})
	return found, err
}

func (r *seatRepository) UpdateVersioned(ctx context.Context, seat *entity.Seat, expectedVersion int64) (int64, error) {
	var affected int64
	err := r.s.autocommit(r.t, func(t *txn) error {
		key := seatLockKey(seat.ID)
		_, alreadyHeld := t.held[key]
		if err := r.s.lockRow(ctx, t, key); err != nil {
			return err
		}

		cur, ok := r.s.seat(t, seat.ID)
		if !ok || cur.Version != expectedVersion {
			if !alreadyHeld {
				r.s.unlockRow(t, key)
			}
			return nil
		}

		cur.Status = seat.Status
		cur.HoldExpiresAt = seat.HoldExpiresAt
		cur.Version = expectedVersion + 1
		cur.UpdatedAt = seat.UpdatedAt
		t.seats[seat.ID] = cloneSeat(cur)
		affected = 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		seat.Version = expectedVersion + 1
	}
	return affected, nil
}

func (r *seatRepository) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	expired := func(seat entity.Seat) bool {
		return seat.Status == entity.SeatStatusHold && seat.HoldExpiresAt != nil && seat.HoldExpiresAt.Before(now)
	}

	var released int64
	err := r.s.autocommit(r.t, func(t *txn) error {
		n, err := r.releaseWhere(ctx, t, r.s.seatIDs(t), expired, now)
		released = n
		return err
	})
	return released, err
}

func (r *seatRepository) ReleaseBooked(ctx context.Context, seatIDs []uuid.UUID, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	ids := slices.Clone(seatIDs)
	sortUUIDs(ids)
	ids = slices.Compact(ids)

	booked := func(seat entity.Seat) bool { return seat.Status == entity.SeatStatusBooked }

	var released int64
	err := r.s.autocommit(r.t, func(t *txn) error {
		n, err := r.releaseWhere(ctx, t, ids, booked, now)
		released = n
		return err
	})
	return released, err
}

// releaseWhere resets every seat in ids matching pred to AVAILABLE. Each
// candidate is re-checked after its row lock is acquired.
func (r *seatRepository) releaseWhere(ctx context.Context, t *txn, ids []uuid.UUID, pred func(entity.Seat) bool, now time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if seat, ok := r.s.seat(t, id); !ok || !pred(seat) {
			continue
		}

		key := seatLockKey(id)
		_, alreadyHeld := t.held[key]
		if err := r.s.lockRow(ctx, t, key); err != nil {
			return n, err
		}

		seat, ok := r.s.seat(t, id)
		if !ok || !pred(seat) {
			if !alreadyHeld {
				r.s.unlockRow(t, key)
			}
			continue
		}

		seat.Status = entity.SeatStatusAvailable
		seat.HoldExpiresAt = nil
		seat.Version++
		seat.UpdatedAt = now
		t.seats[id] = seat
		n++
	}
	return n, nil
}
