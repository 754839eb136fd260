package memstore

import (
	"context"
	"fmt"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"

	"github.com/google/uuid"
)

type bookingRepository struct {
	s *Store
	t *txn
}

func cloneBooking(booking entity.Booking) entity.Booking {
	if booking.ExpiresAt != nil {
		at := *booking.ExpiresAt
		booking.ExpiresAt = &at
	}
	return booking
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	return r.s.autocommit(r.t, func(t *txn) error {
		if err := r.s.lockRow(ctx, t, bookingKeyLock(booking.IdempotencyKey)); err != nil {
			return err
		}
		if r.s.bookingKeyTaken(t, booking.IdempotencyKey) {
			return fmt.Errorf("create booking for key %s: %w", booking.IdempotencyKey, repository.ErrDuplicateKey)
		}
		if _, ok := r.s.seat(t, booking.SeatID); !ok {
			return fmt.Errorf("create booking %s: seat %s does not exist", booking.ID, booking.SeatID)
		}
		if err := r.s.lockRow(ctx, t, bookingLockKey(booking.ID)); err != nil {
			return err
		}
		if _, ok := r.s.booking(t, booking.ID); ok {
			return fmt.Errorf("create booking %s: %w", booking.ID, repository.ErrDuplicateKey)
		}

		t.bookings[booking.ID] = cloneBooking(*booking)
		t.bookingKeys[booking.IdempotencyKey] = booking.ID
		return nil
	})
}

func (r *bookingRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	var found *entity.Booking
	err := r.s.autocommit(r.t, func(t *txn) error {
		if booking, ok := r.s.booking(t, id); ok {
			c := cloneBooking(booking)
			found = &c
		}
		return nil
	})
	return found, err
}

func (r *bookingRepository) CountBySeat(_ context.Context, seatID uuid.UUID, status entity.BookingStatus) (int64, error) {
	var count int64
	err := r.s.autocommit(r.t, func(t *txn) error {
		for _, id := range r.s.bookingIDs(t) {
			booking, _ := r.s.booking(t, id)
			if booking.SeatID == seatID && booking.Status == status {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *bookingRepository) ExpireDue(ctx context.Context, now time.Time) ([]*entity.Booking, error) {
	due := func(b entity.Booking) bool {
		return b.Status == entity.BookingStatusConfirmed && b.ExpiresAt != nil && b.ExpiresAt.Before(now)
	}

	var expired []*entity.Booking
	err := r.s.autocommit(r.t, func(t *txn) error {
		for _, id := range r.s.bookingIDs(t) {
			if booking, _ := r.s.booking(t, id); !due(booking) {
				continue
			}

			key := bookingLockKey(id)
			_, alreadyHeld := t.held[key]
			if err := r.s.lockRow(ctx, t, key); err != nil {
				return err
			}

			booking, ok := r.s.booking(t, id)
			if !ok || !due(booking) {
				if !alreadyHeld {
					r.s.unlockRow(t, key)
				}
				continue
			}

			booking.Status = entity.BookingStatusExpired
			booking.UpdatedAt = now
			t.bookings[id] = booking

			c := cloneBooking(booking)
			expired = append(expired, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
