package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func seedSeat(t *testing.T, repo *repository.Repository) *entity.Seat {
	t.Helper()
	seat := &entity.Seat{
		Base:   entity.Base{ID: uuid.New(), CreatedAt: t0, UpdatedAt: t0},
		Status: entity.SeatStatusAvailable,
	}
	if err := repo.Seat.CreateBatch(context.Background(), []*entity.Seat{seat}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return seat
}

func booked(seat entity.Seat) *entity.Seat {
	seat.Status = entity.SeatStatusBooked
	seat.HoldExpiresAt = nil
	return &seat
}

func TestBlockedGuardedUpdateSeesCommittedVersion(t *testing.T) {
	store := New(zap.NewNop())
	repo := store.Repository()
	seat := seedSeat(t, repo)

	ctx := context.Background()
	locked := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)

	go func() {
		firstDone <- store.WithTx(ctx, func(tx *repository.Repository) error {
			n, err := tx.Seat.UpdateVersioned(ctx, booked(*seat), 0)
			if err != nil {
				return err
			}
			if n != 1 {
				return errors.New("first writer should win")
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	second := make(chan int64, 1)
	go func() {
		_ = store.WithTx(ctx, func(tx *repository.Repository) error {
			n, err := tx.Seat.UpdateVersioned(ctx, booked(*seat), 0)
			if err != nil {
				return err
			}
			second <- n
			return nil
		})
	}()

	select {
	case <-second:
		t.Fatal("second writer should block on the row lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first tx: %v", err)
	}

	select {
	case n := <-second:
		if n != 0 {
			t.Fatalf("second writer affected %d rows, want 0", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second writer never resumed")
	}

	got, err := repo.Seat.FindByID(ctx, seat.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Version != 1 || got.Status != entity.SeatStatusBooked {
		t.Fatalf("seat = %+v, want BOOKED at version 1", got)
	}
}

func TestUncommittedWritesAreInvisible(t *testing.T) {
	store := New(zap.NewNop())
	repo := store.Repository()
	seat := seedSeat(t, repo)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Seat.UpdateVersioned(ctx, booked(*seat), 0); err != nil {
			return err
		}

		own, _ := tx.Seat.FindByID(ctx, seat.ID)
		if own.Version != 1 {
			t.Errorf("tx should read its own write, got version %d", own.Version)
		}
		other, _ := repo.Seat.FindByID(ctx, seat.ID)
		if other.Version != 0 {
			t.Errorf("autocommit reader saw uncommitted version %d", other.Version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	after, _ := repo.Seat.FindByID(ctx, seat.ID)
	if after.Version != 1 {
		t.Fatalf("committed version = %d, want 1", after.Version)
	}
}

func TestRollbackDiscardsAllWrites(t *testing.T) {
	store := New(zap.NewNop())
	repo := store.Repository()
	seat := seedSeat(t, repo)
	ctx := context.Background()

	booking := &entity.Booking{
		Base:           entity.Base{ID: uuid.New(), CreatedAt: t0, UpdatedAt: t0},
		SeatID:         seat.ID,
		UserID:         uuid.New(),
		Status:         entity.BookingStatusConfirmed,
		IdempotencyKey: "k1",
	}

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Booking.Create(ctx, booking); err != nil {
			return err
		}
		if _, err := tx.Seat.UpdateVersioned(ctx, booked(*seat), 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	if got, _ := repo.Booking.FindByID(ctx, booking.ID); got != nil {
		t.Fatalf("booking survived rollback: %+v", got)
	}
	if got, _ := repo.Seat.FindByID(ctx, seat.ID); got.Version != 0 || got.Status != entity.SeatStatusAvailable {
		t.Fatalf("seat changed by rolled back tx: %+v", got)
	}

	// The key is free again after rollback.
	if err := repo.Booking.Create(ctx, booking); err != nil {
		t.Fatalf("Create after rollback: %v", err)
	}
}

func TestBookingKeyIsUnique(t *testing.T) {
	store := New(zap.NewNop())
	repo := store.Repository()
	seat := seedSeat(t, repo)
	ctx := context.Background()

	newBooking := func() *entity.Booking {
		return &entity.Booking{
			Base:           entity.Base{ID: uuid.New(), CreatedAt: t0, UpdatedAt: t0},
			SeatID:         seat.ID,
			UserID:         uuid.New(),
			Status:         entity.BookingStatusConfirmed,
			IdempotencyKey: "same-key",
		}
	}

	if err := repo.Booking.Create(ctx, newBooking()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err := repo.Booking.Create(ctx, newBooking())
	if !errors.Is(err, repository.ErrDuplicateKey) {
		t.Fatalf("second Create error = %v, want ErrDuplicateKey", err)
	}

	n, err := repo.Booking.CountBySeat(ctx, seat.ID, entity.BookingStatusConfirmed)
	if err != nil || n != 1 {
		t.Fatalf("CountBySeat = %d, %v; want 1", n, err)
	}
}

func TestIdempotencyCreateAndFinalize(t *testing.T) {
	store := New(zap.NewNop())
	repo := store.Repository()
	ctx := context.Background()

	record := &entity.IdempotencyRecord{
		Key:         "k1",
		State:       entity.IdempotencyInProgress,
		RequestHash: "abc",
		CreatedAt:   t0,
		UpdatedAt:   t0,
		ExpiresAt:   t0.Add(time.Hour),
	}
	if err := repo.Idempotency.Create(ctx, record); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Idempotency.Create(ctx, record); !errors.Is(err, repository.ErrDuplicateKey) {
		t.Fatalf("duplicate Create error = %v", err)
	}

	code := 201
	n, err := repo.Idempotency.Finalize(ctx, "k1", entity.IdempotencySuccess, &code, []byte(`{}`), t0)
	if err != nil || n != 1 {
		t.Fatalf("Finalize = %d, %v", n, err)
	}
	n, err = repo.Idempotency.Finalize(ctx, "k1", entity.IdempotencyFailed, nil, nil, t0)
	if err != nil || n != 0 {
		t.Fatalf("terminal record finalized again: %d, %v", n, err)
	}

	got, _ := repo.Idempotency.FindByKey(ctx, "k1")
	if got.State != entity.IdempotencySuccess || got.StatusCode == nil || *got.StatusCode != 201 {
		t.Fatalf("record = %+v", got)
	}

	deleted, err := repo.Idempotency.DeleteExpired(ctx, t0.Add(2*time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteExpired = %d, %v", deleted, err)
	}
	if got, _ := repo.Idempotency.FindByKey(ctx, "k1"); got != nil {
		t.Fatalf("record not deleted: %+v", got)
	}
}

func TestReaperBulkUpdates(t *testing.T) {
	store := New(zap.NewNop())
	repo := store.Repository()
	ctx := context.Background()

	held := seedSeat(t, repo)
	stillHeld := seedSeat(t, repo)
	bookedSeat := seedSeat(t, repo)

	past := t0.Add(-time.Second)
	future := t0.Add(time.Hour)
	hold := func(seat *entity.Seat, until time.Time) {
		s := *seat
		s.Status = entity.SeatStatusHold
		s.HoldExpiresAt = &until
		if n, err := repo.Seat.UpdateVersioned(ctx, &s, 0); err != nil || n != 1 {
			t.Fatalf("hold: %d, %v", n, err)
		}
	}
	hold(held, past)
	hold(stillHeld, future)

	if n, err := repo.Seat.UpdateVersioned(ctx, booked(*bookedSeat), 0); err != nil || n != 1 {
		t.Fatalf("book: %d, %v", n, err)
	}
	booking := &entity.Booking{
		Base:           entity.Base{ID: uuid.New(), CreatedAt: t0, UpdatedAt: t0},
		SeatID:         bookedSeat.ID,
		UserID:         uuid.New(),
		Status:         entity.BookingStatusConfirmed,
		IdempotencyKey: "k-expire",
		ExpiresAt:      &past,
	}
	if err := repo.Booking.Create(ctx, booking); err != nil {
		t.Fatalf("Create booking: %v", err)
	}

	released, err := repo.Seat.ReleaseExpiredHolds(ctx, t0)
	if err != nil || released != 1 {
		t.Fatalf("ReleaseExpiredHolds = %d, %v", released, err)
	}
	got, _ := repo.Seat.FindByID(ctx, held.ID)
	if got.Status != entity.SeatStatusAvailable || got.HoldExpiresAt != nil || got.Version != 2 {
		t.Fatalf("expired hold not released: %+v", got)
	}
	if got, _ := repo.Seat.FindByID(ctx, stillHeld.ID); got.Status != entity.SeatStatusHold {
		t.Fatalf("active hold released: %+v", got)
	}

	err = store.WithTx(ctx, func(tx *repository.Repository) error {
		expired, err := tx.Booking.ExpireDue(ctx, t0)
		if err != nil {
			return err
		}
		if len(expired) != 1 || expired[0].ID != booking.ID {
			t.Errorf("ExpireDue returned %+v", expired)
		}
		n, err := tx.Seat.ReleaseBooked(ctx, []uuid.UUID{bookedSeat.ID, bookedSeat.ID}, t0)
		if n != 1 {
			t.Errorf("ReleaseBooked = %d", n)
		}
		return err
	})
	if err != nil {
		t.Fatalf("expire tx: %v", err)
	}

	if got, _ := repo.Booking.FindByID(ctx, booking.ID); got.Status != entity.BookingStatusExpired {
		t.Fatalf("booking status = %s", got.Status)
	}
	if got, _ := repo.Seat.FindByID(ctx, bookedSeat.ID); got.Status != entity.SeatStatusAvailable || got.Version != 2 {
		t.Fatalf("booked seat not released: %+v", got)
	}
}

func TestLockWaitHonoursContext(t *testing.T) {
	store := New(zap.NewNop())
	repo := store.Repository()
	seat := seedSeat(t, repo)

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithTx(context.Background(), func(tx *repository.Repository) error {
			_, err := tx.Seat.UpdateVersioned(context.Background(), booked(*seat), 0)
			close(locked)
			<-release
			return err
		})
	}()
	<-locked
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := repo.Seat.UpdateVersioned(ctx, booked(*seat), 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}
