package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/memstore"
	"seat-reservation/internal/data/repository"
	"seat-reservation/internal/event"
	"seat-reservation/pkg/clock"
	"seat-reservation/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type world struct {
	repo  *repository.Repository
	clk   *clock.Manual
	pub   *recordingPublisher
	held  *entity.Seat
	taken *entity.Seat
	bkg   *entity.Booking
}

// newWorld seeds a held seat, a booked seat with an expiring booking and an
// idempotency record, all due at t0+1m.
func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	repo := memstore.New(zap.NewNop()).Repository()
	due := t0.Add(time.Minute)

	held := &entity.Seat{Base: entity.Base{ID: uuid.New(), CreatedAt: t0, UpdatedAt: t0}, Status: entity.SeatStatusAvailable}
	taken := &entity.Seat{Base: entity.Base{ID: uuid.New(), CreatedAt: t0, UpdatedAt: t0}, Status: entity.SeatStatusAvailable}
	if err := repo.Seat.CreateBatch(ctx, []*entity.Seat{held, taken}); err != nil {
		t.Fatal(err)
	}

	held.Status = entity.SeatStatusHold
	held.HoldExpiresAt = &due
	if n, err := repo.Seat.UpdateVersioned(ctx, held, 0); err != nil || n != 1 {
		t.Fatalf("hold: %d, %v", n, err)
	}
	taken.Status = entity.SeatStatusBooked
	if n, err := repo.Seat.UpdateVersioned(ctx, taken, 0); err != nil || n != 1 {
		t.Fatalf("book: %d, %v", n, err)
	}

	bkg := &entity.Booking{
		Base:           entity.Base{ID: uuid.New(), CreatedAt: t0, UpdatedAt: t0},
		SeatID:         taken.ID,
		UserID:         uuid.New(),
		Status:         entity.BookingStatusConfirmed,
		IdempotencyKey: "k1",
		ExpiresAt:      &due,
	}
	if err := repo.Booking.Create(ctx, bkg); err != nil {
		t.Fatal(err)
	}
	if err := repo.Idempotency.Create(ctx, &entity.IdempotencyRecord{
		Key: "k1", State: entity.IdempotencySuccess, RequestHash: "h",
		CreatedAt: t0, UpdatedAt: t0, ExpiresAt: due,
	}); err != nil {
		t.Fatal(err)
	}

	return &world{repo: repo, clk: clock.NewManual(t0), pub: &recordingPublisher{}, held: held, taken: taken, bkg: bkg}
}

func (w *world) reaper(cfg utils.ReaperConfig) *Reaper {
	return New(w.repo, w.pub, w.clk, cfg, zap.NewNop(), nil)
}

func TestRunOnceBeforeAndAfterExpiry(t *testing.T) {
	w := newWorld(t)
	r := w.reaper(utils.ReaperConfig{})
	ctx := context.Background()

	rows, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	for name, n := range rows {
		if n != 0 {
			t.Fatalf("%s reaped %d rows before expiry", name, n)
		}
	}

	w.clk.Advance(2 * time.Minute)
	rows, err = r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rows[HoldReaper] != 1 || rows[BookingReaper] != 1 || rows[IdempotencyReaper] != 1 {
		t.Fatalf("rows = %v, want one of each", rows)
	}

	held, _ := w.repo.Seat.FindByID(ctx, w.held.ID)
	if held.Status != entity.SeatStatusAvailable || held.HoldExpiresAt != nil || held.Version != 2 {
		t.Fatalf("held seat = %+v", held)
	}
	taken, _ := w.repo.Seat.FindByID(ctx, w.taken.ID)
	if taken.Status != entity.SeatStatusAvailable || taken.Version != 2 {
		t.Fatalf("booked seat = %+v", taken)
	}
	bkg, _ := w.repo.Booking.FindByID(ctx, w.bkg.ID)
	if bkg.Status != entity.BookingStatusExpired {
		t.Fatalf("booking status = %s", bkg.Status)
	}
	if rec, _ := w.repo.Idempotency.FindByKey(ctx, "k1"); rec != nil {
		t.Fatalf("record not deleted: %+v", rec)
	}
	if w.pub.count() != 1 || w.pub.events[0].Type != event.BookingExpired {
		t.Fatalf("events = %+v", w.pub.events)
	}

	// Nothing left to do on a second pass.
	rows, _ = r.RunOnce(ctx)
	if rows[BookingReaper] != 0 || w.pub.count() != 1 {
		t.Fatalf("second pass rows = %v, events = %d", rows, w.pub.count())
	}
}

type failingSeats struct {
	repository.SeatRepository
	panic bool
}

func (f failingSeats) ReleaseExpiredHolds(context.Context, time.Time) (int64, error) {
	if f.panic {
		panic("sweep exploded")
	}
	return 0, errors.New("store unavailable")
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	for _, panics := range []bool{false, true} {
		w := newWorld(t)
		w.repo.Seat = failingSeats{SeatRepository: w.repo.Seat, panic: panics}
		w.clk.Advance(2 * time.Minute)

		rows, err := w.reaper(utils.ReaperConfig{}).RunOnce(context.Background())
		if err == nil {
			t.Fatalf("panic=%v: expected hold reaper error", panics)
		}
		if rows[IdempotencyReaper] != 1 {
			t.Fatalf("panic=%v: idempotency reaper did not run after failure: %v", panics, rows)
		}
	}
}

func TestStartAndStop(t *testing.T) {
	w := newWorld(t)
	w.clk.Advance(2 * time.Minute)
	r := w.reaper(utils.ReaperConfig{
		HoldInterval:        5 * time.Millisecond,
		BookingInterval:     5 * time.Millisecond,
		IdempotencyInterval: 0,
	})

	h := r.Start(context.Background())
	ctx := context.Background()

	deadline := time.Now().Add(2 * time.Second)
	for {
		held, _ := w.repo.Seat.FindByID(ctx, w.held.ID)
		bkg, _ := w.repo.Booking.FindByID(ctx, w.bkg.ID)
		if held.Status == entity.SeatStatusAvailable && bkg.Status == entity.BookingStatusExpired {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reaper loops never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// The idempotency loop was disabled.
	if rec, _ := w.repo.Idempotency.FindByKey(ctx, "k1"); rec == nil {
		t.Fatal("disabled reaper ran")
	}
}
