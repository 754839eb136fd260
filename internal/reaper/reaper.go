// Package reaper runs the TTL sweeps that keep the store self-healing:
// lapsed holds, expired bookings and stale idempotency records.
package reaper

import (
	"context"
	"fmt"
	"time"

	"seat-reservation/internal/data/repository"
	"seat-reservation/internal/event"
	"seat-reservation/pkg/clock"
	"seat-reservation/pkg/metrics"
	"seat-reservation/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	HoldReaper        = "hold"
	BookingReaper     = "booking"
	IdempotencyReaper = "idempotency"
)

type Reaper struct {
	repo      *repository.Repository
	publisher event.Publisher
	clock     clock.Clock
	cfg       utils.ReaperConfig
	log       *zap.Logger
	metrics   *metrics.Metrics
}

type job struct {
	name     string
	interval time.Duration
	sweep    func(ctx context.Context, now time.Time) (int64, error)
}

func New(repo *repository.Repository, publisher event.Publisher, clk clock.Clock, cfg utils.ReaperConfig, log *zap.Logger, m *metrics.Metrics) *Reaper {
	if publisher == nil {
		publisher = event.Nop{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Reaper{
		repo:      repo,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		log:       log.With(zap.String("component", "reaper")),
		metrics:   m,
	}
}

func (r *Reaper) jobs() []job {
	return []job{
		{name: HoldReaper, interval: r.cfg.HoldInterval, sweep: r.ReleaseExpiredHolds},
		{name: BookingReaper, interval: r.cfg.BookingInterval, sweep: r.ExpireBookings},
		{name: IdempotencyReaper, interval: r.cfg.IdempotencyInterval, sweep: r.DeleteExpiredRecords},
	}
}

// Handle owns the running sweep loops.
type Handle struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Stop cancels every loop and waits for in-flight cycles to finish.
func (h *Handle) Stop() {
	h.cancel()
	_ = h.group.Wait()
}

// Start launches one loop per reaper with a positive interval.
func (r *Reaper) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	for _, j := range r.jobs() {
		if j.interval <= 0 {
			r.log.Info("Reaper disabled", zap.String("reaper", j.name))
			continue
		}
		g.Go(func() error {
			r.loop(ctx, j)
			return nil
		})
	}

	return &Handle{cancel: cancel, group: g}
}

func (r *Reaper) loop(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	r.log.Info("Reaper started", zap.String("reaper", j.name), zap.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reaper stopped", zap.String("reaper", j.name))
			return
		case <-ticker.C:
			_, _ = r.cycle(ctx, j)
		}
	}
}

// RunOnce runs every sweep one time, in order, and returns the first error.
// All sweeps run even when an earlier one fails.
func (r *Reaper) RunOnce(ctx context.Context) (map[string]int64, error) {
	rows := make(map[string]int64, 3)
	var firstErr error
	for _, j := range r.jobs() {
		n, err := r.cycle(ctx, j)
		rows[j.name] = n
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s reaper: %w", j.name, err)
		}
	}
	return rows, firstErr
}

// cycle runs a single sweep. A panic is converted into an error so the loop
// keeps its schedule.
func (r *Reaper) cycle(ctx context.Context, j job) (n int64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		r.metrics.ReaperCycle(j.name, n, err)
		if err != nil {
			r.log.Error("Reaper cycle failed", zap.String("reaper", j.name), zap.Error(err))
		} else if n > 0 {
			r.log.Info("Reaper cycle completed", zap.String("reaper", j.name), zap.Int64("rows", n))
		}
	}()

	return j.sweep(ctx, r.clock.Now())
}

func (r *Reaper) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	return r.repo.Seat.ReleaseExpiredHolds(ctx, now)
}

// ExpireBookings moves due CONFIRMED bookings to EXPIRED and frees their seats
// in one transaction, then publishes booking.expired for each.
func (r *Reaper) ExpireBookings(ctx context.Context, now time.Time) (int64, error) {
	var expired []event.Event

	err := r.repo.WithTx(ctx, func(tx *repository.Repository) error {
		bookings, err := tx.Booking.ExpireDue(ctx, now)
		if err != nil {
			return err
		}
		if len(bookings) == 0 {
			return nil
		}

		seatIDs := make([]uuid.UUID, 0, len(bookings))
		for _, b := range bookings {
			seatIDs = append(seatIDs, b.SeatID)
			expired = append(expired, event.NewBookingEvent(event.BookingExpired, b, now))
		}

		released, err := tx.Seat.ReleaseBooked(ctx, seatIDs, now)
		if err != nil {
			return err
		}
		r.log.Debug("Seats released for expired bookings",
			zap.Int("bookings", len(bookings)),
			zap.Int64("seats", released),
		)
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, e := range expired {
		perr := r.publisher.Publish(ctx, e)
		r.metrics.EventPublished(string(e.Type), perr)
		if perr != nil {
			r.log.Warn("Failed to publish event", zap.Error(perr), zap.String("booking_id", e.BookingID))
		}
	}
	return int64(len(expired)), nil
}

func (r *Reaper) DeleteExpiredRecords(ctx context.Context, now time.Time) (int64, error) {
	return r.repo.Idempotency.DeleteExpired(ctx, now)
}
