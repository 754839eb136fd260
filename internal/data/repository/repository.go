package repository

import (
	"context"
	"errors"
	"fmt"

	"seat-reservation/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrDuplicateKey is returned by inserts that hit a unique constraint.
var ErrDuplicateKey = errors.New("duplicate key")

// Transactor runs fn inside one read-committed transaction. fn receives a
// Repository bound to that transaction; any error returned by fn rolls back.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *Repository) error) error
}

type Repository struct {
	Seat        SeatRepository
	Booking     BookingRepository
	Idempotency IdempotencyRepository

	tx Transactor
}

// New assembles a Repository from backend-specific parts.
func New(seat SeatRepository, booking BookingRepository, idem IdempotencyRepository, tx Transactor) *Repository {
	return &Repository{
		Seat:        seat,
		Booking:     booking,
		Idempotency: idem,
		tx:          tx,
	}
}

// NewRepository builds the PostgreSQL-backed repository set.
func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return New(
		NewSeatRepository(db, log),
		NewBookingRepository(db, log),
		NewIdempotencyRepository(db, log),
		&pgTransactor{db: db, log: log.With(zap.String("repository", "tx"))},
	)
}

// WithTx runs fn in a transaction. A Repository built without a Transactor
// is already bound to one, so fn joins it.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.tx == nil {
		return fn(r)
	}
	return r.tx.WithTx(ctx, fn)
}

type pgTransactor struct {
	db  database.PgxIface
	log *zap.Logger
}

func (t *pgTransactor) WithTx(ctx context.Context, fn func(tx *Repository) error) (err error) {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		t.log.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			t.log.Warn("Failed to roll back transaction", zap.Error(rbErr))
		}
	}()

	txRepo := New(
		NewSeatRepository(tx, t.log),
		NewBookingRepository(tx, t.log),
		NewIdempotencyRepository(tx, t.log),
		nil,
	)

	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		t.log.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
