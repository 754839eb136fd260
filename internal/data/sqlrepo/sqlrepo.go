// Package sqlrepo implements the repository set on MySQL through database/sql.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"seat-reservation/internal/data/repository"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewRepository builds the MySQL-backed repository set.
func NewRepository(db *sql.DB, log *zap.Logger) *repository.Repository {
	return repository.New(
		NewSeatRepository(db, log),
		NewBookingRepository(db, log),
		NewIdempotencyRepository(db, log),
		&transactor{db: db, log: log.With(zap.String("repository", "tx"))},
	)
}

type transactor struct {
	db  *sql.DB
	log *zap.Logger
}

func (t *transactor) WithTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		t.log.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin tx: %w", err)
	}

	txRepo := repository.New(
		NewSeatRepository(tx, t.log),
		NewBookingRepository(tx, t.log),
		NewIdempotencyRepository(tx, t.log),
		nil,
	)

	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			t.log.Warn("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		t.log.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const mysqlDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
