package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type bookingRepository struct {
	db  dbtx
	log *zap.Logger
}

func NewBookingRepository(db dbtx, log *zap.Logger) repository.BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking"), zap.String("driver", "mysql")),
	}
}

const bookingColumns = `id, seat_id, user_id, status, idempotency_key, expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var booking entity.Booking
	err := row.Scan(
		&booking.ID,
		&booking.SeatID,
		&booking.UserID,
		&booking.Status,
		&booking.IdempotencyKey,
		&booking.ExpiresAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		booking.ID,
		booking.SeatID,
		booking.UserID,
		booking.Status,
		booking.IdempotencyKey,
		booking.ExpiresAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if isDuplicateEntry(err) {
		return fmt.Errorf("create booking for key %s: %w", booking.IdempotencyKey, repository.ErrDuplicateKey)
	}
	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("seat_id", booking.SeatID.String()),
			zap.String("user_id", booking.UserID.String()),
		)
		return fmt.Errorf("create booking %s: %w", booking.ID.String(), err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return booking, nil
}

func (r *bookingRepository) CountBySeat(ctx context.Context, seatID uuid.UUID, status entity.BookingStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE seat_id = ? AND status = ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, seatID, status).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings by seat",
			zap.Error(err),
			zap.String("seat_id", seatID.String()),
		)
		return 0, fmt.Errorf("count bookings by seat %s: %w", seatID.String(), err)
	}

	return count, nil
}

// ExpireDue locks the due rows, then flips them to EXPIRED. MySQL has no
// UPDATE ... RETURNING, so callers must run it inside a transaction.
func (r *bookingRepository) ExpireDue(ctx context.Context, now time.Time) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'CONFIRMED' AND expires_at IS NOT NULL AND expires_at < ?
		FOR UPDATE
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		r.log.Error("Failed to select due bookings", zap.Error(err))
		return nil, fmt.Errorf("select due bookings: %w", err)
	}

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close booking rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due bookings: %w", err)
	}
	if len(bookings) == 0 {
		return nil, nil
	}

	update := fmt.Sprintf(`UPDATE bookings SET status = 'EXPIRED', updated_at = ? WHERE id IN (%s)`,
		placeholders(len(bookings)))
	args := make([]any, 0, len(bookings)+1)
	args = append(args, now)
	for _, b := range bookings {
		args = append(args, b.ID)
	}

	if _, err := r.db.ExecContext(ctx, update, args...); err != nil {
		r.log.Error("Failed to expire bookings",
			zap.Error(err),
			zap.Int("count", len(bookings)),
		)
		return nil, fmt.Errorf("expire bookings: %w", err)
	}

	for _, b := range bookings {
		b.Status = entity.BookingStatusExpired
		b.UpdatedAt = now
	}
	return bookings, nil
}
