// Package event publishes booking lifecycle events to the message broker.
// Publishing is best effort and always happens after the owning transaction
// has committed.
package event

import (
	"context"
	"time"

	"seat-reservation/internal/data/entity"
)

type Type string

const (
	BookingConfirmed Type = "booking.confirmed"
	BookingExpired   Type = "booking.expired"
)

type Event struct {
	Type       Type      `json:"type"`
	BookingID  string    `json:"booking_id"`
	SeatID     string    `json:"seat_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBookingEvent(t Type, b *entity.Booking, at time.Time) Event {
	return Event{
		Type:       t,
		BookingID:  b.ID.String(),
		SeatID:     b.SeatID.String(),
		UserID:     b.UserID.String(),
		OccurredAt: at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
