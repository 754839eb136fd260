// Package memstore is an in-process store of record with read-committed
// semantics. Reads see committed data plus the transaction's own writes.
// Writers take row locks held until commit or rollback, and a write blocked
// on a row lock re-evaluates its predicate against the newly committed row.
package memstore

import (
	"context"
	"sort"
	"sync"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store struct {
	mu   sync.Mutex
	cond *sync.Cond

	seats       map[uuid.UUID]entity.Seat
	bookings    map[uuid.UUID]entity.Booking
	bookingKeys map[string]uuid.UUID
	idem        map[string]entity.IdempotencyRecord

	locks map[string]*txn
	log   *zap.Logger
}

type txn struct {
	seats       map[uuid.UUID]entity.Seat
	bookings    map[uuid.UUID]entity.Booking
	bookingKeys map[string]uuid.UUID
	idem        map[string]entity.IdempotencyRecord
	idemDeleted map[string]bool
	held        map[string]struct{}
}

func New(log *zap.Logger) *Store {
	s := &Store{
		seats:       make(map[uuid.UUID]entity.Seat),
		bookings:    make(map[uuid.UUID]entity.Booking),
		bookingKeys: make(map[string]uuid.UUID),
		idem:        make(map[string]entity.IdempotencyRecord),
		locks:       make(map[string]*txn),
		log:         log.With(zap.String("repository", "memory")),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Repository returns the autocommit repository set; WithTx opens transactions.
func (s *Store) Repository() *repository.Repository {
	return repository.New(
		&seatRepository{s: s},
		&bookingRepository{s: s},
		&idempotencyRepository{s: s},
		s,
	)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	t := s.begin()
	done := false
	defer func() {
		if !done {
			s.rollback(t)
		}
	}()

	txRepo := repository.New(
		&seatRepository{s: s, t: t},
		&bookingRepository{s: s, t: t},
		&idempotencyRepository{s: s, t: t},
		nil,
	)

	if err := fn(txRepo); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commit(t)
	done = true
	return nil
}

func (s *Store) begin() *txn {
	return &txn{
		seats:       make(map[uuid.UUID]entity.Seat),
		bookings:    make(map[uuid.UUID]entity.Booking),
		bookingKeys: make(map[string]uuid.UUID),
		idem:        make(map[string]entity.IdempotencyRecord),
		idemDeleted: make(map[string]bool),
		held:        make(map[string]struct{}),
	}
}

func (s *Store) commit(t *txn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, seat := range t.seats {
		s.seats[id] = seat
	}
	for id, booking := range t.bookings {
		s.bookings[id] = booking
	}
	for key, id := range t.bookingKeys {
		s.bookingKeys[key] = id
	}
	for key := range t.idemDeleted {
		delete(s.idem, key)
	}
	for key, record := range t.idem {
		s.idem[key] = record
	}

	s.releaseAll(t)
}

func (s *Store) rollback(t *txn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(t.seats)+len(t.bookings)+len(t.idem)+len(t.idemDeleted) > 0 {
		s.log.Debug("Transaction rolled back",
			zap.Int("seat_writes", len(t.seats)),
			zap.Int("booking_writes", len(t.bookings)),
			zap.Int("idempotency_writes", len(t.idem)+len(t.idemDeleted)),
		)
	}
	s.releaseAll(t)
}

// releaseAll must be called with s.mu held.
func (s *Store) releaseAll(t *txn) {
	for key := range t.held {
		if s.locks[key] == t {
			delete(s.locks, key)
		}
	}
	clear(t.held)
	s.cond.Broadcast()
}

// autocommit runs fn in its own transaction when t is nil, otherwise in t.
// fn is called with s.mu held.
func (s *Store) autocommit(t *txn, fn func(t *txn) error) error {
	if t != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(t)
	}

	t = s.begin()
	s.mu.Lock()
	err := fn(t)
	s.mu.Unlock()

	if err != nil {
		s.rollback(t)
		return err
	}
	s.commit(t)
	return nil
}

// lockRow blocks until t owns key. Must be called with s.mu held; the mutex
// is released while waiting.
func (s *Store) lockRow(ctx context.Context, t *txn, key string) error {
	if owner, ok := s.locks[key]; ok && owner == t {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for {
		owner, ok := s.locks[key]
		if !ok {
			s.locks[key] = t
			t.held[key] = struct{}{}
			return nil
		}
		if owner == t {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
}

// unlockRow drops a lock t took for a row it ended up not writing.
func (s *Store) unlockRow(t *txn, key string) {
	if s.locks[key] != t {
		return
	}
	delete(s.locks, key)
	delete(t.held, key)
	s.cond.Broadcast()
}

func seatLockKey(id uuid.UUID) string    { return "seat:" + id.String() }
func bookingLockKey(id uuid.UUID) string { return "booking:" + id.String() }
func bookingKeyLock(key string) string   { return "bkey:" + key }
func idemLockKey(key string) string      { return "idem:" + key }

// Visible reads. All must be called with s.mu held.

func (s *Store) seat(t *txn, id uuid.UUID) (entity.Seat, bool) {
	if seat, ok := t.seats[id]; ok {
		return seat, true
	}
	seat, ok := s.seats[id]
	return seat, ok
}

func (s *Store) booking(t *txn, id uuid.UUID) (entity.Booking, bool) {
	if booking, ok := t.bookings[id]; ok {
		return booking, true
	}
	booking, ok := s.bookings[id]
	return booking, ok
}

func (s *Store) bookingKeyTaken(t *txn, key string) bool {
	if _, ok := t.bookingKeys[key]; ok {
		return true
	}
	_, ok := s.bookingKeys[key]
	return ok
}

func (s *Store) record(t *txn, key string) (entity.IdempotencyRecord, bool) {
	if t.idemDeleted[key] {
		return entity.IdempotencyRecord{}, false
	}
	if record, ok := t.idem[key]; ok {
		return record, true
	}
	record, ok := s.idem[key]
	return record, ok
}

// seatIDs lists every seat visible to t in a stable order so bulk writers
// acquire row locks in the same sequence.
func (s *Store) seatIDs(t *txn) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.seats)+len(t.seats))
	for id := range s.seats {
		ids = append(ids, id)
	}
	for id := range t.seats {
		if _, ok := s.seats[id]; !ok {
			ids = append(ids, id)
		}
	}
	sortUUIDs(ids)
	return ids
}

func (s *Store) bookingIDs(t *txn) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.bookings)+len(t.bookings))
	for id := range s.bookings {
		ids = append(ids, id)
	}
	for id := range t.bookings {
		if _, ok := s.bookings[id]; !ok {
			ids = append(ids, id)
		}
	}
	sortUUIDs(ids)
	return ids
}

func (s *Store) recordKeys(t *txn) []string {
	keys := make([]string, 0, len(s.idem)+len(t.idem))
	for key := range s.idem {
		keys = append(keys, key)
	}
	for key := range t.idem {
		if _, ok := s.idem[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
