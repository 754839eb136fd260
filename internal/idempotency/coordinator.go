// Package idempotency makes a unit of work run at most once per client key
// and replays its stored response to every later caller with the same key
// and payload.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"seat-reservation/internal/data/entity"
	"seat-reservation/internal/data/repository"
	"seat-reservation/internal/domain"
	"seat-reservation/pkg/clock"
	"seat-reservation/pkg/metrics"

	"go.uber.org/zap"
)

const finalizeTimeout = 5 * time.Second

// MaxKeyLength matches the idempotency_key column width.
const MaxKeyLength = 255

// Result is what a unit of work hands back for storage and replay.
type Result struct {
	StatusCode int
	Data       any
}

// Outcome is the response for a caller. Data is the stored JSON, byte for
// byte identical across replays.
type Outcome struct {
	Replayed   bool
	StatusCode int
	Data       json.RawMessage
}

type Coordinator struct {
	repo    repository.IdempotencyRepository
	ttl     time.Duration
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(repo repository.IdempotencyRepository, ttl time.Duration, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		repo:    repo,
		ttl:     ttl,
		clock:   clk,
		log:     log.With(zap.String("component", "idempotency")),
		metrics: m,
	}
}

// CheckOrCreate runs work at most once for key. A later call with the same
// key and payload gets the stored response; a different payload, a failed
// first attempt or an attempt still running is reported as a conflict.
func (c *Coordinator) CheckOrCreate(ctx context.Context, key string, payload any, work func(ctx context.Context) (*Result, error)) (*Outcome, error) {
	if key == "" {
		return nil, domain.ValidationError{Field: "Idempotency-Key", Msg: "is required"}
	}
	if len(key) > MaxKeyLength {
		return nil, domain.ValidationError{Field: "Idempotency-Key", Msg: fmt.Sprintf("must be at most %d bytes", MaxKeyLength)}
	}

	hash, err := RequestHash(payload)
	if err != nil {
		return nil, domain.ValidationError{Field: "payload", Msg: "cannot be encoded", Err: err}
	}

	existing, err := c.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check idempotency key: %w", err)
	}
	if existing != nil {
		return c.resolve(ctx, existing, hash)
	}

	now := c.clock.Now()
	record := &entity.IdempotencyRecord{
		Key:         key,
		State:       entity.IdempotencyInProgress,
		RequestHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}

	err = c.repo.Create(ctx, record)
	if errors.Is(err, repository.ErrDuplicateKey) {
		// Lost the insert race; branch on whatever the winner wrote.
		existing, err = c.repo.FindByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("re-read idempotency key: %w", err)
		}
		if existing == nil {
			return nil, domain.InternalError{Msg: fmt.Sprintf("idempotency record %s vanished after duplicate insert", key)}
		}
		return c.resolve(ctx, existing, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("create idempotency record: %w", err)
	}

	return c.execute(ctx, key, work)
}

func (c *Coordinator) execute(ctx context.Context, key string, work func(ctx context.Context) (*Result, error)) (*Outcome, error) {
	finalized := false
	defer func() {
		// Error return or panic in work.
		if !finalized {
			c.finalize(ctx, key, entity.IdempotencyFailed, nil, nil)
			c.metrics.Idempotency("failed")
		}
	}()

	result, err := work(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.InternalError{Msg: "idempotent work returned no result"}
	}

	data, err := json.Marshal(result.Data)
	if err != nil {
		return nil, domain.InternalError{Msg: "encode idempotent response", Err: err}
	}

	code := result.StatusCode
	c.finalize(ctx, key, entity.IdempotencySuccess, &code, data)
	finalized = true
	c.metrics.Idempotency("executed")

	return &Outcome{StatusCode: code, Data: data}, nil
}

// finalize records the terminal state. It runs detached from the caller's
// cancellation so an abandoned request still leaves a terminal record.
func (c *Coordinator) finalize(ctx context.Context, key string, state entity.IdempotencyState, code *int, data []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	n, err := c.repo.Finalize(ctx, key, state, code, data, c.clock.Now())
	if err != nil {
		c.log.Error("Failed to finalize idempotency record",
			zap.Error(err),
			zap.String("key", key),
			zap.String("state", string(state)),
		)
		return
	}
	if n == 0 {
		c.log.Warn("Idempotency record was no longer in progress",
			zap.String("key", key),
			zap.String("state", string(state)),
		)
	}
}

func (c *Coordinator) resolve(ctx context.Context, record *entity.IdempotencyRecord, hash string) (*Outcome, error) {
	if record.RequestHash != hash {
		c.metrics.Idempotency("payload_mismatch")
		return nil, domain.ConflictError{
			Resource: "idempotency key",
			Reason:   domain.ReasonPayloadMismatch,
			Msg:      "key was already used with a different payload",
		}
	}

	switch record.State {
	case entity.IdempotencySuccess:
		if record.ResponseData == nil || record.StatusCode == nil {
			return nil, domain.InternalError{Msg: fmt.Sprintf("idempotency record %s succeeded without a stored response", record.Key)}
		}
		c.metrics.Idempotency("replayed")
		return &Outcome{Replayed: true, StatusCode: *record.StatusCode, Data: record.ResponseData}, nil

	case entity.IdempotencyFailed:
		c.metrics.Idempotency("previous_failure")
		return nil, previousFailure()

	case entity.IdempotencyInProgress:
		now := c.clock.Now()
		if now.Sub(record.CreatedAt) <= c.ttl {
			c.metrics.Idempotency("in_flight")
			return nil, domain.ConflictError{
				Resource: "idempotency key",
				Reason:   domain.ReasonRequestInFlight,
				Msg:      "a request with this key is still being processed",
			}
		}

		// The first attempt was abandoned; poison the key.
		n, err := c.repo.Finalize(ctx, record.Key, entity.IdempotencyFailed, nil, nil, now)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale idempotency record: %w", err)
		}
		if n == 0 {
			// The first attempt finished after all; answer from what it wrote.
			current, err := c.repo.FindByKey(ctx, record.Key)
			if err != nil {
				return nil, fmt.Errorf("re-read idempotency key: %w", err)
			}
			if current == nil || current.State == entity.IdempotencyInProgress {
				return nil, domain.InternalError{Msg: fmt.Sprintf("idempotency record %s not reclaimed and not finalized", record.Key)}
			}
			return c.resolve(ctx, current, hash)
		}
		c.log.Warn("Reclaimed stale idempotency record",
			zap.String("key", record.Key),
			zap.Time("created_at", record.CreatedAt),
		)
		c.metrics.Idempotency("reclaimed")
		return nil, previousFailure()

	default:
		return nil, domain.InternalError{Msg: fmt.Sprintf("idempotency record %s has unknown state %q", record.Key, record.State)}
	}
}

func previousFailure() error {
	return domain.ConflictError{
		Resource: "idempotency key",
		Reason:   domain.ReasonPreviousFailure,
		Msg:      "a previous request with this key failed; retry with a new key",
	}
}
