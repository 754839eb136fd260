// Package redlock implements the Redlock distributed lock over N independent
// nodes. A lock is held when a majority of nodes accepted it and the time
// left, after subtracting acquisition time and clock drift, is positive.
package redlock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"seat-reservation/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLockUnavailable is returned once every acquisition attempt has failed.
var ErrLockUnavailable = errors.New("redlock: lock unavailable")

// releaseTimeout bounds cleanup calls made after the caller's context is gone.
const releaseTimeout = 2 * time.Second

type Options struct {
	DriftFactor float64
	RetryCount  int
	RetryDelay  time.Duration
}

// Lock is a held lock. Validity is the time left when Acquire returned.
type Lock struct {
	Key      string
	Token    string
	Validity time.Duration
}

type Manager struct {
	nodes   []Node
	quorum  int
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(nodes []Node, opts Options, log *zap.Logger, m *metrics.Metrics) (*Manager, error) {
	if len(nodes) == 0 {
		return nil, errors.New("redlock: at least one node is required")
	}
	if opts.DriftFactor < 0 || opts.DriftFactor >= 1 {
		return nil, fmt.Errorf("redlock: drift factor %v outside [0,1)", opts.DriftFactor)
	}
	if opts.RetryCount < 0 || opts.RetryDelay < 0 {
		return nil, errors.New("redlock: retry count and delay must not be negative")
	}

	return &Manager{
		nodes:   nodes,
		quorum:  len(nodes)/2 + 1,
		opts:    opts,
		log:     log.With(zap.String("component", "redlock")),
		metrics: m,
	}, nil
}

// Quorum is the number of nodes that must agree for a lock to be held.
func (m *Manager) Quorum() int { return m.quorum }

// Acquire tries up to RetryCount+1 times to take key for ttl.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("redlock: ttl must be positive, got %s", ttl)
	}

	for attempt := 0; attempt <= m.opts.RetryCount; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx); err != nil {
				m.metrics.LockAcquire("cancelled")
				return nil, err
			}
		}

		token := uuid.NewString()
		start := time.Now()
		votes := m.fanout(ctx, "set", key, func(ctx context.Context, n Node) (bool, error) {
			return n.SetNX(ctx, key, token, ttl)
		})
		drift := time.Duration(float64(ttl) * m.opts.DriftFactor)
		validity := ttl - time.Since(start) - drift

		if votes >= m.quorum && validity > 0 {
			m.metrics.LockAcquire("acquired")
			m.log.Debug("Lock acquired",
				zap.String("key", key),
				zap.Int("votes", votes),
				zap.Duration("validity", validity),
				zap.Int("attempt", attempt),
			)
			return &Lock{Key: key, Token: token, Validity: validity}, nil
		}

		// Undo partial acquisitions so the next contender is not blocked by them.
		m.Release(ctx, key, token)

		m.log.Debug("Lock attempt failed",
			zap.String("key", key),
			zap.Int("votes", votes),
			zap.Int("quorum", m.quorum),
			zap.Duration("validity", validity),
			zap.Int("attempt", attempt),
		)
	}

	m.metrics.LockAcquire("unavailable")
	return nil, fmt.Errorf("acquire %s: %w", key, ErrLockUnavailable)
}

// Release deletes key on every node that still holds token. It never fails;
// node errors are logged and left for the ttl to clean up.
func (m *Manager) Release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	m.fanout(ctx, "release", key, func(ctx context.Context, n Node) (bool, error) {
		return n.CompareAndDelete(ctx, key, token)
	})
}

// Extend resets the ttl of a lock still held with token. It reports whether
// a quorum of nodes renewed it.
func (m *Manager) Extend(ctx context.Context, key, token string, ttl time.Duration) bool {
	votes := m.fanout(ctx, "extend", key, func(ctx context.Context, n Node) (bool, error) {
		return n.CompareAndExpire(ctx, key, token, ttl)
	})
	ok := votes >= m.quorum
	m.metrics.LockExtend(ok)
	return ok
}

// WithLock runs body while holding key. When extendInterval is positive the
// lock is renewed on that period until body returns. The lock is released on
// every exit path, including a panic in body, and body's error is returned
// unchanged.
func (m *Manager) WithLock(ctx context.Context, key string, ttl, extendInterval time.Duration, body func(ctx context.Context) error) error {
	lock, err := m.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}

	workCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		m.Release(ctx, key, lock.Token)
	}()

	if extendInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.keepAlive(workCtx, lock, ttl, extendInterval)
		}()
	}

	return body(workCtx)
}

func (m *Manager) keepAlive(ctx context.Context, lock *Lock, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !m.Extend(ctx, lock.Key, lock.Token, ttl) {
				m.log.Warn("Failed to extend lock",
					zap.String("key", lock.Key),
					zap.Duration("ttl", ttl),
				)
			}
		}
	}
}

// CheckNodes pings every node and logs the ones that do not answer. It
// returns the number of reachable nodes; fewer than Quorum means no lock can
// be taken until enough nodes come back.
func (m *Manager) CheckNodes(ctx context.Context) int {
	reachable := m.fanout(ctx, "ping", "", func(ctx context.Context, n Node) (bool, error) {
		if err := n.Ping(ctx); err != nil {
			m.log.Warn("Lock node unreachable",
				zap.String("node", n.Name()),
				zap.Error(err),
			)
			return false, nil
		}
		return true, nil
	})

	if reachable < m.quorum {
		m.log.Warn("Lock quorum unreachable",
			zap.Int("reachable", reachable),
			zap.Int("quorum", m.quorum),
		)
	}
	return reachable
}

// Close closes every node.
func (m *Manager) Close() error {
	var errs []error
	for _, n := range m.nodes {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close node %s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// fanout calls op on every node in parallel and returns how many said yes.
func (m *Manager) fanout(ctx context.Context, op, key string, call func(ctx context.Context, n Node) (bool, error)) int {
	var (
		votes atomic.Int32
		wg    sync.WaitGroup
	)

	for _, n := range m.nodes {
		wg.Add(1)
		go func(n Node) {
			defer wg.Done()
			ok, err := call(ctx, n)
			if err != nil {
				m.log.Debug("Lock node call failed",
					zap.String("op", op),
					zap.String("node", n.Name()),
					zap.String("key", key),
					zap.Error(err),
				)
				return
			}
			if ok {
				votes.Add(1)
			}
		}(n)
	}
	wg.Wait()

	return int(votes.Load())
}

func (m *Manager) sleep(ctx context.Context) error {
	delay := m.opts.RetryDelay
	if delay > 0 {
		delay += rand.N(delay/4 + 1)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
