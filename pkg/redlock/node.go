package redlock

import (
	"context"
	"errors"
	"time"
)

// ErrNodeDown is returned by a MemoryNode switched off with SetDown.
var ErrNodeDown = errors.New("redlock: node down")

// Node is one independent lock server. Implementations must make each call
// atomic on the server side.
type Node interface {
	// SetNX stores value under key with ttl only if key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if it currently holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	// CompareAndExpire resets key's ttl only if it currently holds value.
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Ping reports whether the node is reachable.
	Ping(ctx context.Context) error
	Name() string
	Close() error
}
