package redlock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryNode is an in-process Node for single-binary deployments and tests.
type MemoryNode struct {
	mu      sync.Mutex
	name    string
	entries map[string]memoryEntry
	down    bool
}

func NewMemoryNode(name string) *MemoryNode {
	return &MemoryNode{name: name, entries: make(map[string]memoryEntry)}
}

// NewMemoryNodes returns n independent in-process nodes.
func NewMemoryNodes(n int) []Node {
	nodes := make([]Node, 0, n)
	for i := range n {
		nodes = append(nodes, NewMemoryNode(fmt.Sprintf("memory-%d", i)))
	}
	return nodes
}

// SetDown makes every call fail with ErrNodeDown until switched back.
// Entries survive, as they would on a partitioned server.
func (n *MemoryNode) SetDown(down bool) {
	n.mu.Lock()
	n.down = down
	n.mu.Unlock()
}

// live returns the unexpired entry for key. Must hold n.mu.
func (n *MemoryNode) live(key string, now time.Time) (memoryEntry, bool) {
	e, ok := n.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(n.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (n *MemoryNode) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return false, ErrNodeDown
	}

	now := time.Now()
	if _, ok := n.live(key, now); ok {
		return false, nil
	}
	n.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

func (n *MemoryNode) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return false, ErrNodeDown
	}

	e, ok := n.live(key, time.Now())
	if !ok || e.value != value {
		return false, nil
	}
	delete(n.entries, key)
	return true, nil
}

func (n *MemoryNode) CompareAndExpire(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return false, ErrNodeDown
	}

	now := time.Now()
	e, ok := n.live(key, now)
	if !ok || e.value != value {
		return false, nil
	}
	e.expiresAt = now.Add(ttl)
	n.entries[key] = e
	return true, nil
}

func (n *MemoryNode) Ping(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return ErrNodeDown
	}
	return nil
}

func (n *MemoryNode) Name() string { return n.name }

func (n *MemoryNode) Close() error { return nil }
