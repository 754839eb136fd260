package redlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newRedisNode(t *testing.T) (*RedisNode, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	node := NewRedisNode(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = node.Close() })
	return node, mr
}

func TestRedisNodeSetNX(t *testing.T) {
	node, mr := newRedisNode(t)
	ctx := context.Background()

	ok, err := node.SetNX(ctx, "seat:1", "token-a", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v; want true", ok, err)
	}
	ok, err = node.SetNX(ctx, "seat:1", "token-b", 5*time.Second)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v; want false", ok, err)
	}

	got, err := mr.Get("lock:seat:1")
	if err != nil || got != "token-a" {
		t.Fatalf("stored value = %q, %v; want token-a under the lock: prefix", got, err)
	}
	if ttl := mr.TTL("lock:seat:1"); ttl != 5*time.Second {
		t.Fatalf("ttl = %s, want 5s", ttl)
	}

	mr.FastForward(6 * time.Second)
	if ok, _ := node.SetNX(ctx, "seat:1", "token-b", time.Second); !ok {
		t.Fatal("SetNX failed after the key expired")
	}
}

func TestRedisNodeCompareAndExpire(t *testing.T) {
	node, mr := newRedisNode(t)
	ctx := context.Background()

	if _, err := node.SetNX(ctx, "k", "owner", time.Second); err != nil {
		t.Fatal(err)
	}

	ok, err := node.CompareAndExpire(ctx, "k", "intruder", 10*time.Second)
	if err != nil || ok {
		t.Fatalf("foreign extend = %v, %v; want false", ok, err)
	}
	if ttl := mr.TTL("lock:k"); ttl != time.Second {
		t.Fatalf("ttl after foreign extend = %s, want 1s", ttl)
	}

	ok, err = node.CompareAndExpire(ctx, "k", "owner", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("owner extend = %v, %v; want true", ok, err)
	}
	if ttl := mr.TTL("lock:k"); ttl != 5*time.Second {
		t.Fatalf("ttl after owner extend = %s, want 5s", ttl)
	}

	ok, err = node.CompareAndExpire(ctx, "missing", "owner", time.Second)
	if err != nil || ok {
		t.Fatalf("extend of missing key = %v, %v; want false", ok, err)
	}
}

func TestRedisNodeCompareAndDelete(t *testing.T) {
	node, mr := newRedisNode(t)
	ctx := context.Background()

	if _, err := node.SetNX(ctx, "k", "owner", time.Minute); err != nil {
		t.Fatal(err)
	}

	ok, err := node.CompareAndDelete(ctx, "k", "intruder")
	if err != nil || ok {
		t.Fatalf("foreign delete = %v, %v; want false", ok, err)
	}
	if !mr.Exists("lock:k") {
		t.Fatal("foreign delete removed the key")
	}

	ok, err = node.CompareAndDelete(ctx, "k", "owner")
	if err != nil || !ok {
		t.Fatalf("owner delete = %v, %v; want true", ok, err)
	}
	if mr.Exists("lock:k") {
		t.Fatal("key still present after owner delete")
	}
}

func TestRedisNodeReportsUnreachableServer(t *testing.T) {
	node, mr := newRedisNode(t)
	ctx := context.Background()

	if err := node.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mr.Close()
	if err := node.Ping(ctx); err == nil {
		t.Fatal("Ping succeeded against a closed server")
	}
	if _, err := node.SetNX(ctx, "k", "v", time.Second); err == nil {
		t.Fatal("SetNX succeeded against a closed server")
	}
}

func TestManagerOverRedisToleratesMinorityOutage(t *testing.T) {
	servers := make([]*miniredis.Miniredis, 3)
	addrs := make([]string, 3)
	for i := range servers {
		servers[i] = miniredis.RunT(t)
		addrs[i] = servers[i].Addr()
	}
	nodes := NewRedisNodes(addrs, RedisOptions{})

	m, err := New(nodes, Options{DriftFactor: 0.01}, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })
	ctx := context.Background()

	servers[2].Close()
	if got := m.CheckNodes(ctx); got != 2 {
		t.Fatalf("reachable nodes = %d, want 2", got)
	}

	ran := false
	err = m.WithLock(ctx, "seat:1", 5*time.Second, 0, func(ctx context.Context) error {
		ran = true
		for _, s := range servers[:2] {
			if !s.Exists("lock:seat:1") {
				t.Errorf("lock missing on %s while held", s.Addr())
			}
		}
		if _, err := m.Acquire(ctx, "seat:1", 5*time.Second); !errors.Is(err, ErrLockUnavailable) {
			t.Errorf("second Acquire error = %v, want ErrLockUnavailable", err)
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("WithLock = %v, ran = %v", err, ran)
	}

	for _, s := range servers[:2] {
		if s.Exists("lock:seat:1") {
			t.Fatalf("lock left on %s after release", s.Addr())
		}
	}

	servers[1].Close()
	if _, err := m.Acquire(ctx, "seat:1", 5*time.Second); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("Acquire with one of three nodes = %v, want ErrLockUnavailable", err)
	}
}
