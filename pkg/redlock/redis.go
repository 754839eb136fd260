package redlock

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

var (
	compareAndDeleteScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)

	compareAndExpireScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

type RedisOptions struct {
	Password string
	DB       int
	TLS      bool
}

// RedisNode is a Node backed by a single, independent Redis server.
type RedisNode struct {
	client *redis.Client
	name   string
}

func NewRedisNode(client *redis.Client) *RedisNode {
	return &RedisNode{client: client, name: client.Options().Addr}
}

// NewRedisNodes builds one client per address. Connections are lazy so an
// unreachable node only costs the votes it would have cast.
func NewRedisNodes(addrs []string, opts RedisOptions) []Node {
	var tlsConf *tls.Config
	if opts.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	nodes := make([]Node, 0, len(addrs))
	for _, addr := range addrs {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     opts.Password,
			DB:           opts.DB,
			TLSConfig:    tlsConf,
			DialTimeout:  500 * time.Millisecond,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		})
		nodes = append(nodes, NewRedisNode(client))
	}
	return nodes
}

func (n *RedisNode) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := n.client.SetNX(ctx, keyPrefix+key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis %s: set nx %s: %w", n.name, key, err)
	}
	return ok, nil
}

func (n *RedisNode) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	deleted, err := compareAndDeleteScript.Run(ctx, n.client, []string{keyPrefix + key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("redis %s: compare and delete %s: %w", n.name, key, err)
	}
	return deleted == 1, nil
}

func (n *RedisNode) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	renewed, err := compareAndExpireScript.Run(ctx, n.client, []string{keyPrefix + key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis %s: compare and expire %s: %w", n.name, key, err)
	}
	return renewed == 1, nil
}

func (n *RedisNode) Ping(ctx context.Context) error {
	if err := n.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: ping: %w", n.name, err)
	}
	return nil
}

func (n *RedisNode) Name() string { return n.name }

func (n *RedisNode) Close() error { return n.client.Close() }
