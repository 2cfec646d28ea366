// Package idempotency claims keys exactly once within a TTL so repeated
// webhook deliveries are processed a single time.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer reports whether the caller is the first to claim key.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops a claim so a failed attempt can be retried.
	Release(ctx context.Context, key string) error
}

// Redis claims keys with SET NX PX.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// Option configures a Redis claimer.
type Option func(*Redis)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis builds a claimer over an existing client.
func NewRedis(client redis.Cmdable, opts ...Option) *Redis {
	r := &Redis{client: client, prefix: "salesdeck:dedupe"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisFromURL parses a redis:// URL and builds a claimer. The returned
// client must be closed by the caller.
func NewRedisFromURL(url string, opts ...Option) (*Redis, *redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(options)
	return NewRedis(client, opts...), client, nil
}

func (r *Redis) key(k string) string { return r.prefix + ":" + k }

func (r *Redis) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.key(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Memory is an in-process claimer used when no Redis URL is configured.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: make(map[string]time.Time)}
}

func (m *Memory) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.entries[key] = now.Add(ttl)
	if len(m.entries) > 1024 {
		for k, exp := range m.entries {
			if !now.Before(exp) {
				delete(m.entries, k)
			}
		}
	}
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
