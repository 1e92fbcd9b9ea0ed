// Package redis is the distributed ToolCallCache backend (§4.1 "Distributed
// tool-call cache"): a Redis-backed Get/Put pair so duplicate-call
// detection holds across a horizontally scaled coordinator deployment.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached tool result survives; it mirrors the
// lifetime of one request, not a long-term cache.
const DefaultTTL = 10 * time.Minute

// Client captures the subset of *redis.Client this backend uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Store implements toolcache.Backend over Redis.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
}

// Options configures the Redis-backed Store.
type Options struct {
	// Prefix namespaces keys, e.g. by request id, so one Redis instance can
	// back multiple concurrent requests' caches without collision.
	Prefix string
	// TTL overrides DefaultTTL.
	TTL time.Duration
}

// New builds a Store bound to an existing Redis client.
func New(client Client, opts Options) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, prefix: opts.Prefix, ttl: ttl}, nil
}

func (s *Store) namespaced(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// Get implements toolcache.Backend.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.namespaced(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Put implements toolcache.Backend.
func (s *Store) Put(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.namespaced(key), value, s.ttl).Err()
}
