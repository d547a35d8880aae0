// Package redis implements store.Store using Redis. Workflow headers are
// plain string keys, jobs live in per-class hashes, and named locks use
// SET NX PX with token-checked release.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cascadehq/cascade/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLockPollInterval sets the interval between lock acquisition
// attempts. Defaults to 300ms.
func WithLockPollInterval(d time.Duration) Option {
	return func(s *Store) { s.lockPoll = d }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client   goredis.UniversalClient
	logger   *slog.Logger
	lockPoll time.Duration
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:   client,
		logger:   slog.Default(),
		lockPoll: 300 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open creates a Redis-backed store from a connection URL
// (redis://host:port/db). The returned store owns the client and closes
// it on Close.
func Open(url string, opts ...Option) (*Store, error) {
	redisOpts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: parse url: %w", err)
	}
	s := New(goredis.NewClient(redisOpts), opts...)
	return s, nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ──────────────────────────────────────────────────
// KV
// ──────────────────────────────────────────────────

// Get returns the value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrKeyNotFound
		}
		return nil, fmt.Errorf("cascade/redis: get %s: %w", key, err)
	}
	return val, nil
}

// Set writes the value at key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("cascade/redis: set %s: %w", key, err)
	}
	return nil
}

// Del removes the key.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cascade/redis: del %s: %w", key, err)
	}
	return nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cascade/redis: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// HGet returns the value of field inside the hash at key.
func (s *Store) HGet(ctx context.Context, key, field string) ([]byte, error) {
	val, err := s.client.HGet(ctx, key, field).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrKeyNotFound
		}
		return nil, fmt.Errorf("cascade/redis: hget %s %s: %w", key, field, err)
	}
	return val, nil
}

// HSet writes the value of field inside the hash at key.
func (s *Store) HSet(ctx context.Context, key, field string, value []byte) error {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("cascade/redis: hset %s %s: %w", key, field, err)
	}
	return nil
}

// HDel removes a field from the hash at key.
func (s *Store) HDel(ctx context.Context, key, field string) error {
	if err := s.client.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("cascade/redis: hdel %s %s: %w", key, field, err)
	}
	return nil
}

// HVals returns all values of the hash at key.
func (s *Store) HVals(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.client.HVals(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: hvals %s: %w", key, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// HExists reports whether field is present in the hash at key.
func (s *Store) HExists(ctx context.Context, key, field string) (bool, error) {
	ok, err := s.client.HExists(ctx, key, field).Result()
	if err != nil {
		return false, fmt.Errorf("cascade/redis: hexists %s %s: %w", key, field, err)
	}
	return ok, nil
}

// HScan returns up to count fields of the hash at key. Zero count means
// all fields.
func (s *Store) HScan(ctx context.Context, key string, count int) ([]string, error) {
	var (
		fields []string
		cursor uint64
	)
	scanCount := int64(count)
	if scanCount <= 0 {
		scanCount = 100
	}
	for {
		keys, next, err := s.client.HScan(ctx, key, cursor, "*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("cascade/redis: hscan %s: %w", key, err)
		}
		// HSCAN yields alternating field/value pairs.
		for i := 0; i+1 < len(keys); i += 2 {
			fields = append(fields, keys[i])
			if count > 0 && len(fields) >= count {
				return fields, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return fields, nil
		}
	}
}

// Scan lazily enumerates keys matching a glob-style pattern.
func (s *Store) Scan(ctx context.Context, pattern string, fn func(key string) bool) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cascade/redis: scan %s: %w", pattern, err)
		}
		for _, k := range keys {
			if !fn(k) {
				return nil
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Expire applies a TTL to the key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("cascade/redis: expire %s: %w", key, err)
	}
	return nil
}
