// Package store defines the typed key-value persistence contract and the
// named-lock contract the engine runs on. Backends: Redis and Memory.
// The store is a single logical instance shared by all workers; every
// operation is atomic at the key level.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get and HGet when the key or field is
// absent. Callers translate it into their own not-found sentinel.
var ErrKeyNotFound = errors.New("store: key not found")

// KV is the typed key-value surface the engine persists through.
// Hash operations address a field inside a hash key, mirroring the
// layout of the workflow keyspace (headers as plain keys, jobs as
// per-class hashes).
type KV interface {
	// Get returns the value at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value at key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Del removes the key. Removing a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// HGet returns the value of field inside the hash at key,
	// or ErrKeyNotFound.
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet writes the value of field inside the hash at key.
	HSet(ctx context.Context, key, field string, value []byte) error

	// HDel removes a field from the hash at key.
	HDel(ctx context.Context, key, field string) error

	// HVals returns all values of the hash at key. A missing hash
	// yields an empty slice.
	HVals(ctx context.Context, key string) ([][]byte, error)

	// HExists reports whether field is present in the hash at key.
	HExists(ctx context.Context, key, field string) (bool, error)

	// HScan returns up to count fields of the hash at key. A zero count
	// means all fields. Ordering is backend-defined.
	HScan(ctx context.Context, key string, count int) ([]string, error)

	// Scan lazily enumerates keys matching a glob-style pattern,
	// invoking fn for each key. fn returning false stops the scan.
	Scan(ctx context.Context, pattern string, fn func(key string) bool) error

	// Expire applies a TTL to the key. Expiring a missing key is a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Locker provides named advisory mutexes, typically implemented atop the
// same store. A held lock self-releases after hold so a crashed worker
// cannot wedge its successors.
type Locker interface {
	// WithLock acquires the named lock, runs fn, and releases. It polls
	// until acquired or acquire elapses, returning ErrLockNotAcquired
	// (via the root package sentinel) on timeout without running fn.
	WithLock(ctx context.Context, name string, acquire, hold time.Duration, fn func() error) error
}

// Store is the aggregate persistence interface a backend implements.
type Store interface {
	KV
	Locker

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases the store connection.
	Close() error
}
