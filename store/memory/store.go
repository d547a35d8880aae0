// Package memory is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development;
// expiration is tracked per key and enforced lazily on access.
package memory

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a map-backed store.Store.
type Store struct {
	mu sync.RWMutex

	values map[string][]byte
	hashes map[string]map[string][]byte
	// hashOrder preserves field insertion order per hash so HVals and
	// HScan are deterministic, which the readiness tests rely on.
	hashOrder map[string][]string
	expiry    map[string]time.Time

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		values:    make(map[string][]byte),
		hashes:    make(map[string]map[string][]byte),
		hashOrder: make(map[string][]string),
		expiry:    make(map[string]time.Time),
		locks:     make(map[string]chan struct{}),
	}
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// expired reports whether key has a lapsed TTL. Caller holds at least
// the read lock.
func (m *Store) expired(key string) bool {
	at, ok := m.expiry[key]
	return ok && time.Now().After(at)
}

// purge removes an expired key. Caller holds the write lock.
func (m *Store) purge(key string) {
	delete(m.values, key)
	delete(m.hashes, key)
	delete(m.hashOrder, key)
	delete(m.expiry, key)
}

// ──────────────────────────────────────────────────
// KV — plain keys
// ──────────────────────────────────────────────────

// Get returns the value at key.
func (m *Store) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		m.purge(key)
	}
	v, ok := m.values[key]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Set writes the value at key.
func (m *Store) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	delete(m.expiry, key)
	return nil
}

// Del removes the key.
func (m *Store) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purge(key)
	return nil
}

// Exists reports whether the key is present.
func (m *Store) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		m.purge(key)
	}
	if _, ok := m.values[key]; ok {
		return true, nil
	}
	_, ok := m.hashes[key]
	return ok, nil
}

// ──────────────────────────────────────────────────
// KV — hashes
// ──────────────────────────────────────────────────

// HGet returns the value of field inside the hash at key.
func (m *Store) HGet(_ context.Context, key, field string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		m.purge(key)
	}
	h, ok := m.hashes[key]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	v, ok := h[field]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// HSet writes the value of field inside the hash at key.
func (m *Store) HSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		m.purge(key)
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[key] = h
	}
	if _, present := h[field]; !present {
		m.hashOrder[key] = append(m.hashOrder[key], field)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	h[field] = cp
	return nil
}

// HDel removes a field from the hash at key.
func (m *Store) HDel(_ context.Context, key, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	delete(h, field)
	order := m.hashOrder[key]
	for i, f := range order {
		if f == field {
			m.hashOrder[key] = append(order[:i], order[i+1:]...)
			break
		}
	}
	if len(h) == 0 {
		delete(m.hashes, key)
		delete(m.hashOrder, key)
	}
	return nil
}

// HVals returns all values of the hash at key in insertion order.
func (m *Store) HVals(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		m.purge(key)
	}
	h, ok := m.hashes[key]
	if !ok {
		return nil, nil
	}
	out := make([][]byte, 0, len(h))
	for _, field := range m.hashOrder[key] {
		v := h[field]
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, cp)
	}
	return out, nil
}

// HExists reports whether field is present in the hash at key.
func (m *Store) HExists(_ context.Context, key, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		m.purge(key)
	}
	h, ok := m.hashes[key]
	if !ok {
		return false, nil
	}
	_, ok = h[field]
	return ok, nil
}

// HScan returns up to count fields of the hash at key in insertion
// order. Zero count means all fields.
func (m *Store) HScan(_ context.Context, key string, count int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		m.purge(key)
	}
	order := m.hashOrder[key]
	if count <= 0 || count > len(order) {
		count = len(order)
	}
	out := make([]string, count)
	copy(out, order[:count])
	return out, nil
}

// ──────────────────────────────────────────────────
// Scan / Expire
// ──────────────────────────────────────────────────

// Scan enumerates keys matching a glob-style pattern in sorted order.
func (m *Store) Scan(_ context.Context, pattern string, fn func(key string) bool) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.values)+len(m.hashes))
	for k := range m.values {
		if m.expired(k) {
			m.purge(k)
			continue
		}
		keys = append(keys, k)
	}
	for k := range m.hashes {
		if m.expired(k) {
			m.purge(k)
			continue
		}
		keys = append(keys, k)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		ok, err := path.Match(pattern, k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !fn(k) {
			return nil
		}
	}
	return nil
}

// Expire applies a TTL to the key.
func (m *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, hasVal := m.values[key]
	_, hasHash := m.hashes[key]
	if !hasVal && !hasHash {
		return nil
	}
	m.expiry[key] = time.Now().Add(ttl)
	return nil
}

// TTL reports the expiry recorded for key, if any. Test helper.
func (m *Store) TTL(key string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	at, ok := m.expiry[key]
	return at, ok
}

// ──────────────────────────────────────────────────
// Locker
// ──────────────────────────────────────────────────

// WithLock acquires the named lock, runs fn, and releases it. The hold
// timeout is ignored; an in-process holder cannot crash without also
// taking the store down.
func (m *Store) WithLock(ctx context.Context, name string, acquire, _ time.Duration, fn func() error) error {
	m.lockMu.Lock()
	ch, ok := m.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[name] = ch
	}
	m.lockMu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-time.After(acquire):
		return cascade.ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}

	defer func() { <-ch }()
	return fn()
}
