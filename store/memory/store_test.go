package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/store"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKV_SetGetDelExists(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1" {
		t.Errorf("Get = %q, want v1", got)
	}

	ok, err := s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = (%v, %v), want (true, nil)", ok, err)
	}

	if err := s.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.Exists(ctx, "k")
	if ok {
		t.Error("key still exists after Del")
	}
}

func TestHash_Operations(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.HSet(ctx, "h", "f1", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.HSet(ctx, "h", "f2", []byte("b")); err != nil {
		t.Fatal(err)
	}

	v, err := s.HGet(ctx, "h", "f1")
	if err != nil || string(v) != "a" {
		t.Errorf("HGet = (%q, %v), want (a, nil)", v, err)
	}
	if _, err := s.HGet(ctx, "h", "missing"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound for missing field, got %v", err)
	}

	ok, _ := s.HExists(ctx, "h", "f2")
	if !ok {
		t.Error("HExists(f2) = false")
	}

	vals, err := s.HVals(ctx, "h")
	if err != nil || len(vals) != 2 {
		t.Fatalf("HVals = %d values, want 2", len(vals))
	}
	if string(vals[0]) != "a" || string(vals[1]) != "b" {
		t.Errorf("HVals order = [%q %q], want insertion order [a b]", vals[0], vals[1])
	}

	fields, err := s.HScan(ctx, "h", 1)
	if err != nil || len(fields) != 1 || fields[0] != "f1" {
		t.Errorf("HScan(1) = %v, want [f1]", fields)
	}
	fields, _ = s.HScan(ctx, "h", 0)
	if len(fields) != 2 {
		t.Errorf("HScan(0) = %v, want both fields", fields)
	}

	if err := s.HDel(ctx, "h", "f1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.HExists(ctx, "h", "f1"); ok {
		t.Error("f1 still present after HDel")
	}
}

func TestScan_PatternAndStop(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_ = s.Set(ctx, "workflows:1", []byte("a"))
	_ = s.Set(ctx, "workflows:2", []byte("b"))
	_ = s.HSet(ctx, "jobs:1:Fetch", "f", []byte("c"))

	var keys []string
	if err := s.Scan(ctx, "workflows:*", func(key string) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("scan matched %v, want the two workflow keys", keys)
	}

	// Early stop.
	count := 0
	_ = s.Scan(ctx, "*", func(string) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("stopped scan visited %d keys, want 1", count)
	}
}

func TestExpire_LapsedKeyVanishes(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"))
	if err := s.Expire(ctx, "k", -time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Fatalf("expected expired key to vanish, got %v", err)
	}

	// Expire on a missing key is a no-op.
	if err := s.Expire(ctx, "missing", time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestWithLock_SerializesCriticalSections(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithLock(ctx, "l", time.Second, time.Second, func() error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestWithLock_AcquireTimeout(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithLock(ctx, "l", time.Second, time.Second, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.WithLock(ctx, "l", 20*time.Millisecond, time.Second, func() error {
		t.Error("critical section must not run on timeout")
		return nil
	})
	if !errors.Is(err, cascade.ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	close(release)
}
