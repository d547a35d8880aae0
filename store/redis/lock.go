package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/id"
)

// releaseScript deletes the lock key only if it still holds our token,
// so a lock that expired and was re-acquired by another worker is never
// released from under them.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// lockKey namespaces lock names away from data keys.
func lockKey(name string) string { return "locks:" + name }

// WithLock acquires the named advisory lock, runs fn, and releases it.
// Acquisition polls with the configured interval until acquire elapses;
// on timeout it returns cascade.ErrLockNotAcquired without running fn.
// The lock key carries a PX of hold so a crashed holder self-releases.
func (s *Store) WithLock(ctx context.Context, name string, acquire, hold time.Duration, fn func() error) error {
	key := lockKey(name)
	token := id.New()
	deadline := time.Now().Add(acquire)

	for {
		ok, err := s.client.SetNX(ctx, key, token, hold).Result()
		if err != nil {
			return fmt.Errorf("cascade/redis: lock %s: %w", name, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return cascade.ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.lockPoll):
		}
	}

	defer func() {
		if _, err := releaseScript.Run(ctx, s.client, []string{key}, token).Result(); err != nil {
			s.logger.Warn("lock release failed",
				slog.String("lock", name),
				slog.String("error", err.Error()),
			)
		}
	}()

	return fn()
}
