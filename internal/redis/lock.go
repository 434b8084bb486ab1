package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("schedule lock not acquired")
)

// Locker guards the check-then-insert critical section of appointment writes.
// Keys identify the resources being booked (staff member, room); locking all
// of them keeps two concurrent creations for overlapping intervals from both
// passing their conflict checks.
type Locker interface {
	WithScheduleLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type redisScheduleLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisScheduleLocker creates a locker backed by one Redis key per resource.
func NewRedisScheduleLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisScheduleLocker{
		client: client,
		ttl:    ttl,
	}
}

// LockKeys builds the sorted lock key set for a staff member and an optional room.
// Sorting fixes the acquisition order so two requests touching the same pair of
// resources can never deadlock each other.
func LockKeys(staffID uuid.UUID, room string) []string {
	keys := []string{fmt.Sprintf("lock:sched:staff:%s", staffID.String())}
	if room != "" {
		keys = append(keys, fmt.Sprintf("lock:sched:room:%s", room))
	}
	sort.Strings(keys)
	return keys
}

func (l *redisScheduleLocker) WithScheduleLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	acquired := make([]string, 0, len(keys))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			_ = l.release(ctx, acquired[i], token)
		}
	}()

	for _, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire schedule lock %s: %w", key, err)
		}
		if !ok {
			return ErrLockNotAcquired
		}
		acquired = append(acquired, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisScheduleLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release schedule lock %s: %w", key, err)
	}
	return nil
}
