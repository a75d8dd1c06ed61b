package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/medagenda/clinic-scheduling/pkg/logging"
)

// Locker serializes writers contending for the same slot. It is a fast path
// only: the database uniqueness constraint remains the source of truth, so
// a lock that cannot be acquired never blocks the write.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisSlotLocker creates a locker keyed per slot.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration, logger *logging.Logger) Locker {
	if logger == nil {
		logger = logging.Default()
	}
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// WithSlotLock runs fn, holding the slot lock when it can be acquired.
// Redis unavailability or a contended lock degrade to running fn unguarded.
func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	key := "lock:slot:" + slotKey
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("slot lock unavailable, falling through to constraint", "key", key, "error", err)
		return fn(ctx)
	}
	if !ok {
		// Another writer holds the slot. Let the constraint arbitrate.
		return fn(ctx)
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn directly. Used when Redis is not configured.
type NoopLocker struct{}

func (NoopLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
