package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stayed held for the whole wait.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker hands out short-lived mutual-exclusion leases keyed by string.
type RedisLocker struct {
	client redisClient
	prefix string
	ttl    time.Duration // lease length; bounds how long a crashed holder blocks others
	wait   time.Duration // total time Acquire polls before giving up
	retry  time.Duration
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client redisClient, prefix string, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, wait: wait, retry: 50 * time.Millisecond}
}

// Acquire blocks until the lease on key is held, wait elapses or ctx ends.
// The returned release func is safe to call once the lease expired.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	full := l.prefix + ":" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	delay := l.retry

	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", full, err)
		}
		if ok {
			return func() {
				// fresh context: the request context may already be done
				l.client.Eval(context.Background(), releaseScript, []string{full}, token)
			}, nil
		}
		if time.Now().Add(delay).After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < time.Second {
			delay *= 2
		}
	}
}
