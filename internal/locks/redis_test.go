package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestAcquireRelease(t *testing.T) {
	r := &fakeRedis{keys: map[string]string{}}
	l := NewRedisLocker(r, "checkout", time.Minute, 120*time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, r.keys, "checkout:u1")

	_, err = l.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Acquire(ctx, "u2")
	require.NoError(t, err)
	other()

	release()
	assert.Empty(t, r.keys)

	release2, err := l.Acquire(ctx, "u1")
	require.NoError(t, err)
	release2()
}

func TestRelease_DoesNotStealForeignLease(t *testing.T) {
	r := &fakeRedis{keys: map[string]string{}}
	l := NewRedisLocker(r, "checkout", time.Minute, 0)

	release, err := l.Acquire(context.Background(), "u1")
	require.NoError(t, err)

	// lease expired and another holder took it
	r.keys["checkout:u1"] = "someone-else"
	release()
	assert.Equal(t, "someone-else", r.keys["checkout:u1"])
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	r := &fakeRedis{keys: map[string]string{}}
	l := NewRedisLocker(r, "checkout", time.Minute, 2*time.Second)

	release, err := l.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		release()
	}()

	second, err := l.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	second()
}
