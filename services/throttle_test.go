package services

import (
	"context"
	"errors"
	"testing"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestThrottleKey(t *testing.T) {
	key := ThrottleKey(42, "Panic button")
	assert.Equal(t, key, ThrottleKey(42, "Panic button"))
	assert.NotEqual(t, key, ThrottleKey(43, "Panic button"))
	assert.NotEqual(t, key, ThrottleKey(42, "Speeding"))
	assert.Regexp(t, `^alert_throttle:42:[0-9a-f]{32}$`, key)
}

func TestMemoryThrottleTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	throttle := NewMemoryThrottle(10 * time.Second)
	throttle.now = func() time.Time { return now }
	ctx := context.Background()
	key := ThrottleKey(1, "Panic")

	assert.False(t, throttle.IsThrottled(ctx, key))
	assert.False(t, throttle.ShouldSuppress(ctx, key), "первая метка не подавляет")
	assert.True(t, throttle.IsThrottled(ctx, key))
	assert.True(t, throttle.ShouldSuppress(ctx, key))

	now = now.Add(9 * time.Second)
	assert.True(t, throttle.IsThrottled(ctx, key))

	now = now.Add(time.Second)
	assert.False(t, throttle.IsThrottled(ctx, key), "метка истекает через TTL")
	assert.False(t, throttle.ShouldSuppress(ctx, key))
}

type fakeRedisCommander struct {
	keys      map[string]bool
	existsErr error
	setErr    error
	lastTTL   time.Duration
}

func (f *fakeRedisCommander) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.existsErr != nil {
		return redis.NewIntResult(0, f.existsErr)
	}
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedisCommander) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	f.lastTTL = expiration
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func TestRedisThrottle(t *testing.T) {
	fake := &fakeRedisCommander{keys: map[string]bool{}}
	throttle := NewRedisThrottle(fake, 10*time.Second, nil)
	ctx := context.Background()
	key := ThrottleKey(7, "Speeding")

	assert.False(t, throttle.IsThrottled(ctx, key))
	assert.False(t, throttle.ShouldSuppress(ctx, key))
	assert.Equal(t, 10*time.Second, fake.lastTTL)
	assert.True(t, throttle.IsThrottled(ctx, key))
	assert.True(t, throttle.ShouldSuppress(ctx, key), "конкурентная доставка подавляется SETNX")
}

func TestRedisThrottleFailsOpen(t *testing.T) {
	fake := &fakeRedisCommander{
		keys:      map[string]bool{},
		existsErr: errors.New("connection refused"),
		setErr:    errors.New("connection refused"),
	}
	throttle := NewRedisThrottle(fake, time.Second, nil)

	assert.False(t, throttle.IsThrottled(context.Background(), "k"))
	assert.False(t, throttle.ShouldSuppress(context.Background(), "k"))
}
