package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ThrottleCache окно подавления повторных алертов
type ThrottleCache interface {
	// IsThrottled проверяет наличие метки без побочных эффектов
	IsThrottled(ctx context.Context, key string) bool
	// ShouldSuppress ставит метку на TTL при первом обращении и возвращает false.
	// Пока метка жива, возвращает true.
	ShouldSuppress(ctx context.Context, key string) bool
}

// ThrottleKey ключ подавления для пары (юнит Wialon, тип алерта)
func ThrottleKey(unitID int64, alertType string) string {
	sum := md5.Sum([]byte(alertType))
	return fmt.Sprintf("alert_throttle:%d:%s", unitID, hex.EncodeToString(sum[:]))
}

// RedisCommander команды Redis, которые использует троттлинг. *redis.Client его реализует.
type RedisCommander interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisThrottle троттлинг на Redis (SET NX EX)
type RedisThrottle struct {
	redis  RedisCommander
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisThrottle создает троттлинг на Redis
func NewRedisThrottle(client RedisCommander, ttl time.Duration, logger *zap.Logger) *RedisThrottle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisThrottle{redis: client, ttl: ttl, logger: logger}
}

// IsThrottled при недоступности Redis пропускает алерт
func (t *RedisThrottle) IsThrottled(ctx context.Context, key string) bool {
	n, err := t.redis.Exists(ctx, key).Result()
	if err != nil {
		t.logger.Warn("throttle lookup failed, letting alert through", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// ShouldSuppress атомарно ставит метку через SETNX
func (t *RedisThrottle) ShouldSuppress(ctx context.Context, key string) bool {
	set, err := t.redis.SetNX(ctx, key, 1, t.ttl).Result()
	if err != nil {
		t.logger.Warn("throttle mark failed, letting alert through", zap.String("key", key), zap.Error(err))
		return false
	}
	return !set
}

// MemoryThrottle троттлинг в памяти процесса, используется без Redis и в тестах
type MemoryThrottle struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryThrottle создает троттлинг в памяти
func NewMemoryThrottle(ttl time.Duration) *MemoryThrottle {
	return &MemoryThrottle{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsThrottled проверяет, жива ли метка
func (t *MemoryThrottle) IsThrottled(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aliveLocked(key)
}

// ShouldSuppress ставит метку, если её нет
func (t *MemoryThrottle) ShouldSuppress(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.aliveLocked(key) {
		return true
	}
	t.entries[key] = t.now().Add(t.ttl)
	return false
}

func (t *MemoryThrottle) aliveLocked(key string) bool {
	expires, ok := t.entries[key]
	if !ok {
		return false
	}
	if !t.now().Before(expires) {
		delete(t.entries, key)
		return false
	}
	return true
}
