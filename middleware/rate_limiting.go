package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Prefix       string                    // Префикс ключа, разделяет лимиты разных маршрутов
	Requests     int                       // Количество запросов
	Window       time.Duration             // Временное окно
	KeyGenerator func(*gin.Context) string // Генератор ключей
}

// DefaultKeyGenerator генерирует ключ на основе IP адреса
func DefaultKeyGenerator(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit создает middleware для ограничения частоты запросов (фиксированное окно в Redis).
// Без Redis и при ошибках Redis запросы пропускаются.
func RateLimit(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if redisClient == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("rate_limit:%s:%s", config.Prefix, config.KeyGenerator(c))

		count, err := hitWindow(ctx, redisClient, key, config.Window)
		if err != nil {
			logger.Warn("rate limit check failed, skipping", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		current := int(count)
		remaining := config.Requests - current
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if current > config.Requests {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":      "error",
				"error":       "Rate limit exceeded",
				"message":     fmt.Sprintf("Too many requests. Limit: %d requests per %v", config.Requests, config.Window),
				"retry_after": config.Window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// hitWindow увеличивает счетчик окна. Ключ создается вместе с TTL в одной транзакции,
// INCR существующий TTL не сбрасывает, поэтому ключ без срока жизни не появится.
func hitWindow(ctx context.Context, client *redis.Client, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// WebhookRateLimit лимит для входящих вебхуков Wialon
func WebhookRateLimit(redisClient *redis.Client, requests int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return RateLimit(redisClient, RateLimitConfig{
		Prefix:       "wialon_webhook",
		Requests:     requests,
		Window:       window,
		KeyGenerator: DefaultKeyGenerator,
	}, logger)
}
