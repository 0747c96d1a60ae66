package database

import (
	"context"
	"fmt"
	"time"

	"backend_fleetwatch/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis инициализирует подключение к Redis.
// При REDIS_ENABLED=false возвращает nil клиент: сервисы переходят на in-memory реализации.
func InitRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, falling back to in-memory implementations")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.MaxConns,
		MinIdleConns: 2,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  300 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", cfg.GetRedisAddr()))
	return client, nil
}
