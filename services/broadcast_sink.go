package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DeliveryResult результат доставки одному адресату (канал или токен)
type DeliveryResult struct {
	Target string
	Err    error
}

// BroadcastMessage сообщение для real-time каналов
type BroadcastMessage struct {
	Channels []string
	Event    string
	Payload  map[string]interface{}
}

// BroadcastSink доставка в real-time каналы. Ошибка одного канала не мешает остальным.
type BroadcastSink interface {
	Name() string
	Broadcast(ctx context.Context, msg BroadcastMessage) []DeliveryResult
}

// Publisher публикация в Redis Pub/Sub. *redis.Client его реализует.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBroadcastSink публикует события в Redis Pub/Sub, откуда их забирает websocket шлюз
type RedisBroadcastSink struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewRedisBroadcastSink создает синк на Redis Pub/Sub
func NewRedisBroadcastSink(publisher Publisher, logger *zap.Logger) *RedisBroadcastSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroadcastSink{publisher: publisher, logger: logger}
}

func (s *RedisBroadcastSink) Name() string { return "broadcast" }

// Broadcast публикует {"event": ..., "data": ...} в каждый канал
func (s *RedisBroadcastSink) Broadcast(ctx context.Context, msg BroadcastMessage) []DeliveryResult {
	body, err := json.Marshal(map[string]interface{}{
		"event": msg.Event,
		"data":  msg.Payload,
	})

	results := make([]DeliveryResult, 0, len(msg.Channels))
	for _, channel := range msg.Channels {
		if err != nil {
			results = append(results, DeliveryResult{Target: channel, Err: fmt.Errorf("ошибка сериализации события: %w", err)})
			continue
		}

		if pubErr := s.publisher.Publish(ctx, channel, body).Err(); pubErr != nil {
			s.logger.Warn("broadcast publish failed", zap.String("channel", channel), zap.Error(pubErr))
			results = append(results, DeliveryResult{Target: channel, Err: pubErr})
			continue
		}
		results = append(results, DeliveryResult{Target: channel})
	}

	s.logger.Debug("event broadcast", zap.String("event", msg.Event), zap.Int("channels", len(msg.Channels)))
	return results
}
