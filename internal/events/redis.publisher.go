package events

import (
	"context"
	"encoding/json"

	"identity-service/internal/usecase"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const AuthEventsChannel = "auth_events"

// Message is the envelope pushed to realtime subscribers.
type Message struct {
	Type   string      `json:"type"`
	UserID string      `json:"user_id"`
	Data   interface{} `json:"data,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisEventPublisher struct {
	rdb     publisher
	channel string
	logger  *zap.Logger
}

func NewRedisEventPublisher(rdb redis.UniversalClient, logger *zap.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{rdb: rdb, channel: AuthEventsChannel, logger: logger}
}

func (p *RedisEventPublisher) PublishAccountEvent(ctx context.Context, ev *usecase.AccountEvent) error {
	payload, err := json.Marshal(Message{Type: ev.Type, UserID: ev.AccountID, Data: ev})
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish auth event",
			zap.String("type", ev.Type),
			zap.String("account_id", ev.AccountID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
