package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

// Redis is a Broker backed by Redis pub/sub, for fan-out across API
// instances when Redis is already part of the deployment.
type Redis struct {
	client *redis.Client
	logger *logger.Logger
}

// ConnectRedis creates a Redis-backed broker and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string, log *logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Redis{client: client, logger: log}, nil
}

func redisChannel(conversationID string) string {
	return "conv:" + conversationID
}

// Publish publishes a message to the conversation channel.
func (b *Redis) Publish(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannel(msg.ConversationID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe listens on the conversation channel and forwards decoded
// messages to the handler until unsubscribed.
func (b *Redis) Subscribe(conversationID string, fn Handler) (Subscription, error) {
	pubsub := b.client.Subscribe(context.Background(), redisChannel(conversationID))

	go func() {
		for m := range pubsub.Channel() {
			var msg model.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("dropping undecodable broker payload")
				continue
			}
			fn(msg)
		}
	}()

	return &redisSub{pubsub: pubsub}, nil
}

// Close closes the Redis client.
func (b *Redis) Close() error {
	return b.client.Close()
}

type redisSub struct {
	pubsub *redis.PubSub
}

func (s *redisSub) Unsubscribe() {
	_ = s.pubsub.Close()
}
