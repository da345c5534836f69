package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tidechat/tidechat/internal/config"
	"github.com/tidechat/tidechat/internal/domain"
)

// RedisMessageCache implements MessageCache backed by redis.
type RedisMessageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMessageCache(cfg config.RedisConfig) (*RedisMessageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisMessageCache{client: client, ttl: cfg.CacheTTL}, nil
}

func (c *RedisMessageCache) key(conversationID string) string {
	return fmt.Sprintf("chat:messages:recent:%s", conversationID)
}

func (c *RedisMessageCache) GetRecent(ctx context.Context, conversationID string) ([]domain.MessageRecord, error) {
	data, err := c.client.Get(ctx, c.key(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var records []domain.MessageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached messages: %w", err)
	}
	return records, nil
}

func (c *RedisMessageCache) SetRecent(ctx context.Context, conversationID string, records []domain.MessageRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	if err := c.client.Set(ctx, c.key(conversationID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisMessageCache) Invalidate(ctx context.Context, conversationID string) error {
	return c.client.Del(ctx, c.key(conversationID)).Err()
}

func (c *RedisMessageCache) Close() error {
	return c.client.Close()
}
