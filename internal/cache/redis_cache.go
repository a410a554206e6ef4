package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telemed-live/videocall-service/internal/config"
	"github.com/telemed-live/videocall-service/internal/domain"
)

// RedisSessionCache caches sessions in Redis, keyed by session ID.
type RedisSessionCache struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionCache connects to Redis and returns a session cache.
func NewRedisSessionCache(cfg config.RedisConfig, prefix string) (*RedisSessionCache, error) {
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

	return &RedisSessionCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisSessionCache) key(sessionID string) string {
	return fmt.Sprintf("%s:id:%s", c.prefix, sessionID)
}

func (c *RedisSessionCache) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached session: %w", err)
	}

	return &session, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := c.client.Set(ctx, c.key(session.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}
