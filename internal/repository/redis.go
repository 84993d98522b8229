package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coachdesk/internal/config"
)

const lastPaymentSyncKey = "payment_sync:last"

type RedisSyncStateRepository struct {
	client *redis.Client
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisSyncStateRepository(client *redis.Client) *RedisSyncStateRepository {
	return &RedisSyncStateRepository{client: client}
}

func (r *RedisSyncStateRepository) GetLastPaymentSync(ctx context.Context) (time.Time, error) {
	if r.client == nil {
		return time.Time{}, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, lastPaymentSyncKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last payment sync: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last payment sync %q: %w", val, err)
	}
	return at, nil
}

func (r *RedisSyncStateRepository) SetLastPaymentSync(ctx context.Context, at time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, lastPaymentSyncKey, at.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last payment sync: %w", err)
	}
	return nil
}

func (r *RedisSyncStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := fmt.Sprintf("rate_limit:%s", key)
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
	}

	return count <= int64(limit), nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close shuts down the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
