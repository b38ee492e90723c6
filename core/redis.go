package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"argus/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is a thin JSON-valued wrapper over a Redis client, shared by
// the collaborators that keep state in Redis
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// Ping tests the Redis connection
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// SetNX stores value under key only if the key does not exist
func (rc *RedisCache) SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	ok, err := rc.client.SetNX(ctx, key, data, expiration).Result()
	if err != nil {
		metrics.RedisErrors.WithLabelValues("setnx").Inc()
	}
	return ok, err
}

// Get decodes the value under key into dest
func (rc *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		rc.logger.Errorw("Failed to read key", "key", key, "error", err)
		metrics.RedisErrors.WithLabelValues("get").Inc()
		return false, err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		metrics.RedisErrors.WithLabelValues("unmarshal").Inc()
		return false, fmt.Errorf("failed to unmarshal key %s: %w", key, err)
	}
	return true, nil
}

// Keys returns every key with the given prefix, using SCAN so that large
// keyspaces do not block the server
func (rc *RedisCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := rc.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metrics.RedisErrors.WithLabelValues("scan").Inc()
		return nil, err
	}
	return keys, nil
}

// TTL returns the remaining lifetime of key
func (rc *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rc.client.TTL(ctx, key).Result()
}
