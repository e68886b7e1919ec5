package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// RedisStore is a distributed implementation of Store using Redis. Values are
// stored as JSON.
type RedisStore[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
	prefix      string
}

// NewRedisStore creates and connects a new RedisStore. It pings the server
// before returning.
func NewRedisStore[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisStore[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Str("key_prefix", cfg.KeyPrefix).Msg("Successfully connected to Redis.")

	return &RedisStore[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		ttl:         cfg.TTL,
		prefix:      cfg.KeyPrefix,
	}, nil
}

func (c *RedisStore[K, V]) key(key K) string {
	return fmt.Sprintf("%s%v", c.prefix, key)
}

// Set marshals the value to JSON and stores it with the configured TTL.
func (c *RedisStore[K, V]) Set(ctx context.Context, key K, value V) error {
	stringKey := c.key(key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", stringKey, err)
	}
	if err := c.redisClient.Set(ctx, stringKey, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", stringKey, err)
	}
	return nil
}

// SetIfAbsent stores the value with SETNX semantics.
func (c *RedisStore[K, V]) SetIfAbsent(ctx context.Context, key K, value V) (bool, error) {
	stringKey := c.key(key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value for key %s: %w", stringKey, err)
	}
	stored, err := c.redisClient.SetNX(ctx, stringKey, jsonData, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed for key %s: %w", stringKey, err)
	}
	return stored, nil
}

// Fetch retrieves and unmarshals a value from Redis.
func (c *RedisStore[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := c.key(key)
	cachedData, err := c.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		return zero, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}
	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		c.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal stored data.")
		return zero, fmt.Errorf("failed to unmarshal value for key %s: %w", stringKey, err)
	}
	return value, nil
}

// Delete removes a key from Redis.
func (c *RedisStore[K, V]) Delete(ctx context.Context, key K) error {
	stringKey := c.key(key)
	if err := c.redisClient.Del(ctx, stringKey).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", stringKey, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (c *RedisStore[K, V]) Close() error {
	if c.redisClient != nil {
		c.logger.Info().Msg("Closing Redis client connection...")
		return c.redisClient.Close()
	}
	return nil
}
