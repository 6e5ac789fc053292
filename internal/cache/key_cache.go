package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/rohankatakam/mailgraph/internal/config"
)

// KeyCache remembers keys a store accepted. Neither a hit nor a miss is
// authoritative; only the store is.
type KeyCache interface {
	Contains(ctx context.Context, key string) (bool, error)
	Add(ctx context.Context, keys ...string) error
}

// RedisKeyCache shares known keys between runs and hosts through Redis
type RedisKeyCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	closer func() error
}

// NewRedisKeyCache connects to Redis and verifies connectivity (fail fast on startup)
func NewRedisKeyCache(ctx context.Context, cfg config.RedisConfig) (*RedisKeyCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr missing")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password, // Empty string if no password
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	c := NewRedisKeyCacheFromClient(client, cfg.KeyPrefix, cfg.TTL)
	c.closer = client.Close
	c.logger.Info("redis key cache connected", "addr", cfg.Addr)
	return c, nil
}

// NewRedisKeyCacheFromClient wraps an existing client. A ttl of 0 keeps keys forever.
func NewRedisKeyCacheFromClient(client redis.Cmdable, prefix string, ttl time.Duration) *RedisKeyCache {
	return &RedisKeyCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: slog.Default().With("component", "redis"),
	}
}

// Contains reports whether key was recorded
func (c *RedisKeyCache) Contains(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for key %s: %w", key, err)
	}
	return n > 0, nil
}

// Add records keys in one pipeline round trip
func (c *RedisKeyCache) Add(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Set(ctx, c.prefix+key, 1, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed for %d keys: %w", len(keys), err)
	}

	c.logger.Debug("cache set", "keys", len(keys), "ttl", c.ttl)
	return nil
}

// Close closes the Redis connection if this cache opened it
func (c *RedisKeyCache) Close() error {
	if c.closer == nil {
		return nil
	}
	if err := c.closer(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	c.logger.Info("redis key cache closed")
	return nil
}

// LocalKeyCache keeps known keys in process memory with expiry
type LocalKeyCache struct {
	cache *gocache.Cache
}

// NewLocalKeyCache creates an in-process cache. A ttl of 0 keeps keys forever.
func NewLocalKeyCache(ttl time.Duration) *LocalKeyCache {
	expiry := ttl
	if expiry <= 0 {
		expiry = gocache.NoExpiration
	}
	return &LocalKeyCache{cache: gocache.New(expiry, 10*time.Minute)}
}

// Contains reports whether key was recorded and has not expired
func (c *LocalKeyCache) Contains(ctx context.Context, key string) (bool, error) {
	_, ok := c.cache.Get(key)
	return ok, nil
}

// Add records keys
func (c *LocalKeyCache) Add(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.SetDefault(key, struct{}{})
	}
	return nil
}
