package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisCacheConfig configures the Redis-backed response cache.
type RedisCacheConfig struct {
	Namespace string
}

// RedisCache stores cached responses in Redis so several processes share them.
// Raw keys are kept in an index set to support prefix invalidation.
type RedisCache struct {
	client    redisCommander
	closeFn   func() error
	namespace string
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.UniversalClient, cfg RedisCacheConfig) *RedisCache {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisCacheFromCommander(client, closeFn, cfg)
}

func newRedisCacheFromCommander(client redisCommander, closeFn func() error, cfg RedisCacheConfig) *RedisCache {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "branchscope"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}

	return &RedisCache{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
	}
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	if c == nil || c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	return c.client.Ping(ctx).Err()
}

// Get returns the cached value. Redis errors are reported as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	value, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores value with ttl and indexes key. Non-positive ttls are ignored.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.entryKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := c.client.SAdd(ctx, c.indexKey(), key).Err(); err != nil {
		return fmt.Errorf("index cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes indexed entries whose raw key starts with prefix.
func (c *RedisCache) Invalidate(ctx context.Context, prefix string) error {
	return c.removeMatching(ctx, func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// Clear deletes every indexed entry.
func (c *RedisCache) Clear(ctx context.Context) error {
	return c.removeMatching(ctx, func(string) bool { return true })
}

// GC removes index references whose entries have already expired.
func (c *RedisCache) GC(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}

	keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return
	}
	for _, key := range keys {
		exists, err := c.client.Exists(ctx, c.entryKey(key)).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			_ = c.client.SRem(ctx, c.indexKey(), key).Err()
		}
	}
}

func (c *RedisCache) removeMatching(ctx context.Context, match func(string) bool) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}

	keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list cache index: %w", err)
	}

	var entryKeys []string
	var members []any
	for _, key := range keys {
		if !match(key) {
			continue
		}
		entryKeys = append(entryKeys, c.entryKey(key))
		members = append(members, key)
	}
	if len(entryKeys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, entryKeys...).Err(); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	if err := c.client.SRem(ctx, c.indexKey(), members...).Err(); err != nil {
		return fmt.Errorf("unindex cache entries: %w", err)
	}
	return nil
}

func (c *RedisCache) prefixed(suffix string) string {
	return c.namespace + ":" + suffix
}

func (c *RedisCache) indexKey() string {
	return c.prefixed("cache:index")
}

func (c *RedisCache) entryKey(key string) string {
	return c.prefixed("cache:" + hashKey(key))
}

func hashKey(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
