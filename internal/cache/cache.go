// Package cache provides the Redis-backed license status cache and the
// fixed-window rate limiter. Both degrade gracefully: cache failures
// fall through to the database and the limiter fails open, so Redis
// being down slows the service rather than breaking it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"licensehub/internal/config"
	"licensehub/internal/infrastructure"
)

// NewClient builds a Redis client from configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// StatusKey derives the cache key for a raw license key. The raw key
// never reaches Redis; a truncated SHA-256 stands in for it.
func StatusKey(rawLicenseKey string) string {
	sum := sha256.Sum256([]byte(rawLicenseKey))
	return "license:status:" + hex.EncodeToString(sum[:])[:16]
}

// StatusCache caches serialized license status responses.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache creates a StatusCache with the given entry TTL.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

// Get returns the cached payload for a raw license key, or (nil, false)
// on miss or Redis failure.
func (c *StatusCache) Get(ctx context.Context, rawLicenseKey string) ([]byte, bool) {
	data, err := c.client.Get(ctx, StatusKey(rawLicenseKey)).Bytes()
	if err != nil {
		if err != redis.Nil {
			infrastructure.LoggerWithContext(ctx).Warn("status cache read failed", "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set stores a payload under the raw key's cache slot. Failures are
// logged and swallowed.
func (c *StatusCache) Set(ctx context.Context, rawLicenseKey string, payload []byte) {
	if err := c.client.Set(ctx, StatusKey(rawLicenseKey), payload, c.ttl).Err(); err != nil {
		infrastructure.LoggerWithContext(ctx).Warn("status cache write failed", "error", err)
	}
}

// Delete invalidates the cached status for a raw license key.
func (c *StatusCache) Delete(ctx context.Context, rawLicenseKey string) {
	if err := c.client.Del(ctx, StatusKey(rawLicenseKey)).Err(); err != nil {
		infrastructure.LoggerWithContext(ctx).Warn("status cache invalidation failed", "error", err)
	}
}

// Ping checks cache reachability for health reporting.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
