package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"licensehub/internal/infrastructure"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the current window closes.
	ResetAt time.Time
}

// FixedWindowLimiter counts requests per key in fixed windows backed by
// Redis INCR, so the count is shared across instances. When Redis is
// unreachable the limiter fails open.
type FixedWindowLimiter struct {
	client *redis.Client
	window time.Duration
}

// NewFixedWindowLimiter creates a limiter with the given window size.
func NewFixedWindowLimiter(client *redis.Client, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{client: client, window: window}
}

// Allow consumes one request from the key's budget for the current
// window and reports the decision. A rejected request still counts
// toward the window.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	now := time.Now().UTC()
	windowStart := now.Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	redisKey := "ratelimit:" + key + ":" + windowStart.Format("20060102150405")

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		infrastructure.LoggerWithContext(ctx).Warn("rate limiter unavailable, failing open", "error", err)
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: resetAt}
	}

	n := int(count.Val())
	remaining := limit - n
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   n <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
