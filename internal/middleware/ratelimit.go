package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"licensehub/internal/cache"
	"licensehub/internal/domain"
)

// RateLimiter decides whether a keyed request may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) cache.Decision
}

// RateLimit enforces a per-API-key request budget. The default limit
// applies unless the key carries its own. Every response gets the
// X-RateLimit-* headers; rejections add Retry-After.
func RateLimit(limiter RateLimiter, defaultLimit int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := APIKeyFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			limit := defaultLimit
			if key.RateLimit > 0 {
				limit = key.RateLimit
			}

			d := limiter.Allow(r.Context(), key.ID.String(), limit)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := int(time.Until(d.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				RenderError(w, r, domain.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LocalLimiter is the in-process fallback used when Redis is disabled.
// It approximates the fixed window with a token bucket per key.
type LocalLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	limiters map[string]*rate.Limiter
}

// NewLocalLimiter creates a LocalLimiter for the given window.
func NewLocalLimiter(window time.Duration) *LocalLimiter {
	return &LocalLimiter{window: window, limiters: make(map[string]*rate.Limiter)}
}

// Allow implements RateLimiter.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int) cache.Decision {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(limit)/l.window.Seconds()), limit)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	allowed := lim.Allow()
	remaining := int(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return cache.Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(l.window).Truncate(time.Second),
	}
}
