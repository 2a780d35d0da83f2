package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// IdempotencyStore persists cached responses keyed by
// (Idempotency-Key, brand). Reserve claims the key atomically before
// the request runs; exactly one of two concurrent first requests wins
// it. Put settles the reservation with the response, Release drops an
// unsettled one.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, brandID uuid.UUID, now, expiresAt time.Time) (*domain.IdempotencyRecord, bool, error)
	Put(ctx context.Context, rec *domain.IdempotencyRecord) error
	Release(ctx context.Context, key string, brandID uuid.UUID) error
}

// captureWriter buffers the response so it can be replayed later.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

// Idempotency replays cached responses for mutating requests that
// carry an Idempotency-Key header. A replay is byte-identical to the
// original response and marked with X-Idempotent-Replay. Only brand
// endpoints use this middleware; the key is scoped to the
// authenticated brand.
func Idempotency(store IdempotencyStore, ttl time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := r.Header.Get("Idempotency-Key")
			if idemKey == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			apiKey, ok := APIKeyFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			now := time.Now().UTC()
			existing, won, err := store.Reserve(ctx, idemKey, apiKey.BrandID, now, now.Add(ttl))
			if err != nil {
				// The store is unavailable; run the request rather than
				// refuse it.
				infrastructure.LoggerWithContext(ctx).Warn("idempotency reservation failed",
					"error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !won {
				if existing.Pending() {
					RenderError(w, r, domain.ErrIdempotencyInProgress)
					return
				}
				w.Header().Set("Content-Type", existing.ContentType)
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(existing.StatusCode)
				_, _ = w.Write(existing.ResponseBody)
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r)

			// Only settled outcomes are worth replaying; server errors
			// release the reservation so a retry runs for real.
			if cw.status >= http.StatusInternalServerError || cw.status == 0 {
				if err := store.Release(ctx, idemKey, apiKey.BrandID); err != nil {
					infrastructure.LoggerWithContext(ctx).Warn("idempotency release failed",
						"error", err)
				}
				return
			}
			rec := &domain.IdempotencyRecord{
				Key:          idemKey,
				BrandID:      apiKey.BrandID,
				StatusCode:   cw.status,
				ContentType:  cw.Header().Get("Content-Type"),
				ResponseBody: cw.body.Bytes(),
				CreatedAt:    now,
				ExpiresAt:    now.Add(ttl),
			}
			if err := store.Put(ctx, rec); err != nil {
				infrastructure.LoggerWithContext(ctx).Warn("idempotency record write failed",
					"error", err)
			}
		})
	}
}
