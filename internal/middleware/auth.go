package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

type authKey string

const (
	apiKeyCtxKey        authKey = "api-key"
	licenseKeyCtxKey    authKey = "license-key"
	rawLicenseKeyCtxKey authKey = "raw-license-key"
)

// APIKeyStore resolves brand API keys for authentication.
type APIKeyStore interface {
	GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, now time.Time) error
}

// LicenseKeyStore resolves license keys for product authentication.
type LicenseKeyStore interface {
	GetKeyByHash(ctx context.Context, keyHash string) (*domain.LicenseKey, error)
}

// BrandAuth authenticates brand endpoints via the X-API-Key header.
// The key's last_used_at update is best-effort and never fails the
// request.
func BrandAuth(store APIKeyStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				RenderError(w, r, domain.ErrInvalidAPIKey)
				return
			}

			ctx := r.Context()
			key, err := store.GetByHash(ctx, domain.HashKey(raw))
			if err != nil {
				RenderError(w, r, domain.ErrInvalidAPIKey)
				return
			}
			if !key.IsValid(time.Now().UTC()) {
				RenderError(w, r, domain.ErrInvalidAPIKey)
				return
			}

			if err := store.TouchLastUsed(ctx, key.ID, time.Now().UTC()); err != nil {
				infrastructure.LoggerWithContext(ctx).Warn("api key last_used_at update failed",
					"key_prefix", key.KeyPrefix, "error", err)
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, apiKeyCtxKey, key)))
		})
	}
}

// RequireWriteScope rejects mutations from read-only API keys.
func RequireWriteScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := APIKeyFromContext(r.Context())
		if !ok {
			RenderError(w, r, domain.ErrInvalidAPIKey)
			return
		}
		if !key.AllowsWrite() {
			RenderError(w, r, domain.NewError(domain.CodeForbidden, "API key scope does not permit writes"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyFromContext returns the authenticated API key.
func APIKeyFromContext(ctx context.Context) (*domain.APIKey, bool) {
	key, ok := ctx.Value(apiKeyCtxKey).(*domain.APIKey)
	return key, ok
}

// BrandIDFromContext returns the authenticated brand's ID, or uuid.Nil.
func BrandIDFromContext(ctx context.Context) uuid.UUID {
	if key, ok := APIKeyFromContext(ctx); ok {
		return key.BrandID
	}
	return uuid.Nil
}

// ProductAuth authenticates product endpoints via the X-License-Key
// header, falling back to the license_key query parameter.
func ProductAuth(store LicenseKeyStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-License-Key")
			if raw == "" {
				raw = r.URL.Query().Get("license_key")
			}
			if raw == "" {
				RenderError(w, r, domain.ErrInvalidLicenseKey)
				return
			}

			ctx := r.Context()
			key, err := store.GetKeyByHash(ctx, domain.HashKey(raw))
			if err != nil {
				RenderError(w, r, domain.ErrInvalidLicenseKey)
				return
			}

			ctx = context.WithValue(ctx, licenseKeyCtxKey, key)
			ctx = context.WithValue(ctx, rawLicenseKeyCtxKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LicenseKeyFromContext returns the authenticated license key.
func LicenseKeyFromContext(ctx context.Context) (*domain.LicenseKey, bool) {
	key, ok := ctx.Value(licenseKeyCtxKey).(*domain.LicenseKey)
	return key, ok
}

// RawLicenseKeyFromContext returns the raw license key the caller
// presented. The status cache is keyed by it.
func RawLicenseKeyFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(rawLicenseKeyCtxKey).(string)
	return raw
}
