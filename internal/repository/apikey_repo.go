package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// APIKeyRepo persists brand API keys. Only hashes are stored.
type APIKeyRepo struct {
	db *DB
}

// NewAPIKeyRepo creates an APIKeyRepo.
func NewAPIKeyRepo(db *DB) *APIKeyRepo {
	return &APIKeyRepo{db: db}
}

// Create inserts an API key record.
func (r *APIKeyRepo) Create(ctx context.Context, k *domain.APIKey) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO api_keys (id, brand_id, key_prefix, key_hash, scope, rate_limit, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, k.BrandID, k.KeyPrefix, k.KeyHash, string(k.Scope), k.RateLimit, k.ExpiresAt, k.LastUsedAt, k.CreatedAt,
	)
	return err
}

// GetByHash resolves an API key by the SHA-256 of its raw form.
func (r *APIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var (
		k     domain.APIKey
		scope string
	)
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, brand_id, key_prefix, key_hash, scope, rate_limit, expires_at, last_used_at, created_at
		FROM api_keys WHERE key_hash = $1`, keyHash,
	).Scan(&k.ID, &k.BrandID, &k.KeyPrefix, &k.KeyHash, &scope, &k.RateLimit, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrInvalidAPIKey)
	}
	k.Scope = domain.APIKeyScope(scope)
	return &k, nil
}

// TouchLastUsed records key usage. Best-effort; the auth path ignores
// failures.
func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.db.q(ctx).Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, now.UTC())
	return err
}
