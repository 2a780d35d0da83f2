package repository

import (
	"context"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// WebhookRepo persists brand webhook subscriptions.
type WebhookRepo struct {
	db *DB
}

// NewWebhookRepo creates a WebhookRepo.
func NewWebhookRepo(db *DB) *WebhookRepo {
	return &WebhookRepo{db: db}
}

const webhookColumns = `id, brand_id, url, secret, events, is_active, max_retries, timeout_seconds, created_at, updated_at`

func scanWebhook(row interface{ Scan(...any) error }) (*domain.WebhookConfig, error) {
	var w domain.WebhookConfig
	err := row.Scan(&w.ID, &w.BrandID, &w.URL, &w.Secret, &w.Events, &w.IsActive,
		&w.MaxRetries, &w.TimeoutSeconds, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a webhook subscription.
func (r *WebhookRepo) Create(ctx context.Context, w *domain.WebhookConfig) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO webhook_configs (id, brand_id, url, secret, events, is_active, max_retries, timeout_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.BrandID, w.URL, w.Secret, w.Events, w.IsActive, w.MaxRetries, w.TimeoutSeconds, w.CreatedAt, w.UpdatedAt,
	)
	return err
}

// ListActiveForEvent returns a brand's active subscriptions that want
// the given event type.
func (r *WebhookRepo) ListActiveForEvent(ctx context.Context, brandID uuid.UUID, eventType string) ([]*domain.WebhookConfig, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_configs
		WHERE brand_id = $1 AND is_active AND $2 = ANY(events)
		ORDER BY created_at`, brandID, eventType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.WebhookConfig
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, w)
	}
	return configs, rows.Err()
}

// ListForBrand returns every subscription of a brand.
func (r *WebhookRepo) ListForBrand(ctx context.Context, brandID uuid.UUID) ([]*domain.WebhookConfig, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT `+webhookColumns+` FROM webhook_configs WHERE brand_id = $1 ORDER BY created_at`,
		brandID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.WebhookConfig
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, w)
	}
	return configs, rows.Err()
}
