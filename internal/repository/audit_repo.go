package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// AuditRepo appends to the audit trail. Rows are never updated or
// deleted.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append writes one audit entry.
func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO audit_log (id, brand_id, entity_type, entity_id, action, changes, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, nilIfZero(e.BrandID), e.EntityType, e.EntityID, e.Action, e.Changes, e.Actor, e.CreatedAt,
	)
	return err
}

// ListByEntity returns the trail for one entity, oldest first.
func (r *AuditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*domain.AuditEntry, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, brand_id, entity_type, entity_id, action, changes, actor, created_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`,
		entityType, entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			brandID *uuid.UUID
		)
		if err := rows.Scan(&e.ID, &brandID, &e.EntityType, &e.EntityID, &e.Action, &e.Changes, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		if brandID != nil {
			e.BrandID = *brandID
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// IdempotencyRepo stores cached responses for replay of retried
// requests.
type IdempotencyRepo struct {
	db *DB
}

// NewIdempotencyRepo creates an IdempotencyRepo.
func NewIdempotencyRepo(db *DB) *IdempotencyRepo {
	return &IdempotencyRepo{db: db}
}

// Get returns the cached record for (key, brand), or NOT_FOUND. Expired
// records are treated as absent and removed opportunistically.
func (r *IdempotencyRepo) Get(ctx context.Context, key string, brandID uuid.UUID) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT key, brand_id, status_code, content_type, response_body, created_at, expires_at
		FROM idempotency_keys WHERE key = $1 AND brand_id = $2`, key, brandID,
	).Scan(&rec.Key, &rec.BrandID, &rec.StatusCode, &rec.ContentType, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, notFound(err, domain.ErrNotFound)
	}
	if rec.Expired(time.Now().UTC()) {
		_, _ = r.db.q(ctx).Exec(ctx,
			`DELETE FROM idempotency_keys WHERE key = $1 AND brand_id = $2`, key, brandID)
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Reserve atomically claims (key, brand) for the caller. The returned
// bool is true when this caller won the claim and must run the
// request; false means another request holds it, and the returned
// record is that request's reservation or stored response. Expired
// rows are reclaimed in place.
func (r *IdempotencyRepo) Reserve(ctx context.Context, key string, brandID uuid.UUID, now, expiresAt time.Time) (*domain.IdempotencyRecord, bool, error) {
	tag, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO idempotency_keys (key, brand_id, status_code, content_type, response_body, created_at, expires_at)
		VALUES ($1, $2, 0, '', ''::bytea, $3, $4)
		ON CONFLICT (key, brand_id) DO UPDATE
		SET status_code = 0, content_type = '', response_body = ''::bytea,
		    created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= $3`,
		key, brandID, now.UTC(), expiresAt.UTC(),
	)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		return nil, true, nil
	}
	existing, err := r.Get(ctx, key, brandID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Put settles a reservation with the response to replay. Only the
// pending row is updated; a response that already landed wins.
func (r *IdempotencyRepo) Put(ctx context.Context, rec *domain.IdempotencyRecord) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE idempotency_keys
		SET status_code = $3, content_type = $4, response_body = $5
		WHERE key = $1 AND brand_id = $2 AND status_code = 0`,
		rec.Key, rec.BrandID, rec.StatusCode, rec.ContentType, rec.ResponseBody,
	)
	return err
}

// Release drops a reservation whose request did not settle, so the
// client's retry can execute for real.
func (r *IdempotencyRepo) Release(ctx context.Context, key string, brandID uuid.UUID) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE key = $1 AND brand_id = $2 AND status_code = 0`,
		key, brandID)
	return err
}

// DeleteExpired clears records past their TTL. Called from the expirer
// loop.
func (r *IdempotencyRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
