package domain

import (
	"time"

	"github.com/google/uuid"
)

// Default delivery parameters for webhook subscriptions.
const (
	DefaultWebhookMaxRetries     = 3
	DefaultWebhookTimeoutSeconds = 10
)

// WebhookConfig is a brand-scoped subscription to domain events. Each
// delivery is signed with the shared HMAC secret.
type WebhookConfig struct {
	ID             uuid.UUID
	BrandID        uuid.UUID
	URL            string
	Secret         string
	Events         []string
	IsActive       bool
	MaxRetries     int
	TimeoutSeconds int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscribesTo reports whether this config wants the given event type.
func (w *WebhookConfig) SubscribesTo(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Timeout returns the per-delivery timeout, falling back to the
// default when unset.
func (w *WebhookConfig) Timeout() time.Duration {
	secs := w.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultWebhookTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// Retries returns the retry budget, falling back to the default when
// unset.
func (w *WebhookConfig) Retries() int {
	if w.MaxRetries <= 0 {
		return DefaultWebhookMaxRetries
	}
	return w.MaxRetries
}

// AuditEntry is one append-only row in the audit trail. Entries are
// never mutated or deleted.
type AuditEntry struct {
	ID         uuid.UUID
	BrandID    uuid.UUID
	EntityType string
	EntityID   string
	Action     string
	Changes    map[string]any
	Actor      string
	CreatedAt  time.Time
}

// IdempotencyRecord caches the response of a mutating request so the
// client can safely retry with the same Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	BrandID      uuid.UUID
	StatusCode   int
	ContentType  string
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the cached response is past its TTL.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Pending reports whether the record is a reservation whose request is
// still executing. A reservation has no response yet.
func (r *IdempotencyRecord) Pending() bool {
	return r.StatusCode == 0
}
