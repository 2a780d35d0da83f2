package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// AuditStore is what the audit handler needs from persistence.
type AuditStore interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
}

// NewAuditHandler records every event in the audit trail.
func NewAuditHandler(store AuditStore) Handler {
	return HandlerFunc{
		HandlerName: "audit",
		Fn: func(ctx context.Context, e domain.Event) error {
			return store.Append(ctx, &domain.AuditEntry{
				ID:         uuid.New(),
				BrandID:    e.BrandID,
				EntityType: "event",
				EntityID:   e.AggregateID,
				Action:     e.Type,
				Changes:    e.Data,
				Actor:      "system",
				CreatedAt:  time.Now().UTC(),
			})
		},
	}
}

// KeyResolver resolves a license key record by ID. Events carry only
// the key's ID; invalidation needs the raw key to derive the cache
// slot.
type KeyResolver interface {
	GetKey(ctx context.Context, id uuid.UUID) (*domain.LicenseKey, error)
}

// StatusInvalidator drops the cached status for a raw license key.
type StatusInvalidator interface {
	Delete(ctx context.Context, rawLicenseKey string)
}

// NewCacheInvalidationHandler evicts the status cache entry of the
// license key touched by a state-changing event.
func NewCacheInvalidationHandler(keys KeyResolver, cache StatusInvalidator) Handler {
	return HandlerFunc{
		HandlerName: "cache-invalidation",
		Fn: func(ctx context.Context, e domain.Event) error {
			if e.LicenseKeyID == uuid.Nil {
				return nil
			}
			key, err := keys.GetKey(ctx, e.LicenseKeyID)
			if err != nil {
				return err
			}
			cache.Delete(ctx, key.Key)
			return nil
		},
	}
}

// SubscriptionLister returns a brand's active webhook subscriptions for
// an event type.
type SubscriptionLister interface {
	ListActiveForEvent(ctx context.Context, brandID uuid.UUID, eventType string) ([]*domain.WebhookConfig, error)
}

// Deliverer accepts webhook deliveries for asynchronous dispatch.
type Deliverer interface {
	Enqueue(configs []*domain.WebhookConfig, e domain.Event)
}

// NewWebhookHandler fans an event out to the brand's matching webhook
// subscriptions.
func NewWebhookHandler(subs SubscriptionLister, deliverer Deliverer) Handler {
	return HandlerFunc{
		HandlerName: "webhook",
		Fn: func(ctx context.Context, e domain.Event) error {
			if e.BrandID == uuid.Nil {
				return nil
			}
			configs, err := subs.ListActiveForEvent(ctx, e.BrandID, e.Type)
			if err != nil {
				return err
			}
			if len(configs) > 0 {
				deliverer.Enqueue(configs, e)
			}
			return nil
		},
	}
}

// lifecycleEvents are the state-changing events that invalidate cached
// status.
var lifecycleEvents = []string{
	domain.EventLicenseRenewed,
	domain.EventLicenseSuspended,
	domain.EventLicenseResumed,
	domain.EventLicenseCancelled,
	domain.EventLicenseActivated,
	domain.EventSeatDeactivated,
}

func isLifecycleEvent(eventType string) bool {
	for _, t := range lifecycleEvents {
		if t == eventType {
			return true
		}
	}
	return false
}

// NewBrokerApplier returns the consumer function for the service's own
// durable queue. Cache eviction normally happens in-process; replaying
// it off the broker makes it at-least-once even when an instance dies
// between publishing an event and finishing its local handlers.
func NewBrokerApplier(keys KeyResolver, cache StatusInvalidator) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decode event envelope: %w", err)
		}
		if !isLifecycleEvent(env.Type) || env.LicenseKeyID == "" {
			return nil
		}
		keyID, err := uuid.Parse(env.LicenseKeyID)
		if err != nil {
			return fmt.Errorf("parse license_key_id: %w", err)
		}
		key, err := keys.GetKey(ctx, keyID)
		if err != nil {
			return err
		}
		cache.Delete(ctx, key.Key)
		return nil
	}
}

// RegisterCoreHandlers wires the standard subscriber set onto the bus.
// Nil collaborators skip their handler, so a deployment without Redis
// or webhooks still audits.
func RegisterCoreHandlers(bus *MemoryBus, audit AuditStore, keys KeyResolver, cache StatusInvalidator, subs SubscriptionLister, deliverer Deliverer) {
	if audit != nil {
		bus.Subscribe(NewAuditHandler(audit))
	}
	if keys != nil && cache != nil {
		bus.Subscribe(NewCacheInvalidationHandler(keys, cache), lifecycleEvents...)
	}
	if subs != nil && deliverer != nil {
		bus.Subscribe(NewWebhookHandler(subs, deliverer))
	}
}
