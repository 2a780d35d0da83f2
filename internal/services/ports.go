// Package services implements the application's use cases on top of
// the persistence, cache and event layers. Services depend on small
// store interfaces so tests run against in-memory fakes.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// CatalogStore provides brand and product lookups.
type CatalogStore interface {
	GetBrand(ctx context.Context, id uuid.UUID) (*domain.Brand, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
}

// LicenseStore persists license keys and licenses.
type LicenseStore interface {
	Provision(ctx context.Context, key *domain.LicenseKey, licenses []*domain.License) error
	GetKeyByHash(ctx context.Context, keyHash string) (*domain.LicenseKey, error)
	GetKey(ctx context.Context, id uuid.UUID) (*domain.LicenseKey, error)
	ListKeysByEmail(ctx context.Context, brandID uuid.UUID, email string) ([]*domain.LicenseKey, error)
	GetLicense(ctx context.Context, id uuid.UUID) (*domain.License, error)
	GetLicenseByKeyAndProduct(ctx context.Context, licenseKeyID, productID uuid.UUID) (*domain.License, error)
	ListLicensesByKey(ctx context.Context, licenseKeyID uuid.UUID) ([]*domain.License, error)
	UpdateLicense(ctx context.Context, lic *domain.License) error
	ExpireDue(ctx context.Context, now time.Time) ([]*domain.License, error)
	BrandOfLicense(ctx context.Context, licenseID uuid.UUID) (uuid.UUID, error)
}

// ActivationStore persists seat activations.
type ActivationStore interface {
	Create(ctx context.Context, a *domain.Activation) error
	Update(ctx context.Context, a *domain.Activation) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Activation, error)
	GetByInstance(ctx context.Context, licenseID uuid.UUID, identifier string) (*domain.Activation, error)
	CountActive(ctx context.Context, licenseID uuid.UUID) (int, error)
	List(ctx context.Context, licenseID uuid.UUID, activeOnly bool, identifier string) ([]*domain.Activation, error)
	TouchChecked(ctx context.Context, licenseID uuid.UUID, identifier string, now time.Time) error
}

// Locker serializes seat accounting per license.
type Locker interface {
	WithLicenseLock(ctx context.Context, licenseID uuid.UUID, fn func(ctx context.Context) error) error
}

// StatusCacher caches serialized status payloads keyed by raw license
// key.
type StatusCacher interface {
	Get(ctx context.Context, rawLicenseKey string) ([]byte, bool)
	Set(ctx context.Context, rawLicenseKey string, payload []byte)
	Delete(ctx context.Context, rawLicenseKey string)
}

// Publisher is the event bus seam.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event)
}

// IdempotencySweeper clears expired idempotency records.
type IdempotencySweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditSink records audit trail entries.
type AuditSink interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
}
