package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// ProvisionItem describes one license to create under a new key.
type ProvisionItem struct {
	ProductID uuid.UUID
	SeatLimit int
	ExpiresAt *time.Time
}

// ProvisionResult carries the freshly minted key and its licenses. The
// raw key appears only here; afterwards the service can only compare
// hashes.
type ProvisionResult struct {
	Key      *domain.LicenseKey
	Licenses []*domain.License
}

// ProvisionService creates license keys with their licenses.
type ProvisionService struct {
	catalog  CatalogStore
	licenses LicenseStore
	bus      Publisher
}

// NewProvisionService creates a ProvisionService.
func NewProvisionService(catalog CatalogStore, licenses LicenseStore, bus Publisher) *ProvisionService {
	return &ProvisionService{catalog: catalog, licenses: licenses, bus: bus}
}

// Provision mints one key for the brand and one license per item,
// atomically. Products must belong to the brand; a foreign product
// reads as not found so tenants cannot probe each other's catalogs.
func (s *ProvisionService) Provision(ctx context.Context, brandID uuid.UUID, customerEmail string, items []ProvisionItem) (*ProvisionResult, error) {
	if len(items) == 0 {
		return nil, domain.NewError(domain.CodeValidationError, "at least one license is required")
	}

	brand, err := s.catalog.GetBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}

	key, err := domain.NewLicenseKey(brand.ID, brand.Prefix, customerEmail)
	if err != nil {
		return nil, err
	}

	licenses := make([]*domain.License, 0, len(items))
	seen := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product.BrandID != brand.ID {
			return nil, domain.ErrProductNotFound
		}
		if seen[item.ProductID] {
			return nil, domain.NewError(domain.CodeValidationError, "duplicate product in provision request")
		}
		seen[item.ProductID] = true

		lic, err := domain.NewLicense(key.ID, item.ProductID, item.SeatLimit, item.ExpiresAt)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}

	if err := s.licenses.Provision(ctx, key, licenses); err != nil {
		return nil, err
	}

	evts := []domain.Event{domain.NewLicenseKeyCreated(key)}
	for _, lic := range licenses {
		evts = append(evts, domain.NewLicenseProvisioned(lic, brand.ID))
	}
	s.bus.Publish(ctx, evts...)

	infrastructure.LoggerWithContext(ctx).Info("license key provisioned",
		"brand_id", brand.ID.String(),
		"license_key_id", key.ID.String(),
		"licenses", len(licenses))

	return &ProvisionResult{Key: key, Licenses: licenses}, nil
}
