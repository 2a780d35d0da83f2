package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// LicenseStatus is the per-license view inside a key status report.
type LicenseStatus struct {
	LicenseID      uuid.UUID            `json:"license_id"`
	ProductID      uuid.UUID            `json:"product_id"`
	ProductName    string               `json:"product_name"`
	Status         domain.LicenseStatus `json:"status"`
	IsValid        bool                 `json:"is_valid"`
	ExpiresAt      *time.Time           `json:"expires_at"`
	SeatLimit      int                  `json:"seat_limit"`
	SeatsUsed      int                  `json:"seats_used"`
	SeatsRemaining int                  `json:"seats_remaining"`
}

// ActivationStatus is the instance view returned when a status query
// names a specific instance_identifier.
type ActivationStatus struct {
	ID                 uuid.UUID  `json:"id"`
	LicenseID          uuid.UUID  `json:"license_id"`
	InstanceIdentifier string     `json:"instance_identifier"`
	InstanceType       string     `json:"instance_type"`
	IsActive           bool       `json:"is_active"`
	ActivatedAt        time.Time  `json:"activated_at"`
	LastCheckedAt      time.Time  `json:"last_checked_at"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
}

// KeyStatus is the full status report for one license key. IsValid is
// true when any license under the key is valid.
type KeyStatus struct {
	LicenseKeyID        uuid.UUID         `json:"license_key_id"`
	CustomerEmail       string            `json:"customer_email"`
	IsValid             bool              `json:"is_valid"`
	Licenses            []LicenseStatus   `json:"licenses"`
	TotalSeatsUsed      int               `json:"total_seats_used"`
	TotalSeatsAvailable int               `json:"total_seats_available"`
	Activation          *ActivationStatus `json:"activation,omitempty"`
	CheckedAt           time.Time         `json:"checked_at"`
}

// StatusService answers license status queries with a read-through
// cache. Cached entries are short-lived and evicted on every state
// change, so staleness is bounded by the TTL even if an eviction is
// missed.
type StatusService struct {
	catalog     CatalogStore
	licenses    LicenseStore
	activations ActivationStore
	cache       StatusCacher
	now         func() time.Time
}

// NewStatusService creates a StatusService. cache may be nil to
// disable caching.
func NewStatusService(catalog CatalogStore, licenses LicenseStore, activations ActivationStore, cache StatusCacher) *StatusService {
	return &StatusService{catalog: catalog, licenses: licenses, activations: activations, cache: cache, now: time.Now}
}

// GetStatus reports the status of every license under a raw key. Cache
// hits skip the database entirely; misses rebuild the report, store it
// and touch last_checked_at on the key's active seats.
func (s *StatusService) GetStatus(ctx context.Context, rawKey string, instanceIdentifier string) (*KeyStatus, error) {
	// Per-instance queries bypass the cache: they touch a specific
	// activation row.
	if s.cache != nil && instanceIdentifier == "" {
		if payload, ok := s.cache.Get(ctx, rawKey); ok {
			var status KeyStatus
			if err := json.Unmarshal(payload, &status); err == nil {
				return &status, nil
			}
			s.cache.Delete(ctx, rawKey)
		}
	}

	key, err := s.licenses.GetKeyByHash(ctx, domain.HashKey(rawKey))
	if err != nil {
		return nil, err
	}
	status, err := s.buildStatus(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	for _, lic := range status.Licenses {
		if err := s.activations.TouchChecked(ctx, lic.LicenseID, instanceIdentifier, now); err != nil {
			infrastructure.LoggerWithContext(ctx).Warn("touch last_checked_at failed",
				"license_id", lic.LicenseID.String(), "error", err)
		}
	}

	if instanceIdentifier != "" {
		status.Activation = s.findInstance(ctx, status.Licenses, instanceIdentifier)
	}

	if s.cache != nil && instanceIdentifier == "" {
		if payload, err := json.Marshal(status); err == nil {
			s.cache.Set(ctx, rawKey, payload)
		}
	}
	return status, nil
}

func (s *StatusService) buildStatus(ctx context.Context, key *domain.LicenseKey) (*KeyStatus, error) {
	licenses, err := s.licenses.ListLicensesByKey(ctx, key.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	status := &KeyStatus{
		LicenseKeyID:  key.ID,
		CustomerEmail: key.CustomerEmail,
		Licenses:      make([]LicenseStatus, 0, len(licenses)),
		CheckedAt:     now,
	}
	for _, lic := range licenses {
		product, err := s.catalog.GetProduct(ctx, lic.ProductID)
		if err != nil {
			return nil, err
		}
		used, err := s.activations.CountActive(ctx, lic.ID)
		if err != nil {
			return nil, err
		}
		remaining := lic.SeatLimit - used
		if remaining < 0 {
			remaining = 0
		}
		valid := lic.IsValid(now)
		status.Licenses = append(status.Licenses, LicenseStatus{
			LicenseID:      lic.ID,
			ProductID:      lic.ProductID,
			ProductName:    product.Name,
			Status:         lic.Status,
			IsValid:        valid,
			ExpiresAt:      lic.ExpiresAt,
			SeatLimit:      lic.SeatLimit,
			SeatsUsed:      used,
			SeatsRemaining: remaining,
		})
		status.TotalSeatsUsed += used
		status.TotalSeatsAvailable += remaining
		if valid {
			status.IsValid = true
		}
	}
	return status, nil
}

// findInstance locates the activation row for an instance identifier
// across the key's licenses. Missing rows are not an error; the caller
// gets the status document without an activation section.
func (s *StatusService) findInstance(ctx context.Context, licenses []LicenseStatus, identifier string) *ActivationStatus {
	for _, lic := range licenses {
		rows, err := s.activations.List(ctx, lic.LicenseID, false, identifier)
		if err != nil {
			infrastructure.LoggerWithContext(ctx).Warn("instance lookup failed",
				"license_id", lic.LicenseID.String(), "error", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		a := rows[0]
		return &ActivationStatus{
			ID:                 a.ID,
			LicenseID:          a.LicenseID,
			InstanceIdentifier: a.InstanceIdentifier,
			InstanceType:       string(a.InstanceType),
			IsActive:           a.IsActive,
			ActivatedAt:        a.ActivatedAt,
			LastCheckedAt:      a.LastCheckedAt,
			DeactivatedAt:      a.DeactivatedAt,
		}
	}
	return nil
}

// CustomerLicense is one license in a customer lookup, carrying its
// live seat counts.
type CustomerLicense struct {
	License        *domain.License
	ProductName    string
	SeatsUsed      int
	SeatsRemaining int
}

// CustomerKey pairs a license key with its licenses for customer
// lookups.
type CustomerKey struct {
	Key      *domain.LicenseKey
	Licenses []CustomerLicense
}

// ListByEmail returns all of a brand's keys for a customer email,
// including keys whose licenses are cancelled, so support staff see
// full history. Seat counts are read live; product lookups are
// memoized across the result set.
func (s *StatusService) ListByEmail(ctx context.Context, brandID uuid.UUID, email string) ([]CustomerKey, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	keys, err := s.licenses.ListKeysByEmail(ctx, brandID, email)
	if err != nil {
		return nil, err
	}
	products := make(map[uuid.UUID]*domain.Product)
	result := make([]CustomerKey, 0, len(keys))
	for _, key := range keys {
		licenses, err := s.licenses.ListLicensesByKey(ctx, key.ID)
		if err != nil {
			return nil, err
		}
		ck := CustomerKey{Key: key, Licenses: make([]CustomerLicense, 0, len(licenses))}
		for _, lic := range licenses {
			product, ok := products[lic.ProductID]
			if !ok {
				product, err = s.catalog.GetProduct(ctx, lic.ProductID)
				if err != nil {
					return nil, err
				}
				products[lic.ProductID] = product
			}
			used, err := s.activations.CountActive(ctx, lic.ID)
			if err != nil {
				return nil, err
			}
			remaining := lic.SeatLimit - used
			if remaining < 0 {
				remaining = 0
			}
			ck.Licenses = append(ck.Licenses, CustomerLicense{
				License:        lic,
				ProductName:    product.Name,
				SeatsUsed:      used,
				SeatsRemaining: remaining,
			})
		}
		result = append(result, ck)
	}
	return result, nil
}
