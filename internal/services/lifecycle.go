package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// LifecycleService drives license state transitions on behalf of
// brands.
type LifecycleService struct {
	licenses LicenseStore
	bus      Publisher
	now      func() time.Time
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(licenses LicenseStore, bus Publisher) *LifecycleService {
	return &LifecycleService{licenses: licenses, bus: bus, now: time.Now}
}

// getOwned loads a license and verifies it belongs to the acting
// brand. A foreign license reads as not found, never as forbidden, so
// license IDs cannot be probed across tenants.
func (s *LifecycleService) getOwned(ctx context.Context, brandID, licenseID uuid.UUID) (*domain.License, error) {
	lic, err := s.licenses.GetLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	owner, err := s.licenses.BrandOfLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	if owner != brandID {
		return nil, domain.ErrLicenseNotFound
	}
	return lic, nil
}

func (s *LifecycleService) save(ctx context.Context, lic domain.License, e domain.Event, action string) (*domain.License, error) {
	if err := s.licenses.UpdateLicense(ctx, &lic); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, e)
	infrastructure.LoggerWithContext(ctx).Info("license transition",
		"license_id", lic.ID.String(), "action", action, "status", string(lic.Status))
	return &lic, nil
}

// Renew extends a license's expiration. An expired license becomes
// valid again.
func (s *LifecycleService) Renew(ctx context.Context, brandID, licenseID uuid.UUID, newExpiration time.Time) (*domain.License, error) {
	lic, err := s.getOwned(ctx, brandID, licenseID)
	if err != nil {
		return nil, err
	}
	renewed, err := lic.Renew(newExpiration, s.now())
	if err != nil {
		return nil, err
	}
	return s.save(ctx, renewed, domain.NewLicenseRenewed(&renewed, brandID), "renew")
}

// Suspend temporarily disables a valid license.
func (s *LifecycleService) Suspend(ctx context.Context, brandID, licenseID uuid.UUID, reason string) (*domain.License, error) {
	lic, err := s.getOwned(ctx, brandID, licenseID)
	if err != nil {
		return nil, err
	}
	suspended, err := lic.Suspend(s.now())
	if err != nil {
		return nil, err
	}
	return s.save(ctx, suspended, domain.NewLicenseSuspended(&suspended, brandID, reason), "suspend")
}

// Resume re-enables a suspended license.
func (s *LifecycleService) Resume(ctx context.Context, brandID, licenseID uuid.UUID) (*domain.License, error) {
	lic, err := s.getOwned(ctx, brandID, licenseID)
	if err != nil {
		return nil, err
	}
	resumed, err := lic.Resume(s.now())
	if err != nil {
		return nil, err
	}
	return s.save(ctx, resumed, domain.NewLicenseResumed(&resumed, brandID), "resume")
}

// Cancel permanently terminates a license.
func (s *LifecycleService) Cancel(ctx context.Context, brandID, licenseID uuid.UUID, reason string) (*domain.License, error) {
	lic, err := s.getOwned(ctx, brandID, licenseID)
	if err != nil {
		return nil, err
	}
	cancelled, err := lic.Cancel(s.now())
	if err != nil {
		return nil, err
	}
	return s.save(ctx, cancelled, domain.NewLicenseCancelled(&cancelled, brandID, reason), "cancel")
}
