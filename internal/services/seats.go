package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// ActivationOutcome distinguishes a fresh activation from a
// reactivation of a previously deactivated instance.
type ActivationOutcome string

const (
	OutcomeCreated     ActivationOutcome = "created"
	OutcomeReactivated ActivationOutcome = "reactivated"
)

// ActivationResult reports a successful activation and the seat
// accounting after it.
type ActivationResult struct {
	Activation *domain.Activation
	Outcome    ActivationOutcome
	SeatLimit  int
	SeatsUsed  int
}

// SeatManager owns seat accounting. All seat mutations for one license
// run under that license's row lock, so concurrent activations can
// never exceed the seat limit.
type SeatManager struct {
	licenses    LicenseStore
	activations ActivationStore
	locker      Locker
	bus         Publisher
	now         func() time.Time
}

// NewSeatManager creates a SeatManager.
func NewSeatManager(licenses LicenseStore, activations ActivationStore, locker Locker, bus Publisher) *SeatManager {
	return &SeatManager{
		licenses:    licenses,
		activations: activations,
		locker:      locker,
		bus:         bus,
		now:         time.Now,
	}
}

// Activate consumes a seat on the key's license for the given product.
// The same instance identifier reuses its existing row: active rows
// fail with DUPLICATE_ACTIVE, inactive ones are reactivated in place.
func (s *SeatManager) Activate(ctx context.Context, key *domain.LicenseKey, productID uuid.UUID, identifier string, instanceType domain.InstanceType, metadata map[string]any) (*ActivationResult, error) {
	if err := domain.ValidateInstanceIdentifier(identifier); err != nil {
		return nil, err
	}
	if _, err := domain.ParseInstanceType(string(instanceType)); err != nil {
		return nil, err
	}

	lic, err := s.licenses.GetLicenseByKeyAndProduct(ctx, key.ID, productID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var result *ActivationResult
	err = s.locker.WithLicenseLock(ctx, lic.ID, func(ctx context.Context) error {
		// Re-read under the lock: lifecycle transitions commit against
		// the same row, so the state seen here is the state the seat
		// joins. A suspend or cancel that lands after the lookup above
		// must still reject this activation.
		current, err := s.licenses.GetLicense(ctx, lic.ID)
		if err != nil {
			return err
		}
		if err := current.ValidityError(now); err != nil {
			return err
		}
		lic = current

		existing, err := s.activations.GetByInstance(ctx, lic.ID, identifier)
		switch {
		case err == nil && existing.IsActive:
			return domain.ErrDuplicateActive
		case err != nil && !domain.IsCode(err, domain.CodeActivationNotFound):
			return err
		}

		used, err := s.activations.CountActive(ctx, lic.ID)
		if err != nil {
			return err
		}
		if used >= lic.SeatLimit {
			return domain.ErrSeatLimitExceeded
		}

		if existing != nil {
			reactivated, err := existing.Reactivate(metadata, now)
			if err != nil {
				return err
			}
			if err := s.activations.Update(ctx, &reactivated); err != nil {
				return err
			}
			result = &ActivationResult{Activation: &reactivated, Outcome: OutcomeReactivated, SeatLimit: lic.SeatLimit, SeatsUsed: used + 1}
			return nil
		}

		a, err := domain.NewActivation(lic.ID, identifier, instanceType, metadata)
		if err != nil {
			return err
		}
		if err := s.activations.Create(ctx, a); err != nil {
			return err
		}
		result = &ActivationResult{Activation: a, Outcome: OutcomeCreated, SeatLimit: lic.SeatLimit, SeatsUsed: used + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, domain.NewLicenseActivated(result.Activation, key.ID, key.BrandID))
	infrastructure.LoggerWithContext(ctx).Info("seat activated",
		"license_id", lic.ID.String(),
		"outcome", string(result.Outcome),
		"seats_used", result.SeatsUsed,
		"seat_limit", result.SeatLimit)
	return result, nil
}

// DeactivateForKey frees a seat on behalf of the key holder. The
// activation must belong to a license under the key; otherwise the
// caller is not its owner. Deactivating an inactive seat succeeds
// without effect.
func (s *SeatManager) DeactivateForKey(ctx context.Context, key *domain.LicenseKey, activationID uuid.UUID) (*domain.Activation, error) {
	a, err := s.activations.Get(ctx, activationID)
	if err != nil {
		return nil, err
	}
	lic, err := s.licenses.GetLicense(ctx, a.LicenseID)
	if err != nil {
		return nil, err
	}
	if lic.LicenseKeyID != key.ID {
		return nil, domain.ErrForbidden
	}
	return s.deactivate(ctx, a, key.ID, key.BrandID)
}

// DeactivateForBrand frees a seat on behalf of the owning brand.
func (s *SeatManager) DeactivateForBrand(ctx context.Context, brandID uuid.UUID, activationID uuid.UUID) (*domain.Activation, error) {
	a, err := s.activations.Get(ctx, activationID)
	if err != nil {
		return nil, err
	}
	owner, err := s.licenses.BrandOfLicense(ctx, a.LicenseID)
	if err != nil {
		return nil, err
	}
	if owner != brandID {
		return nil, domain.ErrForbidden
	}
	lic, err := s.licenses.GetLicense(ctx, a.LicenseID)
	if err != nil {
		return nil, err
	}
	return s.deactivate(ctx, a, lic.LicenseKeyID, brandID)
}

func (s *SeatManager) deactivate(ctx context.Context, a *domain.Activation, licenseKeyID, brandID uuid.UUID) (*domain.Activation, error) {
	if !a.IsActive {
		return a, nil
	}

	var deactivated domain.Activation
	err := s.locker.WithLicenseLock(ctx, a.LicenseID, func(ctx context.Context) error {
		current, err := s.activations.Get(ctx, a.ID)
		if err != nil {
			return err
		}
		deactivated = current.Deactivate(s.now())
		return s.activations.Update(ctx, &deactivated)
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, domain.NewSeatDeactivated(&deactivated, licenseKeyID, brandID))
	infrastructure.LoggerWithContext(ctx).Info("seat deactivated",
		"license_id", a.LicenseID.String(), "activation_id", a.ID.String())
	return &deactivated, nil
}

// ListActivations returns a license's activation rows for the key
// holder, optionally filtered to active rows or one instance.
func (s *SeatManager) ListActivations(ctx context.Context, key *domain.LicenseKey, productID uuid.UUID, activeOnly bool, identifier string) ([]*domain.Activation, error) {
	lic, err := s.licenses.GetLicenseByKeyAndProduct(ctx, key.ID, productID)
	if err != nil {
		return nil, err
	}
	return s.activations.List(ctx, lic.ID, activeOnly, identifier)
}
