package domain

import (
	"time"

	"github.com/google/uuid"
)

// License grants use of one product under one license key, bounded by a
// seat limit and optional expiration. The seat limit is immutable after
// creation.
type License struct {
	ID           uuid.UUID
	LicenseKeyID uuid.UUID
	ProductID    uuid.UUID
	Status       LicenseStatus
	SeatLimit    int
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewLicense creates a license in the valid state.
func NewLicense(licenseKeyID, productID uuid.UUID, seatLimit int, expiresAt *time.Time) (*License, error) {
	if licenseKeyID == uuid.Nil {
		return nil, NewError(CodeValidationError, "license key id is required")
	}
	if productID == uuid.Nil {
		return nil, NewError(CodeValidationError, "product id is required")
	}
	if seatLimit < 1 {
		return nil, NewError(CodeValidationError, "seat limit must be at least 1")
	}
	now := time.Now().UTC()
	return &License{
		ID:           uuid.New(),
		LicenseKeyID: licenseKeyID,
		ProductID:    productID,
		Status:       StatusValid,
		SeatLimit:    seatLimit,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsValid reports whether the license is usable at the given instant:
// status valid and not past its expiration. An expires_at exactly equal
// to now counts as expired.
func (l License) IsValid(now time.Time) bool {
	if l.Status != StatusValid {
		return false
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Renew extends the expiration. Renewing an expired license brings it
// back to valid; cancelled licenses cannot be renewed. The new
// expiration must be in the future.
func (l License) Renew(newExpiration time.Time, now time.Time) (License, error) {
	if l.Status == StatusCancelled {
		return l, ErrInvalidLicenseStatus
	}
	if !newExpiration.After(now) {
		return l, ErrInvalidExpiration
	}
	if l.Status == StatusExpired {
		l.Status = StatusValid
	}
	exp := newExpiration.UTC()
	l.ExpiresAt = &exp
	l.UpdatedAt = now.UTC()
	return l, nil
}

// Suspend moves a valid license to suspended. Suspending an already
// suspended, cancelled or expired license is an error.
func (l License) Suspend(now time.Time) (License, error) {
	if l.Status != StatusValid {
		return l, ErrInvalidLicenseStatus
	}
	l.Status = StatusSuspended
	l.UpdatedAt = now.UTC()
	return l, nil
}

// Resume moves a suspended license back to valid. It applies only to
// suspended licenses.
func (l License) Resume(now time.Time) (License, error) {
	if l.Status != StatusSuspended {
		return l, ErrInvalidLicenseStatus
	}
	l.Status = StatusValid
	l.UpdatedAt = now.UTC()
	return l, nil
}

// Cancel is terminal: cancelling twice is an error and no transition
// leads out of cancelled.
func (l License) Cancel(now time.Time) (License, error) {
	if l.Status == StatusCancelled {
		return l, ErrInvalidLicenseStatus
	}
	l.Status = StatusCancelled
	l.UpdatedAt = now.UTC()
	return l, nil
}

// MarkExpired is the sweep transition. Only valid licenses whose
// expires_at is in the past may be marked expired.
func (l License) MarkExpired(now time.Time) (License, error) {
	if l.Status != StatusValid {
		return l, ErrInvalidLicenseStatus
	}
	if l.ExpiresAt == nil || l.ExpiresAt.After(now) {
		return l, ErrInvalidLicenseStatus
	}
	l.Status = StatusExpired
	l.UpdatedAt = now.UTC()
	return l, nil
}

// ValidityError maps the license's state to the domain error an
// activation attempt should fail with. Returns nil when the license is
// valid.
func (l License) ValidityError(now time.Time) error {
	if l.IsValid(now) {
		return nil
	}
	switch l.Status {
	case StatusSuspended:
		return ErrLicenseSuspended
	case StatusCancelled:
		return ErrLicenseCancelled
	case StatusExpired:
		return ErrLicenseExpired
	default:
		// Status is valid but expires_at has passed; the sweep has not
		// caught up yet.
		return ErrLicenseExpired
	}
}
