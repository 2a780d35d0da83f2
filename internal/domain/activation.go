package domain

import (
	"time"

	"github.com/google/uuid"
)

// Activation records that a license is in use on a specific instance;
// each active activation consumes one seat. (license_id,
// instance_identifier) is unique: at most one row per instance.
type Activation struct {
	ID                 uuid.UUID
	LicenseID          uuid.UUID
	InstanceIdentifier string
	InstanceType       InstanceType
	InstanceMetadata   map[string]any
	ActivatedAt        time.Time
	LastCheckedAt      time.Time
	DeactivatedAt      *time.Time
	IsActive           bool
}

// NewActivation creates an active activation consuming one seat.
func NewActivation(licenseID uuid.UUID, identifier string, instanceType InstanceType, metadata map[string]any) (*Activation, error) {
	if licenseID == uuid.Nil {
		return nil, NewError(CodeValidationError, "license id is required")
	}
	if err := ValidateInstanceIdentifier(identifier); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := time.Now().UTC()
	return &Activation{
		ID:                 uuid.New(),
		LicenseID:          licenseID,
		InstanceIdentifier: identifier,
		InstanceType:       instanceType,
		InstanceMetadata:   metadata,
		ActivatedAt:        now,
		LastCheckedAt:      now,
		IsActive:           true,
	}, nil
}

// Reactivate turns an inactive row active again, overwriting
// activated_at and, when metadata is non-nil, the stored metadata.
// Reactivating an active row is an error (DUPLICATE_ACTIVE).
func (a Activation) Reactivate(metadata map[string]any, now time.Time) (Activation, error) {
	if a.IsActive {
		return a, ErrDuplicateActive
	}
	a.IsActive = true
	a.DeactivatedAt = nil
	a.ActivatedAt = now.UTC()
	a.LastCheckedAt = now.UTC()
	if metadata != nil {
		a.InstanceMetadata = metadata
	}
	return a, nil
}

// Deactivate frees the seat. Deactivating an already inactive row is a
// no-op success.
func (a Activation) Deactivate(now time.Time) Activation {
	if !a.IsActive {
		return a
	}
	t := now.UTC()
	a.IsActive = false
	a.DeactivatedAt = &t
	return a
}

// Touch records a status check against this activation.
func (a Activation) Touch(now time.Time) Activation {
	a.LastCheckedAt = now.UTC()
	return a
}
