package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event type names. The wire routing key is "event." + the lowercase
// name.
const (
	EventLicenseKeyCreated  = "LicenseKeyCreated"
	EventLicenseProvisioned = "LicenseProvisioned"
	EventLicenseRenewed     = "LicenseRenewed"
	EventLicenseSuspended   = "LicenseSuspended"
	EventLicenseResumed     = "LicenseResumed"
	EventLicenseCancelled   = "LicenseCancelled"
	EventLicenseActivated   = "LicenseActivated"
	EventSeatDeactivated    = "SeatDeactivated"
)

// AllEventTypes lists every event the service can emit, in a stable
// order.
var AllEventTypes = []string{
	EventLicenseKeyCreated,
	EventLicenseProvisioned,
	EventLicenseRenewed,
	EventLicenseSuspended,
	EventLicenseResumed,
	EventLicenseCancelled,
	EventLicenseActivated,
	EventSeatDeactivated,
}

// Event is a domain event. One concrete type covers all event kinds;
// optional aggregate references are zero UUIDs when not applicable.
// Data carries the typed payload serialized to subscribers.
type Event struct {
	ID           uuid.UUID
	Type         string
	AggregateID  string
	OccurredAt   time.Time
	BrandID      uuid.UUID
	LicenseID    uuid.UUID
	LicenseKeyID uuid.UUID
	Data         map[string]any
}

// RoutingKey returns the broker routing key for this event.
func (e Event) RoutingKey() string {
	return "event." + strings.ToLower(e.Type)
}

func newEvent(eventType, aggregateID string, brandID uuid.UUID, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		BrandID:     brandID,
		Data:        data,
	}
}

// NewLicenseKeyCreated is emitted once per provisioned license key.
func NewLicenseKeyCreated(key *LicenseKey) Event {
	e := newEvent(EventLicenseKeyCreated, key.ID.String(), key.BrandID, map[string]any{
		"license_key_id": key.ID.String(),
		"brand_id":       key.BrandID.String(),
		"customer_email": key.CustomerEmail,
	})
	e.LicenseKeyID = key.ID
	return e
}

// NewLicenseProvisioned is emitted for each license created under a key.
func NewLicenseProvisioned(lic *License, brandID uuid.UUID) Event {
	e := newEvent(EventLicenseProvisioned, lic.ID.String(), brandID, map[string]any{
		"license_id":     lic.ID.String(),
		"license_key_id": lic.LicenseKeyID.String(),
		"product_id":     lic.ProductID.String(),
		"seat_limit":     lic.SeatLimit,
	})
	e.LicenseID = lic.ID
	e.LicenseKeyID = lic.LicenseKeyID
	return e
}

func newLifecycleEvent(eventType string, lic *License, brandID uuid.UUID, extra map[string]any) Event {
	data := map[string]any{
		"license_id":     lic.ID.String(),
		"license_key_id": lic.LicenseKeyID.String(),
		"status":         string(lic.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	e := newEvent(eventType, lic.ID.String(), brandID, data)
	e.LicenseID = lic.ID
	e.LicenseKeyID = lic.LicenseKeyID
	return e
}

// NewLicenseRenewed is emitted after a successful renew.
func NewLicenseRenewed(lic *License, brandID uuid.UUID) Event {
	extra := map[string]any{}
	if lic.ExpiresAt != nil {
		extra["expires_at"] = lic.ExpiresAt.Format(time.RFC3339)
	}
	return newLifecycleEvent(EventLicenseRenewed, lic, brandID, extra)
}

// NewLicenseSuspended is emitted after a successful suspend.
func NewLicenseSuspended(lic *License, brandID uuid.UUID, reason string) Event {
	return newLifecycleEvent(EventLicenseSuspended, lic, brandID, map[string]any{"reason": reason})
}

// NewLicenseResumed is emitted after a successful resume.
func NewLicenseResumed(lic *License, brandID uuid.UUID) Event {
	return newLifecycleEvent(EventLicenseResumed, lic, brandID, nil)
}

// NewLicenseCancelled is emitted after a successful cancel.
func NewLicenseCancelled(lic *License, brandID uuid.UUID, reason string) Event {
	return newLifecycleEvent(EventLicenseCancelled, lic, brandID, map[string]any{"reason": reason})
}

// NewLicenseActivated is emitted after a seat is consumed.
func NewLicenseActivated(a *Activation, licenseKeyID, brandID uuid.UUID) Event {
	e := newEvent(EventLicenseActivated, a.ID.String(), brandID, map[string]any{
		"activation_id":       a.ID.String(),
		"license_id":          a.LicenseID.String(),
		"instance_identifier": a.InstanceIdentifier,
		"instance_type":       string(a.InstanceType),
	})
	e.LicenseID = a.LicenseID
	e.LicenseKeyID = licenseKeyID
	return e
}

// NewSeatDeactivated is emitted after a seat is freed.
func NewSeatDeactivated(a *Activation, licenseKeyID, brandID uuid.UUID) Event {
	e := newEvent(EventSeatDeactivated, a.ID.String(), brandID, map[string]any{
		"activation_id":       a.ID.String(),
		"license_id":          a.LicenseID.String(),
		"instance_identifier": a.InstanceIdentifier,
	})
	e.LicenseID = a.LicenseID
	e.LicenseKeyID = licenseKeyID
	return e
}
