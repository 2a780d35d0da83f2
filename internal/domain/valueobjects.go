package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// LicenseStatus is the lifecycle state of a license.
type LicenseStatus string

const (
	StatusValid     LicenseStatus = "valid"
	StatusSuspended LicenseStatus = "suspended"
	StatusCancelled LicenseStatus = "cancelled"
	StatusExpired   LicenseStatus = "expired"
)

// ParseLicenseStatus converts a stored string into a LicenseStatus.
func ParseLicenseStatus(s string) (LicenseStatus, error) {
	switch LicenseStatus(s) {
	case StatusValid, StatusSuspended, StatusCancelled, StatusExpired:
		return LicenseStatus(s), nil
	}
	return "", fmt.Errorf("unknown license status %q", s)
}

// InstanceType classifies the runtime location a product is deployed on.
type InstanceType string

const (
	InstanceURL       InstanceType = "url"
	InstanceHostname  InstanceType = "hostname"
	InstanceMachineID InstanceType = "machine_id"
)

// ParseInstanceType validates an instance type string.
func ParseInstanceType(s string) (InstanceType, error) {
	switch InstanceType(s) {
	case InstanceURL, InstanceHostname, InstanceMachineID:
		return InstanceType(s), nil
	}
	return "", ErrInvalidInstanceIdentifier
}

// MaxInstanceIdentifierLength bounds the identifier column.
const MaxInstanceIdentifierLength = 500

// ValidateInstanceIdentifier checks the identifier is non-empty and
// within the storage bound.
func ValidateInstanceIdentifier(identifier string) error {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" || len(identifier) > MaxInstanceIdentifierLength {
		return ErrInvalidInstanceIdentifier
	}
	return nil
}

// ValidateEmail checks that s parses as an address.
func ValidateEmail(s string) error {
	if _, err := mail.ParseAddress(s); err != nil {
		return NewError(CodeValidationError, fmt.Sprintf("invalid email address: %s", s))
	}
	return nil
}

// ValidateSlug checks a URL-safe slug (alphanumerics plus - and _).
func ValidateSlug(s string) error {
	if s == "" || len(s) > 100 {
		return NewError(CodeValidationError, "slug must be 1-100 characters")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return NewError(CodeValidationError, fmt.Sprintf("invalid slug: %s", s))
		}
	}
	return nil
}
