package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Brand is a tenant. All brand-scoped data is isolated by the API key
// boundary; slug and prefix are immutable once created.
type Brand struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Prefix    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBrand creates a brand, normalising the prefix to upper case.
func NewBrand(name, slug, prefix string) (*Brand, error) {
	if name == "" || len(name) > 255 {
		return nil, NewError(CodeValidationError, "brand name must be 1-255 characters")
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if err := ValidateBrandPrefix(prefix); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Brand{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		Prefix:    prefix,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateBrandPrefix checks the 2-10 char uppercase prefix that leads
// every license key of the brand.
func ValidateBrandPrefix(prefix string) error {
	if len(prefix) < 2 || len(prefix) > 10 {
		return NewError(CodeValidationError, "brand prefix must be 2-10 characters")
	}
	for _, r := range prefix {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return NewError(CodeValidationError, fmt.Sprintf("invalid brand prefix: %s", prefix))
		}
	}
	return nil
}

// Rename returns a copy with a new display name. Slug and prefix are
// immutable.
func (b Brand) Rename(name string) (Brand, error) {
	if name == "" || len(name) > 255 {
		return b, NewError(CodeValidationError, "brand name must be 1-255 characters")
	}
	b.Name = name
	b.UpdatedAt = time.Now().UTC()
	return b, nil
}

// Product is a licensable good owned by a brand. Its lifetime is bound
// to the brand (cascade delete).
type Product struct {
	ID        uuid.UUID
	BrandID   uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProduct creates a product under a brand.
func NewProduct(brandID uuid.UUID, name, slug string) (*Product, error) {
	if brandID == uuid.Nil {
		return nil, NewError(CodeValidationError, "brand id is required")
	}
	if name == "" || len(name) > 255 {
		return nil, NewError(CodeValidationError, "product name must be 1-255 characters")
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Product{
		ID:        uuid.New(),
		BrandID:   brandID,
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
