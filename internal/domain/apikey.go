package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKeyScope controls what brand operations a key may perform.
type APIKeyScope string

const (
	ScopeFull APIKeyScope = "full"
	ScopeRead APIKeyScope = "read"
)

// APIKey authenticates brand-scoped operations. Only the SHA-256 hash
// of the raw key is stored; the first 8 characters are kept in plain
// text for display.
type APIKey struct {
	ID         uuid.UUID
	BrandID    uuid.UUID
	KeyPrefix  string
	KeyHash    string
	Scope      APIKeyScope
	RateLimit  int // requests per window; 0 means service default
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// NewAPIKey mints a raw API key for a brand and returns it alongside
// the stored record. The raw key is shown once and never persisted.
func NewAPIKey(brandID uuid.UUID, scope APIKeyScope, expiresAt *time.Time) (raw string, key *APIKey, err error) {
	if brandID == uuid.Nil {
		return "", nil, NewError(CodeValidationError, "brand id is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate api key: %w", err)
	}
	raw = "lsk_" + hex.EncodeToString(buf)
	key = &APIKey{
		ID:        uuid.New(),
		BrandID:   brandID,
		KeyPrefix: raw[:8],
		KeyHash:   HashKey(raw),
		Scope:     scope,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return raw, key, nil
}

// IsValid reports whether the key is usable: present and not expired.
func (k *APIKey) IsValid(now time.Time) bool {
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// AllowsWrite reports whether the key's scope permits mutations.
func (k *APIKey) AllowsWrite() bool {
	return k.Scope == ScopeFull
}
