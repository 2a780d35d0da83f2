package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// keyAlphabet is the character set for generated key segments.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	keySegments      = 4
	keySegmentLength = 4
)

// GenerateLicenseKey produces a key in the shape
// PREFIX-XXXX-XXXX-XXXX-XXXX, each X drawn uniformly from A-Z0-9 with a
// cryptographically secure RNG.
func GenerateLicenseKey(brandPrefix string) (string, error) {
	parts := make([]string, 0, keySegments+1)
	parts = append(parts, strings.ToUpper(brandPrefix))
	alphabetLen := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < keySegments; i++ {
		var sb strings.Builder
		for j := 0; j < keySegmentLength; j++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("generate license key: %w", err)
			}
			sb.WriteByte(keyAlphabet[n.Int64()])
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "-"), nil
}

// HashKey returns the lowercase hex SHA-256 digest used as the lookup
// index for raw license and API keys.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// LicenseKey is the customer-facing credential. One key aggregates one
// or more licenses; the SHA-256 of the printable key is the primary
// lookup index.
type LicenseKey struct {
	ID            uuid.UUID
	BrandID       uuid.UUID
	Key           string
	KeyHash       string
	CustomerEmail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewLicenseKey generates and wraps a fresh key for a brand.
func NewLicenseKey(brandID uuid.UUID, brandPrefix, customerEmail string) (*LicenseKey, error) {
	if brandID == uuid.Nil {
		return nil, NewError(CodeValidationError, "brand id is required")
	}
	if err := ValidateEmail(customerEmail); err != nil {
		return nil, err
	}
	key, err := GenerateLicenseKey(brandPrefix)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &LicenseKey{
		ID:            uuid.New(),
		BrandID:       brandID,
		Key:           key,
		KeyHash:       HashKey(key),
		CustomerEmail: customerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Verify compares a raw key against the stored hash in constant time.
func (k *LicenseKey) Verify(raw string) bool {
	rawHash := HashKey(raw)
	return subtle.ConstantTimeCompare([]byte(k.KeyHash), []byte(rawHash)) == 1
}
