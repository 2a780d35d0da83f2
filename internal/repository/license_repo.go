package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// LicenseRepo persists license keys and the licenses they aggregate.
type LicenseRepo struct {
	db *DB
}

// NewLicenseRepo creates a LicenseRepo.
func NewLicenseRepo(db *DB) *LicenseRepo {
	return &LicenseRepo{db: db}
}

// Provision inserts a license key and its licenses in one transaction.
func (r *LicenseRepo) Provision(ctx context.Context, key *domain.LicenseKey, licenses []*domain.License) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		_, err := r.db.q(ctx).Exec(ctx, `
			INSERT INTO license_keys (id, brand_id, key, key_hash, customer_email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			key.ID, key.BrandID, key.Key, key.KeyHash, key.CustomerEmail, key.CreatedAt, key.UpdatedAt,
		)
		if err != nil {
			return err
		}
		for _, lic := range licenses {
			if err := r.insertLicense(ctx, lic); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *LicenseRepo) insertLicense(ctx context.Context, lic *domain.License) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO licenses (id, license_key_id, product_id, status, seat_limit, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		lic.ID, lic.LicenseKeyID, lic.ProductID, string(lic.Status), lic.SeatLimit, lic.ExpiresAt, lic.CreatedAt, lic.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.NewError(domain.CodeValidationError, "a license for this product already exists under the key")
	}
	return err
}

// AddLicense attaches one more license to an existing key.
func (r *LicenseRepo) AddLicense(ctx context.Context, lic *domain.License) error {
	return r.insertLicense(ctx, lic)
}

const licenseKeyColumns = `id, brand_id, key, key_hash, customer_email, created_at, updated_at`

func scanLicenseKey(row interface{ Scan(...any) error }) (*domain.LicenseKey, error) {
	var k domain.LicenseKey
	err := row.Scan(&k.ID, &k.BrandID, &k.Key, &k.KeyHash, &k.CustomerEmail, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// GetKeyByHash resolves a license key by the SHA-256 of its raw form.
func (r *LicenseRepo) GetKeyByHash(ctx context.Context, keyHash string) (*domain.LicenseKey, error) {
	row := r.db.q(ctx).QueryRow(ctx,
		`SELECT `+licenseKeyColumns+` FROM license_keys WHERE key_hash = $1`, keyHash)
	key, err := scanLicenseKey(row)
	if err != nil {
		return nil, notFound(err, domain.ErrInvalidLicenseKey)
	}
	return key, nil
}

// GetKey fetches a license key by ID.
func (r *LicenseRepo) GetKey(ctx context.Context, id uuid.UUID) (*domain.LicenseKey, error) {
	row := r.db.q(ctx).QueryRow(ctx,
		`SELECT `+licenseKeyColumns+` FROM license_keys WHERE id = $1`, id)
	key, err := scanLicenseKey(row)
	if err != nil {
		return nil, notFound(err, domain.ErrLicenseNotFound)
	}
	return key, nil
}

// ListKeysByEmail returns a brand's license keys for a customer email,
// newest first. Keys whose licenses are all cancelled are included.
func (r *LicenseRepo) ListKeysByEmail(ctx context.Context, brandID uuid.UUID, email string) ([]*domain.LicenseKey, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT `+licenseKeyColumns+`
		FROM license_keys
		WHERE brand_id = $1 AND customer_email = $2
		ORDER BY created_at DESC`, brandID, email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*domain.LicenseKey
	for rows.Next() {
		key, err := scanLicenseKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

const licenseColumns = `id, license_key_id, product_id, status, seat_limit, expires_at, created_at, updated_at`

func scanLicense(row interface{ Scan(...any) error }) (*domain.License, error) {
	var (
		lic    domain.License
		status string
	)
	err := row.Scan(&lic.ID, &lic.LicenseKeyID, &lic.ProductID, &status, &lic.SeatLimit, &lic.ExpiresAt, &lic.CreatedAt, &lic.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lic.Status, err = domain.ParseLicenseStatus(status)
	if err != nil {
		return nil, err
	}
	return &lic, nil
}

// GetLicense fetches a license by ID.
func (r *LicenseRepo) GetLicense(ctx context.Context, id uuid.UUID) (*domain.License, error) {
	row := r.db.q(ctx).QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id)
	lic, err := scanLicense(row)
	if err != nil {
		return nil, notFound(err, domain.ErrLicenseNotFound)
	}
	return lic, nil
}

// GetLicenseByKeyAndProduct resolves the license a key grants for one
// product.
func (r *LicenseRepo) GetLicenseByKeyAndProduct(ctx context.Context, licenseKeyID, productID uuid.UUID) (*domain.License, error) {
	row := r.db.q(ctx).QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE license_key_id = $1 AND product_id = $2`,
		licenseKeyID, productID)
	lic, err := scanLicense(row)
	if err != nil {
		return nil, notFound(err, domain.ErrLicenseNotFound)
	}
	return lic, nil
}

// ListLicensesByKey returns every license under a key.
func (r *LicenseRepo) ListLicensesByKey(ctx context.Context, licenseKeyID uuid.UUID) ([]*domain.License, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE license_key_id = $1 ORDER BY created_at`,
		licenseKeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*domain.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

// UpdateLicense persists status and expiration changes.
func (r *LicenseRepo) UpdateLicense(ctx context.Context, lic *domain.License) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE licenses SET status = $2, expires_at = $3, updated_at = $4 WHERE id = $1`,
		lic.ID, string(lic.Status), lic.ExpiresAt, lic.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLicenseNotFound
	}
	return nil
}

// ExpireDue flips every valid license whose expiration has passed to
// expired and returns the affected rows. The status guard in the WHERE
// clause makes concurrent sweeps safe.
func (r *LicenseRepo) ExpireDue(ctx context.Context, now time.Time) ([]*domain.License, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		UPDATE licenses
		SET status = 'expired', updated_at = $1
		WHERE status = 'valid' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING `+licenseColumns, now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []*domain.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, lic)
	}
	return expired, rows.Err()
}

// BrandOfLicense resolves the owning brand of a license through its
// key.
func (r *LicenseRepo) BrandOfLicense(ctx context.Context, licenseID uuid.UUID) (uuid.UUID, error) {
	var brandID uuid.UUID
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT k.brand_id
		FROM licenses l JOIN license_keys k ON k.id = l.license_key_id
		WHERE l.id = $1`, licenseID,
	).Scan(&brandID)
	if err != nil {
		return uuid.Nil, notFound(err, domain.ErrLicenseNotFound)
	}
	return brandID, nil
}
