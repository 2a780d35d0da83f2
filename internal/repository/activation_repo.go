package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// ActivationRepo persists seat activations.
type ActivationRepo struct {
	db *DB
}

// NewActivationRepo creates an ActivationRepo.
func NewActivationRepo(db *DB) *ActivationRepo {
	return &ActivationRepo{db: db}
}

const activationColumns = `id, license_id, instance_identifier, instance_type, instance_metadata,
	is_active, activated_at, last_checked_at, deactivated_at`

func scanActivation(row interface{ Scan(...any) error }) (*domain.Activation, error) {
	var (
		a            domain.Activation
		instanceType string
	)
	err := row.Scan(&a.ID, &a.LicenseID, &a.InstanceIdentifier, &instanceType, &a.InstanceMetadata,
		&a.IsActive, &a.ActivatedAt, &a.LastCheckedAt, &a.DeactivatedAt)
	if err != nil {
		return nil, err
	}
	a.InstanceType = domain.InstanceType(instanceType)
	return &a, nil
}

// Create inserts an activation. A unique violation on (license_id,
// instance_identifier) surfaces as DUPLICATE_ACTIVE.
func (r *ActivationRepo) Create(ctx context.Context, a *domain.Activation) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO activations (id, license_id, instance_identifier, instance_type, instance_metadata,
			is_active, activated_at, last_checked_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.LicenseID, a.InstanceIdentifier, string(a.InstanceType), a.InstanceMetadata,
		a.IsActive, a.ActivatedAt, a.LastCheckedAt, a.DeactivatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateActive
	}
	return err
}

// Update persists activation state changes.
func (r *ActivationRepo) Update(ctx context.Context, a *domain.Activation) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE activations
		SET instance_metadata = $2, is_active = $3, activated_at = $4, last_checked_at = $5, deactivated_at = $6
		WHERE id = $1`,
		a.ID, a.InstanceMetadata, a.IsActive, a.ActivatedAt, a.LastCheckedAt, a.DeactivatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivationNotFound
	}
	return nil
}

// Get fetches an activation by ID.
func (r *ActivationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Activation, error) {
	row := r.db.q(ctx).QueryRow(ctx,
		`SELECT `+activationColumns+` FROM activations WHERE id = $1`, id)
	a, err := scanActivation(row)
	if err != nil {
		return nil, notFound(err, domain.ErrActivationNotFound)
	}
	return a, nil
}

// GetByInstance fetches the activation row for one instance of a
// license, active or not.
func (r *ActivationRepo) GetByInstance(ctx context.Context, licenseID uuid.UUID, identifier string) (*domain.Activation, error) {
	row := r.db.q(ctx).QueryRow(ctx,
		`SELECT `+activationColumns+` FROM activations WHERE license_id = $1 AND instance_identifier = $2`,
		licenseID, identifier)
	a, err := scanActivation(row)
	if err != nil {
		return nil, notFound(err, domain.ErrActivationNotFound)
	}
	return a, nil
}

// CountActive returns the number of seats currently consumed.
func (r *ActivationRepo) CountActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	var n int
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT count(*) FROM activations WHERE license_id = $1 AND is_active`, licenseID,
	).Scan(&n)
	return n, err
}

// List returns a license's activations, optionally restricted to
// active rows or to one instance identifier.
func (r *ActivationRepo) List(ctx context.Context, licenseID uuid.UUID, activeOnly bool, identifier string) ([]*domain.Activation, error) {
	query := `SELECT ` + activationColumns + ` FROM activations WHERE license_id = $1`
	args := []any{licenseID}
	if activeOnly {
		query += ` AND is_active`
	}
	if identifier != "" {
		args = append(args, identifier)
		query += ` AND instance_identifier = $2`
	}
	query += ` ORDER BY activated_at`

	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activations []*domain.Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, err
		}
		activations = append(activations, a)
	}
	return activations, rows.Err()
}

// TouchChecked records a status check on a license's active seats. The
// update is best-effort bookkeeping; callers ignore the error.
func (r *ActivationRepo) TouchChecked(ctx context.Context, licenseID uuid.UUID, identifier string, now time.Time) error {
	query := `UPDATE activations SET last_checked_at = $2 WHERE license_id = $1 AND is_active`
	args := []any{licenseID, now.UTC()}
	if identifier != "" {
		args = append(args, identifier)
		query += ` AND instance_identifier = $3`
	}
	_, err := r.db.q(ctx).Exec(ctx, query, args...)
	return err
}
