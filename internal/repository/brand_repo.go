package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"licensehub/internal/domain"
)

// BrandRepo persists brands and their products.
type BrandRepo struct {
	db *DB
}

// NewBrandRepo creates a BrandRepo.
func NewBrandRepo(db *DB) *BrandRepo {
	return &BrandRepo{db: db}
}

// CreateBrand inserts a brand.
func (r *BrandRepo) CreateBrand(ctx context.Context, b *domain.Brand) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO brands (id, name, slug, key_prefix, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Name, b.Slug, b.Prefix, b.CreatedAt, b.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.NewError(domain.CodeValidationError, fmt.Sprintf("brand slug already taken: %s", b.Slug))
	}
	return err
}

// GetBrand fetches a brand by ID.
func (r *BrandRepo) GetBrand(ctx context.Context, id uuid.UUID) (*domain.Brand, error) {
	var b domain.Brand
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, name, slug, key_prefix, created_at, updated_at
		FROM brands WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Slug, &b.Prefix, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrBrandNotFound)
	}
	return &b, nil
}

// GetBrandBySlug fetches a brand by its slug.
func (r *BrandRepo) GetBrandBySlug(ctx context.Context, slug string) (*domain.Brand, error) {
	var b domain.Brand
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, name, slug, key_prefix, created_at, updated_at
		FROM brands WHERE slug = $1`, slug,
	).Scan(&b.ID, &b.Name, &b.Slug, &b.Prefix, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrBrandNotFound)
	}
	return &b, nil
}

// UpdateBrand persists a renamed brand.
func (r *BrandRepo) UpdateBrand(ctx context.Context, b *domain.Brand) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE brands SET name = $2, updated_at = $3 WHERE id = $1`,
		b.ID, b.Name, b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBrandNotFound
	}
	return nil
}

// CreateProduct inserts a product under its brand.
func (r *BrandRepo) CreateProduct(ctx context.Context, p *domain.Product) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO products (id, brand_id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.BrandID, p.Name, p.Slug, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.NewError(domain.CodeValidationError, fmt.Sprintf("product slug already taken: %s", p.Slug))
	}
	return err
}

// GetProduct fetches a product by ID.
func (r *BrandRepo) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var p domain.Product
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, brand_id, name, slug, created_at, updated_at
		FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.BrandID, &p.Name, &p.Slug, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrProductNotFound)
	}
	return &p, nil
}

// GetProductBySlug fetches a brand's product by slug.
func (r *BrandRepo) GetProductBySlug(ctx context.Context, brandID uuid.UUID, slug string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, brand_id, name, slug, created_at, updated_at
		FROM products WHERE brand_id = $1 AND slug = $2`, brandID, slug,
	).Scan(&p.ID, &p.BrandID, &p.Name, &p.Slug, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrProductNotFound)
	}
	return &p, nil
}

// ListProducts returns all products of a brand.
func (r *BrandRepo) ListProducts(ctx context.Context, brandID uuid.UUID) ([]*domain.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, brand_id, name, slug, created_at, updated_at
		FROM products WHERE brand_id = $1 ORDER BY created_at`, brandID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Slug, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}
