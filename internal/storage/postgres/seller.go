package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/marketplace/internal/domain/seller"
)

const (
	createSellerSQL = `INSERT INTO sellers (kind, name, store_name, slug, email, document, phone,
		street, number, neighborhood, city, state, postal_code, password_hash, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`

	sellerColumns = `id, kind, name, store_name, slug, email, document, phone,
		street, number, neighborhood, city, state, postal_code, active, created_at`

	getSellerBySlugSQL = `SELECT ` + sellerColumns + ` FROM sellers WHERE slug = $1`

	listActiveSellersSQL = `SELECT ` + sellerColumns + ` FROM sellers
		WHERE active ORDER BY store_name, id`

	listSellerSlugsSQL = `SELECT slug FROM sellers`

	upsertBuyerSQL = `INSERT INTO buyers (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	sellerSlugConstraint = "sellers_slug_key"
)

var _ seller.Repository = (*SellerRepository)(nil)

// SellerRepository persists sellers and mirrored buyer names.
type SellerRepository struct {
	pool *pgxpool.Pool
}

// NewSellerRepository returns a SellerRepository that uses the given pool.
func NewSellerRepository(pool *pgxpool.Pool) *SellerRepository {
	return &SellerRepository{pool: pool}
}

// Create inserts s. A slug conflict yields seller.ErrSlugTaken, any other
// unique conflict seller.ErrAlreadyRegistered.
func (r *SellerRepository) Create(ctx context.Context, s *seller.Seller) error {
	err := r.pool.QueryRow(ctx, createSellerSQL,
		string(s.Kind), s.Name, s.StoreName, s.Slug, s.Email, s.Document, s.Phone,
		s.Address.Street, s.Address.Number, s.Address.Neighborhood,
		s.Address.City, s.Address.State, s.Address.PostalCode,
		s.PasswordHash, s.Active,
	).Scan(&s.ID, &s.CreatedAt)
	if err == nil {
		return nil
	}
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == sellerSlugConstraint {
			return seller.ErrSlugTaken
		}
		return seller.ErrAlreadyRegistered
	}
	return fmt.Errorf("creating seller %q: %w", s.Slug, err)
}

// GetBySlug returns the seller with the given slug.
func (r *SellerRepository) GetBySlug(ctx context.Context, slug string) (*seller.Seller, error) {
	rows, err := r.pool.Query(ctx, getSellerBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting seller %q: %w", slug, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSeller)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, seller.ErrNotFound
		}
		return nil, fmt.Errorf("getting seller %q: %w", slug, err)
	}
	return &s, nil
}

// ListActive returns active sellers ordered by store name.
func (r *SellerRepository) ListActive(ctx context.Context) ([]seller.Seller, error) {
	rows, err := r.pool.Query(ctx, listActiveSellersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing sellers: %w", err)
	}
	return pgx.CollectRows(rows, scanSeller)
}

// EachSlug calls fn for every stored slug.
func (r *SellerRepository) EachSlug(ctx context.Context, fn func(slug string)) error {
	rows, err := r.pool.Query(ctx, listSellerSlugsSQL)
	if err != nil {
		return fmt.Errorf("listing slugs: %w", err)
	}
	var slug string
	_, err = pgx.ForEachRow(rows, []any{&slug}, func() error {
		fn(slug)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing slugs: %w", err)
	}
	return nil
}

// UpsertBuyer mirrors a buyer's display name.
func (r *SellerRepository) UpsertBuyer(ctx context.Context, id int64, name string) error {
	if _, err := r.pool.Exec(ctx, upsertBuyerSQL, id, name); err != nil {
		return fmt.Errorf("upserting buyer %d: %w", id, err)
	}
	return nil
}

func scanSeller(row pgx.CollectableRow) (seller.Seller, error) {
	var (
		s    seller.Seller
		kind string
	)
	err := row.Scan(
		&s.ID, &kind, &s.Name, &s.StoreName, &s.Slug, &s.Email, &s.Document, &s.Phone,
		&s.Address.Street, &s.Address.Number, &s.Address.Neighborhood,
		&s.Address.City, &s.Address.State, &s.Address.PostalCode,
		&s.Active, &s.CreatedAt,
	)
	s.Kind = seller.Kind(kind)
	return s, err
}
