package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/marketplace/internal/domain/catalog"
)

const (
	productColumns = `id, seller_id, category_id, name, description, price, stock, active, image`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	listSellerProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE seller_id = $1 AND (active OR NOT $2)
		ORDER BY name, id`

	ensureCategorySQL = `INSERT INTO categories (seller_id, name) VALUES ($1, $2)
		ON CONFLICT (seller_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	createProductSQL = `INSERT INTO products (seller_id, category_id, name, description, price, stock, active, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	// A negative delta may not take stock below zero. Positive deltas and
	// absolute levels always apply, so backordered stock can be refilled.
	updateProductSQL = `UPDATE products SET
			name   = COALESCE($3::text, name),
			price  = COALESCE($4::numeric, price),
			stock  = COALESCE($5::integer, stock + COALESCE($6::integer, 0)),
			active = COALESCE($7::boolean, active)
		WHERE id = $1 AND seller_id = $2
			AND ($6::integer IS NULL OR $6::integer >= 0 OR stock + $6::integer >= 0)
		RETURNING ` + productColumns
)

var (
	_ catalog.Reader = (*ProductRepository)(nil)
	_ catalog.Writer = (*ProductRepository)(nil)
)

// ProductRepository implements the catalog reader and writer.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetProduct returns a single product by its identifier.
func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// ListBySeller returns the seller's products ordered by name.
func (r *ProductRepository) ListBySeller(ctx context.Context, sellerID int64, activeOnly bool) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listSellerProductsSQL, sellerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing products of seller %d: %w", sellerID, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// EnsureCategory returns the id of the seller's category, creating it if needed.
func (r *ProductRepository) EnsureCategory(ctx context.Context, sellerID int64, name string) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, ensureCategorySQL, sellerID, name).Scan(&id); err != nil {
		if foreignKeyViolation(err) {
			return 0, catalog.ErrUnknownSeller
		}
		return 0, fmt.Errorf("ensuring category %q: %w", name, err)
	}
	return id, nil
}

// CreateProduct inserts p and sets its ID.
func (r *ProductRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL,
		p.SellerID, p.CategoryID, p.Name, p.Description, p.Price, p.Stock, p.Active, p.Image,
	).Scan(&p.ID)
	if err != nil {
		if foreignKeyViolation(err) {
			return catalog.ErrUnknownSeller
		}
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// UpdateProduct applies u in a single statement, so it takes the same row
// lock as order stock decrements.
func (r *ProductRepository) UpdateProduct(ctx context.Context, sellerID, productID int64, u catalog.ProductUpdate) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, updateProductSQL,
		productID, sellerID, u.Name, u.Price, u.Stock, u.StockDelta, u.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("updating product %d: %w", productID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating product %d: %w", productID, err)
	}

	// Nothing matched: the product is missing, owned by another seller, or
	// the delta would leave stock negative.
	current, err := r.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if current.SellerID != sellerID || u.StockDelta == nil {
		return nil, catalog.ErrNotFound
	}
	return nil, &catalog.InsufficientStockError{
		ProductID: productID,
		Requested: -*u.StockDelta,
		Available: current.Stock,
	}
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.SellerID, &p.CategoryID, &p.Name, &p.Description,
		&p.Price, &p.Stock, &p.Active, &p.Image,
	)
	return p, err
}
