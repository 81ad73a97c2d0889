package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/order"
)

const (
	setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`

	insertOrderSQL = `INSERT INTO orders (buyer_id, seller_id, total, status,
		street, number, neighborhood, city, state, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND seller_id = $3 AND active
		RETURNING stock`

	decrementStockGuardedSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND seller_id = $3 AND active AND stock >= $2
		RETURNING stock`

	productStockSQL = `SELECT seller_id, stock, active FROM products WHERE id = $1`

	orderColumns = `o.id, o.buyer_id, o.seller_id, o.total, o.status,
		o.street, o.number, o.neighborhood, o.city, o.state, o.postal_code,
		o.created_at, COALESCE(b.name, '')`

	getOrderSQL = `SELECT ` + orderColumns + `
		FROM orders o LEFT JOIN buyers b ON b.id = o.buyer_id
		WHERE o.id = $1`

	listSellerOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o LEFT JOIN buyers b ON b.id = o.buyer_id
		WHERE o.seller_id = $1
		ORDER BY o.created_at DESC, o.id DESC`

	listOrderLinesSQL = `SELECT id, order_id, product_id, quantity, unit_price
		FROM order_lines WHERE order_id = ANY($1)
		ORDER BY order_id, product_id`
)

var (
	_ order.Store  = (*OrderStore)(nil)
	_ order.Reader = (*OrderStore)(nil)
	_ order.Tx     = (*orderTx)(nil)
)

// OrderStore places and reads orders.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx acquires a connection, runs fn in a READ COMMITTED transaction and
// commits on success. The transaction is rolled back and the connection
// released on every other path.
func (s *OrderStore) InTx(ctx context.Context, opts order.TxOptions, fn func(ctx context.Context, tx order.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// No-op once committed.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if opts.LockTimeout > 0 {
		ms := max(opts.LockTimeout.Milliseconds(), 1)
		if _, err := tx.Exec(ctx, setLockTimeoutSQL, strconv.FormatInt(ms, 10)+"ms"); err != nil {
			return fmt.Errorf("setting lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &orderTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Get returns an order with its lines.
func (s *OrderStore) Get(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListBySeller returns the seller's orders, newest first.
func (s *OrderStore) ListBySeller(ctx context.Context, sellerID int64) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listSellerOrdersSQL, sellerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of seller %d: %w", sellerID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of seller %d: %w", sellerID, err)
	}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderStore) attachLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := s.pool.Query(ctx, listOrderLinesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	for _, l := range lines {
		if o, ok := byID[l.OrderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		total  decimal.Decimal
		status string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &total, &status,
		&o.Address.Street, &o.Address.Number, &o.Address.Neighborhood,
		&o.Address.City, &o.Address.State, &o.Address.PostalCode,
		&o.CreatedAt, &o.BuyerName,
	)
	o.Total = total
	o.Status = order.Status(status)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice)
	return l, err
}

// orderTx is the order.Tx bound to one pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) (int64, time.Time, error) {
	var (
		id        int64
		createdAt time.Time
	)
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.BuyerID, o.SellerID, o.Total, string(o.Status),
		o.Address.Street, o.Address.Number, o.Address.Neighborhood,
		o.Address.City, o.Address.State, o.Address.PostalCode,
	).Scan(&id, &createdAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("inserting order: %w", err)
	}
	return id, createdAt, nil
}

func (t *orderTx) InsertLine(ctx context.Context, orderID int64, l order.Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, insertOrderLineSQL, orderID, l.ProductID, l.Quantity, l.UnitPrice).Scan(&id)
	if foreignKeyViolation(err) {
		return 0, &catalog.ProductUnavailableError{ProductID: l.ProductID, Reason: "not found"}
	}
	if err != nil {
		return 0, fmt.Errorf("inserting line for product %d: %w", l.ProductID, err)
	}
	return id, nil
}

// DecrementStock subtracts qty in a single UPDATE. Under StockReject the
// update only matches rows holding at least qty units.
func (t *orderTx) DecrementStock(ctx context.Context, productID, sellerID int64, qty int, policy catalog.StockPolicy) (int, error) {
	query := decrementStockSQL
	if policy == catalog.StockReject {
		query = decrementStockGuardedSQL
	}

	var remaining int
	err := t.tx.QueryRow(ctx, query, productID, qty, sellerID).Scan(&remaining)
	switch {
	case err == nil:
		return remaining, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, t.explainMissedDecrement(ctx, productID, sellerID, qty)
	default:
		return 0, fmt.Errorf("decrementing stock of product %d: %w", productID, err)
	}
}

// explainMissedDecrement works out why a decrement matched no row.
func (t *orderTx) explainMissedDecrement(ctx context.Context, productID, sellerID int64, qty int) error {
	var (
		owner  int64
		stock  int
		active bool
	)
	err := t.tx.QueryRow(ctx, productStockSQL, productID).Scan(&owner, &stock, &active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return &catalog.ProductUnavailableError{ProductID: productID, Reason: "not found"}
	case err != nil:
		return fmt.Errorf("reading stock of product %d: %w", productID, err)
	case owner != sellerID:
		return &catalog.ProductUnavailableError{ProductID: productID, Reason: "sold by another seller"}
	case !active:
		return &catalog.ProductUnavailableError{ProductID: productID, Reason: "inactive"}
	default:
		return &catalog.InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
	}
}
