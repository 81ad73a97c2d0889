package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace/internal/domain/catalog"
)

// Status is an order lifecycle state.
type Status string

// StatusPending is the state of every newly placed order.
const StatusPending Status = "Pending"

// Order is a durable record of a completed checkout.
type Order struct {
	ID        int64
	BuyerID   int64
	SellerID  int64
	Total     decimal.Decimal
	Status    Status
	Address   Address
	Lines     []Line
	CreatedAt time.Time

	// BuyerName is only filled by seller listings.
	BuyerName string
}

// Line is one product entry of an order.
type Line struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Address is the delivery address copied into the order.
type Address struct {
	Street       string
	Number       string
	Neighborhood string
	City         string
	State        string
	PostalCode   string
}

// missing returns the names of blank required fields.
func (a Address) missing() []string {
	var out []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"street", a.Street},
		{"number", a.Number},
		{"neighborhood", a.Neighborhood},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// TxOptions configures a placement transaction.
type TxOptions struct {
	// LockTimeout bounds each wait for a row lock. Zero means the storage default.
	LockTimeout time.Duration
}

// Tx is the set of writes performed while placing an order. All calls made
// through one Tx commit or roll back together.
type Tx interface {
	catalog.StockWriter

	// InsertOrder stores o and returns its identifier and creation time.
	InsertOrder(ctx context.Context, o *Order) (int64, time.Time, error)
	InsertLine(ctx context.Context, orderID int64, l Line) (int64, error)
}

// Store runs placement transactions.
type Store interface {
	// InTx runs fn inside one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// Reader defines read operations for placed orders.
type Reader interface {
	Get(ctx context.Context, id int64) (*Order, error)
	// ListBySeller returns the seller's orders, newest first, with buyer names.
	ListBySeller(ctx context.Context, sellerID int64) ([]Order, error)
}

// Publisher announces committed orders.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
}

type nopPublisher struct{}

func (nopPublisher) OrderPlaced(context.Context, *Order) error { return nil }

// NopPublisher returns a Publisher that drops every event.
func NopPublisher() Publisher { return nopPublisher{} }
