// Package catalog describes seller products and their stock.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrUnknownSeller is returned when a product is created for a seller
	// that does not exist.
	ErrUnknownSeller = errors.New("unknown seller")
)

// MaxPrice is the largest price the catalog stores. Prices have at most two
// decimal places.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// CheckPrice returns why price cannot be stored, or "" when it can.
func CheckPrice(price decimal.Decimal) string {
	switch {
	case price.IsNegative():
		return "price must not be negative"
	case !price.Equal(price.Truncate(2)):
		return "price has more than 2 decimal places"
	case price.GreaterThan(MaxPrice):
		return "price exceeds " + MaxPrice.String()
	default:
		return ""
	}
}

// Product is a seller's catalog item.
type Product struct {
	ID          int64
	SellerID    int64
	CategoryID  *int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Active      bool
	Image       []byte
}

// Validate checks a product before it is created.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &InvalidProductError{Field: "name", Reason: "required"}
	}
	if reason := CheckPrice(p.Price); reason != "" {
		return &InvalidProductError{Field: "price", Reason: reason}
	}
	if p.Stock < 0 {
		return &InvalidProductError{Field: "stock", Reason: "must not be negative"}
	}
	return nil
}

// ProductUpdate is a partial product edit. Nil fields are left unchanged.
// Stock sets an absolute level; StockDelta adjusts the current level
// atomically and may not be combined with Stock.
type ProductUpdate struct {
	Name       *string
	Price      *decimal.Decimal
	Stock      *int
	StockDelta *int
	Active     *bool
}

// Validate checks the edit before it is applied.
func (u ProductUpdate) Validate() error {
	switch {
	case u.Name == nil && u.Price == nil && u.Stock == nil && u.StockDelta == nil && u.Active == nil:
		return &InvalidProductError{Reason: "nothing to update"}
	case u.Name != nil && strings.TrimSpace(*u.Name) == "":
		return &InvalidProductError{Field: "name", Reason: "required"}
	case u.Stock != nil && u.StockDelta != nil:
		return &InvalidProductError{Field: "stock_delta", Reason: "cannot be combined with stock"}
	case u.Stock != nil && *u.Stock < 0:
		return &InvalidProductError{Field: "stock", Reason: "must not be negative"}
	case u.StockDelta != nil && *u.StockDelta == 0:
		return &InvalidProductError{Field: "stock_delta", Reason: "must not be zero"}
	}
	if u.Price != nil {
		if reason := CheckPrice(*u.Price); reason != "" {
			return &InvalidProductError{Field: "price", Reason: reason}
		}
	}
	return nil
}

// InvalidProductError reports a product or edit that fails validation.
type InvalidProductError struct {
	Field  string
	Reason string
}

func (e *InvalidProductError) Error() string {
	if e.Field == "" {
		return "invalid product: " + e.Reason
	}
	return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
}

// StockPolicy decides what happens when an order asks for more units than
// are in stock.
type StockPolicy string

const (
	// StockReject fails the order when stock is short. Stock never goes negative.
	StockReject StockPolicy = "reject"
	// StockBackorder always decrements, letting stock go negative.
	StockBackorder StockPolicy = "backorder"
)

// ParseStockPolicy validates a configured policy name.
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch p := StockPolicy(s); p {
	case StockReject, StockBackorder:
		return p, nil
	case "":
		return StockReject, nil
	default:
		return "", errors.Errorf("unknown stock policy %q", s)
	}
}

// InsufficientStockError is returned by DecrementStock under StockReject when
// the product has fewer units than requested, and by UpdateProduct when a
// negative StockDelta would take stock below zero.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d: requested %d, only %d in stock", e.ProductID, e.Requested, e.Available)
}

// ProductUnavailableError is returned when a product cannot be sold: it does
// not exist, is inactive, or belongs to another seller.
type ProductUnavailableError struct {
	ProductID int64
	Reason    string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %d unavailable: %s", e.ProductID, e.Reason)
}

// Reader defines read operations for the catalog.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListBySeller(ctx context.Context, sellerID int64, activeOnly bool) ([]Product, error)
}

// StockWriter decrements stock atomically. Implementations are bound to a
// transaction; the returned value is the stock left after the decrement.
type StockWriter interface {
	DecrementStock(ctx context.Context, productID, sellerID int64, qty int, policy StockPolicy) (int, error)
}

// Writer creates and edits catalog entries.
type Writer interface {
	EnsureCategory(ctx context.Context, sellerID int64, name string) (int64, error)
	CreateProduct(ctx context.Context, p *Product) error
	// UpdateProduct applies u to the seller's product and returns the result.
	// Products of other sellers are reported as ErrNotFound. Stock edits
	// serialize with order stock decrements on the product row.
	UpdateProduct(ctx context.Context, sellerID, productID int64, u ProductUpdate) (*Product, error)
}
