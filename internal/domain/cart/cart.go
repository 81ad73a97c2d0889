// Package cart holds the buyer's pre-checkout selection.
package cart

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Line is a single product entry in a cart. Price, seller and name are
// snapshotted when the product is first added.
type Line struct {
	ProductID int64
	SellerID  int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart maps product identifiers to lines. The zero value is not usable; call New.
type Cart struct {
	lines map[int64]*Line
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{lines: make(map[int64]*Line)}
}

// FromLines builds a cart from a stored snapshot. Lines for the same product
// are merged.
func FromLines(lines []Line) *Cart {
	c := New()
	for _, l := range lines {
		c.Add(l)
	}
	return c
}

// Add inserts the line, or increments the quantity of an existing line for the
// same product. Snapshot values of an existing line are kept.
func (c *Cart) Add(l Line) {
	if existing, ok := c.lines[l.ProductID]; ok {
		existing.Quantity += l.Quantity
		return
	}
	c.lines[l.ProductID] = &l
}

// AdjustQuantity adds delta to the line quantity and drops the line when the
// result is not positive. Unknown products are ignored.
func (c *Cart) AdjustQuantity(productID int64, delta int) {
	l, ok := c.lines[productID]
	if !ok {
		return
	}
	l.Quantity += delta
	if l.Quantity <= 0 {
		delete(c.lines, productID)
	}
}

// Remove deletes the line for productID if present.
func (c *Cart) Remove(productID int64) {
	delete(c.lines, productID)
}

// Total returns the sum of all line subtotals.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Len returns the number of distinct products.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Line returns a copy of the line for productID.
func (c *Cart) Line(productID int64) (Line, bool) {
	l, ok := c.lines[productID]
	if !ok {
		return Line{}, false
	}
	return *l, true
}

// Lines returns a copy of all lines ordered by product identifier.
func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, *l)
	}
	slices.SortFunc(out, func(a, b Line) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out
}

// SellerID returns the seller shared by every line. It reports false for an
// empty cart, one that mixes sellers, or one holding a line without a seller.
func (c *Cart) SellerID() (int64, bool) {
	var seller int64
	for _, l := range c.lines {
		if l.SellerID == 0 || (seller != 0 && seller != l.SellerID) {
			return 0, false
		}
		seller = l.SellerID
	}
	return seller, seller != 0
}

// ErrConflict is returned by Store.Update when the cart kept changing under
// concurrent writes.
var ErrConflict = errors.New("cart modified concurrently")

// Store persists carts between requests, keyed by buyer.
type Store interface {
	// Get returns the buyer's cart, or an empty cart when none is stored.
	Get(ctx context.Context, buyerID int64) (*Cart, error)
	// Save replaces the stored cart. Saving an empty cart clears it.
	Save(ctx context.Context, buyerID int64, c *Cart) error
	// Update applies fn to the stored cart and saves the result only if no
	// other write happened in between. An error from fn aborts the update
	// and is returned unchanged.
	Update(ctx context.Context, buyerID int64, fn func(c *Cart) error) (*Cart, error)
}
