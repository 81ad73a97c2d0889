package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for order placement and lookup.
var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNotFound  = errors.New("order not found")
)

// InvalidAddressError lists the delivery address fields that are missing.
type InvalidAddressError struct {
	Missing []string
}

func (e *InvalidAddressError) Error() string {
	if len(e.Missing) == 0 {
		return "delivery address required"
	}
	return "delivery address missing " + strings.Join(e.Missing, ", ")
}

// InvalidItemError indicates a malformed cart line.
type InvalidItemError struct {
	ProductID int64
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %d: %s", e.ProductID, e.Reason)
}

// MixedSellerError is returned when the items do not resolve to exactly one
// seller. SellerIDs is empty when no seller could be determined.
type MixedSellerError struct {
	SellerIDs []int64
}

func (e *MixedSellerError) Error() string {
	if len(e.SellerIDs) == 0 {
		return "order seller unknown"
	}
	return fmt.Sprintf("order spans several sellers %v", e.SellerIDs)
}

// PersistenceError wraps a storage failure during placement. Nothing was
// persisted and the same request may be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable reports whether the request may be retried unchanged.
func (e *PersistenceError) Retryable() bool { return true }
