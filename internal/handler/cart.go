package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/marketplace/internal/domain/cart"
	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/order"
)

// GetCart returns the buyer's cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), buyerFrom(r.Context()))
	if err != nil {
		internalError(w, r, "get cart", err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

// AddCartItem snapshots the product's price and seller into the cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var productID int64
	quantity := 1
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			productID, err = d.Int64()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if quantity < 1 || quantity > order.MaxQuantity {
		writeError(w, http.StatusUnprocessableEntity, "quantity out of range")
		return
	}

	p, err := h.products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		internalError(w, r, "get product", err)
		return
	}
	if !p.Active {
		writeError(w, http.StatusUnprocessableEntity, "product unavailable")
		return
	}

	line := cart.Line{
		ProductID: p.ID,
		SellerID:  p.SellerID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  quantity,
	}
	h.updateCart(w, r, func(c *cart.Cart) error {
		if seller, ok := c.SellerID(); !c.IsEmpty() && (!ok || seller != p.SellerID) {
			return errOtherStore
		}
		c.Add(line)
		return nil
	})
}

// AdjustCartItem changes a line quantity by delta.
func (h *Handler) AdjustCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var delta int
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key == "delta" {
			var err error
			delta, err = d.Int()
			return err
		}
		return d.Skip()
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if delta == 0 {
		writeError(w, http.StatusUnprocessableEntity, "delta must not be zero")
		return
	}

	h.updateCart(w, r, func(c *cart.Cart) error {
		c.AdjustQuantity(productID, delta)
		return nil
	})
}

// RemoveCartItem drops a line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	h.updateCart(w, r, func(c *cart.Cart) error {
		c.Remove(productID)
		return nil
	})
}

var errOtherStore = errors.New("cart holds products from another store")

// updateCart applies fn to the buyer's cart atomically and writes the result.
func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request, fn func(c *cart.Cart) error) {
	c, err := h.carts.Update(r.Context(), buyerFrom(r.Context()), fn)
	switch {
	case err == nil:
		writeCart(w, http.StatusOK, c)
	case errors.Is(err, errOtherStore):
		writeError(w, http.StatusConflict, errOtherStore.Error())
	case errors.Is(err, cart.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "cart changed concurrently, retry")
	default:
		internalError(w, r, "update cart", err)
	}
}

func writeCart(w http.ResponseWriter, status int, c *cart.Cart) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		if seller, ok := c.SellerID(); ok {
			e.FieldStart("seller_id")
			e.Int64(seller)
		}
		e.FieldStart("lines")
		e.ArrStart()
		for _, l := range c.Lines() {
			e.ObjStart()
			e.FieldStart("product_id")
			e.Int64(l.ProductID)
			e.FieldStart("name")
			e.Str(l.Name)
			e.FieldStart("unit_price")
			encodeMoney(e, l.UnitPrice)
			e.FieldStart("quantity")
			e.Int(l.Quantity)
			e.FieldStart("subtotal")
			encodeMoney(e, l.Subtotal())
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("total")
		encodeMoney(e, c.Total())
		e.ObjEnd()
	})
}

func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
