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

// Checkout turns the buyer's cart into an order. The cart is only cleared
// once the order is committed.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID := buyerFrom(ctx)

	var addr *order.Address
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "address" {
			return d.Skip()
		}
		addr = &order.Address{}
		return decodeAddress(d, func(field, value string) {
			switch field {
			case "street":
				addr.Street = value
			case "number":
				addr.Number = value
			case "neighborhood":
				addr.Neighborhood = value
			case "city":
				addr.City = value
			case "state":
				addr.State = value
			case "postal_code":
				addr.PostalCode = value
			}
		})
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.carts.Get(ctx, buyerID)
	if err != nil {
		internalError(w, r, "get cart", err)
		return
	}

	lines := c.Lines()
	items := make([]order.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, order.Item{
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	o, err := h.placer.PlaceOrder(ctx, order.PlaceOrderRequest{
		BuyerID: buyerID,
		Items:   items,
		Address: addr,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	if err := h.carts.Save(ctx, buyerID, cart.New()); err != nil {
		zctx.From(ctx).Warn("Clear cart after checkout",
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// GetOrder returns one order with its lines.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		internalError(w, r, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// ListSellerOrders returns a seller's orders, newest first.
func (h *Handler) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sellerID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	orders, err := h.orders.ListBySeller(r.Context(), id)
	if err != nil {
		internalError(w, r, "list seller orders", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// writeOrderError maps placement failures to statuses.
func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		addrErr        *order.InvalidAddressError
		itemErr        *order.InvalidItemError
		mixedErr       *order.MixedSellerError
		stockErr       *catalog.InsufficientStockError
		unavailableErr *catalog.ProductUnavailableError
		persistErr     *order.PersistenceError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrBuyerRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &addrErr),
		errors.As(err, &itemErr),
		errors.As(err, &mixedErr),
		errors.As(err, &unavailableErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &persistErr):
		zctx.From(r.Context()).Warn("Order placement failed", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "order could not be placed, try again")
	default:
		internalError(w, r, "place order", err)
	}
}

func decodeAddress(d *jx.Decoder, set func(field, value string)) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		set(key, v)
		return nil
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("buyer_id")
	e.Int64(o.BuyerID)
	if o.BuyerName != "" {
		e.FieldStart("buyer_name")
		e.Str(o.BuyerName)
	}
	e.FieldStart("seller_id")
	e.Int64(o.SellerID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)

	a := o.Address
	e.FieldStart("address")
	e.ObjStart()
	e.FieldStart("street")
	e.Str(a.Street)
	e.FieldStart("number")
	e.Str(a.Number)
	e.FieldStart("neighborhood")
	e.Str(a.Neighborhood)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("state")
	e.Str(a.State)
	e.FieldStart("postal_code")
	e.Str(a.PostalCode)
	e.ObjEnd()

	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, l.UnitPrice)
		e.FieldStart("subtotal")
		encodeMoney(e, l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
