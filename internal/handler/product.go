package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace/internal/domain/catalog"
)

// CreateProduct adds a product to the calling seller's catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sellerID, ok := pathID(r, "sellerID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}
	if sellerID != sellerFrom(ctx) {
		writeError(w, http.StatusForbidden, "not your store")
		return
	}

	p := &catalog.Product{SellerID: sellerID, Active: true}
	var category string
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "category":
			category, err = d.Str()
		case "price":
			p.Price, err = decodeMoney(d)
		case "stock":
			p.Stock, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		case "image":
			p.Image, err = d.Base64()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		writeProductError(w, r, err)
		return
	}

	if category != "" {
		id, err := h.products.EnsureCategory(ctx, sellerID, category)
		if err != nil {
			writeProductError(w, r, err)
			return
		}
		p.CategoryID = &id
	}
	if err := h.products.CreateProduct(ctx, p); err != nil {
		writeProductError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

// UpdateProduct edits the calling seller's product. Absent fields are kept.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var u catalog.ProductUpdate
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			u.Name = &v
			return err
		case "price":
			v, err := decodeMoney(d)
			u.Price = &v
			return err
		case "stock":
			v, err := d.Int()
			u.Stock = &v
			return err
		case "stock_delta":
			v, err := d.Int()
			u.StockDelta = &v
			return err
		case "active":
			v, err := d.Bool()
			u.Active = &v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := u.Validate(); err != nil {
		writeProductError(w, r, err)
		return
	}

	p, err := h.products.UpdateProduct(r.Context(), sellerFrom(r.Context()), productID, u)
	if err != nil {
		writeProductError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

func writeProductError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidErr *catalog.InvalidProductError
		stockErr   *catalog.InsufficientStockError
	)
	switch {
	case errors.As(err, &invalidErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, catalog.ErrUnknownSeller):
		writeError(w, http.StatusNotFound, "store not found")
	default:
		internalError(w, r, "edit product", err)
	}
}

// decodeMoney accepts a decimal string or a JSON number.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}
