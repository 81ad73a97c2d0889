package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/seller"
)

// ListStores returns every active store.
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	sellers, err := h.sellers.ListActive(r.Context())
	if err != nil {
		internalError(w, r, "list stores", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range sellers {
			encodeStore(e, &sellers[i])
		}
		e.ArrEnd()
	})
}

// GetStore returns a store and its active products.
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := h.sellers.GetBySlug(ctx, chi.URLParam(r, "slug"))
	if errors.Is(err, seller.ErrNotFound) {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		internalError(w, r, "get store", err)
		return
	}
	if !s.Active {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}

	products, err := h.products.ListBySeller(ctx, s.ID, true)
	if err != nil {
		internalError(w, r, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("store")
		encodeStore(e, s)
		e.FieldStart("products")
		e.ArrStart()
		for i := range products {
			encodeProduct(e, &products[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// RegisterSeller creates a store.
func (h *Handler) RegisterSeller(w http.ResponseWriter, r *http.Request) {
	var req seller.RegisterRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "kind":
			var v string
			v, err = d.Str()
			req.Kind = seller.Kind(v)
		case "name":
			req.Name, err = d.Str()
		case "store_name":
			req.StoreName, err = d.Str()
		case "email":
			req.Email, err = d.Str()
		case "document":
			req.Document, err = d.Str()
		case "phone":
			req.Phone, err = d.Str()
		case "password":
			req.Password, err = d.Str()
		case "address":
			a := &req.Address
			err = decodeAddress(d, func(field, value string) {
				switch field {
				case "street":
					a.Street = value
				case "number":
					a.Number = value
				case "neighborhood":
					a.Neighborhood = value
				case "city":
					a.City = value
				case "state":
					a.State = value
				case "postal_code":
					a.PostalCode = value
				}
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.sellers.Register(r.Context(), req)
	var validationErr *seller.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, seller.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "seller already registered")
		return
	case errors.Is(err, seller.ErrSlugExhausted):
		writeError(w, http.StatusConflict, "store name unavailable")
		return
	default:
		internalError(w, r, "register seller", err)
		return
	}

	w.Header().Set("Location", "/api/stores/"+s.Slug)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeStore(e, s)
	})
}

// encodeStore writes the public view of a seller. Contact and document
// fields stay private.
func encodeStore(e *jx.Encoder, s *seller.Seller) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(s.ID)
	e.FieldStart("slug")
	e.Str(s.Slug)
	e.FieldStart("store_name")
	e.Str(s.StoreName)
	e.FieldStart("kind")
	e.Str(string(s.Kind))
	e.FieldStart("city")
	e.Str(s.Address.City)
	e.FieldStart("state")
	e.Str(s.Address.State)
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *catalog.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	if p.Description != "" {
		e.FieldStart("description")
		e.Str(p.Description)
	}
	if p.CategoryID != nil {
		e.FieldStart("category_id")
		e.Int64(*p.CategoryID)
	}
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("active")
	e.Bool(p.Active)
	if len(p.Image) > 0 {
		e.FieldStart("image")
		e.Base64(p.Image)
	}
	e.ObjEnd()
}
