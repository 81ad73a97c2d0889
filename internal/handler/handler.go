// Package handler exposes the marketplace HTTP API.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/marketplace/internal/domain/cart"
	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/order"
	"github.com/xenking/marketplace/internal/domain/seller"
)

// BuyerHeader and SellerHeader identify the caller. They are set by the
// authenticating gateway.
const (
	BuyerHeader  = "X-Buyer-ID"
	SellerHeader = "X-Seller-ID"
)

// Products reads and edits the catalog.
type Products interface {
	catalog.Reader
	catalog.Writer
}

// OrderPlacer places orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Sellers registers and looks up stores.
type Sellers interface {
	Register(ctx context.Context, req seller.RegisterRequest) (*seller.Seller, error)
	GetBySlug(ctx context.Context, slug string) (*seller.Seller, error)
	ListActive(ctx context.Context) ([]seller.Seller, error)
}

// Handler serves the /api routes.
type Handler struct {
	products Products
	carts    cart.Store
	placer   OrderPlacer
	orders   order.Reader
	sellers  Sellers
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products Products,
	carts cart.Store,
	placer OrderPlacer,
	orders order.Reader,
	sellers Sellers,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		placer:   placer,
		orders:   orders,
		sellers:  sellers,
	}
}

// Router returns the API routes. checkout middlewares only wrap the checkout
// endpoint.
func (h *Handler) Router(checkout ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/stores", h.ListStores)
		r.Get("/stores/{slug}", h.GetStore)
		r.Post("/sellers", h.RegisterSeller)
		r.Get("/sellers/{sellerID}/orders", h.ListSellerOrders)
		r.Get("/orders/{orderID}", h.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(requireSeller)
			r.Post("/sellers/{sellerID}/products", h.CreateProduct)
			r.Patch("/products/{productID}", h.UpdateProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireBuyer)
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddCartItem)
			r.Patch("/items/{productID}", h.AdjustCartItem)
			r.Delete("/items/{productID}", h.RemoveCartItem)
			r.With(checkout...).Post("/checkout", h.Checkout)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type (
	buyerKey  struct{}
	sellerKey struct{}
)

// requireBuyer rejects requests without a valid buyer header.
func requireBuyer(next http.Handler) http.Handler {
	return requireIdentity(next, BuyerHeader, buyerKey{}, "buyer required")
}

// requireSeller rejects requests without a valid seller header.
func requireSeller(next http.Handler) http.Handler {
	return requireIdentity(next, SellerHeader, sellerKey{}, "seller required")
}

func requireIdentity(next http.Handler, header string, key any, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(header), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, message)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key, id)))
	})
}

func buyerFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(buyerKey{}).(int64)
	return id
}

func sellerFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(sellerKey{}).(int64)
	return id
}

// BuyerKey extracts the raw buyer header, for per-buyer throttling.
func BuyerKey(r *http.Request) string {
	return r.Header.Get(BuyerHeader)
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
