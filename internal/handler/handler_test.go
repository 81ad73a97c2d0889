package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace/internal/domain/cart"
	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/order"
	"github.com/xenking/marketplace/internal/domain/seller"
)

// --- Mock implementations ---

type mockProducts struct {
	byID       map[int64]*catalog.Product
	categories map[string]int64
	err        error
	writeErr   error
}

func (m *mockProducts) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (m *mockProducts) ListBySeller(_ context.Context, sellerID int64, activeOnly bool) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range m.byID {
		if p.SellerID == sellerID && (!activeOnly || p.Active) {
			out = append(out, *p)
		}
	}
	return out, m.err
}

func (m *mockProducts) EnsureCategory(_ context.Context, sellerID int64, name string) (int64, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if id, ok := m.categories[name]; ok {
		return id, nil
	}
	id := int64(len(m.categories) + 1)
	m.categories[name] = id
	return id, nil
}

func (m *mockProducts) CreateProduct(_ context.Context, p *catalog.Product) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	p.ID = int64(len(m.byID) + 1)
	m.byID[p.ID] = p
	return nil
}

func (m *mockProducts) UpdateProduct(_ context.Context, sellerID, productID int64, u catalog.ProductUpdate) (*catalog.Product, error) {
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	p, ok := m.byID[productID]
	if !ok || p.SellerID != sellerID {
		return nil, catalog.ErrNotFound
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.StockDelta != nil {
		if p.Stock+*u.StockDelta < 0 {
			return nil, &catalog.InsufficientStockError{ProductID: p.ID, Requested: -*u.StockDelta, Available: p.Stock}
		}
		p.Stock += *u.StockDelta
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	return p, nil
}

// memCarts serializes Update like the real store's optimistic transaction.
type memCarts struct {
	mu        sync.Mutex
	carts     map[int64][]cart.Line
	saveErr   error
	updateErr error
}

func (m *memCarts) Get(_ context.Context, buyerID int64) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cart.FromLines(m.carts[buyerID]), nil
}

func (m *memCarts) Save(_ context.Context, buyerID int64, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.carts[buyerID] = c.Lines()
	return nil
}

func (m *memCarts) Update(_ context.Context, buyerID int64, fn func(c *cart.Cart) error) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	c := cart.FromLines(m.carts[buyerID])
	if err := fn(c); err != nil {
		return nil, err
	}
	m.carts[buyerID] = c.Lines()
	return c, nil
}

type mockPlacer struct {
	got *order.PlaceOrderRequest
	err error
}

func (m *mockPlacer) PlaceOrder(_ context.Context, req order.PlaceOrderRequest) (*order.Order, error) {
	m.got = &req
	if m.err != nil {
		return nil, m.err
	}
	o := &order.Order{
		ID:        42,
		BuyerID:   req.BuyerID,
		SellerID:  req.Items[0].SellerID,
		Status:    order.StatusPending,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Total:     decimal.Zero,
	}
	if req.Address != nil {
		o.Address = *req.Address
	}
	for _, it := range req.Items {
		l := order.Line{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		o.Lines = append(o.Lines, l)
		o.Total = o.Total.Add(l.Subtotal())
	}
	return o, nil
}

type mockOrders struct {
	byID     map[int64]*order.Order
	bySeller map[int64][]order.Order
}

func (m *mockOrders) Get(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) ListBySeller(_ context.Context, sellerID int64) ([]order.Order, error) {
	return m.bySeller[sellerID], nil
}

type mockSellers struct {
	bySlug      map[string]*seller.Seller
	registerErr error
}

func (m *mockSellers) Register(_ context.Context, req seller.RegisterRequest) (*seller.Seller, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &seller.Seller{ID: 9, Kind: req.Kind, StoreName: req.StoreName, Slug: "doces-da-ana", Active: true}, nil
}

func (m *mockSellers) GetBySlug(_ context.Context, slug string) (*seller.Seller, error) {
	s, ok := m.bySlug[slug]
	if !ok {
		return nil, seller.ErrNotFound
	}
	return s, nil
}

func (m *mockSellers) ListActive(_ context.Context) ([]seller.Seller, error) {
	var out []seller.Seller
	for _, s := range m.bySlug {
		if s.Active {
			out = append(out, *s)
		}
	}
	return out, nil
}

// --- Helpers ---

type fixture struct {
	products *mockProducts
	carts    *memCarts
	placer   *mockPlacer
	orders   *mockOrders
	sellers  *mockSellers
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		products: &mockProducts{byID: map[int64]*catalog.Product{
			1: {ID: 1, SellerID: 7, Name: "Brigadeiro", Price: decimal.RequireFromString("2.50"), Stock: 10, Active: true},
			2: {ID: 2, SellerID: 7, Name: "Beijinho", Price: decimal.RequireFromString("3.00"), Stock: 10, Active: true},
			3: {ID: 3, SellerID: 8, Name: "Pão de mel", Price: decimal.RequireFromString("4.00"), Stock: 10, Active: true},
			4: {ID: 4, SellerID: 7, Name: "Cocada", Price: decimal.RequireFromString("5.00"), Stock: 0, Active: false},
		}, categories: map[string]int64{}},
		carts:   &memCarts{carts: map[int64][]cart.Line{}},
		placer:  &mockPlacer{},
		orders:  &mockOrders{byID: map[int64]*order.Order{}, bySeller: map[int64][]order.Order{}},
		sellers: &mockSellers{bySlug: map[string]*seller.Seller{}},
	}
	h := NewHandler(f.products, f.carts, f.placer, f.orders, f.sellers)
	f.router = h.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path, buyer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if buyer != "" {
		req.Header.Set(BuyerHeader, buyer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doAsSeller(t *testing.T, method, path, sellerID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if sellerID != "" {
		req.Header.Set(SellerHeader, sellerID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const validAddress = `{"address":{"street":"Rua A","number":"10","neighborhood":"Centro",` +
	`"city":"Recife","state":"PE","postal_code":"50000-000"}}`

// --- Tests ---

func TestCart_RequiresBuyer(t *testing.T) {
	f := newFixture()

	for _, buyer := range []string{"", "abc", "-1"} {
		rec := f.do(t, http.MethodGet, "/api/cart", buyer, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "buyer %q", buyer)
	}
}

func TestCart_AddAdjustRemove(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/cart/items", "1", `{"product_id":1,"quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/cart/items", "1", `{"product_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "8.00", body["total"])
	assert.EqualValues(t, 7, body["seller_id"])
	assert.Len(t, body["lines"], 2)

	rec = f.do(t, http.MethodPatch, "/api/cart/items/1", "1", `{"delta":-2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3.00", decodeBody(t, rec)["total"])

	rec = f.do(t, http.MethodDelete, "/api/cart/items/2", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "0.00", body["total"])
	assert.NotContains(t, body, "seller_id")
	assert.Empty(t, f.carts.carts[1])
}

func TestCart_AddErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{"product_id":`, http.StatusBadRequest},
		{"zero quantity", `{"product_id":1,"quantity":0}`, http.StatusUnprocessableEntity},
		{"huge quantity", `{"product_id":1,"quantity":4294967296}`, http.StatusUnprocessableEntity},
		{"unknown product", `{"product_id":99}`, http.StatusNotFound},
		{"inactive product", `{"product_id":4}`, http.StatusUnprocessableEntity},
		{"other store", `{"product_id":3}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.carts.carts[1] = []cart.Line{{ProductID: 1, SellerID: 7, UnitPrice: decimal.RequireFromString("2.50"), Quantity: 1}}

			rec := f.do(t, http.MethodPost, "/api/cart/items", "1", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Len(t, f.carts.carts[1], 1)
		})
	}
}

func TestCart_MixedOrSellerlessCartRejectsAdd(t *testing.T) {
	f := newFixture()
	f.carts.carts[1] = []cart.Line{{ProductID: 9, SellerID: 0, UnitPrice: decimal.RequireFromString("1.00"), Quantity: 1}}

	rec := f.do(t, http.MethodPost, "/api/cart/items", "1", `{"product_id":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Len(t, f.carts.carts[1], 1)
}

func TestCart_ConcurrentAddsKeepEveryUnit(t *testing.T) {
	f := newFixture()

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			rec := f.do(t, http.MethodPost, "/api/cart/items", "1", `{"product_id":1}`)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
	wg.Wait()

	require.Len(t, f.carts.carts[1], 1)
	assert.Equal(t, n, f.carts.carts[1][0].Quantity)
}

func TestCart_UpdateConflict(t *testing.T) {
	f := newFixture()
	f.carts.updateErr = errors.Wrap(cart.ErrConflict, "updating cart of buyer 1")

	rec := f.do(t, http.MethodDelete, "/api/cart/items/1", "1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCart_KeepsPriceSnapshot(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/cart/items", "1", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	f.products.byID[1].Price = decimal.RequireFromString("9.99")
	rec = f.do(t, http.MethodPost, "/api/cart/items", "1", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "5.00", decodeBody(t, rec)["total"])
}

func TestCheckout(t *testing.T) {
	f := newFixture()
	f.carts.carts[1] = []cart.Line{
		{ProductID: 2, SellerID: 7, UnitPrice: decimal.RequireFromString("3.00"), Quantity: 1},
		{ProductID: 1, SellerID: 7, UnitPrice: decimal.RequireFromString("2.50"), Quantity: 2},
	}

	rec := f.do(t, http.MethodPost, "/api/cart/checkout", "1", validAddress)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.EqualValues(t, 42, body["id"])
	assert.Equal(t, "8.00", body["total"])
	assert.Equal(t, "Pending", body["status"])
	assert.Equal(t, "2026-03-01T12:00:00Z", body["created_at"])

	require.NotNil(t, f.placer.got)
	assert.Equal(t, int64(1), f.placer.got.BuyerID)
	assert.Equal(t, "Recife", f.placer.got.Address.City)
	require.Len(t, f.placer.got.Items, 2)
	assert.Equal(t, int64(7), f.placer.got.Items[0].SellerID)

	assert.Empty(t, f.carts.carts[1], "cart cleared after commit")
}

func TestCheckout_ClearFailureStillCreated(t *testing.T) {
	f := newFixture()
	f.carts.carts[1] = []cart.Line{{ProductID: 1, SellerID: 7, UnitPrice: decimal.RequireFromString("2.50"), Quantity: 1}}
	f.carts.saveErr = errors.New("redis down")

	rec := f.do(t, http.MethodPost, "/api/cart/checkout", "1", validAddress)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       int
		retryAfter string
	}{
		{"empty cart", order.ErrEmptyCart, http.StatusBadRequest, ""},
		{"invalid address", &order.InvalidAddressError{Missing: []string{"city"}}, http.StatusUnprocessableEntity, ""},
		{"invalid item", &order.InvalidItemError{ProductID: 1, Reason: "quantity must be at least 1"}, http.StatusUnprocessableEntity, ""},
		{"mixed sellers", &order.MixedSellerError{SellerIDs: []int64{7, 8}}, http.StatusUnprocessableEntity, ""},
		{"unavailable", &catalog.ProductUnavailableError{ProductID: 1, Reason: "inactive"}, http.StatusUnprocessableEntity, ""},
		{"insufficient stock", &catalog.InsufficientStockError{ProductID: 1, Requested: 3, Available: 1}, http.StatusConflict, ""},
		{"persistence", &order.PersistenceError{Op: "place order", Err: errors.New("conn reset")}, http.StatusServiceUnavailable, "1"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.carts.carts[1] = []cart.Line{{ProductID: 1, SellerID: 7, UnitPrice: decimal.RequireFromString("2.50"), Quantity: 1}}
			f.placer.err = tt.err

			rec := f.do(t, http.MethodPost, "/api/cart/checkout", "1", validAddress)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
			assert.EqualValues(t, tt.want, decodeBody(t, rec)["code"])
			assert.Len(t, f.carts.carts[1], 1, "cart kept on failure")
		})
	}
}

func TestCheckout_NoAddress(t *testing.T) {
	f := newFixture()
	f.carts.carts[1] = []cart.Line{{ProductID: 1, SellerID: 7, UnitPrice: decimal.RequireFromString("2.50"), Quantity: 1}}

	rec := f.do(t, http.MethodPost, "/api/cart/checkout", "1", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, f.placer.got.Address)
}

func TestGetOrder(t *testing.T) {
	f := newFixture()
	f.orders.byID[5] = &order.Order{
		ID: 5, BuyerID: 1, SellerID: 7, Status: order.StatusPending,
		Total: decimal.RequireFromString("10"),
		Lines: []order.Line{{ProductID: 1, Quantity: 4, UnitPrice: decimal.RequireFromString("2.5")}},
	}

	rec := f.do(t, http.MethodGet, "/api/orders/5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "10.00", body["total"])
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "10.00", lines[0].(map[string]any)["subtotal"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/orders/6", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/orders/x", "", "").Code)
}

func TestListSellerOrders(t *testing.T) {
	f := newFixture()
	f.orders.bySeller[7] = []order.Order{
		{ID: 2, SellerID: 7, BuyerName: "Maria", Total: decimal.RequireFromString("3")},
		{ID: 1, SellerID: 7, Total: decimal.RequireFromString("2")},
	}

	rec := f.do(t, http.MethodGet, "/api/sellers/7/orders", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "Maria", body[0]["buyer_name"])
	assert.NotContains(t, body[1], "buyer_name")
}

func TestStores(t *testing.T) {
	f := newFixture()
	f.sellers.bySlug["doces"] = &seller.Seller{ID: 7, Slug: "doces", StoreName: "Doces", Active: true}
	f.sellers.bySlug["fechada"] = &seller.Seller{ID: 8, Slug: "fechada", StoreName: "Fechada"}

	rec := f.do(t, http.MethodGet, "/api/stores", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "doces", list[0]["slug"])
	assert.NotContains(t, list[0], "email")

	rec = f.do(t, http.MethodGet, "/api/stores/doces", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["products"], 2, "inactive products hidden")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/stores/fechada", "", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/stores/nada", "", "").Code)
}

func TestRegisterSeller(t *testing.T) {
	const body = `{"kind":"individual","name":"Ana","store_name":"Doces da Ana","email":"ana@example.com",` +
		`"document":"123.456.789-01","password":"secret123","address":{"city":"Recife","state":"PE"}}`

	t.Run("created", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/sellers", "", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "/api/stores/doces-da-ana", rec.Header().Get("Location"))
		assert.Equal(t, "doces-da-ana", decodeBody(t, rec)["slug"])
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &seller.ValidationError{Field: "email", Reason: "invalid address"}, http.StatusUnprocessableEntity},
		{"duplicate", seller.ErrAlreadyRegistered, http.StatusConflict},
		{"slug exhausted", errors.Wrap(seller.ErrSlugExhausted, "doces"), http.StatusConflict},
		{"storage", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sellers.registerErr = tt.err
			rec := f.do(t, http.MethodPost, "/api/sellers", "", body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = f.do(t, http.MethodPut, "/api/stores", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_CheckoutMiddleware(t *testing.T) {
	f := newFixture()
	var calls int
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			next.ServeHTTP(w, r)
		})
	}
	router := NewHandler(f.products, f.carts, f.placer, f.orders, f.sellers).Router(mw)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set(BuyerHeader, "1")
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Zero(t, calls)

	req = httptest.NewRequest(http.MethodPost, "/api/cart/checkout", strings.NewReader(validAddress))
	req.Header.Set(BuyerHeader, "1")
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 1, calls)
}

func TestCreateProduct(t *testing.T) {
	f := newFixture()

	rec := f.doAsSeller(t, http.MethodPost, "/api/sellers/7/products", "7",
		`{"name":"Quindim","price":"4.50","stock":12,"category":"Doces","image":"aGk="}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Quindim", body["name"])
	assert.Equal(t, "4.50", body["price"])
	assert.EqualValues(t, 12, body["stock"])
	assert.Equal(t, true, body["active"])
	assert.EqualValues(t, 1, body["category_id"])

	created := f.products.byID[int64(body["id"].(float64))]
	require.NotNil(t, created)
	assert.Equal(t, int64(7), created.SellerID)
	assert.Equal(t, []byte("hi"), created.Image)

	rec = f.doAsSeller(t, http.MethodPost, "/api/sellers/7/products", "7", `{"name":"Cuscuz","price":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "3.00", decodeBody(t, rec)["price"])
}

func TestCreateProduct_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		seller   string
		body     string
		writeErr error
		want     int
	}{
		{"no seller header", "/api/sellers/7/products", "", `{"name":"X","price":"1.00"}`, nil, http.StatusUnauthorized},
		{"other store", "/api/sellers/8/products", "7", `{"name":"X","price":"1.00"}`, nil, http.StatusForbidden},
		{"malformed price", "/api/sellers/7/products", "7", `{"name":"X","price":"abc"}`, nil, http.StatusBadRequest},
		{"sub-cent price", "/api/sellers/7/products", "7", `{"name":"X","price":"1.005"}`, nil, http.StatusUnprocessableEntity},
		{"blank name", "/api/sellers/7/products", "7", `{"name":" ","price":"1.00"}`, nil, http.StatusUnprocessableEntity},
		{"unknown seller", "/api/sellers/7/products", "7", `{"name":"X","price":"1.00"}`, catalog.ErrUnknownSeller, http.StatusNotFound},
		{"storage failure", "/api/sellers/7/products", "7", `{"name":"X","price":"1.00"}`, errors.New("conn reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.products.writeErr = tt.writeErr

			rec := f.doAsSeller(t, http.MethodPost, tt.path, tt.seller, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Len(t, f.products.byID, 4)
		})
	}
}

func TestUpdateProduct(t *testing.T) {
	f := newFixture()

	rec := f.doAsSeller(t, http.MethodPatch, "/api/products/1", "7", `{"price":"2.75","stock_delta":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "2.75", body["price"])
	assert.EqualValues(t, 15, body["stock"])
	assert.Equal(t, "Brigadeiro", body["name"])

	rec = f.doAsSeller(t, http.MethodPatch, "/api/products/1", "7", `{"stock":0,"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, f.products.byID[1].Active)
	assert.Zero(t, f.products.byID[1].Stock)
}

func TestUpdateProduct_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		seller string
		body   string
		want   int
	}{
		{"no seller header", "/api/products/1", "", `{"stock":1}`, http.StatusUnauthorized},
		{"bad id", "/api/products/x", "7", `{"stock":1}`, http.StatusBadRequest},
		{"nothing to update", "/api/products/1", "7", `{}`, http.StatusUnprocessableEntity},
		{"negative stock", "/api/products/1", "7", `{"stock":-1}`, http.StatusUnprocessableEntity},
		{"stock and delta", "/api/products/1", "7", `{"stock":1,"stock_delta":1}`, http.StatusUnprocessableEntity},
		{"delta below zero", "/api/products/1", "7", `{"stock_delta":-11}`, http.StatusConflict},
		{"product of another seller", "/api/products/3", "7", `{"stock":1}`, http.StatusNotFound},
		{"unknown product", "/api/products/99", "7", `{"stock":1}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			rec := f.doAsSeller(t, http.MethodPatch, tt.path, tt.seller, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, 10, f.products.byID[1].Stock)
		})
	}
}
