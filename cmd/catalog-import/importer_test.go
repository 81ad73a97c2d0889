package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/seller"
)

type fakeRegistrar struct {
	next   int64
	emails map[string]bool
}

func (f *fakeRegistrar) Register(_ context.Context, req seller.RegisterRequest) (*seller.Seller, error) {
	if req.Email == "" {
		return nil, &seller.ValidationError{Field: "email", Reason: "invalid address"}
	}
	if f.emails[req.Email] {
		return nil, seller.ErrAlreadyRegistered
	}
	f.emails[req.Email] = true
	f.next++
	return &seller.Seller{ID: f.next, Slug: seller.Slugify(req.StoreName)}, nil
}

type fakeCatalog struct {
	mu         sync.Mutex
	products   []catalog.Product
	categories map[categoryKey]int64
	failOn     string
}

func (f *fakeCatalog) EnsureCategory(_ context.Context, sellerID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := categoryKey{sellerID: sellerID, name: name}
	if id, ok := f.categories[key]; ok {
		return id, nil
	}
	id := int64(len(f.categories) + 1)
	f.categories[key] = id
	return id, nil
}

func (f *fakeCatalog) CreateProduct(_ context.Context, p *catalog.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Name == f.failOn {
		return errors.New("disk full")
	}
	p.ID = int64(len(f.products) + 1)
	f.products = append(f.products, *p)
	return nil
}

type fakeBuyers struct {
	mu    sync.Mutex
	names map[int64]string
}

func (f *fakeBuyers) UpsertBuyer(_ context.Context, id int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[id] = name
	return nil
}

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestImporter(t *testing.T) (*importer, *fakeCatalog, *fakeBuyers) {
	cat := &fakeCatalog{categories: map[categoryKey]int64{}}
	buyers := &fakeBuyers{names: map[int64]string{}}
	im := newImporter(&fakeRegistrar{emails: map[string]bool{}}, cat, buyers, 4, zaptest.NewLogger(t))
	return im, cat, buyers
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	im, cat, buyers := newTestImporter(t)
	ctx := context.Background()

	sellers := writeGz(t, dir, sellersFile,
		`{"ref":"ana","kind":"individual","name":"Ana","store_name":"Doces da Ana","email":"ana@example.com","address":{"city":"Recife"}}`,
		`{"ref":"bia","store_name":"Bia","email":""}`,
		`{"ref":"ana2","store_name":"Outra","email":"ana@example.com"}`,
		`not json`,
		``,
		`{"ref":"caio","store_name":"Pães do Caio","email":"caio@example.com","extra":[1,2]}`,
	)
	refs, err := im.importSellers(ctx, sellers)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ana": 1, "caio": 2}, refs)

	products := writeGz(t, dir, productsFile,
		`{"seller":"ana","category":"Doces","name":"Brigadeiro","price":"2.50","stock":10,"image":"aGk="}`,
		`{"seller":"ana","category":"Doces","name":"Beijinho","price":"3.00","stock":5}`,
		`{"seller":"caio","name":"Pão","price":"1.00","stock":0,"active":false}`,
		`{"seller":"bia","name":"Orphan","price":"1.00"}`,
		`{"seller":"ana","name":"Bad","price":"-1"}`,
		`{"seller":"ana","name":"Fraction","price":"1.005"}`,
	)
	n, err := im.importProducts(ctx, products, refs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, cat.products, 3)

	byName := map[string]catalog.Product{}
	for _, p := range cat.products {
		byName[p.Name] = p
	}
	brigadeiro := byName["Brigadeiro"]
	assert.Equal(t, int64(1), brigadeiro.SellerID)
	assert.True(t, decimal.RequireFromString("2.50").Equal(brigadeiro.Price))
	assert.Equal(t, []byte("hi"), brigadeiro.Image)
	assert.True(t, brigadeiro.Active)
	require.NotNil(t, brigadeiro.CategoryID)
	assert.Equal(t, *brigadeiro.CategoryID, *byName["Beijinho"].CategoryID)
	assert.Nil(t, byName["Pão"].CategoryID)
	assert.False(t, byName["Pão"].Active)
	assert.Len(t, cat.categories, 1)

	buyerDump := writeGz(t, dir, buyersFile,
		`{"id":7,"name":"Maria"}`,
		`{"id":8,"name":"João"}`,
		`{"name":"nobody"}`,
	)
	n, err = im.importBuyers(ctx, buyerDump)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, map[int64]string{7: "Maria", 8: "João"}, buyers.names)
}

func TestImportProducts_WriteError(t *testing.T) {
	dir := t.TempDir()
	im, cat, _ := newTestImporter(t)
	cat.failOn = "Boom"

	lines := make([]string, 0, 50)
	for range 49 {
		lines = append(lines, `{"seller":"ana","name":"Ok","price":"1.00"}`)
	}
	lines = append(lines, `{"seller":"ana","name":"Boom","price":"1.00"}`)
	path := writeGz(t, dir, productsFile, lines...)

	_, err := im.importProducts(context.Background(), path, map[string]int64{"ana": 1})
	require.ErrorContains(t, err, "disk full")
}

func TestImport_MissingFile(t *testing.T) {
	im, _, _ := newTestImporter(t)
	_, err := im.importSellers(context.Background(), filepath.Join(t.TempDir(), "nope.gz"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTrackingRegistrar(t *testing.T) {
	slugs := &slugFilter{f: newSlugBloom()}
	r := &trackingRegistrar{next: &fakeRegistrar{emails: map[string]bool{}}, slugs: slugs}

	s, err := r.Register(context.Background(), seller.RegisterRequest{StoreName: "Doces da Ana", Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, "doces-da-ana", s.Slug)
	assert.True(t, slugs.taken("doces-da-ana"))
	assert.False(t, slugs.taken("doces-da-bia"))
}
