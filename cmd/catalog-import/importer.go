package main

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/seller"
)

const progressEvery = 10_000

type registrar interface {
	Register(ctx context.Context, req seller.RegisterRequest) (*seller.Seller, error)
}

type productWriter interface {
	EnsureCategory(ctx context.Context, sellerID int64, name string) (int64, error)
	CreateProduct(ctx context.Context, p *catalog.Product) error
}

type buyerWriter interface {
	UpsertBuyer(ctx context.Context, id int64, name string) error
}

// importer loads catalog dumps. Sellers are registered one by one so slug
// probing stays ordered; products and buyers are written by a worker pool.
type importer struct {
	sellers registrar
	catalog productWriter
	buyers  buyerWriter
	workers int
	lg      *zap.Logger

	catMu      sync.Mutex
	categories map[categoryKey]int64
}

type categoryKey struct {
	sellerID int64
	name     string
}

type stats struct {
	created atomic.Int64
	skipped atomic.Int64
}

func newImporter(sellers registrar, cw productWriter, buyers buyerWriter, workers int, lg *zap.Logger) *importer {
	if workers < 1 {
		workers = 1
	}
	return &importer{
		sellers:    sellers,
		catalog:    cw,
		buyers:     buyers,
		workers:    workers,
		lg:         lg,
		categories: make(map[categoryKey]int64),
	}
}

// importSellers registers every seller in path and returns seller ids by ref.
// Records rejected by validation or already registered are skipped.
func (im *importer) importSellers(ctx context.Context, path string) (map[string]int64, error) {
	refs := make(map[string]int64)
	var st stats

	err := streamGzFile(ctx, path, func(n int, line []byte) error {
		rec, err := decodeSeller(line)
		if err != nil {
			im.lg.Warn("Skip seller record", zap.Int("line", n), zap.Error(err))
			st.skipped.Add(1)
			return nil
		}
		if _, dup := refs[rec.Ref]; dup {
			im.lg.Warn("Skip duplicate seller ref", zap.Int("line", n), zap.String("ref", rec.Ref))
			st.skipped.Add(1)
			return nil
		}

		s, err := im.sellers.Register(ctx, rec.Req)
		var validationErr *seller.ValidationError
		switch {
		case err == nil:
		case errors.As(err, &validationErr), errors.Is(err, seller.ErrAlreadyRegistered):
			im.lg.Warn("Skip seller", zap.Int("line", n), zap.String("ref", rec.Ref), zap.Error(err))
			st.skipped.Add(1)
			return nil
		default:
			return errors.Wrapf(err, "register seller %q", rec.Ref)
		}

		refs[rec.Ref] = s.ID
		st.created.Add(1)
		im.lg.Debug("Seller registered", zap.String("ref", rec.Ref), zap.String("slug", s.Slug))
		return nil
	})
	if err != nil {
		return nil, err
	}

	im.lg.Info("Sellers imported",
		zap.Int64("created", st.created.Load()),
		zap.Int64("skipped", st.skipped.Load()),
	)
	return refs, nil
}

// importProducts creates every product whose seller ref is known.
func (im *importer) importProducts(ctx context.Context, path string, refs map[string]int64) (int64, error) {
	var st stats

	g, ctx := errgroup.WithContext(ctx)
	records := make(chan productRecord, im.workers*4)

	g.Go(func() error {
		defer close(records)
		return streamGzFile(ctx, path, func(n int, line []byte) error {
			rec, err := decodeProduct(line)
			if err != nil {
				im.lg.Warn("Skip product record", zap.Int("line", n), zap.Error(err))
				st.skipped.Add(1)
				return nil
			}
			select {
			case records <- rec:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	for range im.workers {
		g.Go(func() error {
			for rec := range records {
				sellerID, ok := refs[rec.SellerRef]
				if !ok {
					st.skipped.Add(1)
					continue
				}
				if err := im.createProduct(ctx, sellerID, rec); err != nil {
					return err
				}
				if n := st.created.Add(1); n%progressEvery == 0 {
					im.lg.Info("Product import progress", zap.Int64("created", n))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return st.created.Load(), err
	}

	im.lg.Info("Products imported",
		zap.Int64("created", st.created.Load()),
		zap.Int64("skipped", st.skipped.Load()),
	)
	return st.created.Load(), nil
}

func (im *importer) createProduct(ctx context.Context, sellerID int64, rec productRecord) error {
	p := &catalog.Product{
		SellerID:    sellerID,
		Name:        rec.Name,
		Description: rec.Description,
		Price:       rec.Price,
		Stock:       rec.Stock,
		Active:      rec.Active,
		Image:       rec.Image,
	}
	if rec.Category != "" {
		id, err := im.category(ctx, sellerID, rec.Category)
		if err != nil {
			return err
		}
		p.CategoryID = &id
	}
	if err := im.catalog.CreateProduct(ctx, p); err != nil {
		return errors.Wrapf(err, "create product %q", rec.Name)
	}
	return nil
}

func (im *importer) category(ctx context.Context, sellerID int64, name string) (int64, error) {
	key := categoryKey{sellerID: sellerID, name: name}

	im.catMu.Lock()
	id, ok := im.categories[key]
	im.catMu.Unlock()
	if ok {
		return id, nil
	}

	// EnsureCategory is idempotent, so racing workers agree on the id.
	id, err := im.catalog.EnsureCategory(ctx, sellerID, name)
	if err != nil {
		return 0, errors.Wrapf(err, "ensure category %q", name)
	}
	im.catMu.Lock()
	im.categories[key] = id
	im.catMu.Unlock()
	return id, nil
}

// importBuyers mirrors buyer display names.
func (im *importer) importBuyers(ctx context.Context, path string) (int64, error) {
	var st stats

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers + 1)

	err := streamGzFile(ctx, path, func(n int, line []byte) error {
		rec, err := decodeBuyer(line)
		if err != nil {
			im.lg.Warn("Skip buyer record", zap.Int("line", n), zap.Error(err))
			st.skipped.Add(1)
			return nil
		}
		g.Go(func() error {
			if err := im.buyers.UpsertBuyer(ctx, rec.ID, rec.Name); err != nil {
				return err
			}
			st.created.Add(1)
			return nil
		})
		return nil
	})
	if werr := g.Wait(); werr != nil {
		return st.created.Load(), werr
	}
	if err != nil {
		return st.created.Load(), err
	}

	im.lg.Info("Buyers imported",
		zap.Int64("upserted", st.created.Load()),
		zap.Int64("skipped", st.skipped.Load()),
	)
	return st.created.Load(), nil
}
