// Command catalog-import bulk loads sellers, products and buyer names from
// gzip-compressed JSONL dumps.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/marketplace/internal/domain/seller"
	"github.com/xenking/marketplace/internal/storage/postgres"
)

const (
	sellersFile  = "sellers.jsonl.gz"
	productsFile = "products.jsonl.gz"
	buyersFile   = "buyers.jsonl.gz"

	// Expected store count. Past it the false positive rate rises.
	slugCapacity = 1_000_000
	slugFPR      = 0.001
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
		bcryptCost  int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing the *.jsonl.gz dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", runtime.GOMAXPROCS(0), "concurrent product writers")
	flag.IntVar(&bcryptCost, "bcrypt-cost", 10, "bcrypt cost for imported seller passwords")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, workers, bcryptCost); err != nil {
		lg.Fatal("Catalog import failed", zap.Error(err))
	}
	lg.Info("Catalog import completed")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, workers, bcryptCost int) error {
	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolOptions{MaxConns: workers + 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	sellerRepo := postgres.NewSellerRepository(pool)
	productRepo := postgres.NewProductRepository(pool)

	slugs, err := loadSlugFilter(ctx, sellerRepo)
	if err != nil {
		return err
	}
	sellers := seller.NewService(sellerRepo, seller.Config{BcryptCost: bcryptCost},
		seller.WithSlugFilter(slugs.taken),
	)

	im := newImporter(&trackingRegistrar{next: sellers, slugs: slugs}, productRepo, sellerRepo, workers, lg)

	refs, err := im.importSellers(ctx, filepath.Join(dataDir, sellersFile))
	if err != nil {
		return errors.Wrap(err, "import sellers")
	}
	if _, err := im.importProducts(ctx, filepath.Join(dataDir, productsFile), refs); err != nil {
		return errors.Wrap(err, "import products")
	}

	path := filepath.Join(dataDir, buyersFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		lg.Info("No buyers dump, skipping", zap.String("path", path))
		return nil
	}
	if _, err := im.importBuyers(ctx, path); err != nil {
		return errors.Wrap(err, "import buyers")
	}
	return nil
}

// slugFilter remembers slugs already in use so registration skips candidates
// without a failed insert.
type slugFilter struct {
	f *bloom.BloomFilter
}

func loadSlugFilter(ctx context.Context, repo *postgres.SellerRepository) (*slugFilter, error) {
	f := newSlugBloom()
	if err := repo.EachSlug(ctx, func(slug string) { f.AddString(slug) }); err != nil {
		return nil, errors.Wrap(err, "load slugs")
	}
	return &slugFilter{f: f}, nil
}

func newSlugBloom() *bloom.BloomFilter {
	return bloom.NewWithEstimates(slugCapacity, slugFPR)
}

func (s *slugFilter) taken(slug string) bool { return s.f.TestString(slug) }

func (s *slugFilter) add(slug string) { s.f.AddString(slug) }

// trackingRegistrar adds every newly registered slug to the filter.
type trackingRegistrar struct {
	next  registrar
	slugs *slugFilter
}

func (r *trackingRegistrar) Register(ctx context.Context, req seller.RegisterRequest) (*seller.Seller, error) {
	s, err := r.next.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	r.slugs.add(s.Slug)
	return s, nil
}
