package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/order"
	"github.com/xenking/marketplace/internal/domain/seller"
	"github.com/xenking/marketplace/internal/handler"
	"github.com/xenking/marketplace/internal/messaging/kafka"
	"github.com/xenking/marketplace/internal/storage/postgres"
	"github.com/xenking/marketplace/internal/storage/redisstore"
	"github.com/xenking/marketplace/pkg/health"
	"github.com/xenking/marketplace/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("stock_policy", cfg.Checkout.StockPolicy),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis holds carts.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	// Order events go to Kafka when brokers are configured.
	var publisher order.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		publisher = p
	} else {
		lg.Info("Kafka brokers not configured, order events disabled")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.Register(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Register(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.Register(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderStore := postgres.NewOrderStore(pool)
	sellerRepo := postgres.NewSellerRepository(pool)
	cartStore := redisstore.NewCartStore(rdb, cfg.Redis.CartTTL)

	// Domain services.
	policy, err := catalog.ParseStockPolicy(cfg.Checkout.StockPolicy)
	if err != nil {
		return errors.Wrap(err, "stock policy")
	}
	orderService, err := order.NewService(orderStore, publisher, order.Config{
		StockPolicy: policy,
		LockTimeout: cfg.Checkout.LockTimeout,
		Timeout:     cfg.Checkout.Timeout,
	}, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	sellerService := seller.NewService(sellerRepo, seller.Config{
		SlugAttempts: cfg.Seller.SlugAttempts,
		BcryptCost:   cfg.Seller.BcryptCost,
	})

	// HTTP handlers.
	h := handler.NewHandler(productRepo, cartStore, orderService, orderStore, sellerService)

	var checkout []func(http.Handler) http.Handler
	if cfg.Checkout.ThrottleMax > 0 {
		checkout = append(checkout, httpmiddleware.Throttle(httpmiddleware.ThrottleConfig{
			Max:     cfg.Checkout.ThrottleMax,
			Window:  cfg.Checkout.ThrottleWindow,
			KeyFunc: handler.BuyerKey,
		}))
	}
	api := otelhttp.NewHandler(h.Router(checkout...), "marketplace-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", api)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
		),
	}

	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
