package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/marketplace/internal/domain/catalog"
)

// Config holds the complete application configuration, loadable from
// environment variables (MARKET_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (MARKET_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Checkout    CheckoutConfig
	Seller      SellerConfig
	Graceful    GracefulConfig
}

// PostgresConfig sizes the connection pool.
type PostgresConfig struct {
	MaxConns          int           `default:"20" usage:"Maximum pooled connections"`
	MinConns          int           `default:"2"  usage:"Connections kept open when idle"`
	HealthCheckPeriod time.Duration `default:"30s" usage:"Idle connection health check period"`
}

// RedisConfig locates the cart store.
type RedisConfig struct {
	Addr     string        `default:"localhost:6379" usage:"Redis address"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	CartTTL  time.Duration `default:"168h" usage:"Idle cart expiry" flag:"cart-ttl"`
}

// KafkaConfig controls order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"marketplace.orders" usage:"Order events topic"`
}

// CheckoutConfig controls order placement.
type CheckoutConfig struct {
	StockPolicy string        `default:"reject" usage:"Stock policy: reject or backorder" flag:"stock-policy"`
	LockTimeout time.Duration `default:"2s"  usage:"Maximum wait for a stock row lock" flag:"lock-timeout"`
	Timeout     time.Duration `default:"10s" usage:"Maximum duration of one order placement"`
	// Max checkouts per buyer per window. Zero disables throttling.
	ThrottleMax    int           `default:"10" usage:"Checkouts allowed per buyer per window"`
	ThrottleWindow time.Duration `default:"1m" usage:"Checkout throttle window"`
}

// SellerConfig controls store registration.
type SellerConfig struct {
	SlugAttempts int `default:"100" usage:"Slug candidates tried per registration"`
	BcryptCost   int `default:"10"  usage:"bcrypt cost for seller passwords"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from an optional .env file, environment
// variables and YAML config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MARKET",
		Files:     []string{"config.yaml", "/etc/marketplace/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set MARKET_DATABASE_URL or DATABASE_URL")
	}
	if _, err := catalog.ParseStockPolicy(c.Checkout.StockPolicy); err != nil {
		return errors.Wrap(err, "checkout")
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return errors.Errorf("postgres min conns %d above max %d", c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (DATABASE_URL, REDIS_URL, PORT) onto the MARKET_-prefixed configuration.
func (c *Config) applyPlatformDefaults() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("MARKET_REDIS_ADDR") == "" {
		if err := c.Redis.fromURL(v); err != nil {
			return errors.Wrap(err, "REDIS_URL")
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	return nil
}

// fromURL reads a redis:// or rediss:// URL.
func (r *RedisConfig) fromURL(raw string) error {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return err
	}
	r.Addr, r.Password, r.DB = opts.Addr, opts.Password, opts.DB
	return nil
}
