package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/catalog"
	"github.com/xenking/storefront/internal/payment"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to product images" flag:"image-base-url"`
	Storage      StorageConfig
	Payment      PaymentConfig
	Cache        CacheConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StorageConfig selects and locates the database.
type StorageConfig struct {
	Driver      string `default:"sqlite" usage:"Storage driver: postgres, sqlite or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SQLitePath  string `default:"storefront.db" usage:"SQLite database file" flag:"sqlite-path"`
	// Seed lists catalog feeds loaded into the store at startup. It is meant
	// for the memory driver; persistent stores are seeded with seed-db.
	Seed []string `usage:"Catalog feeds (URLs or files) loaded at startup"`
}

// PaymentConfig configures the transaction gateway.
type PaymentConfig struct {
	URL     string        `usage:"Payment service URL"`
	Timeout time.Duration `default:"10s" usage:"Per-charge timeout" flag:"payment-timeout"`
	// Sandbox replaces the remote service with an in-process gateway.
	Sandbox      bool     `default:"false" usage:"Use the in-process sandbox gateway" flag:"payment-sandbox"`
	DeclineCards []string `usage:"Card numbers the sandbox declines"`
}

// CacheConfig enables the Redis product cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `default:"" usage:"Redis address for the product cache" flag:"redis-addr"`
	TTL       time.Duration `default:"5m" usage:"Product cache TTL" flag:"cache-ttl"`
}

// RateLimitConfig controls the per-client rate limits.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	// OrderUpdateMax limits PUT /order/{id} per client and order, which is
	// where cards get charged. Zero falls back to Max.
	OrderUpdateMax int `default:"10" usage:"Max order updates per order and client per window" flag:"order-update-limit"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set STOREFRONT_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Payment.Timeout <= 0 {
		return errors.Errorf("payment timeout must be positive, got %s", c.Payment.Timeout)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration, and fills the remote
// service URLs.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Payment.URL == "" {
		c.Payment.URL = payment.DefaultURL
	}
	if c.Storage.Driver == DriverMemory && len(c.Storage.Seed) == 0 {
		c.Storage.Seed = []string{catalog.DefaultURL}
	}
}
