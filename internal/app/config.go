package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis URL for session snapshots; empty keeps them in memory" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to relative product image paths" flag:"image-base-url"`
	Catalog      CatalogConfig
	Session      SessionConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CatalogConfig selects where products are read from at startup.
type CatalogConfig struct {
	File string `usage:"Product JSON file (.json or .json.gz); empty reads the products table" flag:"catalog-file"`
}

// SessionConfig controls visitor session state.
type SessionConfig struct {
	TTL           time.Duration `default:"720h" usage:"How long persisted cart and checkout snapshots are kept"`
	IdleTimeout   time.Duration `default:"30m"  usage:"Evict in-memory sessions idle for this long"`
	PersistDelay  time.Duration `default:"0s"   usage:"Coalesce snapshot writes within this window"`
	LiteralInsert bool          `default:"false" usage:"Do not clamp new cart lines to stock" flag:"literal-insert"`
}

// CheckoutConfig controls checkout pricing and the confirmation screen.
type CheckoutConfig struct {
	ConfirmationDwell time.Duration `default:"10s"   usage:"How long the order confirmation is kept before reset"`
	ShippingFee       string        `default:"10.00" usage:"Flat shipping fee"`
	TaxRate           string        `default:"0.10"  usage:"Tax rate applied to the subtotal"`
}

// Pricing parses the configured fee and rate.
func (c CheckoutConfig) Pricing() (order.Pricing, error) {
	fee, err := decimal.NewFromString(c.ShippingFee)
	if err != nil {
		return order.Pricing{}, errors.Wrap(err, "parse shipping fee")
	}
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return order.Pricing{}, errors.Wrap(err, "parse tax rate")
	}
	if fee.IsNegative() || rate.IsNegative() {
		return order.Pricing{}, errors.New("shipping fee and tax rate must not be negative")
	}
	return order.Pricing{ShippingFee: fee, TaxRate: rate}, nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max        int           `default:"300"    usage:"Max requests per client per window"`
	Window     time.Duration `default:"1m"     usage:"Rate limit window duration"`
	MaxClients int           `default:"100000" usage:"Tracked clients before new ones share a bucket"`
	TrustProxy bool          `default:"false"  usage:"Key clients by X-Forwarded-For / X-Real-IP (only behind a proxy that sets them)" flag:"trust-proxy"`
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

// LoadConfig loads .env (if present), environment variables and YAML config
// files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

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
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Checkout.Pricing(); err != nil {
		return errors.Wrap(err, "checkout")
	}
	if c.Session.IdleTimeout > 0 && c.Session.IdleTimeout <= c.Session.PersistDelay {
		return errors.New("session idle timeout must exceed persist delay")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) such as DATABASE_URL, REDIS_URL and PORT.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
