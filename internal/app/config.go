package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string        `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL      string        `usage:"Redis URL for sessions; empty keeps sessions in memory (CHECKOUT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	OwnerPepper   string        `usage:"HMAC pepper for session owner digests (CHECKOUT_OWNER_PEPPER)" flag:"owner-pepper"`
	SessionTTL    time.Duration `default:"30m" usage:"Checkout session lifetime" flag:"session-ttl"`
	HoldTimeout   time.Duration `default:"2m" usage:"How long a submission holds its session before a retry may take it over" flag:"hold-timeout"`
	DefaultLocale string        `default:"en" usage:"Locale used when Accept-Language matches none" flag:"default-locale"`
	MaxBodyBytes  int64         `default:"65536" usage:"Maximum request body size" flag:"max-body-bytes"`
	Marketplace   MarketplaceConfig
	Shipping      ShippingConfig
	Prefilter     PrefilterConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// MarketplaceConfig points at the marketplace backend.
type MarketplaceConfig struct {
	BaseURL string        `usage:"Marketplace API base URL" flag:"marketplace-url"`
	Timeout time.Duration `default:"10s" usage:"Timeout of a single marketplace call" flag:"marketplace-timeout"`
}

// ShippingConfig holds the flat fee of each shipping tier.
type ShippingConfig struct {
	Economy  int64 `default:"15000" usage:"Economy shipping fee"`
	Standard int64 `default:"25000" usage:"Standard shipping fee"`
	Express  int64 `default:"40000" usage:"Express shipping fee"`
}

// Tiers returns the fee table the checkout service uses.
func (c ShippingConfig) Tiers() map[checkout.ShippingMethod]decimal.Decimal {
	return map[checkout.ShippingMethod]decimal.Decimal{
		checkout.ShippingEconomy:  decimal.NewFromInt(c.Economy),
		checkout.ShippingStandard: decimal.NewFromInt(c.Standard),
		checkout.ShippingExpress:  decimal.NewFromInt(c.Express),
	}
}

// PrefilterConfig lists the gzipped files of issued promo codes. No files
// disables the prefilter.
type PrefilterConfig struct {
	Files             []string `usage:"Gzipped promo code files, one code per line" flag:"prefilter-files"`
	Capacity          uint     `default:"1000000" usage:"Expected number of issued codes"`
	FalsePositiveRate float64  `default:"0.001" usage:"Accepted false positive rate"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables hosting platforms set
// (DATABASE_URL, REDIS_URL, PORT) onto the configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	case c.Marketplace.BaseURL == "":
		return errors.New("marketplace base URL is required: set CHECKOUT_MARKETPLACE_BASE_URL")
	case c.OwnerPepper == "":
		return errors.New("owner pepper is required: set CHECKOUT_OWNER_PEPPER")
	case c.SessionTTL <= 0:
		return errors.Errorf("session TTL must be positive, got %s", c.SessionTTL)
	case c.HoldTimeout <= 2*c.Marketplace.Timeout:
		return errors.Errorf("hold timeout %s must exceed two marketplace timeouts (%s)", c.HoldTimeout, 2*c.Marketplace.Timeout)
	}
	for method, fee := range c.Shipping.Tiers() {
		if fee.IsNegative() {
			return errors.Errorf("%s shipping fee must not be negative", method)
		}
	}
	return nil
}
