package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
)

func validConfig() Config {
	return Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/checkout",
		OwnerPepper: "pepper",
		SessionTTL:  30 * time.Minute,
		HoldTimeout: 2 * time.Minute,
		Marketplace: MarketplaceConfig{BaseURL: "https://marketplace.example", Timeout: 10 * time.Second},
		Shipping:    ShippingConfig{Economy: 15000, Standard: 25000, Express: 40000},
	}
}

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Run("fills empty values", func(t *testing.T) {
		var cfg Config
		cfg.Addr = defaultAddr
		cfg.applyPlatformDefaults(envOf(map[string]string{
			"DATABASE_URL": "postgres://db",
			"REDIS_URL":    "redis://cache:6379/0",
			"PORT":         "9000",
		}))
		assert.Equal(t, "postgres://db", cfg.DatabaseURL)
		assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
		assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		cfg := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit", RedisURL: "redis://explicit"}
		cfg.applyPlatformDefaults(envOf(map[string]string{
			"DATABASE_URL": "postgres://db",
			"REDIS_URL":    "redis://cache",
			"PORT":         "9000",
		}))
		assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
		assert.Equal(t, "redis://explicit", cfg.RedisURL)
		assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "redis optional", mutate: func(c *Config) { c.RedisURL = "" }},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "no marketplace", mutate: func(c *Config) { c.Marketplace.BaseURL = "" }, wantErr: "marketplace base URL"},
		{name: "no pepper", mutate: func(c *Config) { c.OwnerPepper = "" }, wantErr: "owner pepper"},
		{name: "zero ttl", mutate: func(c *Config) { c.SessionTTL = 0 }, wantErr: "session TTL"},
		{name: "hold shorter than submission", mutate: func(c *Config) { c.HoldTimeout = 15 * time.Second }, wantErr: "hold timeout"},
		{name: "negative fee", mutate: func(c *Config) { c.Shipping.Express = -1 }, wantErr: "express shipping fee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestShippingTiers(t *testing.T) {
	tiers := ShippingConfig{Economy: 10000, Standard: 20000, Express: 30000}.Tiers()
	require.Len(t, tiers, 3)
	assert.True(t, decimal.NewFromInt(10000).Equal(tiers[checkout.ShippingEconomy]))
	assert.True(t, decimal.NewFromInt(20000).Equal(tiers[checkout.ShippingStandard]))
	assert.True(t, decimal.NewFromInt(30000).Equal(tiers[checkout.ShippingExpress]))
}
