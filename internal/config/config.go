package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthTokenTTL   time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	StripeSecretKey         string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret     string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripePriceStarter      string `mapstructure:"STRIPE_PRICE_STARTER"`
	StripePriceProfessional string `mapstructure:"STRIPE_PRICE_PROFESSIONAL"`
	StripePriceEnterprise   string `mapstructure:"STRIPE_PRICE_ENTERPRISE"`
	SiteURL                 string `mapstructure:"SITE_URL"`

	EmailAPIURL string `mapstructure:"EMAIL_API_URL"`
	EmailAPIKey string `mapstructure:"EMAIL_API_KEY"`
	EmailFrom   string `mapstructure:"EMAIL_FROM"`

	BlobDir            string        `mapstructure:"BLOB_DIR"`
	TrialSweepInterval time.Duration `mapstructure:"TRIAL_SWEEP_INTERVAL"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_TOKEN_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
	"STRIPE_PRICE_STARTER", "STRIPE_PRICE_PROFESSIONAL", "STRIPE_PRICE_ENTERPRISE", "SITE_URL",
	"EMAIL_API_URL", "EMAIL_API_KEY", "EMAIL_FROM",
	"BLOB_DIR", "TRIAL_SWEEP_INTERVAL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUTH_ISSUER", "cliniccloud")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SITE_URL", "http://localhost:8000")
	v.SetDefault("EMAIL_FROM", "no-reply@cliniccloud.local")
	v.SetDefault("TRIAL_SWEEP_INTERVAL", "24h")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key of at least 32 bytes is required because tokens are
// self-issued.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.TrialSweepInterval < time.Minute {
		return fmt.Errorf("TRIAL_SWEEP_INTERVAL must be at least 1m, got %s", c.TrialSweepInterval)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// PriceIDs returns the configured provider price per paid plan key.
func (c *Config) PriceIDs() map[string]string {
	return map[string]string{
		"starter":      c.StripePriceStarter,
		"professional": c.StripePriceProfessional,
		"enterprise":   c.StripePriceEnterprise,
	}
}

// SigningKey returns the token key, falling back to a fixed key in
// development.
func (c *Config) SigningKey() []byte {
	if c.AuthSigningKey == "" && c.IsDev() {
		return []byte("cliniccloud-development-signing-key")
	}
	return []byte(c.AuthSigningKey)
}
