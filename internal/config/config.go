package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/pricing"
	pkgconfig "github.com/lizTheDeveloper/BulkFoodHub/pkg/config"
)

// Config holds all configuration for the commerce service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"COMMERCE_HTTP_PORT" envDefault:"8002"`

	// Redis (cart storage)
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cart lifetime in hours. Default is 7 days.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Checkout session lifetime in minutes.
	CheckoutTTL int `env:"CHECKOUT_TTL_MINUTES" envDefault:"30"`

	// PostgreSQL (checkout session storage)
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"bulkfoodhub"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"bulkfoodhub_secret"`
	PostgresDB   string `env:"COMMERCE_DB_NAME" envDefault:"commerce_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Downstream service URLs
	CatalogServiceURL string `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8001"`
	OrderServiceURL   string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8003"`

	// Outbound HTTP client
	HTTPClientTimeout int `env:"HTTP_CLIENT_TIMEOUT_SECONDS" envDefault:"10"`
	HTTPClientRetries int `env:"HTTP_CLIENT_MAX_RETRIES" envDefault:"3"`

	// Circuit breaker settings for downstream service calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Pricing policy for local quote estimates. Money values are cents,
	// rates are basis points. VolumeTiers is "threshold:bp" pairs;
	// CategoryMOQ is "category:minQuantity" pairs.
	PricingCurrency       string `env:"PRICING_CURRENCY" envDefault:"USD"`
	TaxRateBP             int    `env:"PRICING_TAX_RATE_BP" envDefault:"800"`
	FreeShippingThreshold int64  `env:"PRICING_FREE_SHIPPING_THRESHOLD_CENTS" envDefault:"10000"`
	FlatShippingFee       int64  `env:"PRICING_FLAT_SHIPPING_FEE_CENTS" envDefault:"1500"`
	VolumeTiers           string `env:"PRICING_VOLUME_TIERS" envDefault:"50000:500,250000:1500,1000000:2500"`
	CategoryMOQ           string `env:"PRICING_CATEGORY_MOQ" envDefault:""`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load commerce config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	if c.CheckoutTTL < 1 {
		return fmt.Errorf("CHECKOUT_TTL_MINUTES must be positive, got %d", c.CheckoutTTL)
	}
	if c.TaxRateBP < 0 || c.TaxRateBP > 10000 {
		return fmt.Errorf("PRICING_TAX_RATE_BP must be between 0 and 10000, got %d", c.TaxRateBP)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for name, rawURL := range map[string]string{
		"CATALOG_SERVICE_URL": c.CatalogServiceURL,
		"ORDER_SERVICE_URL":   c.OrderServiceURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	// Parse the pricing pair lists now so a malformed value fails at
	// startup instead of at first quote.
	if _, err := c.PricingPolicy(); err != nil {
		return err
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// PricingPolicy builds the pricing policy from the configured knobs.
func (c *Config) PricingPolicy() (pricing.Policy, error) {
	tiers, err := parseVolumeTiers(c.VolumeTiers)
	if err != nil {
		return pricing.Policy{}, err
	}
	moq, err := parseCategoryMOQ(c.CategoryMOQ)
	if err != nil {
		return pricing.Policy{}, err
	}
	return pricing.Policy{
		Currency:              c.PricingCurrency,
		TaxRateBP:             c.TaxRateBP,
		FreeShippingThreshold: c.FreeShippingThreshold,
		FlatShippingFee:       c.FlatShippingFee,
		Tiers:                 tiers,
		CategoryMOQ:           moq,
	}, nil
}

// parseVolumeTiers parses "threshold:bp" pairs, e.g. "50000:500,250000:1500".
func parseVolumeTiers(s string) ([]pricing.DiscountTier, error) {
	if s == "" {
		return nil, nil
	}
	var tiers []pricing.DiscountTier
	for _, pair := range strings.Split(s, ",") {
		threshold, bp, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("invalid PRICING_VOLUME_TIERS entry %q: want threshold:bp", pair)
		}
		min, err := strconv.ParseInt(threshold, 10, 64)
		if err != nil || min < 0 {
			return nil, fmt.Errorf("invalid PRICING_VOLUME_TIERS threshold %q", threshold)
		}
		pct, err := strconv.Atoi(bp)
		if err != nil || pct < 0 || pct > 10000 {
			return nil, fmt.Errorf("invalid PRICING_VOLUME_TIERS basis points %q", bp)
		}
		tiers = append(tiers, pricing.DiscountTier{MinSubtotal: min, PercentBP: pct})
	}
	return tiers, nil
}

// parseCategoryMOQ parses "category:minQuantity" pairs, e.g. "grains:10,spices:25".
func parseCategoryMOQ(s string) (map[string]int, error) {
	if s == "" {
		return nil, nil
	}
	moq := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		category, qty, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || category == "" {
			return nil, fmt.Errorf("invalid PRICING_CATEGORY_MOQ entry %q: want category:minQuantity", pair)
		}
		n, err := strconv.Atoi(qty)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid PRICING_CATEGORY_MOQ quantity %q for category %q", qty, category)
		}
		moq[category] = n
	}
	return moq, nil
}
