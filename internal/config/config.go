package config

import (
	"fmt"
	"time"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/domain"
	pkgconfig "github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/config"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/validator"
)

// Config holds all configuration for the cart sync daemon.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Storefront backend
	APIBaseURL   string `env:"CART_API_URL" validate:"required,url"`
	SessionToken string `env:"CART_SESSION_TOKEN" envDefault:""`

	// Pricing rules applied to local totals. Amounts are cents, the tax
	// rate is basis points.
	FreeShippingThresholdCents int64 `env:"FREE_SHIPPING_THRESHOLD_CENTS" envDefault:"5000" validate:"gte=0"`
	FlatShippingFeeCents       int64 `env:"FLAT_SHIPPING_FEE_CENTS" envDefault:"499" validate:"gte=0"`
	TaxRateBps                 int64 `env:"TAX_RATE_BPS" envDefault:"850" validate:"gte=0,lte=10000"`

	// Outbound HTTP
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	HTTPMaxRetries    int           `env:"HTTP_MAX_RETRIES" envDefault:"3" validate:"gte=0,lte=10"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"20" validate:"gte=0"`
	RequestBurst      int           `env:"REQUEST_BURST" envDefault:"5" validate:"gte=0"`
	CircuitBreaker    bool          `env:"CIRCUIT_BREAKER_ENABLED" envDefault:"true"`

	// Operational HTTP endpoint (health, metrics)
	OpsHTTPPort int `env:"OPS_HTTP_PORT" envDefault:"8090" validate:"gte=1,lte=65535"`

	// CIDRs allowed to reach /debug/pprof; empty disables pprof entirely.
	PprofCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Tracing
	TracingEnabled bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampling  float64 `env:"OTEL_TRACE_SAMPLING" envDefault:"1.0" validate:"gte=0,lte=1"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cartsync config: %w", err)
	}
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid cartsync config: %w", err)
	}
	return cfg, nil
}

// Pricing returns the configured pricing rules.
func (c *Config) Pricing() domain.Pricing {
	return domain.Pricing{
		FreeShippingThreshold: c.FreeShippingThresholdCents,
		FlatShippingFee:       c.FlatShippingFeeCents,
		TaxRateBps:            c.TaxRateBps,
	}
}
