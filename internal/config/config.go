package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv            string
	RedisURL          string
	Currency          string
	TaxRate           decimal.Decimal
	DefaultMOA        decimal.Decimal
	CartTTL           time.Duration
	BrandCacheTTL     time.Duration
	NewCustomerWindow time.Duration
	CheckoutLockTTL   time.Duration
	CodeAttempts      AttemptConfig
	Orders            OrdersConfig
	Obs               ObsConfig
}

// AttemptConfig throttles discount code attempts per cart session.
type AttemptConfig struct {
	Window time.Duration
	Max    int
}

// OrdersConfig controls retries and the circuit breaker around order creation.
type OrdersConfig struct {
	MaxAttempts     int
	BaseBackoff     time.Duration
	BreakerMinCalls int
	BreakerRatio    float64
	BreakerOpenFor  time.Duration
}

// ObsConfig configures logging, metrics and tracing.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	EnableTracing    bool
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	taxRate, err := parseDecimal("CHECKOUT_TAX_RATE", k.String("CHECKOUT_TAX_RATE"), "0.20")
	if err != nil {
		return nil, err
	}
	moa, err := parseDecimal("BRAND_DEFAULT_MOA", k.String("BRAND_DEFAULT_MOA"), "3000")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:            valueOrDefault(k.String("APP_ENV"), "development"),
		RedisURL:          strings.TrimSpace(k.String("REDIS_URL")),
		Currency:          strings.ToUpper(valueOrDefault(k.String("CURRENCY"), "GBP")),
		TaxRate:           taxRate,
		DefaultMOA:        moa,
		CartTTL:           parseDuration(k.String("CART_TTL"), "168h"),
		BrandCacheTTL:     parseDuration(k.String("BRAND_CACHE_TTL"), "5m"),
		NewCustomerWindow: parseDuration(k.String("NEW_CUSTOMER_WINDOW"), "24h"),
		CheckoutLockTTL:   parseDuration(k.String("CHECKOUT_LOCK_TTL"), "30s"),
		CodeAttempts: AttemptConfig{
			Window: parseDuration(k.String("DISCOUNT_ATTEMPT_WINDOW"), "10m"),
			Max:    parseInt(k.String("DISCOUNT_ATTEMPT_MAX"), 10),
		},
		Orders: OrdersConfig{
			MaxAttempts:     parseInt(k.String("ORDER_MAX_ATTEMPTS"), 3),
			BaseBackoff:     parseDuration(k.String("ORDER_RETRY_BACKOFF"), "200ms"),
			BreakerMinCalls: parseInt(k.String("ORDER_BREAKER_MIN_CALLS"), 5),
			BreakerRatio:    parseFloat(k.String("ORDER_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:  parseDuration(k.String("ORDER_BREAKER_OPEN_FOR"), "30s"),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "brandcart"),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING")),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.TaxRate.IsNegative() || cfg.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.New("CHECKOUT_TAX_RATE must be in [0, 1)")
	}
	if !cfg.DefaultMOA.IsPositive() {
		return nil, errors.New("BRAND_DEFAULT_MOA must be positive")
	}

	return cfg, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDecimal(key, value, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(valueOrDefault(value, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 || f > 1 {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
