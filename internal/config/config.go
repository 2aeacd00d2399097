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
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	MigrateOnStart     bool
	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	TenantHeader         string
	TenantRootDomain     string
	TenantConfigCacheTTL time.Duration

	CartMaxItemQty          int
	PricingRoundTotals      bool
	CheckoutDuplicateWindow time.Duration
	CheckoutLockTTL         time.Duration
	RateLimitCheckout       string
	IdempotencyTTL          time.Duration

	MessageDedupSize int
	MessageDedupTTL  time.Duration

	MessagingGatewayURL string
	LedgerSyncURL       string
	OutboundSecret      string
	OutboundTimeout     time.Duration
	OutboundRetries     int
	OutboundBackoff     time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerCooldown     time.Duration

	QueueConcurrency    int
	QueueRetryBase      time.Duration
	ShippingPromptDelay time.Duration
	LedgerLockTTL       time.Duration

	LogFormat        string
	LogLevel         string
	OTLPEndpoint     string
	OTLPInsecure     bool
	TraceSampleRatio float64
	MetricsEnabled   bool
	MetricsBucketsMS string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		MigrateOnStart:     parseBool(k.String("DB_MIGRATE_ON_START")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),

		TenantHeader:         valueOrDefault(k.String("TENANT_HEADER"), "X-Tenant-ID"),
		TenantRootDomain:     strings.TrimSpace(k.String("TENANT_ROOT_DOMAIN")),
		TenantConfigCacheTTL: parseDuration(k.String("TENANT_CONFIG_CACHE_TTL"), "5m"),

		CartMaxItemQty:          parseInt(k.String("CART_MAX_ITEM_QTY"), 1000),
		PricingRoundTotals:      parseBoolDefault(k.String("PRICING_ROUND_TOTALS"), true),
		CheckoutDuplicateWindow: parseDuration(k.String("CHECKOUT_DUPLICATE_WINDOW"), "10m"),
		CheckoutLockTTL:         parseDuration(k.String("CHECKOUT_LOCK_TTL"), "15s"),
		RateLimitCheckout:       valueOrDefault(k.String("RATE_LIMIT_CHECKOUT"), "10-M"),
		IdempotencyTTL:          parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		MessageDedupSize: parseInt(k.String("MESSAGE_DEDUP_SIZE"), 10000),
		MessageDedupTTL:  parseDuration(k.String("MESSAGE_DEDUP_TTL"), "10m"),

		MessagingGatewayURL: strings.TrimSpace(k.String("MESSAGING_GATEWAY_URL")),
		LedgerSyncURL:       strings.TrimSpace(k.String("LEDGER_SYNC_URL")),
		OutboundSecret:      k.String("OUTBOUND_SIGNING_SECRET"),
		OutboundTimeout:     parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),
		OutboundRetries:     parseInt(k.String("OUTBOUND_RETRIES"), 2),
		OutboundBackoff:     parseDuration(k.String("OUTBOUND_BACKOFF"), "200ms"),
		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerCooldown:     parseDuration(k.String("BREAKER_COOLDOWN"), "30s"),

		QueueConcurrency:    parseInt(k.String("QUEUE_CONCURRENCY"), 10),
		QueueRetryBase:      parseDuration(k.String("QUEUE_RETRY_BASE"), "10s"),
		ShippingPromptDelay: parseDuration(k.String("SHIPPING_PROMPT_DELAY"), "2m"),
		LedgerLockTTL:       parseDuration(k.String("LEDGER_LOCK_TTL"), "30s"),

		LogFormat:        valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("LOG_LEVEL"), "info"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure:     parseBool(k.String("OTEL_EXPORTER_OTLP_INSECURE")),
		TraceSampleRatio: parseFloat(k.String("OTEL_TRACES_SAMPLER_RATIO"), 1),
		MetricsEnabled:   parseBoolDefault(k.String("METRICS_ENABLED"), true),
		MetricsBucketsMS: k.String("METRICS_BUCKETS_MS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.CartMaxItemQty <= 0 {
		return nil, errors.New("CART_MAX_ITEM_QTY must be positive")
	}
	if cfg.MessageDedupSize <= 0 {
		return nil, errors.New("MESSAGE_DEDUP_SIZE must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Production reports whether the service runs with production settings.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
