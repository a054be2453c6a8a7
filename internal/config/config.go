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
	CORSAllowedOrigins []string

	CurrencyCode   string
	StoreName      string
	ReceiptLogoURL string

	MigrationsPath string
	RunMigrations  bool

	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortCode      string
	MpesaPasskey        string
	MpesaBaseURL        string
	PesaPalClientID     string
	PesaPalClientSecret string
	PesaPalBaseURL      string
	PesaPalTerminalSN   string
	PaymentProvider     string

	IdempotencyTTL    time.Duration
	InventoryCacheTTL time.Duration
	StatsCacheTTL     time.Duration
	LowStockThreshold int

	NotifyEmailEnabled   bool
	NotifyEmailFrom      string
	NotifyEmailFromName  string
	NotifyAlertRecipient string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string

	QueueRedisPrefix        string
	QueueMaxAttempts        int
	QueueConcurrencyReceipt int
	QueueVisibilityTimeout  time.Duration
	QueueSoftDeadline       time.Duration
	QueueBackoffBase        time.Duration
	QueueBackoffJitter      float64

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	OutboundTimeout           time.Duration
	RetryBase                 time.Duration
	RetryMaxAttempts          int
	RetryJitterPercent        float64
	CircuitGatewayMinReq      int
	CircuitGatewayFailureRate float64
	CircuitGatewayOpenFor     time.Duration

	RateLimitPerMinute int
	MaxBodyBytes       int64

	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBStatementCacheCapacity int
}

// Load reads configuration from environment variables and an optional .env file.
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
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CurrencyCode:   valueOrDefault(k.String("CURRENCY_CODE"), "KES"),
		StoreName:      valueOrDefault(k.String("STORE_NAME"), "Duka"),
		ReceiptLogoURL: strings.TrimSpace(k.String("RECEIPT_LOGO_URL")),

		MigrationsPath: valueOrDefault(k.String("DB_MIGRATIONS_PATH"), "file://db/migrations"),
		RunMigrations:  parseBool(valueOrDefault(k.String("DB_RUN_MIGRATIONS"), "true")),

		MpesaConsumerKey:    k.String("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: k.String("MPESA_CONSUMER_SECRET"),
		MpesaShortCode:      k.String("MPESA_SHORT_CODE"),
		MpesaPasskey:        k.String("MPESA_PASSKEY"),
		MpesaBaseURL:        valueOrDefault(k.String("MPESA_BASE_URL"), "https://sandbox.safaricom.co.ke"),
		PesaPalClientID:     k.String("PESAPAL_CLIENT_ID"),
		PesaPalClientSecret: k.String("PESAPAL_CLIENT_SECRET"),
		PesaPalBaseURL:      valueOrDefault(k.String("PESAPAL_BASE_URL"), "https://pay.pesapal.com/v3"),
		PesaPalTerminalSN:   k.String("PESAPAL_TERMINAL_SN"),
		PaymentProvider:     valueOrDefault(k.String("PAYMENT_PROVIDER"), "mpesa"),

		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		InventoryCacheTTL: parseDuration(k.String("INVENTORY_CACHE_TTL"), "60s"),
		StatsCacheTTL:     parseDuration(k.String("STATS_CACHE_TTL"), "5m"),
		LowStockThreshold: parseInt(k.String("LOW_STOCK_THRESHOLD"), 5),

		NotifyEmailEnabled:   parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
		NotifyEmailFrom:      valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "receipts@duka.local"),
		NotifyEmailFromName:  valueOrDefault(k.String("NOTIFY_EMAIL_FROM_NAME"), "Duka POS"),
		NotifyAlertRecipient: strings.TrimSpace(k.String("NOTIFY_ALERT_RECIPIENT")),
		SMTPHost:             strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:             parseInt(k.String("SMTP_PORT"), 587),
		SMTPUsername:         k.String("SMTP_USERNAME"),
		SMTPPassword:         k.String("SMTP_PASSWORD"),

		QueueRedisPrefix:        valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "duka"),
		QueueMaxAttempts:        parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 10),
		QueueConcurrencyReceipt: parseInt(k.String("QUEUE_CONCURRENCY_RECEIPT"), 4),
		QueueVisibilityTimeout:  parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "30s"),
		QueueSoftDeadline:       parseDuration(k.String("QUEUE_SOFT_DEADLINE"), "25s"),
		QueueBackoffBase:        parseDuration(k.String("QUEUE_BACKOFF_BASE"), "500ms"),
		QueueBackoffJitter:      parseFloat(k.String("QUEUE_BACKOFF_JITTER"), 0.2),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		OutboundTimeout:           parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryBase:                 parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:          parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:        parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		CircuitGatewayMinReq:      parseInt(k.String("CIRCUIT_GATEWAY_MIN_REQ"), 5),
		CircuitGatewayFailureRate: parseFloat(k.String("CIRCUIT_GATEWAY_FAILURE_RATE"), 0.5),
		CircuitGatewayOpenFor:     parseDuration(k.String("CIRCUIT_GATEWAY_OPEN_FOR"), "30s"),

		RateLimitPerMinute: parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 300),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),

		DBMaxOpenConns:           parseInt(k.String("DB_MAX_OPEN_CONNS"), 0),
		DBMaxIdleConns:           parseInt(k.String("DB_MAX_IDLE_CONNS"), 0),
		DBStatementCacheCapacity: parseInt(k.String("DB_STATEMENT_CACHE_CAPACITY"), -1),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
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
		return value
	}
	return fallback
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
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
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
