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

// Catalog source kinds.
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	DBAutoMigrate      bool
	CORSAllowedOrigins []string

	CatalogFile     string
	CatalogSource   string
	CatalogCacheTTL time.Duration

	SessionTTL     time.Duration
	HistoryLimit   int
	LockTTL        time.Duration
	IdempotencyTTL time.Duration
	DefaultTaxRate decimal.Decimal

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	Seller Seller

	ChatRateLimit  int
	ChatRateWindow time.Duration

	// ChatRateAlgorithm is "sliding" (sorted-set log) or "fixed" (ulule/limiter).
	ChatRateAlgorithm string

	BodyLimitBytes int64

	WebhookURL    string
	WebhookSecret string
	WebhookTopics []string

	Obs Observability
}

// Seller is the issuing business printed on every invoice.
type Seller struct {
	Name    string
	Address string
	Phone   string
	GSTIN   string
}

// Observability groups logging, metrics and tracing switches.
type Observability struct {
	LogFormat       string
	LogLevel        string
	MetricsEnabled  bool
	MetricsBuckets  string
	TracingEnabled  bool
	TracingEndpoint string
	SamplingRatio   float64
	ServiceName     string
	MetricsNS       string
	PprofEnabled    bool
	PprofUser       string
	PprofPass       string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	taxRate, err := parseDecimal(k.String("DEFAULT_TAX_RATE"), "18")
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TAX_RATE: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CatalogFile:     valueOrDefault(k.String("CATALOG_FILE"), "product_data.json"),
		CatalogSource:   strings.ToLower(valueOrDefault(k.String("CATALOG_SOURCE"), CatalogSourceFile)),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		SessionTTL:     parseDuration(k.String("SESSION_TTL"), "24h"),
		HistoryLimit:   parseInt(k.String("HISTORY_LIMIT"), 20),
		LockTTL:        parseDuration(k.String("LOCK_TTL"), "5s"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		DefaultTaxRate: taxRate,

		OpenAIAPIKey:  strings.TrimSpace(k.String("OPENAI_API_KEY")),
		OpenAIModel:   strings.TrimSpace(k.String("OPENAI_MODEL")),
		OpenAIBaseURL: strings.TrimSpace(k.String("OPENAI_BASE_URL")),
		LLMTimeout:    parseDuration(k.String("LLM_TIMEOUT"), "20s"),

		Seller: Seller{
			Name:    strings.TrimSpace(k.String("SELLER_NAME")),
			Address: strings.TrimSpace(k.String("SELLER_ADDRESS")),
			Phone:   strings.TrimSpace(k.String("SELLER_PHONE")),
			GSTIN:   strings.TrimSpace(k.String("SELLER_GSTIN")),
		},

		ChatRateLimit:  parseInt(k.String("CHAT_RATE_LIMIT"), 30),
		ChatRateWindow: parseDuration(k.String("CHAT_RATE_WINDOW"), "1m"),

		ChatRateAlgorithm: strings.ToLower(valueOrDefault(k.String("CHAT_RATE_ALGORITHM"), "sliding")),

		BodyLimitBytes: int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		WebhookURL:    strings.TrimSpace(k.String("WEBHOOK_URL")),
		WebhookSecret: k.String("WEBHOOK_SECRET"),
		WebhookTopics: splitAndTrim(k.String("WEBHOOK_TOPICS")),

		Obs: Observability{
			LogFormat:       valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:        valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:  parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
			MetricsBuckets:  k.String("OBS_METRICS_BUCKETS"),
			TracingEnabled:  parseBool(k.String("OBS_TRACING_ENABLED")),
			TracingEndpoint: strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
			SamplingRatio:   parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			ServiceName:     valueOrDefault(k.String("OBS_SERVICE_NAME"), "invoice-assistant"),
			MetricsNS:       valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "invoice"),
			PprofEnabled:    parseBool(k.String("OBS_ENABLE_PPROF")),
			PprofUser:       strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:       strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CatalogSource {
	case CatalogSourceFile:
		if strings.TrimSpace(c.CatalogFile) == "" {
			return errors.New("CATALOG_FILE is required when CATALOG_SOURCE=file")
		}
	case CatalogSourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CATALOG_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", CatalogSourceFile, CatalogSourcePostgres, c.CatalogSource)
	}
	if c.DefaultTaxRate.IsNegative() || c.DefaultTaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("DEFAULT_TAX_RATE must be between 0 and 100")
	}
	if c.ChatRateAlgorithm != "sliding" && c.ChatRateAlgorithm != "fixed" {
		return fmt.Errorf("CHAT_RATE_ALGORITHM must be sliding or fixed, got %q", c.ChatRateAlgorithm)
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	if c.HistoryLimit < 0 {
		return errors.New("HISTORY_LIMIT must not be negative")
	}
	return nil
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

// LLMEnabled reports whether a model key is configured. Without one the
// keyword interpreter handles every message.
func (c *Config) LLMEnabled() bool {
	return c.OpenAIAPIKey != ""
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
	if err != nil {
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

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	return decimal.NewFromString(base)
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
