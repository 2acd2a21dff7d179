/**
 * @description
 * Configuration management for the assistant service. Settings come from
 * environment variables, optionally preloaded from a .env file by the CLI.
 *
 * @notes
 * - Out-of-range limits are coerced to their defaults with a warning rather
 *   than failing startup. Only values that would change security behavior
 *   (the classifier mode, the store driver) are hard errors.
 */
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the assistant service.
type Config struct {
	ServerPort     string        `mapstructure:"SERVER_PORT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	AllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	Exchange    string `mapstructure:"RABBITMQ_EXCHANGE"`

	JWTSecret         string `mapstructure:"JWT_SECRET"`
	JWTIssuer         string `mapstructure:"JWT_ISSUER"`
	JWTAudience       string `mapstructure:"JWT_AUDIENCE"`
	DevIdentityHeader bool   `mapstructure:"DEV_IDENTITY_HEADER"`

	OpenAIAPIKey            string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL           string        `mapstructure:"OPENAI_BASE_URL"`
	AssistantModel          string        `mapstructure:"ASSISTANT_MODEL"`
	ClassifierModel         string        `mapstructure:"CLASSIFIER_MODEL"`
	ModelTimeout            time.Duration `mapstructure:"MODEL_TIMEOUT"`
	ModelMaxAttempts        int           `mapstructure:"MODEL_MAX_ATTEMPTS"`
	ModelRequestsPerSecond  float64       `mapstructure:"MODEL_REQUESTS_PER_SECOND"`
	SemanticClassifier      bool          `mapstructure:"SEMANTIC_CLASSIFIER_ENABLED"`
	IntentClassifierMode    string        `mapstructure:"INTENT_CLASSIFIER_MODE"`
	MaxMessageLength        int           `mapstructure:"MAX_MESSAGE_LENGTH"`
	MaxToolRounds           int           `mapstructure:"MAX_TOOL_ROUNDS"`
	RateLimitRequests       int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindowSeconds  int           `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`
	RateLimitMaxClients     int           `mapstructure:"RATE_LIMIT_MAX_CLIENTS"`
	MaxTransferAmountRaw    string        `mapstructure:"MAX_TRANSFER_AMOUNT"`
	Currency                string        `mapstructure:"CURRENCY"`
	StaleProposalSchedule   string        `mapstructure:"STALE_PROPOSAL_SCHEDULE"`
	PendingStaleAfter       time.Duration `mapstructure:"PENDING_STALE_AFTER"`
	StaleProposalBatchLimit int           `mapstructure:"STALE_PROPOSAL_BATCH_LIMIT"`

	// MaxTransferAmount is parsed from MaxTransferAmountRaw.
	MaxTransferAmount decimal.Decimal `mapstructure:"-"`
}

var defaults = map[string]any{
	"SERVER_PORT":                 "8080",
	"REQUEST_TIMEOUT":             "120s",
	"LOG_LEVEL":                   "info",
	"STORE_DRIVER":                StoreDriverPostgres,
	"RABBITMQ_EXCHANGE":           "assistant_events",
	"ASSISTANT_MODEL":             "gpt-4o",
	"CLASSIFIER_MODEL":            "gpt-4o-mini",
	"MODEL_TIMEOUT":               "60s",
	"MODEL_MAX_ATTEMPTS":          4,
	"MODEL_REQUESTS_PER_SECOND":   0.0,
	"SEMANTIC_CLASSIFIER_ENABLED": true,
	"INTENT_CLASSIFIER_MODE":      "strict",
	"MAX_MESSAGE_LENGTH":          4000,
	"MAX_TOOL_ROUNDS":             8,
	"RATE_LIMIT_REQUESTS":         20,
	"RATE_LIMIT_WINDOW_SECONDS":   60,
	"RATE_LIMIT_MAX_CLIENTS":      10000,
	"MAX_TRANSFER_AMOUNT":         "1000000",
	"CURRENCY":                    "AED",
	"STALE_PROPOSAL_SCHEDULE":     "*/15 * * * *",
	"PENDING_STALE_AFTER":         "24h",
	"STALE_PROPOSAL_BATCH_LIMIT":  100,
}

var bound = []string{
	"PORT", "SERVER_PORT", "REQUEST_TIMEOUT", "LOG_LEVEL", "CORS_ALLOWED_ORIGINS",
	"STORE_DRIVER", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL", "RABBITMQ_EXCHANGE",
	"JWT_SECRET", "JWT_ISSUER", "JWT_AUDIENCE", "DEV_IDENTITY_HEADER",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "ASSISTANT_MODEL", "CLASSIFIER_MODEL",
	"MODEL_TIMEOUT", "MODEL_MAX_ATTEMPTS", "MODEL_REQUESTS_PER_SECOND",
	"SEMANTIC_CLASSIFIER_ENABLED", "INTENT_CLASSIFIER_MODE", "MAX_MESSAGE_LENGTH",
	"MAX_TOOL_ROUNDS", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW_SECONDS",
	"RATE_LIMIT_MAX_CLIENTS", "MAX_TRANSFER_AMOUNT", "CURRENCY",
	"STALE_PROPOSAL_SCHEDULE", "PENDING_STALE_AFTER", "STALE_PROPOSAL_BATCH_LIMIT",
}

// LoadConfig reads configuration from environment variables.
func LoadConfig(logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, k := range bound {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.ServerPort = port
	}
	if err := cfg.normalize(logger); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize(logger *slog.Logger) error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	mode := strings.ToLower(strings.TrimSpace(c.IntentClassifierMode))
	if mode != "strict" && mode != "loose" {
		return fmt.Errorf("INTENT_CLASSIFIER_MODE must be strict or loose, got %q", c.IntentClassifierMode)
	}
	c.IntentClassifierMode = mode

	positive := func(name string, v *int) {
		if *v <= 0 {
			def := defaults[name].(int)
			logger.Warn("invalid config value, using default", "key", name, "value", *v, "default", def)
			*v = def
		}
	}
	positive("MODEL_MAX_ATTEMPTS", &c.ModelMaxAttempts)
	positive("MAX_MESSAGE_LENGTH", &c.MaxMessageLength)
	positive("MAX_TOOL_ROUNDS", &c.MaxToolRounds)
	positive("RATE_LIMIT_REQUESTS", &c.RateLimitRequests)
	positive("RATE_LIMIT_WINDOW_SECONDS", &c.RateLimitWindowSeconds)
	positive("RATE_LIMIT_MAX_CLIENTS", &c.RateLimitMaxClients)
	positive("STALE_PROPOSAL_BATCH_LIMIT", &c.StaleProposalBatchLimit)

	if c.ModelRequestsPerSecond < 0 {
		logger.Warn("negative MODEL_REQUESTS_PER_SECOND, pacing disabled", "value", c.ModelRequestsPerSecond)
		c.ModelRequestsPerSecond = 0
	}
	if c.PendingStaleAfter <= 0 {
		logger.Warn("invalid PENDING_STALE_AFTER, using 24h", "value", c.PendingStaleAfter)
		c.PendingStaleAfter = 24 * time.Hour
	}

	ceiling, err := decimal.NewFromString(strings.TrimSpace(c.MaxTransferAmountRaw))
	if err != nil || !ceiling.IsPositive() {
		logger.Warn("invalid MAX_TRANSFER_AMOUNT, using default", "value", c.MaxTransferAmountRaw)
		ceiling = decimal.NewFromInt(1_000_000)
	}
	c.MaxTransferAmount = ceiling

	if c.DevIdentityHeader {
		logger.Warn("DEV_IDENTITY_HEADER is enabled; X-User-ID is trusted without authentication")
	} else if c.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; every /v1 request will be rejected")
	}
	return nil
}

// RateLimitWindow returns the limiter window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// Origins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
