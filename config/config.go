package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Config is read from an optional .env file (toml) and the environment
 * Environment values win, every key has a default
 */

type Config struct {
	Port        string `mapstructure:"PORT"`
	ServiceName string `mapstructure:"SERVICE_NAME"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	StoreDriver   string `mapstructure:"STORE_DRIVER"` // memory | redis
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	QueuePollInterval time.Duration `mapstructure:"QUEUE_POLL_INTERVAL"`
	QueueConcurrency  int           `mapstructure:"QUEUE_CONCURRENCY"`
	QueueBatchSize    int           `mapstructure:"QUEUE_BATCH_SIZE"`
	QueueClaimLease   time.Duration `mapstructure:"QUEUE_CLAIM_LEASE"`

	RetryBaseBackoff  time.Duration `mapstructure:"RETRY_BASE_BACKOFF"`
	RetryMaxBackoff   time.Duration `mapstructure:"RETRY_MAX_BACKOFF"`
	RetryJitter       float64       `mapstructure:"RETRY_JITTER"`
	DefaultMaxRetries int           `mapstructure:"DEFAULT_MAX_RETRIES"`

	DeliveryTimeout time.Duration `mapstructure:"DELIVERY_TIMEOUT"`

	BreakerThreshold   int           `mapstructure:"BREAKER_THRESHOLD"`
	BreakerWindow      time.Duration `mapstructure:"BREAKER_WINDOW"`
	BreakerCooldown    time.Duration `mapstructure:"BREAKER_COOLDOWN"`
	BreakerMaxCooldown time.Duration `mapstructure:"BREAKER_MAX_COOLDOWN"`
	BreakerKey         string        `mapstructure:"BREAKER_KEY"` // webhook | host

	IdempotencyTTL   time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	SeedFile         string        `mapstructure:"SEED_FILE"`
	RequireAPIKey    bool          `mapstructure:"REQUIRE_API_KEY"`
	TriggerRateLimit int           `mapstructure:"TRIGGER_RATE_LIMIT"` // requests per minute per IP, 0 disables
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"SERVICE_NAME":         "webhook-dispatch",
	"LOG_LEVEL":            "info",
	"STORE_DRIVER":         "memory",
	"REDIS_ADDR":           "localhost:6379",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"QUEUE_POLL_INTERVAL":  "5s",
	"QUEUE_CONCURRENCY":    4,
	"QUEUE_BATCH_SIZE":     50,
	"QUEUE_CLAIM_LEASE":    "2m",
	"RETRY_BASE_BACKOFF":   "1m",
	"RETRY_MAX_BACKOFF":    "1h",
	"RETRY_JITTER":         0.2,
	"DEFAULT_MAX_RETRIES":  3,
	"DELIVERY_TIMEOUT":     "10s",
	"BREAKER_THRESHOLD":    5,
	"BREAKER_WINDOW":       "1m",
	"BREAKER_COOLDOWN":     "30s",
	"BREAKER_MAX_COOLDOWN": "5m",
	"BREAKER_KEY":          "webhook",
	"IDEMPOTENCY_TTL":      "24h",
	"SEED_FILE":            "",
	"REQUIRE_API_KEY":      false,
	"TRIGGER_RATE_LIMIT":   120,
}

func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads .env from dir, a missing file is not an error
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	err = v.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

// Validate rejects values the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "redis":
	default:
		return fmt.Errorf("STORE_DRIVER must be memory or redis, got %q", c.StoreDriver)
	}
	switch c.BreakerKey {
	case "webhook", "host":
	default:
		return fmt.Errorf("BREAKER_KEY must be webhook or host, got %q", c.BreakerKey)
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return fmt.Errorf("RETRY_JITTER must be between 0 and 1, got %v", c.RetryJitter)
	}
	if c.DefaultMaxRetries < 1 {
		return fmt.Errorf("DEFAULT_MAX_RETRIES must be at least 1, got %d", c.DefaultMaxRetries)
	}
	if c.TriggerRateLimit < 0 {
		return fmt.Errorf("TRIGGER_RATE_LIMIT cannot be negative")
	}
	return nil
}
