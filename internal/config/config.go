// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrPortalBaseURLRequired is returned when PORTAL_BASE_URL is not set.
	ErrPortalBaseURLRequired = errors.New("config: PORTAL_BASE_URL is required")
	// ErrRedisURLRequired is returned when STATE_BACKEND=redis without REDIS_URL.
	ErrRedisURLRequired = errors.New("config: REDIS_URL is required for the redis state backend")
	// ErrS3Required is returned when STATE_BACKEND=s3 without bucket and region.
	ErrS3Required = errors.New("config: S3_BUCKET and S3_REGION are required for the s3 state backend")
	// ErrInvalidConfig is returned when a value fails validation.
	ErrInvalidConfig = errors.New("config: invalid value")
)

// State backends.
const (
	StateBackendMemory = "memory"
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
	StateBackendRedis  = "redis"
	StateBackendS3     = "s3"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Portal backend settings
	PortalBaseURL    string        `env:"PORTAL_BASE_URL, required" json:"portal_base_url" validate:"required,url"`
	PortalMaxRetries int           `env:"PORTAL_MAX_RETRIES, default=0" json:"portal_max_retries" validate:"min=0,max=10"`
	PortalRateLimit  float64       `env:"PORTAL_RATE_LIMIT, default=20" json:"portal_rate_limit" validate:"min=0"`
	PortalRateBurst  int           `env:"PORTAL_RATE_BURST, default=5" json:"portal_rate_burst" validate:"min=1"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT, default=15s" json:"fetch_timeout"`

	// View state settings
	StateBackend string `env:"STATE_BACKEND, default=memory" json:"state_backend" validate:"oneof=memory file sqlite redis s3"`
	StateDir     string `env:"STATE_DIR, default=/tmp/portal-listings" json:"state_dir"`
	SQLitePath   string `env:"SQLITE_PATH, default=/tmp/portal-listings/state.db" json:"sqlite_path"`
	RedisURL     string `env:"REDIS_URL" json:"-"` // May carry a password

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Listing settings
	ConfirmDelay time.Duration `env:"CONFIRM_DELAY, default=2s" json:"confirm_delay"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "PORTAL_BASE_URL") {
			return nil, ErrPortalBaseURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and backend-specific requirements.
func (c *Config) Validate() error {
	if c.PortalBaseURL == "" {
		return ErrPortalBaseURLRequired
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.StateBackend {
	case StateBackendRedis:
		if c.RedisURL == "" {
			return ErrRedisURLRequired
		}
	case StateBackendS3:
		if !c.S3Enabled() {
			return ErrS3Required
		}
	}
	if c.FetchTimeout < 0 || c.ConfirmDelay < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	redis := ""
	if c.RedisURL != "" {
		redis = "***"
	}
	return fmt.Sprintf(
		"Config{Port: %d, PortalBaseURL: %s, PortalMaxRetries: %d, PortalRateLimit: %g, FetchTimeout: %s, StateBackend: %s, StateDir: %s, SQLitePath: %s, RedisURL: %s, S3Bucket: %s, S3Region: %s, ConfirmDelay: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.PortalBaseURL,
		c.PortalMaxRetries,
		c.PortalRateLimit,
		c.FetchTimeout,
		c.StateBackend,
		c.StateDir,
		c.SQLitePath,
		redis,
		c.S3Bucket,
		c.S3Region,
		c.ConfirmDelay,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
