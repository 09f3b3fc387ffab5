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

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidBitrateFactor is returned when LOW_RES_BITRATE_FACTOR is not positive.
	ErrInvalidBitrateFactor = errors.New("config: LOW_RES_BITRATE_FACTOR must be positive")
	// ErrInvalidJobTimeout is returned when JOB_TIMEOUT is negative.
	ErrInvalidJobTimeout = errors.New("config: JOB_TIMEOUT must not be negative")
	// ErrUnknownJobStore is returned when JOB_STORE is neither memory nor sqlite.
	ErrUnknownJobStore = errors.New("config: JOB_STORE must be memory or sqlite")
)

// Job store kinds.
const (
	JobStoreMemory = "memory"
	JobStoreSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/vidcompress" json:"temp_dir"`

	// Encoder settings
	FFmpegPath          string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath         string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	QualityPresetsFile  string        `env:"QUALITY_PRESETS_FILE" json:"quality_presets_file,omitempty"`
	LowResBitrateFactor float64       `env:"LOW_RES_BITRATE_FACTOR, default=5.5" json:"low_res_bitrate_factor"`
	JobTimeout          time.Duration `env:"JOB_TIMEOUT, default=0s" json:"job_timeout"`

	// Job history settings
	JobStore  string `env:"JOB_STORE, default=memory" json:"job_store"` // "memory" or "sqlite"
	JobDBPath string `env:"JOB_DB_PATH, default=/tmp/vidcompress-jobs.db" json:"job_db_path"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"

	levelVar *slog.LevelVar
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.LowResBitrateFactor <= 0 {
		return ErrInvalidBitrateFactor
	}
	if c.JobTimeout < 0 {
		return ErrInvalidJobTimeout
	}
	switch strings.ToLower(c.JobStore) {
	case JobStoreMemory, JobStoreSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobStore, c.JobStore)
	}
	return nil
}

// LevelVar returns the level shared by every logger built from c, so the
// level can be changed at runtime.
func (c *Config) LevelVar() *slog.LevelVar {
	if c.levelVar == nil {
		c.levelVar = new(slog.LevelVar)
		c.levelVar.Set(ParseLogLevel(c.LogLevel))
	}
	return c.levelVar
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LevelVar()}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, FFprobePath: %s, LowResBitrateFactor: %g, JobTimeout: %s, JobStore: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, AWSSecretAccessKey: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.LowResBitrateFactor,
		c.JobTimeout,
		c.JobStore,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		mask(c.AWSSecretAccessKey),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// ParseLogLevel converts a string log level to slog.Level.
// Unknown values fall back to info.
func ParseLogLevel(level string) slog.Level {
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
