package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"PORT", "ALLOWED_ORIGINS", "TEMP_DIR", "FFMPEG_PATH", "FFPROBE_PATH",
	"QUALITY_PRESETS_FILE", "LOW_RES_BITRATE_FACTOR", "JOB_TIMEOUT",
	"JOB_STORE", "JOB_DB_PATH", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_FORMAT", "LOG_LEVEL",
}

// clearEnv unsets every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnv {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "/tmp/vidcompress", cfg.TempDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Empty(t, cfg.QualityPresetsFile)
	assert.InDelta(t, 5.5, cfg.LowResBitrateFactor, 1e-9)
	assert.Equal(t, time.Duration(0), cfg.JobTimeout)
	assert.Equal(t, JobStoreMemory, cfg.JobStore)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("FFPROBE_PATH", "/opt/ffmpeg/bin/ffprobe")
	t.Setenv("QUALITY_PRESETS_FILE", "/etc/vidcompress/presets.yaml")
	t.Setenv("LOW_RES_BITRATE_FACTOR", "4")
	t.Setenv("JOB_TIMEOUT", "10m")
	t.Setenv("JOB_STORE", "sqlite")
	t.Setenv("JOB_DB_PATH", "/var/lib/vidcompress/jobs.db")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.FFprobePath)
	assert.Equal(t, "/etc/vidcompress/presets.yaml", cfg.QualityPresetsFile)
	assert.InDelta(t, 4.0, cfg.LowResBitrateFactor, 1e-9)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)
	assert.Equal(t, JobStoreSQLite, cfg.JobStore)
	assert.Equal(t, "/var/lib/vidcompress/jobs.db", cfg.JobDBPath)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://minio:9000", cfg.S3Endpoint)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.S3Enabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port not a number", "PORT", "not-a-number"},
		{"factor not a number", "LOW_RES_BITRATE_FACTOR", "fast"},
		{"timeout not a duration", "JOB_TIMEOUT", "soon"},
		{"factor zero", "LOW_RES_BITRATE_FACTOR", "0"},
		{"negative timeout", "JOB_TIMEOUT", "-1s"},
		{"unknown store", "JOB_STORE", "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{LowResBitrateFactor: 5.5, JobStore: JobStoreMemory}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("store is case insensitive", func(t *testing.T) {
		cfg := valid()
		cfg.JobStore = "SQLite"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("non-positive factor", func(t *testing.T) {
		cfg := valid()
		cfg.LowResBitrateFactor = -2
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidBitrateFactor)
	})

	t.Run("negative timeout", func(t *testing.T) {
		cfg := valid()
		cfg.JobTimeout = -time.Second
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidJobTimeout)
	})

	t.Run("unknown store", func(t *testing.T) {
		cfg := valid()
		cfg.JobStore = "redis"
		assert.ErrorIs(t, cfg.Validate(), ErrUnknownJobStore)
	})
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:                8080,
		TempDir:             "/tmp/test",
		FFmpegPath:          "/usr/bin/ffmpeg",
		LowResBitrateFactor: 5.5,
		S3Bucket:            "bucket",
		S3Region:            "region",
		AWSAccessKeyID:      "AKIAEXAMPLE",
		AWSSecretAccessKey:  "secret-key",
		LogFormat:           "json",
		LogLevel:            "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "/usr/bin/ffmpeg")
	assert.Contains(t, str, "5.5")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "AKIAEXAMPLE")
	assert.NotContains(t, str, "secret-key")
	assert.Contains(t, str, "***")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)

	// Capture output to verify it's JSON
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_LevelChangesAtRuntime(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "warn",
	}

	logger := cfg.NewLogger()
	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))

	cfg.LevelVar().Set(slog.LevelDebug)
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))

	// Loggers built later share the same level.
	assert.True(t, cfg.NewLogger().Enabled(ctx, slog.LevelDebug))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.input))
		})
	}
}
