package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Storage config
	assert.Equal(t, "/tmp/agentlens-traces", cfg.Storage.BaseDir)
	assert.False(t, cfg.Storage.Compress)
	assert.Equal(t, 1000, cfg.Storage.IndexLimit)
	assert.Equal(t, 1024, cfg.Storage.QueueSize)
	assert.Equal(t, 3, cfg.Storage.SaveMaxRetries)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	// Should return default when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	// Setup environment variables
	envVars := map[string]string{
		"PORT":               "9000",
		"HOST":               "127.0.0.1",
		"TRACE_DIR":          "/var/lib/agentlens",
		"TRACE_COMPRESS":     "true",
		"TRACE_INDEX_LIMIT":  "250",
		"TRACE_QUEUE_SIZE":   "64",
		"TRACE_SAVE_RETRIES": "5",
		"AGENT_ID":           "support-bot",
		"AGENT_FRAMEWORK":    "langchain",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "500",
		"RATE_LIMIT_BURST":   "1000",
		"RATE_LIMIT_ENABLED": "false",
	}

	// Set environment variables
	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	// Verify server config
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	// Verify storage config
	assert.Equal(t, "/var/lib/agentlens", cfg.Storage.BaseDir)
	assert.True(t, cfg.Storage.Compress)
	assert.Equal(t, 250, cfg.Storage.IndexLimit)
	assert.Equal(t, 64, cfg.Storage.QueueSize)
	assert.Equal(t, 5, cfg.Storage.SaveMaxRetries)

	// Verify capture config
	assert.Equal(t, "support-bot", cfg.Capture.AgentID)
	assert.Equal(t, "langchain", cfg.Capture.Framework)

	// Verify logging config
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	// Verify rate limit config
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}
