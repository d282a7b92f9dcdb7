package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Capture   CaptureConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// StorageConfig holds trace persistence configuration.
type StorageConfig struct {
	BaseDir        string `envconfig:"TRACE_DIR" default:"/tmp/agentlens-traces"`
	Compress       bool   `envconfig:"TRACE_COMPRESS" default:"false"`
	IndexLimit     int    `envconfig:"TRACE_INDEX_LIMIT" default:"1000"`
	QueueSize      int    `envconfig:"TRACE_QUEUE_SIZE" default:"1024"`
	SaveMaxRetries int    `envconfig:"TRACE_SAVE_RETRIES" default:"3"`
}

// CaptureConfig holds defaults stamped onto captured traces.
type CaptureConfig struct {
	AgentID   string `envconfig:"AGENT_ID" default:""`
	Framework string `envconfig:"AGENT_FRAMEWORK" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			BaseDir:        "/tmp/agentlens-traces",
			Compress:       false,
			IndexLimit:     1000,
			QueueSize:      1024,
			SaveMaxRetries: 3,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
