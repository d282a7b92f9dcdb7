// Package config provides 12-factor configuration management for the
// trace server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Storage: Trace persistence (directory, compression, queue sizing)
//   - Capture: Agent identity stamped onto recorded traces
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - TRACE_DIR, TRACE_COMPRESS, TRACE_INDEX_LIMIT, TRACE_QUEUE_SIZE, TRACE_SAVE_RETRIES
//   - AGENT_ID, AGENT_FRAMEWORK
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
