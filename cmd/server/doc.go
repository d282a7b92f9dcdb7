// Package main is the entry point for the AgentLens trace server.
//
// The server captures execution traces from instrumented agent
// workflows, persists them durably, and serves them back over a REST
// API plus a WebSocket stream of newly saved traces.
//
// The server provides:
//   - REST API for trace queries and remote ingest
//   - WebSocket streaming of saved-trace events
//   - Prometheus metrics
//   - Rate limiting and CORS
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	./server -port 8000 -dir /var/lib/agentlens
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown (drains the trace queue)
package main
