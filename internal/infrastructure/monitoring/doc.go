// Package monitoring provides Prometheus instrumentation for the trace
// engine: capture counters (spans, traces, LLM calls, usage errors),
// persistence counters (saves, retries, drops, queue depth), and HTTP
// request metrics via gin middleware.
//
// Each Metrics value owns its own registry, exposed through Handler(),
// so tests and embedded servers can run side by side without duplicate
// registration panics.
package monitoring
