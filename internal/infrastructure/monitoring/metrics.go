package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trace engine.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Capture metrics
	SpansStarted    prometheus.Counter
	SpansCompleted  *prometheus.CounterVec
	LLMCalls        prometheus.Counter
	TracesFinalized *prometheus.CounterVec
	TracesDropped   prometheus.Counter
	UsageErrors     prometheus.Counter

	// Persistence metrics
	TracesSaved  prometheus.Counter
	SaveRetries  prometheus.Counter
	SaveFailures prometheus.Counter
	QueueDepth   prometheus.Gauge

	// Stream metrics
	StreamClients prometheus.Gauge
}

// NewMetrics creates a metrics collector backed by its own registry, so
// independent instances (one per test, one per server) never collide.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentlens_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentlens_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SpansStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentlens_spans_started_total",
			Help: "Total number of spans opened",
		}),
		SpansCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentlens_spans_completed_total",
				Help: "Total number of spans closed, by terminal status",
			},
			[]string{"status"},
		),
		LLMCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentlens_llm_calls_recorded_total",
			Help: "Total number of LLM call records attached to spans",
		}),
		TracesFinalized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentlens_traces_finalized_total",
				Help: "Total number of traces finalized, by overall status",
			},
			[]string{"status"},
		),
		TracesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentlens_traces_dropped_total",
			Help: "Traces dropped because the persistence queue was full",
		}),
		UsageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentlens_usage_errors_total",
			Help: "Instrumentation usage errors the engine self-healed",
		}),

		TracesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentlens_traces_saved_total",
			Help: "Traces durably persisted by the storage backend",
		}),
		SaveRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentlens_save_retries_total",
			Help: "Retried storage save attempts",
		}),
		SaveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentlens_save_failures_total",
			Help: "Traces lost after exhausting save retries",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentlens_writer_queue_depth",
			Help: "Traces waiting in the async writer queue",
		}),

		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentlens_stream_clients",
			Help: "Connected trace-stream websocket clients",
		}),
	}
}

// Handler exposes the metrics endpoint for this collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SpanStarted records a span open.
func (m *Metrics) SpanStarted() { m.SpansStarted.Inc() }

// SpanCompleted records a span close with its terminal status.
func (m *Metrics) SpanCompleted(status string) {
	m.SpansCompleted.WithLabelValues(status).Inc()
}

// LLMCallRecorded records an attached LLM call.
func (m *Metrics) LLMCallRecorded() { m.LLMCalls.Inc() }

// TraceFinalized records a finalized trace with its overall status.
func (m *Metrics) TraceFinalized(status string) {
	m.TracesFinalized.WithLabelValues(status).Inc()
}

// TraceDropped records a trace lost to a full persistence queue.
func (m *Metrics) TraceDropped() { m.TracesDropped.Inc() }

// UsageError records a self-healed instrumentation misuse.
func (m *Metrics) UsageError() { m.UsageErrors.Inc() }

// TraceSaved records a durable save.
func (m *Metrics) TraceSaved() { m.TracesSaved.Inc() }

// SaveRetried records a retried save attempt.
func (m *Metrics) SaveRetried() { m.SaveRetries.Inc() }

// SaveFailed records a trace lost after retry exhaustion.
func (m *Metrics) SaveFailed() { m.SaveFailures.Inc() }

// SetQueueDepth reports the async writer backlog.
func (m *Metrics) SetQueueDepth(n int) { m.QueueDepth.Set(float64(n)) }

// StreamClientConnected tracks a new websocket stream client.
func (m *Metrics) StreamClientConnected() { m.StreamClients.Inc() }

// StreamClientDisconnected tracks a departed websocket stream client.
func (m *Metrics) StreamClientDisconnected() { m.StreamClients.Dec() }
