// Package http exposes the trace query and ingest API over gin.
package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentlens/agentlens/internal/infrastructure/logging"
	"github.com/agentlens/agentlens/internal/query"
	"github.com/agentlens/agentlens/internal/shared/validate"
	"github.com/agentlens/agentlens/internal/trace"
)

// Handlers bundles the HTTP endpoints with their dependencies.
type Handlers struct {
	queries *query.Service
	sink    trace.Sink
	logger  *logging.Logger
	started time.Time
}

// NewHandlers creates the endpoint set. sink may be nil, in which
// case ingest is rejected with 503.
func NewHandlers(queries *query.Service, sink trace.Sink, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		queries: queries,
		sink:    sink,
		logger:  logger,
		started: time.Now(),
	}
}

// Root returns service identification.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "agentlens",
		"status":  "running",
	})
}

// Health returns service health for load balancers and probes.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// ListTraces returns summaries of all stored traces, most recent
// first. An empty store yields an empty array.
func (h *Handlers) ListTraces(c *gin.Context) {
	summaries := h.queries.ListTraces(c.Request.Context())
	c.JSON(http.StatusOK, summaries)
}

// GetTrace returns a full trace record by ID.
func (h *Handlers) GetTrace(c *gin.Context) {
	traceID := c.Param("id")

	tr, err := h.queries.GetTrace(c.Request.Context(), traceID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("trace not found: %s", traceID),
		})
		return
	}
	c.JSON(http.StatusOK, tr)
}

// IngestTrace accepts a complete trace record from a remote capture
// process and queues it for persistence.
func (h *Handlers) IngestTrace(c *gin.Context) {
	if h.sink == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest disabled"})
		return
	}

	traceID := c.Param("id")
	if err := validate.TraceID(traceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var tr trace.Trace
	if err := c.ShouldBindJSON(&tr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trace payload"})
		return
	}
	if tr.TraceID == "" {
		tr.TraceID = traceID
	}
	if tr.TraceID != traceID {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "trace ID in path does not match payload",
		})
		return
	}
	for i := range tr.Spans {
		if tr.Spans[i].TraceID != tr.TraceID {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("span %s does not belong to trace %s", tr.Spans[i].SpanID, tr.TraceID),
			})
			return
		}
	}

	// Recompute metadata from the spans rather than trusting whatever
	// aggregates the client sent.
	tr.Finalize()

	if !h.sink.Enqueue(&tr) {
		h.logger.Warn("ingest queue rejected trace", zap.String("trace_id", tr.TraceID))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest queue full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"trace_id": tr.TraceID,
	})
}
