package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentlens/agentlens/internal/infrastructure/logging"
	"github.com/agentlens/agentlens/internal/infrastructure/monitoring"
	"github.com/agentlens/agentlens/internal/trace"
)

// WriterConfig controls the async writer.
type WriterConfig struct {
	// QueueSize is the enqueue buffer capacity. Defaults to 1024.
	QueueSize int
	// MaxRetries is how many times a failed save is retried before the
	// trace is abandoned. Defaults to 3.
	MaxRetries int
	// RetryBackoff is the initial delay between retries, doubled after
	// each attempt. Defaults to 100ms.
	RetryBackoff time.Duration
	// SaveTimeout bounds a single backend save. Defaults to 30s.
	SaveTimeout time.Duration
}

func (c *WriterConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 30 * time.Second
	}
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger sets the logger.
func WithWriterLogger(logger *logging.Logger) WriterOption {
	return func(w *Writer) { w.logger = logger }
}

// WithWriterMetrics sets the metrics recorder.
func WithWriterMetrics(m *monitoring.Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// WithOnSaved registers a hook invoked after each successful save,
// from the worker goroutine.
func WithOnSaved(fn func(trace.Summary)) WriterOption {
	return func(w *Writer) { w.onSaved = fn }
}

// Writer persists finalized traces asynchronously. Enqueue never
// blocks: when the buffer is full the trace is dropped and the caller
// told so. A single worker drains the buffer, retrying failed saves
// with exponential backoff before giving up on a record.
//
// Writer satisfies both the capture engine's sink and flusher
// contracts, so it can be handed to a tracer directly.
type Writer struct {
	backend Backend
	cfg     WriterConfig
	logger  *logging.Logger
	metrics *monitoring.Metrics
	onSaved func(trace.Summary)

	queue   chan *trace.Trace
	pending sync.WaitGroup
	done    chan struct{}

	// mu serializes Enqueue's send against Close's close(queue).
	mu     sync.Mutex
	closed bool
}

// NewWriter creates a writer on top of backend and starts its worker.
func NewWriter(backend Backend, cfg WriterConfig, opts ...WriterOption) *Writer {
	cfg.applyDefaults()

	w := &Writer{
		backend: backend,
		cfg:     cfg,
		logger:  logging.NewNop(),
		queue:   make(chan *trace.Trace, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.run()
	return w
}

// Enqueue hands a trace to the worker. It returns false when the
// writer is closed or the buffer is full; the trace is dropped in
// either case.
func (w *Writer) Enqueue(tr *trace.Trace) bool {
	if tr == nil {
		return false
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}

	w.pending.Add(1)
	select {
	case w.queue <- tr:
		w.mu.Unlock()
		w.recordQueueDepth()
		return true
	default:
		w.pending.Done()
		w.mu.Unlock()
		w.logger.Warn("trace queue full, dropping trace",
			zap.String("trace_id", tr.TraceID))
		return false
	}
}

// Flush blocks until every trace enqueued so far has been saved or
// abandoned, or until ctx is done.
func (w *Writer) Flush(ctx context.Context) error {
	waited := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush: %w", ctx.Err())
	}
}

// Close stops accepting traces, drains the buffer and waits for the
// worker to exit. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	return nil
}

func (w *Writer) run() {
	defer close(w.done)
	for tr := range w.queue {
		w.persist(tr)
		w.pending.Done()
		w.recordQueueDepth()
	}
}

func (w *Writer) persist(tr *trace.Trace) {
	backoff := w.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
			if w.metrics != nil {
				w.metrics.SaveRetried()
			}
		}

		err = w.save(tr)
		if err == nil {
			if w.metrics != nil {
				w.metrics.TraceSaved()
			}
			if w.onSaved != nil {
				w.onSaved(tr.Summary())
			}
			return
		}

		w.logger.Warn("trace save failed",
			zap.String("trace_id", tr.TraceID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if w.metrics != nil {
		w.metrics.SaveFailed()
	}
	w.logger.Error("giving up on trace after retries",
		zap.String("trace_id", tr.TraceID),
		zap.Int("retries", w.cfg.MaxRetries),
		zap.Error(err))
}

func (w *Writer) save(tr *trace.Trace) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SaveTimeout)
	defer cancel()
	return w.backend.Save(ctx, tr)
}

func (w *Writer) recordQueueDepth() {
	if w.metrics != nil {
		w.metrics.SetQueueDepth(len(w.queue))
	}
}
