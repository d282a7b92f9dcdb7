package trace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentlens/agentlens/internal/infrastructure/monitoring"
	"github.com/agentlens/agentlens/internal/shared/id"
	"github.com/agentlens/agentlens/internal/shared/payload"
)

var (
	// ErrEmptyName is returned by StartSpan when no span name is given.
	ErrEmptyName = errors.New("span name must not be empty")

	// ErrTracerClosed is returned by StartSpan once the tracer is closed,
	// and recorded on spans force-closed at shutdown.
	ErrTracerClosed = errors.New("tracer closed")
)

// Sink receives finalized traces for persistence. Enqueue must be a
// bounded, non-blocking operation; it reports whether the trace was
// accepted.
type Sink interface {
	Enqueue(*Trace) bool
}

// Flusher is implemented by sinks that can drain pending writes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// scope is the per-execution-context recording state: the open-span
// stack and the identity of the active trace. A scope is carried by
// context.Context, so it survives suspension and goroutine handoffs
// that propagate the context. Independent contexts never share a scope.
type scope struct {
	mu      sync.Mutex
	traceID string
	name    string
	stack   []*Span // open spans, innermost last
	spans   []*Span // every span opened in this trace, in open order
	done    bool
	stop    func() bool // deregisters the cancellation watcher
}

func (sc *scope) isDone() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.done
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	return sc
}

// Tracer assembles instrumented calls into trace trees. One Tracer is
// shared by any number of concurrent execution contexts; each context
// records into its own scope.
type Tracer struct {
	logger    *zap.Logger
	sink      Sink
	metrics   *monitoring.Metrics
	agentID   string
	framework string

	mu       sync.Mutex
	inflight map[*scope]struct{}
	closed   bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) { t.logger = logger }
}

// WithSink sets the persistence sink for finalized traces.
func WithSink(sink Sink) Option {
	return func(t *Tracer) { t.sink = sink }
}

// WithMetrics wires engine metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithAgentID stamps every recorded span with an agent identifier.
func WithAgentID(agentID string) Option {
	return func(t *Tracer) { t.agentID = agentID }
}

// WithFramework stamps every recorded span with the host framework name.
func WithFramework(framework string) Option {
	return func(t *Tracer) { t.framework = framework }
}

// New creates a Tracer. Without a sink, finalized traces are discarded
// after a debug log; without a logger, diagnostics are dropped.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		logger:   zap.NewNop(),
		inflight: make(map[*scope]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SpanOption configures a span at open time.
type SpanOption func(*spanConfig)

type spanConfig struct {
	spanType Type
	inputs   map[string]any
	metadata map[string]any
}

// WithType sets the span category. Defaults to TypeFunction.
func WithType(st Type) SpanOption {
	return func(c *spanConfig) { c.spanType = st }
}

// WithInputs records the wrapped code's inputs on the span.
func WithInputs(inputs map[string]any) SpanOption {
	return func(c *spanConfig) { c.inputs = inputs }
}

// WithMetadata attaches free-form annotations to the span.
func WithMetadata(metadata map[string]any) SpanOption {
	return func(c *spanConfig) { c.metadata = metadata }
}

// StartSpan opens a span in the calling execution context. If the
// context has no active trace, a new trace begins and this span becomes
// its root; otherwise the span parents on the innermost open span. The
// returned context carries the recording scope and must be propagated
// to nested instrumentation. After Close, StartSpan refuses new traces
// with ErrTracerClosed.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span, error) {
	if name == "" {
		return ctx, nil, ErrEmptyName
	}

	cfg := spanConfig{spanType: TypeFunction}
	for _, opt := range opts {
		opt(&cfg)
	}

	sc := scopeFrom(ctx)
	fresh := sc == nil || sc.isDone()
	if fresh {
		sc = &scope{
			traceID: id.NewTraceID(),
			name:    name,
		}
		if !t.register(sc) {
			t.usageError("span started after tracer was closed", nil)
			return ctx, nil, ErrTracerClosed
		}
	}

	span := &Span{
		SpanID:    id.NewSpanID(),
		TraceID:   sc.traceID,
		Name:      name,
		SpanType:  cfg.spanType,
		Status:    StatusRunning,
		StartTime: time.Now().UTC(),
		Inputs:    payload.Map(cfg.inputs),
		Outputs:   map[string]any{},
		Metadata:  payload.Map(cfg.metadata),
		LLMCalls:  []LLMCall{},
		AgentID:   t.agentID,
		Framework: t.framework,
		owner:     sc,
	}

	sc.mu.Lock()
	if top := len(sc.stack) - 1; top >= 0 {
		span.ParentSpanID = sc.stack[top].SpanID
	}
	sc.stack = append(sc.stack, span)
	sc.spans = append(sc.spans, span)
	sc.mu.Unlock()

	if fresh {
		ctx = context.WithValue(ctx, scopeKey{}, sc)

		// Close out the trace if the host context dies with spans open.
		stop := context.AfterFunc(ctx, func() {
			t.cancelScope(sc, context.Cause(ctx))
		})
		sc.mu.Lock()
		sc.stop = stop
		sc.mu.Unlock()
	}

	if t.metrics != nil {
		t.metrics.SpanStarted()
	}
	return ctx, span, nil
}

// EndSpan closes the span with the given outputs and error. The span
// must be the innermost open span of its context; if spans opened
// underneath it are still running, they are force-closed as errored and
// a diagnostic is logged (usage error, self-healed). Closing the root
// span finalizes the trace and hands it to the sink. EndSpan never
// panics into application code.
func (t *Tracer) EndSpan(span *Span, outputs map[string]any, err error) {
	if span == nil {
		t.usageError("end_span called with nil span", nil)
		return
	}
	sc := span.owner
	if sc == nil {
		t.usageError("end_span called on a span with no recording scope", span)
		return
	}

	sc.mu.Lock()
	if sc.done {
		sc.mu.Unlock()
		t.usageError("end_span called after trace was finalized", span)
		return
	}

	idx := -1
	for i := len(sc.stack) - 1; i >= 0; i-- {
		if sc.stack[i] == span {
			idx = i
			break
		}
	}
	if idx < 0 {
		sc.mu.Unlock()
		t.usageError("unmatched end_span: span is not open in this context", span)
		return
	}

	// Spans above idx were opened under this span and never closed.
	for i := len(sc.stack) - 1; i > idx; i-- {
		open := sc.stack[i]
		open.complete(nil, fmt.Errorf("span %q closed while %q was still open", span.Name, open.Name))
		t.usageError("force-closed span left open by its parent", open)
	}
	sc.stack = sc.stack[:idx]

	span.complete(outputs, err)

	var finalized *Trace
	if len(sc.stack) == 0 {
		finalized = sc.finalizeLocked()
	}
	sc.mu.Unlock()

	if t.metrics != nil {
		t.metrics.SpanCompleted(string(span.Status))
	}
	if finalized != nil {
		t.dispatch(sc, finalized)
	}
}

// AddLLMCall appends an LLM-call record to the innermost open span of
// the calling context. LLM calls are best-effort telemetry: with no
// open span the record is dropped with a diagnostic, never an error.
func (t *Tracer) AddLLMCall(ctx context.Context, call LLMCall) {
	sc := scopeFrom(ctx)
	if sc == nil {
		t.usageError("llm call recorded outside an active trace", nil)
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.done || len(sc.stack) == 0 {
		t.usageError("llm call recorded with no open span", nil)
		return
	}

	top := sc.stack[len(sc.stack)-1]
	top.LLMCalls = append(top.LLMCalls, sanitizeLLMCall(call))
	if t.metrics != nil {
		t.metrics.LLMCallRecorded()
	}
}

// CurrentSpan returns the innermost open span of the calling context,
// or nil. It never mutates recording state.
func (t *Tracer) CurrentSpan(ctx context.Context) *Span {
	sc := scopeFrom(ctx)
	if sc == nil {
		return nil
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.done || len(sc.stack) == 0 {
		return nil
	}
	return sc.stack[len(sc.stack)-1]
}

// Flush drains the sink's pending writes, for callers that need a
// durability confirmation.
func (t *Tracer) Flush(ctx context.Context) error {
	if f, ok := t.sink.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Close finalizes every in-flight trace, force-closing still-open spans
// as errored so no trace is leaked.
func (t *Tracer) Close() {
	t.mu.Lock()
	t.closed = true
	scopes := make([]*scope, 0, len(t.inflight))
	for sc := range t.inflight {
		scopes = append(scopes, sc)
	}
	t.mu.Unlock()

	for _, sc := range scopes {
		t.cancelScope(sc, ErrTracerClosed)
	}
}

// cancelScope force-closes every open span and finalizes the trace.
// Invoked when the host context is cancelled or the tracer shuts down.
func (t *Tracer) cancelScope(sc *scope, cause error) {
	if cause == nil {
		cause = context.Canceled
	}

	sc.mu.Lock()
	if sc.done {
		sc.mu.Unlock()
		return
	}
	for i := len(sc.stack) - 1; i >= 0; i-- {
		sc.stack[i].complete(nil, fmt.Errorf("context cancelled: %w", cause))
	}
	open := len(sc.stack)
	sc.stack = nil
	finalized := sc.finalizeLocked()
	sc.mu.Unlock()

	if open > 0 {
		t.logger.Warn("trace cancelled with open spans",
			zap.String("trace_id", sc.traceID),
			zap.Int("open_spans", open),
			zap.Error(cause),
		)
	}
	t.dispatch(sc, finalized)
}

// finalizeLocked seals the scope and builds the immutable trace record.
// Caller holds sc.mu.
func (sc *scope) finalizeLocked() *Trace {
	sc.done = true
	tr := &Trace{
		TraceID: sc.traceID,
		Name:    sc.name,
		Spans:   sc.spans,
	}
	tr.Finalize()
	return tr
}

// dispatch hands a finalized trace to the sink and releases the scope.
func (t *Tracer) dispatch(sc *scope, tr *Trace) {
	sc.mu.Lock()
	stop := sc.stop
	sc.mu.Unlock()
	if stop != nil {
		stop()
	}
	t.unregister(sc)

	if t.metrics != nil {
		t.metrics.TraceFinalized(string(tr.Metadata.Status))
	}

	if t.sink == nil {
		t.logger.Debug("trace finalized with no sink configured",
			zap.String("trace_id", tr.TraceID),
			zap.Int("span_count", tr.Metadata.SpanCount),
		)
		return
	}
	if !t.sink.Enqueue(tr) {
		if t.metrics != nil {
			t.metrics.TraceDropped()
		}
		t.logger.Error("trace dropped: persistence queue full",
			zap.String("trace_id", tr.TraceID),
			zap.Int("span_count", tr.Metadata.SpanCount),
		)
	}
}

// register adds a scope to the in-flight set. It reports false once the
// tracer has been closed, so no new trace can outlive shutdown.
func (t *Tracer) register(sc *scope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.inflight[sc] = struct{}{}
	return true
}

func (t *Tracer) unregister(sc *scope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, sc)
}

func (t *Tracer) usageError(msg string, span *Span) {
	fields := make([]zap.Field, 0, 3)
	if span != nil {
		fields = append(fields,
			zap.String("span_id", span.SpanID),
			zap.String("span_name", span.Name),
			zap.String("trace_id", span.TraceID),
		)
	}
	t.logger.Warn(msg, fields...)
	if t.metrics != nil {
		t.metrics.UsageError()
	}
}

func sanitizeLLMCall(call LLMCall) LLMCall {
	if call.Tokens.Input < 0 {
		call.Tokens.Input = 0
	}
	if call.Tokens.Output < 0 {
		call.Tokens.Output = 0
	}
	if call.LatencyMS < 0 {
		call.LatencyMS = 0
	}
	return call
}

func errorType(err error) string {
	typeName := fmt.Sprintf("%T", err)
	for len(typeName) > 0 && typeName[0] == '*' {
		typeName = typeName[1:]
	}
	return typeName
}
