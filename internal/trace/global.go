package trace

import (
	"context"
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalTracer *Tracer
)

// Init installs the process-wide default tracer. Tests install an
// isolated tracer the same way and restore the previous one afterwards.
func Init(t *Tracer) *Tracer {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := globalTracer
	globalTracer = t
	return prev
}

// Default returns the process-wide tracer, creating a capture-only one
// (no sink) on first use so zero-config instrumentation still records.
func Default() *Tracer {
	globalMu.RLock()
	t := globalTracer
	globalMu.RUnlock()
	if t != nil {
		return t
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalTracer == nil {
		globalTracer = New()
	}
	return globalTracer
}

// StartSpan opens a span on the default tracer.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span, error) {
	return Default().StartSpan(ctx, name, opts...)
}

// EndSpan closes a span on the default tracer.
func EndSpan(span *Span, outputs map[string]any, err error) {
	Default().EndSpan(span, outputs, err)
}

// AddLLMCall records an LLM call on the default tracer.
func AddLLMCall(ctx context.Context, call LLMCall) {
	Default().AddLLMCall(ctx, call)
}

// CurrentSpan returns the innermost open span on the default tracer.
func CurrentSpan(ctx context.Context) *Span {
	return Default().CurrentSpan(ctx)
}

// Start opens a span on the default tracer and returns its finish func.
func Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, func(outputs map[string]any, err error)) {
	return Default().Start(ctx, name, opts...)
}
