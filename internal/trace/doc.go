// Package trace is the capture engine: it turns nested instrumentation
// calls into well-formed trace trees and hands finalized traces to a
// persistence sink.
//
// The unit of isolation is the execution context, modeled as a
// context.Context carrying a recording scope. Each scope owns an
// open-span stack, so concurrent goroutine chains record independent
// traces while nested calls within one chain stack correctly, including
// across suspension points — the scope travels with the context, not
// the call stack.
//
// A trace begins implicitly when the first span opens in a context and
// finalizes when its root span closes. Finalized traces are enqueued on
// the sink without blocking the instrumented code; durable I/O happens
// on the sink's own worker.
//
// Instrumentation misuse (closing spans out of order, recording LLM
// calls with no open span, abandoning a trace to context cancellation)
// never propagates into application code: the engine logs a diagnostic,
// force-closes affected spans as errored, and keeps the trace
// structurally valid.
package trace
