package trace

import (
	"context"
	"fmt"
	"sync"
)

// PanicError marks a panic captured while a span was open. The panic is
// always re-raised to the caller after the span is closed.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Start opens a span and returns a finish function that closes it. The
// finish function is idempotent, so it can be deferred and still be
// called early with real outputs:
//
//	ctx, finish := tracer.Start(ctx, "plan_step")
//	defer finish(nil, nil)
//	...
//	finish(map[string]any{"action": action}, nil)
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, func(outputs map[string]any, err error)) {
	ctx, span, err := t.StartSpan(ctx, name, opts...)
	if err != nil {
		t.usageError("start ignored: "+err.Error(), nil)
		return ctx, func(map[string]any, error) {}
	}

	var once sync.Once
	finish := func(outputs map[string]any, err error) {
		once.Do(func() {
			t.EndSpan(span, outputs, err)
		})
	}
	return ctx, finish
}

// Observe wraps fn in a span on the default tracer. See ObserveWith.
func Observe[T any](ctx context.Context, name string, fn func(context.Context) (T, error), opts ...SpanOption) (T, error) {
	return ObserveWith(Default(), ctx, name, fn, opts...)
}

// ObserveWith runs fn inside a span: the returned value is captured as
// the span's outputs under "result", a returned error marks the span
// errored and is passed through unchanged, and a panic marks the span
// errored and re-panics. The span is closed exactly once on every exit
// path.
func ObserveWith[T any](t *Tracer, ctx context.Context, name string, fn func(context.Context) (T, error), opts ...SpanOption) (T, error) {
	ctx, finish := t.Start(ctx, name, opts...)
	defer func() {
		if r := recover(); r != nil {
			finish(nil, &PanicError{Value: r})
			panic(r)
		}
	}()

	result, err := fn(ctx)
	if err != nil {
		finish(nil, err)
		return result, err
	}

	finish(map[string]any{"result": result}, nil)
	return result, nil
}
