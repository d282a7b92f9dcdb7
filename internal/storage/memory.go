package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentlens/agentlens/internal/trace"
)

// MemoryBackend keeps traces in a map. It serves tests and ephemeral
// runs where durability is not wanted; traces are treated as immutable
// after Save, so no copies are made.
type MemoryBackend struct {
	mu     sync.RWMutex
	traces map[string]*trace.Trace
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		traces: make(map[string]*trace.Trace),
	}
}

// Save stores the trace, replacing any previous record for the same ID.
func (b *MemoryBackend) Save(_ context.Context, tr *trace.Trace) error {
	if tr == nil || tr.TraceID == "" {
		return fmt.Errorf("trace ID is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.traces[tr.TraceID] = tr
	return nil
}

// Load returns the stored trace or ErrNotFound.
func (b *MemoryBackend) Load(_ context.Context, traceID string) (*trace.Trace, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tr, ok := b.traces[traceID]
	if !ok {
		return nil, ErrNotFound
	}
	return tr, nil
}

// List returns summaries for every stored trace.
func (b *MemoryBackend) List(_ context.Context) ([]trace.Summary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	summaries := make([]trace.Summary, 0, len(b.traces))
	for _, tr := range b.traces {
		summaries = append(summaries, tr.Summary())
	}
	sortSummaries(summaries)
	return summaries, nil
}

// Len reports the number of stored traces.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.traces)
}
