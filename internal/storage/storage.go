// Package storage persists finalized traces and serves them back. The
// Backend interface is the capability contract: a file-based backend is
// the baseline, with in-memory and remote-HTTP implementations behind
// the same contract. Writer decouples persistence from the capture hot
// path.
package storage

import (
	"context"
	"errors"

	"github.com/agentlens/agentlens/internal/trace"
)

// ErrNotFound is returned by Load when no record exists for a trace ID.
var ErrNotFound = errors.New("trace not found")

// Backend is the durable persistence contract for finalized traces.
// Save must be safe for concurrent use across distinct trace IDs;
// concurrent saves of the same ID resolve last-write-wins.
type Backend interface {
	// Save writes the full trace record durably and updates the
	// summary index.
	Save(ctx context.Context, tr *trace.Trace) error

	// Load returns the full trace record, or ErrNotFound.
	Load(ctx context.Context, traceID string) (*trace.Trace, error)

	// List returns summaries for all known traces, most recent first.
	// An empty store yields an empty slice, not an error.
	List(ctx context.Context) ([]trace.Summary, error)
}
