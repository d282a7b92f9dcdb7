// Package query serves read access to stored traces.
package query

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/agentlens/agentlens/internal/infrastructure/logging"
	"github.com/agentlens/agentlens/internal/storage"
	"github.com/agentlens/agentlens/internal/trace"
)

// Service answers trace queries against a storage backend. It never
// surfaces backend internals to callers: list failures degrade to an
// empty result and load failures to a not-found, both logged.
type Service struct {
	backend storage.Backend
	logger  *logging.Logger
}

// NewService creates a query service over backend.
func NewService(backend storage.Backend, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{backend: backend, logger: logger}
}

// ListTraces returns summaries of all stored traces, most recent
// first. An empty store yields an empty slice, never nil.
func (s *Service) ListTraces(ctx context.Context) []trace.Summary {
	summaries, err := s.backend.List(ctx)
	if err != nil {
		s.logger.Error("failed to list traces", zap.Error(err))
		return []trace.Summary{}
	}
	if summaries == nil {
		summaries = []trace.Summary{}
	}
	return summaries
}

// GetTrace loads a single trace by ID. Unknown IDs and unreadable
// records both report storage.ErrNotFound.
func (s *Service) GetTrace(ctx context.Context, traceID string) (*trace.Trace, error) {
	tr, err := s.backend.Load(ctx, traceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("failed to load trace",
				zap.String("trace_id", traceID),
				zap.Error(err))
		}
		return nil, storage.ErrNotFound
	}
	return tr, nil
}
