package trace

import (
	"time"

	"github.com/agentlens/agentlens/internal/shared/payload"
)

// Type categorizes the work a span recorded.
type Type string

const (
	TypeAgentDecision  Type = "agent_decision"
	TypeLLMCall        Type = "llm_call"
	TypeToolCall       Type = "tool_call"
	TypeFunction       Type = "function"
	TypeOrchestration  Type = "orchestration"
	TypeDataProcessing Type = "data_processing"
)

// Status is the execution status of a span. A span transitions from
// StatusRunning to exactly one terminal status.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// TokenUsage counts tokens consumed by one LLM call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// LLMCall captures one model invocation attached to a span.
type LLMCall struct {
	Model       string     `json:"model"`
	Prompt      string     `json:"prompt"`
	Response    string     `json:"response"`
	Tokens      TokenUsage `json:"tokens"`
	LatencyMS   float64    `json:"latency_ms"`
	Cost        *float64   `json:"cost,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
}

// Span is one timed unit of work within a trace.
type Span struct {
	SpanID       string         `json:"span_id"`
	TraceID      string         `json:"trace_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	SpanType     Type           `json:"span_type"`
	Status       Status         `json:"status"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	DurationMS   float64        `json:"duration_ms"`
	Inputs       map[string]any `json:"inputs"`
	Outputs      map[string]any `json:"outputs"`
	Metadata     map[string]any `json:"metadata"`
	LLMCalls     []LLMCall      `json:"llm_calls"`
	Error        string         `json:"error,omitempty"`
	ErrorType    string         `json:"error_type,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
	Framework    string         `json:"framework,omitempty"`

	// owner is the scope this span was opened in. Unset on spans loaded
	// from storage.
	owner *scope
}

// IsRoot reports whether the span has no parent.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

// complete stamps the terminal state. Caller holds the owning scope lock.
func (s *Span) complete(outputs map[string]any, err error) {
	s.EndTime = time.Now().UTC()
	s.DurationMS = durationMS(s.StartTime, s.EndTime)

	if err != nil {
		s.Status = StatusError
		s.Error = err.Error()
		s.ErrorType = errorType(err)
	} else {
		s.Status = StatusSuccess
	}

	if outputs != nil {
		s.Outputs = payload.Map(outputs)
	}
}

func durationMS(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
