package trace

import "time"

// Trace is the complete record of one logical execution.
type Trace struct {
	TraceID   string    `json:"trace_id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Spans     []*Span   `json:"spans"`
	Metadata  Metadata  `json:"metadata"`
}

// Metadata is the aggregate view of a trace. It is always recomputed
// from the spans, never mutated independently.
type Metadata struct {
	SpanCount       int     `json:"span_count"`
	TotalDurationMS float64 `json:"total_duration_ms"`
	Status          Status  `json:"status"`
	AgentID         string  `json:"agent_id,omitempty"`
	Framework       string  `json:"framework,omitempty"`
}

// Summary is the index projection served by trace listings.
type Summary struct {
	TraceID         string    `json:"trace_id"`
	Name            string    `json:"name"`
	Status          Status    `json:"status"`
	SpanCount       int       `json:"span_count"`
	TotalDurationMS float64   `json:"total_duration_ms"`
	StartTime       time.Time `json:"start_time"`
	AgentID         string    `json:"agent_id,omitempty"`
	Framework       string    `json:"framework,omitempty"`
}

// Finalize recomputes the trace window and aggregate metadata from the
// spans. Total duration is the wall-clock window covered by the trace
// (max end minus min start), not the sum of span durations.
func (t *Trace) Finalize() {
	if len(t.Spans) == 0 {
		t.Metadata.SpanCount = 0
		t.Metadata.TotalDurationMS = 0
		t.Metadata.Status = StatusSuccess
		return
	}

	minStart := t.Spans[0].StartTime
	maxEnd := t.Spans[0].EndTime
	status := StatusSuccess

	for _, s := range t.Spans {
		if s.StartTime.Before(minStart) {
			minStart = s.StartTime
		}
		if s.EndTime.After(maxEnd) {
			maxEnd = s.EndTime
		}
		if s.Status == StatusError {
			status = StatusError
		}
		if s.AgentID != "" && t.Metadata.AgentID == "" {
			t.Metadata.AgentID = s.AgentID
		}
		if s.Framework != "" && t.Metadata.Framework == "" {
			t.Metadata.Framework = s.Framework
		}
	}

	t.StartTime = minStart
	t.EndTime = maxEnd
	t.Metadata.SpanCount = len(t.Spans)
	t.Metadata.TotalDurationMS = durationMS(minStart, maxEnd)
	t.Metadata.Status = status
}

// Summary returns the index projection for the trace.
func (t *Trace) Summary() Summary {
	return Summary{
		TraceID:         t.TraceID,
		Name:            t.Name,
		Status:          t.Metadata.Status,
		SpanCount:       t.Metadata.SpanCount,
		TotalDurationMS: t.Metadata.TotalDurationMS,
		StartTime:       t.StartTime,
		AgentID:         t.Metadata.AgentID,
		Framework:       t.Metadata.Framework,
	}
}

// Root returns the root span, or nil for an empty trace.
func (t *Trace) Root() *Span {
	for _, s := range t.Spans {
		if s.IsRoot() {
			return s
		}
	}
	return nil
}
