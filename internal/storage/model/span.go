package model

import "time"

// Span is the stored form of one exported span. Field names double as the
// document schema, so they stay stable across store implementations.
type Span struct {
	TraceID       string                 `json:"trace_id"`
	SpanID        string                 `json:"span_id"`
	ParentSpanID  string                 `json:"parent_span_id,omitempty"`
	OperationName string                 `json:"operation_name"`
	ServiceName   string                 `json:"service_name"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       time.Time              `json:"end_time"`
	Status        string                 `json:"status"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Events        []SpanEvent            `json:"events,omitempty"`
}

type SpanEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	Name       string                 `json:"name"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (s Span) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// IsRoot reports whether the span claims no parent.
func (s Span) IsRoot() bool {
	return s.ParentSpanID == ""
}
