package handler

import "time"

// SpanDTO mirrors the stored span for API responses.
type SpanDTO struct {
	TraceID       string                 `json:"trace_id"`
	SpanID        string                 `json:"span_id"`
	ParentSpanID  string                 `json:"parent_span_id,omitempty"`
	OperationName string                 `json:"operation_name"`
	ServiceName   string                 `json:"service_name"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       time.Time              `json:"end_time"`
	DurationMs    float64                `json:"duration_ms"`
	Status        string                 `json:"status"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Events        []SpanEventDTO         `json:"events,omitempty"`
	Children      []SpanDTO              `json:"children,omitempty"`
}

type SpanEventDTO struct {
	Timestamp  time.Time              `json:"timestamp"`
	Name       string                 `json:"name"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// TraceDTO is the assembled view of one trace. SpansReceived counts arrivals
// seen so far and Complete is a heuristic, never a guarantee.
type TraceDTO struct {
	TraceID       string    `json:"trace_id"`
	Roots         []SpanDTO `json:"roots"`
	SpanCount     int       `json:"span_count"`
	SpansReceived int       `json:"spans_received"`
	StartTime     time.Time `json:"start_time"`
	DurationMs    float64   `json:"duration_ms"`
	Complete      bool      `json:"complete"`
}

// SearchRequestDTO carries the optional search criteria.
type SearchRequestDTO struct {
	ServiceName   *string           `json:"service_name,omitempty"`
	OperationName *string           `json:"operation_name,omitempty"`
	StartTime     *time.Time        `json:"start_time,omitempty"`
	EndTime       *time.Time        `json:"end_time,omitempty"`
	MinDurationMs *float64          `json:"min_duration_ms,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	Limit         int               `json:"limit,omitempty"`
}

type TraceSummaryDTO struct {
	TraceID       string    `json:"trace_id"`
	RootService   string    `json:"root_service"`
	RootOperation string    `json:"root_operation"`
	StartTime     time.Time `json:"start_time"`
	DurationMs    float64   `json:"duration_ms"`
	SpanCount     int       `json:"span_count"`
}

type SearchResponseDTO struct {
	Traces []TraceSummaryDTO `json:"traces"`
}
