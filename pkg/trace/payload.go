package trace

// Wire contract between the exporter and the collector's ingestion
// endpoint. Batches are self-contained; no batch references another.

// IngestPath is the collector route that accepts batch payloads.
const IngestPath = "/v1/spans"

// Reason codes attached to per-span rejections by the collector.
const (
	RejectionMissingID        = "MISSING_ID"
	RejectionBadTimestamp     = "BAD_TIMESTAMP"
	RejectionPayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	RejectionStoreWriteFailed = "STORE_WRITE_FAILED"
)

type SpanPayload struct {
	TraceID           string                 `json:"trace_id"`
	SpanID            string                 `json:"span_id"`
	ParentSpanID      string                 `json:"parent_span_id,omitempty"`
	OperationName     string                 `json:"operation_name"`
	ServiceName       string                 `json:"service_name"`
	StartTimeUnixNano int64                  `json:"start_time_unix_nano"`
	EndTimeUnixNano   int64                  `json:"end_time_unix_nano"`
	Status            string                 `json:"status"`
	Attributes        map[string]interface{} `json:"attributes,omitempty"`
	Events            []EventPayload         `json:"events,omitempty"`
}

type EventPayload struct {
	TimeUnixNano int64                  `json:"time_unix_nano"`
	Name         string                 `json:"name"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

type BatchPayload struct {
	Spans []SpanPayload `json:"spans"`
}

type RejectionPayload struct {
	SpanID string `json:"span_id"`
	Reason string `json:"reason"`
}

// IngestResponse reports how a batch fared: every span is either accepted or
// rejected individually, one bad span never fails the rest.
type IngestResponse struct {
	Accepted   int                `json:"accepted"`
	Rejected   int                `json:"rejected"`
	Rejections []RejectionPayload `json:"rejections,omitempty"`
}

func NewBatchPayload(spans []*Span) BatchPayload {
	payload := BatchPayload{Spans: make([]SpanPayload, 0, len(spans))}
	for _, span := range spans {
		payload.Spans = append(payload.Spans, NewSpanPayload(span))
	}
	return payload
}

func NewSpanPayload(span *Span) SpanPayload {
	events := span.Events()
	eventPayloads := make([]EventPayload, 0, len(events))
	for _, event := range events {
		eventPayloads = append(eventPayloads, EventPayload{
			TimeUnixNano: event.Time.UnixNano(),
			Name:         event.Name,
			Attributes:   event.Attributes,
		})
	}
	var parent string
	if span.ParentSpanID().IsValid() {
		parent = span.ParentSpanID().String()
	}
	return SpanPayload{
		TraceID:           span.SpanContext().TraceID.String(),
		SpanID:            span.SpanContext().SpanID.String(),
		ParentSpanID:      parent,
		OperationName:     span.OperationName(),
		ServiceName:       span.ServiceName(),
		StartTimeUnixNano: span.StartTime().UnixNano(),
		EndTimeUnixNano:   span.EndTime().UnixNano(),
		Status:            span.StatusCode().String(),
		Attributes:        span.Attributes(),
		Events:            eventPayloads,
	}
}
