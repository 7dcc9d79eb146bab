// Package collector validates inbound span batches before they reach the
// store. Every span is judged on its own: a malformed span in a batch is
// rejected individually and never takes the rest of the batch down with it.
package collector

import (
	"time"

	"github.com/ariadne-io/ariadne/internal/storage/model"
	"github.com/ariadne-io/ariadne/pkg/trace"
)

// ValidateSpan checks one stored-form span and returns the rejection reason
// for an invalid one. Validation is syntactic only; the collector never
// checks the ids against any upstream state.
func ValidateSpan(span model.Span) (reason string, ok bool) {
	if _, err := trace.TraceIDFromHex(span.TraceID); err != nil {
		return trace.RejectionMissingID, false
	}
	if _, err := trace.SpanIDFromHex(span.SpanID); err != nil {
		return trace.RejectionMissingID, false
	}
	if span.ParentSpanID != "" {
		if _, err := trace.SpanIDFromHex(span.ParentSpanID); err != nil {
			return trace.RejectionMissingID, false
		}
	}
	if span.ServiceName == "" || span.OperationName == "" {
		return trace.RejectionMissingID, false
	}
	if span.StartTime.IsZero() || span.EndTime.IsZero() || span.EndTime.Before(span.StartTime) {
		return trace.RejectionBadTimestamp, false
	}
	return "", true
}

// FromPayload maps a wire-format span onto the stored form. No validation
// happens here; ValidateSpan runs on the result.
func FromPayload(payload trace.SpanPayload) model.Span {
	events := make([]model.SpanEvent, 0, len(payload.Events))
	for _, event := range payload.Events {
		events = append(events, model.SpanEvent{
			Timestamp:  time.Unix(0, event.TimeUnixNano).UTC(),
			Name:       event.Name,
			Attributes: event.Attributes,
		})
	}
	if len(events) == 0 {
		events = nil
	}
	span := model.Span{
		TraceID:       payload.TraceID,
		SpanID:        payload.SpanID,
		ParentSpanID:  payload.ParentSpanID,
		OperationName: payload.OperationName,
		ServiceName:   payload.ServiceName,
		Status:        payload.Status,
		Attributes:    payload.Attributes,
		Events:        events,
	}
	if payload.StartTimeUnixNano > 0 {
		span.StartTime = time.Unix(0, payload.StartTimeUnixNano).UTC()
	}
	if payload.EndTimeUnixNano > 0 {
		span.EndTime = time.Unix(0, payload.EndTimeUnixNano).UTC()
	}
	return span
}
