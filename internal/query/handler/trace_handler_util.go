package handler

import (
	"time"

	"github.com/ariadne-io/ariadne/internal/query/service"
	"github.com/ariadne-io/ariadne/internal/storage/model"
)

func convertTraceViewToDTO(view service.TraceView) TraceDTO {
	roots := make([]SpanDTO, 0, len(view.Roots))
	for _, root := range view.Roots {
		roots = append(roots, convertNodeToDTO(root))
	}
	return TraceDTO{
		TraceID:       view.TraceID,
		Roots:         roots,
		SpanCount:     view.SpanCount,
		SpansReceived: view.SpansReceived,
		StartTime:     view.StartTime,
		DurationMs:    durationMs(view.Duration),
		Complete:      view.Complete,
	}
}

func convertNodeToDTO(node *service.TraceNode) SpanDTO {
	dto := convertSpanToDTO(node.Span)
	for _, child := range node.Children {
		dto.Children = append(dto.Children, convertNodeToDTO(child))
	}
	return dto
}

func convertSpanToDTO(span model.Span) SpanDTO {
	events := make([]SpanEventDTO, 0, len(span.Events))
	for _, event := range span.Events {
		events = append(events, SpanEventDTO{
			Timestamp:  event.Timestamp,
			Name:       event.Name,
			Attributes: event.Attributes,
		})
	}
	if len(events) == 0 {
		events = nil
	}
	return SpanDTO{
		TraceID:       span.TraceID,
		SpanID:        span.SpanID,
		ParentSpanID:  span.ParentSpanID,
		OperationName: span.OperationName,
		ServiceName:   span.ServiceName,
		StartTime:     span.StartTime,
		EndTime:       span.EndTime,
		DurationMs:    durationMs(span.Duration()),
		Status:        span.Status,
		Attributes:    span.Attributes,
		Events:        events,
	}
}

func convertSearchRequestToParams(request SearchRequestDTO) service.SearchParams {
	params := service.SearchParams{
		ServiceName:   request.ServiceName,
		OperationName: request.OperationName,
		StartTime:     request.StartTime,
		EndTime:       request.EndTime,
		Tags:          request.Tags,
		Limit:         request.Limit,
	}
	if request.MinDurationMs != nil {
		minDuration := time.Duration(*request.MinDurationMs * float64(time.Millisecond))
		params.MinDuration = &minDuration
	}
	return params
}

func convertSummariesToDTO(summaries []service.TraceSummary) SearchResponseDTO {
	traces := make([]TraceSummaryDTO, 0, len(summaries))
	for _, summary := range summaries {
		traces = append(traces, TraceSummaryDTO{
			TraceID:       summary.TraceID,
			RootService:   summary.RootService,
			RootOperation: summary.RootOperation,
			StartTime:     summary.StartTime,
			DurationMs:    durationMs(summary.Duration),
			SpanCount:     summary.SpanCount,
		})
	}
	return SearchResponseDTO{Traces: traces}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
