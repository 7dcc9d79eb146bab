// Package otlp accepts standard OTLP trace exports over gRPC and feeds them
// into the same store as the native HTTP ingestion path, so off-the-shelf
// OpenTelemetry SDKs can point at the collector unchanged.
package otlp

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ariadne-io/ariadne/internal/collector"
	"github.com/ariadne-io/ariadne/internal/collector/activity"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/model"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	protoCommon "go.opentelemetry.io/proto/otlp/common/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
)

const unknownServiceName = "unknown-service"

type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	store  storage.SpanStore
	bus    activity.Bus[activity.IngestEvent]
	logger *zap.Logger
}

func NewTraceServiceServerImpl(
	store storage.SpanStore,
	bus activity.Bus[activity.IngestEvent],
	logger *zap.Logger,
) TraceServiceServerImpl {
	return TraceServiceServerImpl{
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// Export validates and stores every span of the request independently, then
// reports the rejected remainder through OTLP partial success. A bad span
// never fails the rest of its batch.
func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	var spans []model.Span
	var rejected int64
	for _, resourceSpan := range req.ResourceSpans {
		serviceName := getServiceName(resourceSpan)
		if serviceName == unknownServiceName {
			tss.logger.Warn("Service name not found in resource span")
		}
		for _, span := range getTypedSpans(resourceSpan, serviceName) {
			if reason, ok := collector.ValidateSpan(span); !ok {
				tss.logger.Debug(
					"Rejecting invalid span from OTLP export",
					zap.String("span_id", span.SpanID),
					zap.String("reason", reason),
				)
				rejected++
				continue
			}
			spans = append(spans, span)
		}
	}

	if len(spans) > 0 {
		result, err := tss.store.Append(ctx, spans)
		if err != nil {
			tss.logger.Error("Failed to append OTLP spans to store", zap.Error(err))
			rejected += int64(len(spans))
		} else {
			rejected += int64(len(result.Failed))
			tss.publishActivity(spans, result)
		}
	}

	response := &protoTrace.ExportTraceServiceResponse{}
	if rejected > 0 {
		response.PartialSuccess = &protoTrace.ExportTracePartialSuccess{
			RejectedSpans: rejected,
			ErrorMessage:  fmt.Sprintf("%d spans failed validation or storage", rejected),
		}
	}
	return response, nil
}

func (tss TraceServiceServerImpl) publishActivity(stored []model.Span, result storage.AppendResult) {
	if tss.bus == nil {
		return
	}
	failed := make(map[string]bool, len(result.Failed))
	for _, span := range result.Failed {
		failed[span.TraceID+"-"+span.SpanID] = true
	}
	counts := make(map[string]int)
	for _, span := range stored {
		if failed[span.TraceID+"-"+span.SpanID] {
			continue
		}
		counts[span.TraceID]++
	}
	arrived := time.Now().UTC()
	for traceID, count := range counts {
		err := tss.bus.Publish(activity.TopicTraceIngested, activity.IngestEvent{
			TraceID:   traceID,
			SpanCount: count,
			ArrivedAt: arrived,
		})
		if err != nil {
			tss.logger.Error("Failed to publish ingest activity", zap.Error(err))
		}
	}
}

func getServiceName(resourceSpan *v1.ResourceSpans) string {
	var serviceName = unknownServiceName
	if resourceSpan.Resource == nil {
		return serviceName
	}
	for _, attr := range resourceSpan.Resource.Attributes {
		if attr.Key == "service.name" {
			serviceName = attr.Value.GetStringValue()
		}
	}
	return serviceName
}

func getTypedSpans(resourceSpan *v1.ResourceSpans, serviceName string) []model.Span {
	var typedSpans []model.Span
	for _, scopeSpan := range resourceSpan.ScopeSpans {
		for _, span := range scopeSpan.Spans {
			typedSpans = append(typedSpans, getTypedSpan(span, serviceName))
		}
	}
	return typedSpans
}

func getTypedSpan(span *v1.Span, serviceName string) model.Span {
	return model.Span{
		TraceID:       hex.EncodeToString(span.TraceId),
		SpanID:        hex.EncodeToString(span.SpanId),
		ParentSpanID:  hex.EncodeToString(span.ParentSpanId),
		OperationName: span.Name,
		ServiceName:   serviceName,
		StartTime:     time.Unix(0, int64(span.StartTimeUnixNano)).UTC(),
		EndTime:       time.Unix(0, int64(span.EndTimeUnixNano)).UTC(),
		Status:        getStatus(span),
		Attributes:    getAttributes(span.Attributes),
		Events:        getEvents(span),
	}
}

func getEvents(span *v1.Span) []model.SpanEvent {
	if len(span.Events) == 0 {
		return nil
	}
	events := make([]model.SpanEvent, len(span.Events))
	for i, event := range span.Events {
		events[i] = model.SpanEvent{
			Name:       event.Name,
			Attributes: getAttributes(event.Attributes),
			Timestamp:  time.Unix(0, int64(event.TimeUnixNano)).UTC(),
		}
	}
	return events
}

func getAttributes(attributes []*protoCommon.KeyValue) map[string]interface{} {
	if len(attributes) == 0 {
		return nil
	}
	typed := make(map[string]interface{}, len(attributes))
	for _, attribute := range attributes {
		typed[attribute.Key] = getAttributeValue(attribute.Value)
	}
	return typed
}

func getAttributeValue(value *protoCommon.AnyValue) interface{} {
	switch v := value.GetValue().(type) {
	case *protoCommon.AnyValue_StringValue:
		return v.StringValue
	case *protoCommon.AnyValue_BoolValue:
		return v.BoolValue
	case *protoCommon.AnyValue_IntValue:
		return v.IntValue
	case *protoCommon.AnyValue_DoubleValue:
		return v.DoubleValue
	default:
		return value.String()
	}
}

func getStatus(span *v1.Span) string {
	if span.Status == nil {
		return "UNSET"
	}
	switch span.Status.Code {
	case v1.Status_STATUS_CODE_OK:
		return "OK"
	case v1.Status_STATUS_CODE_ERROR:
		return "ERROR"
	default:
		return "UNSET"
	}
}
