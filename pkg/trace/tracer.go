// Package trace is the client side of the tracing pipeline: it creates
// spans, carries the active span on a context.Context, propagates trace
// identity across process boundaries, and exports finished spans to a
// collector through a bounded batch processor.
package trace

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// TracerConfig holds the collaborators of a Tracer. ServiceName and
// Processor are required; the rest default sensibly.
type TracerConfig struct {
	ServiceName string
	Processor   Processor
	Sampler     Sampler
	IDGenerator IDGenerator
}

// Tracer creates the spans of one service process. All methods are safe for
// concurrent use from any number of request handlers.
type Tracer struct {
	serviceName string
	processor   Processor
	sampler     Sampler
	idGenerator IDGenerator
	logger      *zap.Logger
}

func NewTracer(config TracerConfig, logger *zap.Logger) (*Tracer, error) {
	if config.ServiceName == "" {
		return nil, errors.New("tracer requires a non-empty service name")
	}
	if config.Processor == nil {
		return nil, errors.New("tracer requires a span processor")
	}
	if config.Sampler == nil {
		config.Sampler = AlwaysSample()
	}
	if config.IDGenerator == nil {
		config.IDGenerator = NewRandomIDGenerator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		serviceName: config.ServiceName,
		processor:   config.Processor,
		sampler:     config.Sampler,
		idGenerator: config.IDGenerator,
		logger:      logger,
	}, nil
}

type spanSettings struct {
	remoteParent    SpanContext
	hasRemoteParent bool
	newRoot         bool
	startTime       time.Time
	attributes      map[string]interface{}
}

type SpanOption func(*spanSettings)

// WithRemoteParent continues the trace described by sc, typically one
// extracted from an inbound request, instead of the context's active span.
func WithRemoteParent(sc SpanContext) SpanOption {
	return func(s *spanSettings) {
		s.remoteParent = sc
		s.hasRemoteParent = true
	}
}

// WithNewRoot starts a fresh trace even when ctx carries an active span.
func WithNewRoot() SpanOption {
	return func(s *spanSettings) {
		s.newRoot = true
	}
}

func WithStartTime(t time.Time) SpanOption {
	return func(s *spanSettings) {
		s.startTime = t
	}
}

func WithAttributes(attributes map[string]interface{}) SpanOption {
	return func(s *spanSettings) {
		s.attributes = attributes
	}
}

// StartSpan begins a span and returns a context carrying it as the active
// span. The parent is the context's active span unless WithRemoteParent or
// WithNewRoot says otherwise; a child inherits its parent's trace id,
// sampled flag and trace state. The span must be finished with End by the
// execution context that started it.
func (t *Tracer) StartSpan(ctx context.Context, operation string, opts ...SpanOption) (context.Context, *Span) {
	var settings spanSettings
	for _, opt := range opts {
		opt(&settings)
	}
	if operation == "" {
		t.logger.Warn("span started with an empty operation name")
		operation = "unknown-operation"
	}

	parent, hasParent := t.resolveParent(ctx, settings)
	var spanContext SpanContext
	var parentID SpanID
	if hasParent {
		spanContext = SpanContext{
			TraceID: parent.TraceID,
			SpanID:  t.idGenerator.NewSpanID(),
			Flags:   parent.Flags,
			State:   parent.State,
		}
		parentID = parent.SpanID
	} else {
		traceID := t.idGenerator.NewTraceID()
		spanContext = SpanContext{
			TraceID: traceID,
			SpanID:  t.idGenerator.NewSpanID(),
			Flags:   TraceFlags(0).WithSampled(t.sampler.ShouldSample(traceID)),
		}
	}

	start := settings.startTime
	if start.IsZero() {
		start = time.Now()
	}
	span := &Span{
		spanContext: spanContext,
		parentID:    parentID,
		operation:   operation,
		service:     t.serviceName,
		start:       start,
		attributes:  normalizeAttributes(settings.attributes),
		onEnd:       t.enqueueFinished,
	}
	return ContextWithSpan(ctx, span), span
}

func (t *Tracer) resolveParent(ctx context.Context, settings spanSettings) (SpanContext, bool) {
	if settings.newRoot {
		return SpanContext{}, false
	}
	if settings.hasRemoteParent && settings.remoteParent.IsValid() {
		return settings.remoteParent, true
	}
	if active, ok := SpanFromContext(ctx); ok {
		return active.SpanContext(), true
	}
	return SpanContext{}, false
}

// enqueueFinished hands a finished span to the processor. Unsampled spans
// keep their identity for propagation but are never exported.
func (t *Tracer) enqueueFinished(span *Span) {
	if !span.spanContext.Sampled() {
		return
	}
	t.processor.OnEnd(span)
}

func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// ForceFlush pushes everything buffered in the processor out to the
// exporter before returning.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	return t.processor.ForceFlush(ctx)
}

// Shutdown drains the processor within the deadline of ctx. The tracer must
// not be used afterwards.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.processor.Shutdown(ctx)
}
