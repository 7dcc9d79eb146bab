package trace

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpanParentage(t *testing.T) {
	t.Run("should start a root when the context carries no span", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		_, span := tracer.StartSpan(context.Background(), "GET /api/users")
		assert.True(t, span.SpanContext().IsValid())
		assert.False(t, span.ParentSpanID().IsValid())
		assert.Equal(t, "test-service", span.ServiceName())
	})

	t.Run("should parent a child on the context's active span", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		ctx, parent := tracer.StartSpan(context.Background(), "GET /api/users")
		_, child := tracer.StartSpan(ctx, "SELECT users")

		assert.Equal(t, parent.SpanContext().TraceID, child.SpanContext().TraceID)
		assert.Equal(t, parent.SpanContext().SpanID, child.ParentSpanID())
		assert.NotEqual(t, parent.SpanContext().SpanID, child.SpanContext().SpanID)
	})

	t.Run("should prefer a remote parent over the active span", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		ctx, local := tracer.StartSpan(context.Background(), "local work")
		remote := SpanContext{
			TraceID: mustTraceID(t, "4bf92f3577b34da6a3ce929d0e0e4736"),
			SpanID:  mustSpanID(t, "00f067aa0ba902b7"),
			Flags:   FlagsSampled,
		}
		_, span := tracer.StartSpan(ctx, "GET /users", WithRemoteParent(remote))

		assert.Equal(t, remote.TraceID, span.SpanContext().TraceID)
		assert.Equal(t, remote.SpanID, span.ParentSpanID())
		assert.NotEqual(t, local.SpanContext().TraceID, span.SpanContext().TraceID)
	})

	t.Run("should fall back to a new root for an invalid remote parent", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		_, span := tracer.StartSpan(context.Background(), "GET /users", WithRemoteParent(SpanContext{}))
		assert.True(t, span.SpanContext().IsValid())
		assert.False(t, span.ParentSpanID().IsValid())
	})

	t.Run("should ignore the active span when a new root is requested", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		ctx, parent := tracer.StartSpan(context.Background(), "outer")
		_, span := tracer.StartSpan(ctx, "detached", WithNewRoot())
		assert.NotEqual(t, parent.SpanContext().TraceID, span.SpanContext().TraceID)
		assert.False(t, span.ParentSpanID().IsValid())
	})

	t.Run("should expose the started span as the context's current span", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		ctx, span := tracer.StartSpan(context.Background(), "GET /users")
		active, ok := SpanFromContext(ctx)
		require.True(t, ok)
		assert.Same(t, span, active)
	})

	t.Run("should name an unnamed operation", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		_, span := tracer.StartSpan(context.Background(), "")
		assert.Equal(t, "unknown-operation", span.OperationName())
	})
}

func TestPropagatedChain(t *testing.T) {
	t.Run("should keep one trace id across a three service chain", func(t *testing.T) {
		serviceA := newTestTracer(t, &recordingProcessor{})
		serviceB := newTestTracer(t, &recordingProcessor{})
		serviceC := newTestTracer(t, &recordingProcessor{})

		_, spanA := serviceA.StartSpan(context.Background(), "GET /api/users")
		carrierAB := MapCarrier{}
		Inject(spanA.SpanContext(), carrierAB)

		remoteA, err := Extract(carrierAB)
		require.NoError(t, err)
		_, spanB := serviceB.StartSpan(context.Background(), "GET /users", WithRemoteParent(remoteA))
		carrierBC := MapCarrier{}
		Inject(spanB.SpanContext(), carrierBC)

		remoteB, err := Extract(carrierBC)
		require.NoError(t, err)
		_, spanC := serviceC.StartSpan(context.Background(), "GET /db/users", WithRemoteParent(remoteB))

		assert.Equal(t, spanA.SpanContext().TraceID, spanB.SpanContext().TraceID)
		assert.Equal(t, spanA.SpanContext().TraceID, spanC.SpanContext().TraceID)
		assert.Equal(t, spanA.SpanContext().SpanID, spanB.ParentSpanID())
		assert.Equal(t, spanB.SpanContext().SpanID, spanC.ParentSpanID())
	})
}

func TestActiveSpanIsolation(t *testing.T) {
	t.Run("should never leak the active span between concurrent requests", func(t *testing.T) {
		tracer := newTestTracer(t, &recordingProcessor{})
		const concurrentRequests = 64

		var wg sync.WaitGroup
		traceIDs := make([]TraceID, concurrentRequests)
		mismatches := make([]bool, concurrentRequests)
		for i := 0; i < concurrentRequests; i++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				ctx, span := tracer.StartSpan(context.Background(), "GET /users")
				nested, child := tracer.StartSpan(ctx, "SELECT users")
				active, ok := SpanFromContext(nested)
				mismatches[slot] = !ok ||
					active != child ||
					child.SpanContext().TraceID != span.SpanContext().TraceID
				traceIDs[slot] = span.SpanContext().TraceID
				_ = child.End()
				_ = span.End()
			}(i)
		}
		wg.Wait()

		seen := make(map[TraceID]bool, concurrentRequests)
		for i := 0; i < concurrentRequests; i++ {
			assert.False(t, mismatches[i], "request %d observed a foreign active span", i)
			assert.False(t, seen[traceIDs[i]], "trace id reused across independent requests")
			seen[traceIDs[i]] = true
		}
	})
}

func TestSampling(t *testing.T) {
	t.Run("should not enqueue spans of an unsampled trace", func(t *testing.T) {
		processor := &recordingProcessor{}
		tracer, err := NewTracer(TracerConfig{
			ServiceName: "test-service",
			Processor:   processor,
			Sampler:     NeverSample(),
		}, nil)
		require.NoError(t, err)

		ctx, root := tracer.StartSpan(context.Background(), "GET /users")
		_, child := tracer.StartSpan(ctx, "SELECT users")
		require.NoError(t, child.End())
		require.NoError(t, root.End())

		assert.Empty(t, processor.Spans())
		assert.False(t, root.SpanContext().Sampled())
		assert.False(t, child.SpanContext().Sampled())
	})

	t.Run("should keep propagating identity for unsampled traces", func(t *testing.T) {
		tracer, err := NewTracer(TracerConfig{
			ServiceName: "test-service",
			Processor:   &recordingProcessor{},
			Sampler:     NeverSample(),
		}, nil)
		require.NoError(t, err)

		_, root := tracer.StartSpan(context.Background(), "GET /users")
		carrier := MapCarrier{}
		Inject(root.SpanContext(), carrier)

		decoded, extractErr := Extract(carrier)
		require.NoError(t, extractErr)
		assert.Equal(t, root.SpanContext().TraceID, decoded.TraceID)
		assert.False(t, decoded.Sampled())
	})

	t.Run("should inherit the parent's decision regardless of the sampler", func(t *testing.T) {
		processor := &recordingProcessor{}
		tracer, err := NewTracer(TracerConfig{
			ServiceName: "test-service",
			Processor:   processor,
			Sampler:     NeverSample(),
		}, nil)
		require.NoError(t, err)

		sampledRemote := SpanContext{
			TraceID: mustTraceID(t, "4bf92f3577b34da6a3ce929d0e0e4736"),
			SpanID:  mustSpanID(t, "00f067aa0ba902b7"),
			Flags:   FlagsSampled,
		}
		_, span := tracer.StartSpan(context.Background(), "GET /users", WithRemoteParent(sampledRemote))
		require.NoError(t, span.End())

		assert.True(t, span.SpanContext().Sampled())
		assert.Len(t, processor.Spans(), 1)
	})

	t.Run("should decide deterministically per trace id", func(t *testing.T) {
		sampler := TraceIDRatio(0.5)
		generator := NewRandomIDGenerator()
		for i := 0; i < 32; i++ {
			traceID := generator.NewTraceID()
			first := sampler.ShouldSample(traceID)
			for j := 0; j < 4; j++ {
				assert.Equal(t, first, sampler.ShouldSample(traceID))
			}
		}
	})

	t.Run("should clamp ratios outside the unit interval", func(t *testing.T) {
		generator := NewRandomIDGenerator()
		always := TraceIDRatio(1.5)
		never := TraceIDRatio(-0.5)
		for i := 0; i < 16; i++ {
			traceID := generator.NewTraceID()
			assert.True(t, always.ShouldSample(traceID))
			assert.False(t, never.ShouldSample(traceID))
		}
	})

	t.Run("should sample roughly the configured fraction", func(t *testing.T) {
		sampler := TraceIDRatio(0.5)
		generator := NewRandomIDGenerator()
		sampled := 0
		const draws = 2000
		for i := 0; i < draws; i++ {
			if sampler.ShouldSample(generator.NewTraceID()) {
				sampled++
			}
		}
		assert.InDelta(t, draws/2, sampled, draws/10)
	})
}

func TestTracerConstruction(t *testing.T) {
	t.Run("should require a service name", func(t *testing.T) {
		_, err := NewTracer(TracerConfig{Processor: &recordingProcessor{}}, nil)
		assert.Error(t, err)
	})

	t.Run("should require a processor", func(t *testing.T) {
		_, err := NewTracer(TracerConfig{ServiceName: "checkout"}, nil)
		assert.Error(t, err)
	})
}

func TestIDGeneration(t *testing.T) {
	t.Run("should generate valid distinct ids", func(t *testing.T) {
		generator := NewRandomIDGenerator()
		traceIDs := make(map[TraceID]bool)
		spanIDs := make(map[SpanID]bool)
		for i := 0; i < 256; i++ {
			traceID := generator.NewTraceID()
			spanID := generator.NewSpanID()
			assert.True(t, traceID.IsValid())
			assert.True(t, spanID.IsValid())
			assert.False(t, traceIDs[traceID])
			assert.False(t, spanIDs[spanID])
			traceIDs[traceID] = true
			spanIDs[spanID] = true
		}
	})

	t.Run("should round trip ids through hex", func(t *testing.T) {
		generator := NewRandomIDGenerator()
		traceID := generator.NewTraceID()
		spanID := generator.NewSpanID()

		parsedTrace, err := TraceIDFromHex(traceID.String())
		require.NoError(t, err)
		parsedSpan, err := SpanIDFromHex(spanID.String())
		require.NoError(t, err)
		assert.Equal(t, traceID, parsedTrace)
		assert.Equal(t, spanID, parsedSpan)
	})
}
