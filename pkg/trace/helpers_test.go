package trace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu    sync.Mutex
	spans []*Span
}

func (p *recordingProcessor) OnEnd(span *Span) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spans = append(p.spans, span)
}

func (p *recordingProcessor) ForceFlush(context.Context) error {
	return nil
}

func (p *recordingProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *recordingProcessor) Spans() []*Span {
	p.mu.Lock()
	defer p.mu.Unlock()
	spans := make([]*Span, len(p.spans))
	copy(spans, p.spans)
	return spans
}

type recordingExporter struct {
	mu      sync.Mutex
	batches [][]*Span
}

func (e *recordingExporter) ExportSpans(_ context.Context, spans []*Span) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	batch := make([]*Span, len(spans))
	copy(batch, spans)
	e.batches = append(e.batches, batch)
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error {
	return nil
}

func (e *recordingExporter) Batches() [][]*Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	batches := make([][]*Span, len(e.batches))
	copy(batches, e.batches)
	return batches
}

func (e *recordingExporter) SpanCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, batch := range e.batches {
		count += len(batch)
	}
	return count
}

type failingExporter struct {
	err error
}

func (e failingExporter) ExportSpans(context.Context, []*Span) error {
	return e.err
}

func (e failingExporter) Shutdown(context.Context) error {
	return nil
}

// blockingExporter parks every export on a gate channel so tests can hold
// the processor's worker mid-flush.
type blockingExporter struct {
	started chan struct{}
	gate    chan struct{}
}

func newBlockingExporter() *blockingExporter {
	return &blockingExporter{
		started: make(chan struct{}, 16),
		gate:    make(chan struct{}),
	}
}

func (e *blockingExporter) ExportSpans(ctx context.Context, _ []*Span) error {
	e.started <- struct{}{}
	select {
	case <-e.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *blockingExporter) Shutdown(context.Context) error {
	return nil
}

var errExportRefused = errors.New("export refused")

func newTestTracer(t *testing.T, processor Processor) *Tracer {
	t.Helper()
	tracer, err := NewTracer(TracerConfig{
		ServiceName: "test-service",
		Processor:   processor,
	}, nil)
	require.NoError(t, err)
	return tracer
}
