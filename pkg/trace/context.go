package trace

import "context"

type activeSpanKey struct{}

// ContextWithSpan returns a context carrying span as the active span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, activeSpanKey{}, span)
}

// SpanFromContext returns the active span for ctx, if any. The active span
// travels explicitly on the context, so concurrent requests never observe
// each other's spans.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	span, ok := ctx.Value(activeSpanKey{}).(*Span)
	return span, ok
}
