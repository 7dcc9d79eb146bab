package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ariadne-io/ariadne/internal/storage/model"
)

// DefaultSearchLimit bounds FindSpans results when the caller does not say.
const DefaultSearchLimit = 100

var ErrTraceNotFound = errors.New("trace not found")

// FailedSpan identifies a span the store could not persist, with the cause.
type FailedSpan struct {
	TraceID string
	SpanID  string
	Err     error
}

// AppendResult reports the fate of every span offered to Append.
type AppendResult struct {
	Stored     int
	Duplicates int
	Failed     []FailedSpan
}

// SearchCriteria narrows a span search. Nil fields match everything. The
// time range brackets span start times.
type SearchCriteria struct {
	ServiceName   *string
	OperationName *string
	StartTime     *time.Time
	EndTime       *time.Time
	Tags          map[string]string
	Limit         int
}

// SpanStore is the durable home of exported spans. Implementations must be
// safe for many concurrent ingestion calls.
type SpanStore interface {
	// Append writes spans keyed by (trace id, span id) under at-least-once
	// delivery: writing the same key twice keeps the first document, so a
	// late retry can never overwrite what the first attempt stored. A
	// failing span never aborts the rest of the batch.
	Append(ctx context.Context, spans []model.Span) (AppendResult, error)
	// GetTrace returns every stored span sharing the trace id, or
	// ErrTraceNotFound when none exist yet.
	GetTrace(ctx context.Context, traceID string) ([]model.Span, error)
	// FindSpans returns spans matching the criteria, most recent start
	// times first.
	FindSpans(ctx context.Context, criteria SearchCriteria) ([]model.Span, error)
}
