package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariadne-io/ariadne/internal/query/cache"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/model"
	"go.uber.org/zap"
)

const DefaultIdleWindow = 30 * time.Second

// TraceView is the assembled, read-time form of one trace. Completeness is a
// heuristic: no spans have arrived for the idle window. SpansReceived counts
// arrivals observed by the collector when that signal is available, and
// falls back to the stored span count after a restart or across processes.
type TraceView struct {
	TraceID       string
	Roots         []*TraceNode
	SpanCount     int
	SpansReceived int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	Complete      bool
}

// TraceSummary is one search result.
type TraceSummary struct {
	TraceID       string
	RootService   string
	RootOperation string
	StartTime     time.Time
	Duration      time.Duration
	SpanCount     int
}

// SearchParams narrow a trace search. Nil fields match everything.
type SearchParams struct {
	ServiceName   *string
	OperationName *string
	StartTime     *time.Time
	EndTime       *time.Time
	MinDuration   *time.Duration
	Tags          map[string]string
	Limit         int
}

// ActivityReader reports per-trace ingest activity. The collector's tracker
// implements it; a standalone query server runs without one.
type ActivityReader interface {
	SpansReceived(traceID string) (count int, lastArrival time.Time, ok bool)
}

type TraceQueryService interface {
	// GetTrace assembles the span tree of one trace from whatever spans have
	// arrived so far. Returns storage.ErrTraceNotFound when none have.
	GetTrace(ctx context.Context, traceID string) (TraceView, error)
	// Search returns summaries of traces with at least one matching span,
	// ordered by trace start time descending.
	Search(ctx context.Context, params SearchParams) ([]TraceSummary, error)
}

type TraceQueryServiceImpl struct {
	store      storage.SpanStore
	cache      *cache.TraceCache[TraceView]
	activity   ActivityReader
	idleWindow time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewTraceQueryService builds the query side over a span store. cache and
// activity may be nil; idleWindow <= 0 falls back to the default.
func NewTraceQueryService(
	store storage.SpanStore,
	traceCache *cache.TraceCache[TraceView],
	activity ActivityReader,
	idleWindow time.Duration,
	logger *zap.Logger,
) *TraceQueryServiceImpl {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	return &TraceQueryServiceImpl{
		store:      store,
		cache:      traceCache,
		activity:   activity,
		idleWindow: idleWindow,
		now:        time.Now,
		logger:     logger,
	}
}

func (qs *TraceQueryServiceImpl) GetTrace(ctx context.Context, traceID string) (TraceView, error) {
	if qs.cache != nil {
		if view, err := qs.cache.Get(traceID); err == nil {
			return view, nil
		}
	}

	spans, err := qs.store.GetTrace(ctx, traceID)
	if err != nil {
		if errors.Is(err, storage.ErrTraceNotFound) {
			return TraceView{}, err
		}
		return TraceView{}, fmt.Errorf("failed to read trace %s: %w", traceID, err)
	}

	view := qs.assemble(traceID, spans)
	// Only complete traces are cached: an in-flight trace changes with
	// every arriving batch, and the TTL covers stragglers after that.
	if qs.cache != nil && view.Complete {
		if err := qs.cache.Put(traceID, view); err != nil {
			qs.logger.Debug("Failed to cache assembled trace", zap.Error(err))
		}
	}
	return view, nil
}

func (qs *TraceQueryServiceImpl) assemble(traceID string, spans []model.Span) TraceView {
	view := TraceView{
		TraceID:   traceID,
		Roots:     BuildTraceTree(spans),
		SpanCount: len(spans),
	}
	for i, span := range spans {
		if i == 0 || span.StartTime.Before(view.StartTime) {
			view.StartTime = span.StartTime
		}
		if span.EndTime.After(view.EndTime) {
			view.EndTime = span.EndTime
		}
	}
	view.Duration = view.EndTime.Sub(view.StartTime)

	lastActivity := view.EndTime
	view.SpansReceived = view.SpanCount
	if qs.activity != nil {
		if count, lastArrival, ok := qs.activity.SpansReceived(traceID); ok {
			// Arrivals can overcount on redelivery but never fall below
			// what is stored.
			if count > view.SpansReceived {
				view.SpansReceived = count
			}
			lastActivity = lastArrival
		}
	}
	view.Complete = qs.now().Sub(lastActivity) >= qs.idleWindow
	return view
}

func (qs *TraceQueryServiceImpl) Search(ctx context.Context, params SearchParams) ([]TraceSummary, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = storage.DefaultSearchLimit
	}

	matches, err := qs.store.FindSpans(ctx, storage.SearchCriteria{
		ServiceName:   params.ServiceName,
		OperationName: params.OperationName,
		StartTime:     params.StartTime,
		EndTime:       params.EndTime,
		Tags:          params.Tags,
		// Matching spans of one trace collapse into one summary, so read
		// more spans than the trace limit before deduplicating.
		Limit: limit * 4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search for spans: %w", err)
	}

	seen := make(map[string]bool)
	summaries := make([]TraceSummary, 0)
	for _, match := range matches {
		if seen[match.TraceID] {
			continue
		}
		seen[match.TraceID] = true

		spans, err := qs.store.GetTrace(ctx, match.TraceID)
		if err != nil {
			qs.logger.Warn(
				"Failed to load trace for a matching span, skipping it",
				zap.String("trace_id", match.TraceID),
				zap.Error(err),
			)
			continue
		}
		summary := summarize(match.TraceID, spans)
		if params.MinDuration != nil && summary.Duration < *params.MinDuration {
			continue
		}
		summaries = append(summaries, summary)
		if len(summaries) == limit {
			break
		}
	}
	sortSummaries(summaries)
	return summaries, nil
}

// summarize reduces a trace to its search-result row. The root span names
// the trace; when the true root has not arrived, the earliest span stands in.
func summarize(traceID string, spans []model.Span) TraceSummary {
	summary := TraceSummary{TraceID: traceID, SpanCount: len(spans)}
	var first, last time.Time
	var root *model.Span
	for i := range spans {
		span := spans[i]
		if first.IsZero() || span.StartTime.Before(first) {
			first = span.StartTime
		}
		if span.EndTime.After(last) {
			last = span.EndTime
		}
		if root == nil && span.IsRoot() {
			root = &spans[i]
		}
	}
	if root == nil {
		for i := range spans {
			if spans[i].StartTime.Equal(first) {
				root = &spans[i]
				break
			}
		}
	}
	if root != nil {
		summary.RootService = root.ServiceName
		summary.RootOperation = root.OperationName
	}
	summary.StartTime = first
	summary.Duration = last.Sub(first)
	return summary
}

func sortSummaries(summaries []TraceSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
}
