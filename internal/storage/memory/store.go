package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/model"
)

// Store keeps spans in process memory, indexed by trace id. It backs local
// development and tests; everything is lost on restart.
type Store struct {
	mu     sync.RWMutex
	traces map[string]*traceRecord
}

type traceRecord struct {
	spans map[string]model.Span
	order []string
}

func NewStore() *Store {
	return &Store{traces: make(map[string]*traceRecord)}
}

func (s *Store) Append(_ context.Context, spans []model.Span) (storage.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result storage.AppendResult
	for _, span := range spans {
		record, ok := s.traces[span.TraceID]
		if !ok {
			record = &traceRecord{spans: make(map[string]model.Span)}
			s.traces[span.TraceID] = record
		}
		if _, exists := record.spans[span.SpanID]; exists {
			result.Duplicates++
			continue
		}
		record.spans[span.SpanID] = span
		record.order = append(record.order, span.SpanID)
		result.Stored++
	}
	return result, nil
}

func (s *Store) GetTrace(_ context.Context, traceID string) ([]model.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.traces[traceID]
	if !ok || len(record.order) == 0 {
		return nil, storage.ErrTraceNotFound
	}
	spans := make([]model.Span, 0, len(record.order))
	for _, spanID := range record.order {
		spans = append(spans, record.spans[spanID])
	}
	return spans, nil
}

func (s *Store) FindSpans(_ context.Context, criteria storage.SearchCriteria) ([]model.Span, error) {
	limit := criteria.Limit
	if limit <= 0 {
		limit = storage.DefaultSearchLimit
	}

	s.mu.RLock()
	var matches []model.Span
	for _, record := range s.traces {
		for _, spanID := range record.order {
			span := record.spans[spanID]
			if matchesCriteria(span, criteria) {
				matches = append(matches, span)
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].StartTime.After(matches[j].StartTime)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func matchesCriteria(span model.Span, criteria storage.SearchCriteria) bool {
	if criteria.ServiceName != nil && span.ServiceName != *criteria.ServiceName {
		return false
	}
	if criteria.OperationName != nil && span.OperationName != *criteria.OperationName {
		return false
	}
	if criteria.StartTime != nil && span.StartTime.Before(*criteria.StartTime) {
		return false
	}
	if criteria.EndTime != nil && span.StartTime.After(*criteria.EndTime) {
		return false
	}
	for key, want := range criteria.Tags {
		got, ok := span.Attributes[key]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}
