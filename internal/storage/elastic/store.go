package elastic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/model"
	"go.uber.org/zap"
)

// traceSpanLimit caps how many spans of one trace a single read returns.
const traceSpanLimit = 10000

// Store persists spans in Elasticsearch, one document per (trace id,
// span id) with create-only writes, so a retried batch can never overwrite
// what the first delivery stored.
type Store struct {
	client Client
	logger *zap.Logger
}

func NewStore(client Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger}
}

func (s *Store) Append(ctx context.Context, spans []model.Span) (storage.AppendResult, error) {
	var result storage.AppendResult
	if len(spans) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(spans))
	documents := make([]map[string]interface{}, 0, len(spans))
	offsets := make([]int, 0, len(spans))
	for i, span := range spans {
		document, err := ToDocument(span)
		if err != nil {
			result.Failed = append(result.Failed, storage.FailedSpan{
				TraceID: span.TraceID,
				SpanID:  span.SpanID,
				Err:     err,
			})
			continue
		}
		ids = append(ids, DocumentID(span))
		documents = append(documents, document)
		offsets = append(offsets, i)
	}
	if len(documents) == 0 {
		return result, nil
	}

	outcomes, err := s.client.BulkCreate(ctx, ids, documents, SpanIndexName)
	if err != nil {
		return result, fmt.Errorf("failed to append spans: %w", err)
	}
	for i, outcome := range outcomes {
		if i >= len(offsets) {
			break
		}
		span := spans[offsets[i]]
		switch {
		case outcome.Created():
			result.Stored++
		case outcome.Conflict():
			result.Duplicates++
		default:
			result.Failed = append(result.Failed, storage.FailedSpan{
				TraceID: span.TraceID,
				SpanID:  span.SpanID,
				Err:     fmt.Errorf("bulk create returned status %d: %s", outcome.Status, outcome.Reason),
			})
		}
	}
	if len(result.Failed) > 0 {
		s.logger.Warn(
			"some spans failed to persist",
			zap.Int("failed", len(result.Failed)),
			zap.Int("stored", result.Stored),
		)
	}
	return result, nil
}

func (s *Store) GetTrace(ctx context.Context, traceID string) ([]model.Span, error) {
	query, err := json.Marshal(BuildTraceQuery(traceID))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trace query: %w", err)
	}
	size := traceSpanLimit
	documents, err := s.client.Search(ctx, string(query), []string{SpanIndexName}, &size)
	if err != nil {
		return nil, fmt.Errorf("failed to search for trace %s: %w", traceID, err)
	}
	spans, err := ConvertFromDocuments(documents)
	if err != nil {
		return nil, fmt.Errorf("failed to convert documents to spans: %w", err)
	}
	if len(spans) == 0 {
		return nil, storage.ErrTraceNotFound
	}
	return spans, nil
}

func (s *Store) FindSpans(ctx context.Context, criteria storage.SearchCriteria) ([]model.Span, error) {
	query, err := json.Marshal(BuildSpanSearchQuery(criteria))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal span search query: %w", err)
	}
	size := criteria.Limit
	if size <= 0 {
		size = storage.DefaultSearchLimit
	}
	documents, err := s.client.Search(ctx, string(query), []string{SpanIndexName}, &size)
	if err != nil {
		return nil, fmt.Errorf("failed to search for spans: %w", err)
	}
	spans, err := ConvertFromDocuments(documents)
	if err != nil {
		return nil, fmt.Errorf("failed to convert documents to spans: %w", err)
	}
	return spans, nil
}
