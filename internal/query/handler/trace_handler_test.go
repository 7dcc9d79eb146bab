package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariadne-io/ariadne/internal/query/service"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/model"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQueryService struct {
	view      service.TraceView
	summaries []service.TraceSummary
	err       error

	lastParams service.SearchParams
}

func (f *fakeQueryService) GetTrace(context.Context, string) (service.TraceView, error) {
	if f.err != nil {
		return service.TraceView{}, f.err
	}
	return f.view, nil
}

func (f *fakeQueryService) Search(_ context.Context, params service.SearchParams) ([]service.TraceSummary, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries, nil
}

func newTraceRouter(qs service.TraceQueryService) http.Handler {
	r := mux.NewRouter()
	r.Handle("/api/traces/{trace_id}", GetTraceHandler(context.Background(), qs, zap.NewNop())).Methods("GET")
	r.Handle("/api/traces/search", SearchHandler(context.Background(), qs, zap.NewNop())).Methods("POST")
	return r
}

func TestGetTraceHandler(t *testing.T) {
	start := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("should serve the assembled trace as nested DTOs", func(t *testing.T) {
		qs := &fakeQueryService{view: service.TraceView{
			TraceID: "trace-1",
			Roots: []*service.TraceNode{
				{
					Span: spanFixture("aaaa", "", "frontend", start, 234*time.Millisecond),
					Children: []*service.TraceNode{
						{Span: spanFixture("bbbb", "aaaa", "backend", start.Add(10*time.Millisecond), 180*time.Millisecond)},
					},
				},
			},
			SpanCount:     2,
			SpansReceived: 2,
			StartTime:     start,
			Duration:      234 * time.Millisecond,
			Complete:      true,
		}}

		recorder := httptest.NewRecorder()
		newTraceRouter(qs).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/traces/trace-1", nil))
		require.Equal(t, http.StatusOK, recorder.Code)

		var dto TraceDTO
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&dto))
		assert.Equal(t, "trace-1", dto.TraceID)
		assert.Equal(t, 2, dto.SpanCount)
		assert.Equal(t, 2, dto.SpansReceived)
		assert.True(t, dto.Complete)
		assert.Equal(t, 234.0, dto.DurationMs)
		require.Len(t, dto.Roots, 1)
		assert.Equal(t, "frontend", dto.Roots[0].ServiceName)
		require.Len(t, dto.Roots[0].Children, 1)
		assert.Equal(t, "backend", dto.Roots[0].Children[0].ServiceName)
	})

	t.Run("should return 404 for an unknown trace", func(t *testing.T) {
		qs := &fakeQueryService{err: storage.ErrTraceNotFound}
		recorder := httptest.NewRecorder()
		newTraceRouter(qs).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/traces/missing", nil))
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestSearchHandler(t *testing.T) {
	start := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("should serve matching trace summaries", func(t *testing.T) {
		qs := &fakeQueryService{summaries: []service.TraceSummary{
			{
				TraceID:       "trace-1",
				RootService:   "frontend",
				RootOperation: "GET /api/users",
				StartTime:     start,
				Duration:      234 * time.Millisecond,
				SpanCount:     3,
			},
		}}

		body, err := json.Marshal(SearchRequestDTO{ServiceName: stringPtr("backend")})
		require.NoError(t, err)
		recorder := httptest.NewRecorder()
		newTraceRouter(qs).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/traces/search", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, recorder.Code)

		var response SearchResponseDTO
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		require.Len(t, response.Traces, 1)
		assert.Equal(t, "trace-1", response.Traces[0].TraceID)
		assert.Equal(t, 234.0, response.Traces[0].DurationMs)

		require.NotNil(t, qs.lastParams.ServiceName)
		assert.Equal(t, "backend", *qs.lastParams.ServiceName)
	})

	t.Run("should convert the minimum duration from milliseconds", func(t *testing.T) {
		qs := &fakeQueryService{}
		minMs := 150.0
		body, err := json.Marshal(SearchRequestDTO{MinDurationMs: &minMs})
		require.NoError(t, err)
		recorder := httptest.NewRecorder()
		newTraceRouter(qs).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/traces/search", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, recorder.Code)

		require.NotNil(t, qs.lastParams.MinDuration)
		assert.Equal(t, 150*time.Millisecond, *qs.lastParams.MinDuration)
	})

	t.Run("should return 400 for a body that is not search criteria", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		newTraceRouter(&fakeQueryService{}).ServeHTTP(
			recorder,
			httptest.NewRequest(http.MethodPost, "/api/traces/search", strings.NewReader("not json")),
		)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func spanFixture(spanID, parentID, serviceName string, start time.Time, duration time.Duration) model.Span {
	return model.Span{
		TraceID:       "trace-1",
		SpanID:        spanID,
		ParentSpanID:  parentID,
		OperationName: "GET /",
		ServiceName:   serviceName,
		StartTime:     start,
		EndTime:       start.Add(duration),
		Status:        "OK",
	}
}

func stringPtr(s string) *string {
	return &s
}
