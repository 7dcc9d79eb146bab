package service

import (
	"context"
	"testing"
	"time"

	"github.com/ariadne-io/ariadne/internal/query/cache"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/memory"
	"github.com/ariadne-io/ariadne/internal/storage/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const demoTraceID = "0af7651916cd43dd8448eb211c80319c"

// seedDemoTrace stores the three-service chain: frontend 0-234ms, backend
// 10-190ms, database-service 20-140ms.
func seedDemoTrace(t *testing.T, store storage.SpanStore, base time.Time) {
	_, err := store.Append(context.Background(), []model.Span{
		{
			TraceID:       demoTraceID,
			SpanID:        "aaaaaaaaaaaaaaaa",
			OperationName: "GET /api/users",
			ServiceName:   "frontend",
			StartTime:     base,
			EndTime:       base.Add(234 * time.Millisecond),
			Status:        "OK",
		},
		{
			TraceID:       demoTraceID,
			SpanID:        "bbbbbbbbbbbbbbbb",
			ParentSpanID:  "aaaaaaaaaaaaaaaa",
			OperationName: "GET /users",
			ServiceName:   "backend",
			StartTime:     base.Add(10 * time.Millisecond),
			EndTime:       base.Add(190 * time.Millisecond),
			Status:        "OK",
		},
		{
			TraceID:       demoTraceID,
			SpanID:        "cccccccccccccccc",
			ParentSpanID:  "bbbbbbbbbbbbbbbb",
			OperationName: "GET /db/users",
			ServiceName:   "database-service",
			StartTime:     base.Add(20 * time.Millisecond),
			EndTime:       base.Add(140 * time.Millisecond),
			Status:        "OK",
		},
	})
	require.NoError(t, err)
}

type fakeActivity struct {
	count       int
	lastArrival time.Time
	ok          bool
}

func (f *fakeActivity) SpansReceived(string) (int, time.Time, bool) {
	return f.count, f.lastArrival, f.ok
}

func newService(store storage.SpanStore, activity ActivityReader) *TraceQueryServiceImpl {
	return NewTraceQueryService(store, nil, activity, DefaultIdleWindow, zap.NewNop())
}

func TestGetTrace(t *testing.T) {
	ctx := context.Background()

	t.Run("should assemble the three-service chain into one tree", func(t *testing.T) {
		store := memory.NewStore()
		base := time.Now().UTC().Add(-time.Minute)
		seedDemoTrace(t, store, base)

		view, err := newService(store, nil).GetTrace(ctx, demoTraceID)
		require.NoError(t, err)
		assert.Equal(t, 3, view.SpanCount)
		assert.Equal(t, 234*time.Millisecond, view.Duration)

		require.Len(t, view.Roots, 1)
		root := view.Roots[0]
		assert.Equal(t, "frontend", root.Span.ServiceName)
		require.Len(t, root.Children, 1)
		assert.Equal(t, "backend", root.Children[0].Span.ServiceName)
		require.Len(t, root.Children[0].Children, 1)
		assert.Equal(t, "database-service", root.Children[0].Children[0].Span.ServiceName)
	})

	t.Run("should return ErrTraceNotFound for an unknown trace", func(t *testing.T) {
		_, err := newService(memory.NewStore(), nil).GetTrace(ctx, "ffffffffffffffffffffffffffffffff")
		assert.ErrorIs(t, err, storage.ErrTraceNotFound)
	})

	t.Run("should mark an idle trace complete and a fresh one incomplete", func(t *testing.T) {
		store := memory.NewStore()
		idleBase := time.Now().UTC().Add(-time.Minute)
		seedDemoTrace(t, store, idleBase)

		view, err := newService(store, nil).GetTrace(ctx, demoTraceID)
		require.NoError(t, err)
		assert.True(t, view.Complete)

		fresh := memory.NewStore()
		seedDemoTrace(t, fresh, time.Now().UTC())
		view, err = newService(fresh, nil).GetTrace(ctx, demoTraceID)
		require.NoError(t, err)
		assert.False(t, view.Complete)
	})

	t.Run("should prefer the activity tracker for spans received", func(t *testing.T) {
		store := memory.NewStore()
		base := time.Now().UTC().Add(-time.Minute)
		seedDemoTrace(t, store, base)

		activity := &fakeActivity{count: 5, lastArrival: base.Add(234 * time.Millisecond), ok: true}
		view, err := newService(store, activity).GetTrace(ctx, demoTraceID)
		require.NoError(t, err)
		assert.Equal(t, 5, view.SpansReceived)
		assert.Equal(t, 3, view.SpanCount)
	})

	t.Run("should fall back to the stored span count without a tracker", func(t *testing.T) {
		store := memory.NewStore()
		seedDemoTrace(t, store, time.Now().UTC().Add(-time.Minute))

		view, err := newService(store, &fakeActivity{ok: false}).GetTrace(ctx, demoTraceID)
		require.NoError(t, err)
		assert.Equal(t, 3, view.SpansReceived)
	})

	t.Run("should serve a complete trace from the cache on the second read", func(t *testing.T) {
		store := memory.NewStore()
		seedDemoTrace(t, store, time.Now().UTC().Add(-time.Minute))
		traceCache, err := cache.NewTraceCache[TraceView](128, time.Minute)
		require.NoError(t, err)
		qs := NewTraceQueryService(store, traceCache, nil, DefaultIdleWindow, zap.NewNop())

		first, err := qs.GetTrace(ctx, demoTraceID)
		require.NoError(t, err)
		require.True(t, first.Complete)

		cached, err := traceCache.Get(demoTraceID)
		require.NoError(t, err)
		assert.Equal(t, first.Duration, cached.Duration)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("should return exactly one summary for the backend service", func(t *testing.T) {
		store := memory.NewStore()
		seedDemoTrace(t, store, time.Now().UTC().Add(-time.Minute))

		service := "backend"
		summaries, err := newService(store, nil).Search(ctx, SearchParams{ServiceName: &service})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		summary := summaries[0]
		assert.Equal(t, demoTraceID, summary.TraceID)
		assert.Equal(t, "frontend", summary.RootService)
		assert.Equal(t, "GET /api/users", summary.RootOperation)
		assert.Equal(t, 234*time.Millisecond, summary.Duration)
		assert.Equal(t, 3, summary.SpanCount)
	})

	t.Run("should collapse several matching spans into one summary", func(t *testing.T) {
		store := memory.NewStore()
		seedDemoTrace(t, store, time.Now().UTC().Add(-time.Minute))

		summaries, err := newService(store, nil).Search(ctx, SearchParams{})
		require.NoError(t, err)
		assert.Len(t, summaries, 1)
	})

	t.Run("should filter by minimum duration", func(t *testing.T) {
		store := memory.NewStore()
		seedDemoTrace(t, store, time.Now().UTC().Add(-time.Minute))

		tooLong := 500 * time.Millisecond
		summaries, err := newService(store, nil).Search(ctx, SearchParams{MinDuration: &tooLong})
		require.NoError(t, err)
		assert.Empty(t, summaries)

		shortEnough := 200 * time.Millisecond
		summaries, err = newService(store, nil).Search(ctx, SearchParams{MinDuration: &shortEnough})
		require.NoError(t, err)
		assert.Len(t, summaries, 1)
	})

	t.Run("should order summaries by start time descending", func(t *testing.T) {
		store := memory.NewStore()
		now := time.Now().UTC().Add(-time.Minute)
		_, err := store.Append(ctx, []model.Span{
			{
				TraceID: "11111111111111111111111111111111", SpanID: "aaaaaaaaaaaaaaaa",
				OperationName: "GET /old", ServiceName: "frontend",
				StartTime: now, EndTime: now.Add(10 * time.Millisecond), Status: "OK",
			},
			{
				TraceID: "22222222222222222222222222222222", SpanID: "bbbbbbbbbbbbbbbb",
				OperationName: "GET /new", ServiceName: "frontend",
				StartTime: now.Add(time.Second), EndTime: now.Add(time.Second + 10*time.Millisecond), Status: "OK",
			},
		})
		require.NoError(t, err)

		summaries, err := newService(store, nil).Search(ctx, SearchParams{})
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "22222222222222222222222222222222", summaries[0].TraceID)
		assert.Equal(t, "11111111111111111111111111111111", summaries[1].TraceID)
	})

	t.Run("should name orphaned traces after their earliest span", func(t *testing.T) {
		store := memory.NewStore()
		now := time.Now().UTC().Add(-time.Minute)
		_, err := store.Append(ctx, []model.Span{
			{
				TraceID: demoTraceID, SpanID: "bbbbbbbbbbbbbbbb", ParentSpanID: "aaaaaaaaaaaaaaaa",
				OperationName: "GET /users", ServiceName: "backend",
				StartTime: now, EndTime: now.Add(50 * time.Millisecond), Status: "OK",
			},
		})
		require.NoError(t, err)

		summaries, err := newService(store, nil).Search(ctx, SearchParams{})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "backend", summaries[0].RootService)
	})
}
