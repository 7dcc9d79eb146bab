package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceCache(t *testing.T) {
	t.Run("should return what was put under the trace id", func(t *testing.T) {
		tc, err := NewTraceCache[string](128, time.Minute)
		require.NoError(t, err)
		require.NoError(t, tc.Put("trace-1", "assembled view"))

		value, err := tc.Get("trace-1")
		require.NoError(t, err)
		assert.Equal(t, "assembled view", value)
	})

	t.Run("should return ErrKeyNotFound for an unknown trace id", func(t *testing.T) {
		tc, err := NewTraceCache[string](128, time.Minute)
		require.NoError(t, err)

		_, err = tc.Get("trace-1")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("should miss after invalidation", func(t *testing.T) {
		tc, err := NewTraceCache[string](128, time.Minute)
		require.NoError(t, err)
		require.NoError(t, tc.Put("trace-1", "assembled view"))

		tc.Invalidate("trace-1")
		tc.cache.Wait()
		_, err = tc.Get("trace-1")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("should expire entries after the ttl", func(t *testing.T) {
		tc, err := NewTraceCache[string](128, 20*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, tc.Put("trace-1", "assembled view"))

		time.Sleep(50 * time.Millisecond)
		_, err = tc.Get("trace-1")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}
