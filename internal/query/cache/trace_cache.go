// Package cache holds assembled trace views so repeated lookups of the same
// trace skip reassembly. The cache is lossy by design: a miss or a rejected
// set just means the next read goes back to the store.
package cache

import (
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
)

var (
	ErrKeyNotFound = errors.New("key not found within the cache")
	ErrSetFailed   = errors.New("failed to set value in cache")
)

const defaultCounterFactor = 10

// TraceCache caches one value per trace id with an expiry, since even a
// trace judged complete can still gain late spans.
type TraceCache[ValueType any] struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewTraceCache[ValueType any](maxEntries int64, ttl time.Duration) (*TraceCache[ValueType], error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * defaultCounterFactor,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &TraceCache[ValueType]{cache: cache, ttl: ttl}, nil
}

func (tc *TraceCache[ValueType]) Get(traceID string) (ValueType, error) {
	var zero ValueType
	value, found := tc.cache.Get(traceID)
	if !found {
		return zero, ErrKeyNotFound
	}
	typedValue, ok := value.(ValueType)
	if !ok {
		return zero, ErrKeyNotFound
	}
	return typedValue, nil
}

func (tc *TraceCache[ValueType]) Put(traceID string, value ValueType) error {
	if !tc.cache.SetWithTTL(traceID, value, 1, tc.ttl) {
		return ErrSetFailed
	}
	// Sets are buffered; wait so a read that follows the write sees it.
	tc.cache.Wait()
	return nil
}

// Invalidate removes a trace from the cache, typically because new spans for
// it just arrived.
func (tc *TraceCache[ValueType]) Invalidate(traceID string) {
	tc.cache.Del(traceID)
}
