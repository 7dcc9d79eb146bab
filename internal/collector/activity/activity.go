// Package activity tracks per-trace ingest activity. Every accepted batch
// publishes an event on an in-process bus; the tracker subscribes to keep a
// spans-received count and a last-arrival time per trace. Trace completeness
// is never provable, so the query layer reads these to report how much of a
// trace has arrived and whether it has gone idle.
package activity

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// TopicTraceIngested carries one IngestEvent per trace per accepted batch.
const TopicTraceIngested = "trace:ingested"

type IngestEvent struct {
	TraceID   string    `json:"trace_id"`
	SpanCount int       `json:"span_count"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// Bus is a typed pub/sub channel over an in-process event bus. Payloads go
// through JSON so a handler never sees a half-shared mutable value.
type Bus[T any] interface {
	Subscribe(topic string, handler func(input T) error, transactional bool) error
	Publish(topic string, arg T) error
}

type BusImpl[T any] struct {
	eventBus EventBus.Bus
	logger   *zap.Logger
}

func NewBus[T any](eventBus EventBus.Bus, logger *zap.Logger) Bus[T] {
	return &BusImpl[T]{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (b *BusImpl[T]) Subscribe(
	topic string,
	handler func(input T) error,
	transactional bool,
) error {
	err := b.eventBus.SubscribeAsync(
		topic,
		func(arg string) {
			var input T
			err := json.Unmarshal([]byte(arg), &input)
			if err != nil {
				b.logger.Error("Failed to unmarshal input during subscription of topic",
					zap.String("topic", topic),
					zap.Error(err),
				)
				return
			}
			err = handler(input)
			if err != nil {
				b.logger.Error("Failed to handle input during subscription of topic",
					zap.String("topic", topic),
					zap.Error(err),
				)
			}
		},
		transactional,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return nil
}

func (b *BusImpl[T]) Publish(topic string, arg T) error {
	argBytes, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("failed to marshal output during publishing of topic %s: %w", topic, err)
	}
	b.eventBus.Publish(topic, string(argBytes))
	return nil
}

// Snapshot is the observed ingest state of one trace.
type Snapshot struct {
	SpansReceived int
	LastArrival   time.Time
}

// Tracker accumulates ingest events per trace. Safe for concurrent readers
// against the bus's delivery goroutines.
type Tracker struct {
	mu     sync.RWMutex
	traces map[string]Snapshot
	logger *zap.Logger
}

func NewTracker(bus Bus[IngestEvent], logger *zap.Logger) (*Tracker, error) {
	tracker := &Tracker{
		traces: make(map[string]Snapshot),
		logger: logger,
	}
	err := bus.Subscribe(TopicTraceIngested, tracker.onIngest, false)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe activity tracker: %w", err)
	}
	return tracker, nil
}

func (t *Tracker) onIngest(event IngestEvent) error {
	if event.TraceID == "" || event.SpanCount <= 0 {
		return nil
	}
	arrived := event.ArrivedAt
	if arrived.IsZero() {
		arrived = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := t.traces[event.TraceID]
	snapshot.SpansReceived += event.SpanCount
	if arrived.After(snapshot.LastArrival) {
		snapshot.LastArrival = arrived
	}
	t.traces[event.TraceID] = snapshot
	return nil
}

// SpansReceived reports how many spans of the trace have arrived so far and
// when the last of them did. ok is false for a trace the tracker never saw,
// which happens after a restart even for stored traces.
func (t *Tracker) SpansReceived(traceID string) (count int, lastArrival time.Time, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot, found := t.traces[traceID]
	return snapshot.SpansReceived, snapshot.LastArrival, found
}
