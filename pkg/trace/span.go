package trace

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the outcome of a span's operation.
type Status int

const (
	StatusUnset Status = iota
	StatusOK
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNSET"
	}
}

// ParseStatus reads the wire form of a status code.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "UNSET", "":
		return StatusUnset, nil
	case "OK":
		return StatusOK, nil
	case "ERROR":
		return StatusError, nil
	default:
		return StatusUnset, fmt.Errorf("unknown span status %q", s)
	}
}

// Event is a point-in-time annotation within a span's lifetime.
type Event struct {
	Time       time.Time
	Name       string
	Attributes map[string]interface{}
}

var ErrSpanFinished = errors.New("span already finished")

// Span is one timed operation. A span belongs to the execution context that
// started it until End is called; afterwards every mutator returns
// ErrSpanFinished and the recorded data is frozen for export.
type Span struct {
	mu sync.Mutex

	spanContext SpanContext
	parentID    SpanID
	operation   string
	service     string
	start       time.Time
	end         time.Time
	status      Status
	attributes  map[string]interface{}
	events      []Event
	ended       bool

	onEnd func(*Span)
}

// SetAttribute records a key/value pair on the span. Values are restricted
// to scalars; anything else is stored via its string form. Writing the same
// key twice keeps the last value.
func (s *Span) SetAttribute(key string, value interface{}) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSpanFinished
	}
	if s.attributes == nil {
		s.attributes = make(map[string]interface{})
	}
	s.attributes[key] = normalizeAttributeValue(value)
	return nil
}

// AddEvent appends a timestamped annotation to the span.
func (s *Span) AddEvent(name string, attributes map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSpanFinished
	}
	s.events = append(s.events, Event{
		Time:       time.Now(),
		Name:       name,
		Attributes: normalizeAttributes(attributes),
	})
	return nil
}

// SetStatus overrides the span's status. The status becomes terminal once
// the span ends.
func (s *Span) SetStatus(status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSpanFinished
	}
	s.status = status
	return nil
}

// End finishes the span: the end time is fixed, a still-unset status becomes
// OK, and ownership passes to the export pipeline. Ending twice returns
// ErrSpanFinished.
func (s *Span) End() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSpanFinished
	}
	s.ended = true
	s.end = time.Now()
	if s.status == StatusUnset {
		s.status = StatusOK
	}
	onEnd := s.onEnd
	s.mu.Unlock()
	if onEnd != nil {
		onEnd(s)
	}
	return nil
}

func (s *Span) SpanContext() SpanContext {
	return s.spanContext
}

// ParentSpanID returns the id of the span that caused this one. The zero
// value marks a root span.
func (s *Span) ParentSpanID() SpanID {
	return s.parentID
}

func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operation
}

func (s *Span) ServiceName() string {
	return s.service
}

func (s *Span) StartTime() time.Time {
	return s.start
}

// EndTime is the zero time until the span has ended.
func (s *Span) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

func (s *Span) StatusCode() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Duration is the monotonic elapsed time between start and end, or zero for
// a span still in flight.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		return 0
	}
	return s.end.Sub(s.start)
}

// Attributes returns a copy of the span's attributes.
func (s *Span) Attributes() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]interface{}, len(s.attributes))
	for key, value := range s.attributes {
		copied[key] = value
	}
	return copied
}

// Events returns a copy of the span's events in the order they were added.
func (s *Span) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Event, len(s.events))
	copy(copied, s.events)
	return copied
}

func normalizeAttributes(attributes map[string]interface{}) map[string]interface{} {
	if len(attributes) == 0 {
		return nil
	}
	normalized := make(map[string]interface{}, len(attributes))
	for key, value := range attributes {
		if key == "" {
			continue
		}
		normalized[key] = normalizeAttributeValue(value)
	}
	return normalized
}

func normalizeAttributeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string, bool, int64, float64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return fmt.Sprint(v)
	}
}
