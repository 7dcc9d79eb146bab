package trace

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	traceIDHexLength = 32
	spanIDHexLength  = 16
)

var (
	ErrInvalidTraceID = errors.New("trace id must be 32 lowercase hex characters and non-zero")
	ErrInvalidSpanID  = errors.New("span id must be 16 lowercase hex characters and non-zero")
)

// TraceID identifies one trace across every service it touches.
// The zero value is invalid.
type TraceID [16]byte

// SpanID identifies one span within its trace. The zero value is invalid.
type SpanID [8]byte

func (t TraceID) IsValid() bool {
	return t != TraceID{}
}

func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

func (s SpanID) IsValid() bool {
	return s != SpanID{}
}

func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// TraceIDFromHex parses the 32-character lowercase hex form of a trace id.
func TraceIDFromHex(h string) (TraceID, error) {
	var id TraceID
	if len(h) != traceIDHexLength || h != strings.ToLower(h) {
		return id, ErrInvalidTraceID
	}
	decoded, err := hex.DecodeString(h)
	if err != nil {
		return id, ErrInvalidTraceID
	}
	copy(id[:], decoded)
	if !id.IsValid() {
		return id, ErrInvalidTraceID
	}
	return id, nil
}

// SpanIDFromHex parses the 16-character lowercase hex form of a span id.
func SpanIDFromHex(h string) (SpanID, error) {
	var id SpanID
	if len(h) != spanIDHexLength || h != strings.ToLower(h) {
		return id, ErrInvalidSpanID
	}
	decoded, err := hex.DecodeString(h)
	if err != nil {
		return id, ErrInvalidSpanID
	}
	copy(id[:], decoded)
	if !id.IsValid() {
		return id, ErrInvalidSpanID
	}
	return id, nil
}

// IDGenerator produces trace and span ids. Implementations must be safe for
// concurrent use.
type IDGenerator interface {
	NewTraceID() TraceID
	NewSpanID() SpanID
}

// RandomIDGenerator draws trace ids from random UUIDs and span ids from a
// seeded random source. Collision probability is negligible at practical
// trace volumes, not zero: 122 random bits per trace id and 64 per span id.
type RandomIDGenerator struct {
	mu     sync.Mutex
	source *rand.Rand
}

func NewRandomIDGenerator() *RandomIDGenerator {
	var seed int64
	if err := binary.Read(crand.Reader, binary.LittleEndian, &seed); err != nil {
		seed = int64(uuid.New().ID())
	}
	return &RandomIDGenerator{source: rand.New(rand.NewSource(seed))}
}

func (g *RandomIDGenerator) NewTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		id = TraceID(uuid.New())
	}
	return id
}

func (g *RandomIDGenerator) NewSpanID() SpanID {
	var id SpanID
	g.mu.Lock()
	defer g.mu.Unlock()
	for !id.IsValid() {
		g.source.Read(id[:])
	}
	return id
}
