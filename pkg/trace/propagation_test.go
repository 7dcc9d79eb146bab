package trace

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTraceID(t *testing.T, h string) TraceID {
	t.Helper()
	id, err := TraceIDFromHex(h)
	require.NoError(t, err)
	return id
}

func mustSpanID(t *testing.T, h string) SpanID {
	t.Helper()
	id, err := SpanIDFromHex(h)
	require.NoError(t, err)
	return id
}

func TestInjectExtractRoundTrip(t *testing.T) {
	t.Run("should preserve ids and flags bit for bit", func(t *testing.T) {
		original := SpanContext{
			TraceID: mustTraceID(t, "4bf92f3577b34da6a3ce929d0e0e4736"),
			SpanID:  mustSpanID(t, "00f067aa0ba902b7"),
			Flags:   FlagsSampled,
		}
		carrier := MapCarrier{}
		Inject(original, carrier)

		decoded, err := Extract(carrier)
		require.NoError(t, err)
		assert.Equal(t, original.TraceID, decoded.TraceID)
		assert.Equal(t, original.SpanID, decoded.SpanID)
		assert.Equal(t, original.Flags, decoded.Flags)
		assert.True(t, decoded.Sampled())
	})

	t.Run("should preserve an unsampled flag", func(t *testing.T) {
		original := SpanContext{
			TraceID: mustTraceID(t, "4bf92f3577b34da6a3ce929d0e0e4736"),
			SpanID:  mustSpanID(t, "00f067aa0ba902b7"),
		}
		carrier := MapCarrier{}
		Inject(original, carrier)
		assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00", carrier[TraceParentHeader])

		decoded, err := Extract(carrier)
		require.NoError(t, err)
		assert.False(t, decoded.Sampled())
	})

	t.Run("should carry the trace state through unmodified", func(t *testing.T) {
		original := SpanContext{
			TraceID: mustTraceID(t, "4bf92f3577b34da6a3ce929d0e0e4736"),
			SpanID:  mustSpanID(t, "00f067aa0ba902b7"),
			Flags:   FlagsSampled,
			State:   ParseTraceState("congo=t61rcWkgMzE,rojo=00f067aa0ba902b7"),
		}
		carrier := MapCarrier{}
		Inject(original, carrier)
		assert.Equal(t, "congo=t61rcWkgMzE,rojo=00f067aa0ba902b7", carrier[TraceStateHeader])

		decoded, err := Extract(carrier)
		require.NoError(t, err)
		congo, ok := decoded.State.Get("congo")
		require.True(t, ok)
		assert.Equal(t, "t61rcWkgMzE", congo)
		assert.Equal(t, 2, decoded.State.Len())
	})

	t.Run("should work over http headers", func(t *testing.T) {
		original := SpanContext{
			TraceID: mustTraceID(t, "4bf92f3577b34da6a3ce929d0e0e4736"),
			SpanID:  mustSpanID(t, "00f067aa0ba902b7"),
			Flags:   FlagsSampled,
		}
		header := http.Header{}
		Inject(original, HeaderCarrier(header))

		decoded, err := Extract(HeaderCarrier(header))
		require.NoError(t, err)
		assert.Equal(t, original.TraceID, decoded.TraceID)
		assert.Equal(t, original.SpanID, decoded.SpanID)
	})

	t.Run("should write nothing for an invalid context", func(t *testing.T) {
		carrier := MapCarrier{}
		Inject(SpanContext{}, carrier)
		assert.Empty(t, carrier)
	})
}

func TestExtractMalformedCarriers(t *testing.T) {
	malformed := map[string]string{
		"missing header":         "",
		"too few segments":       "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7",
		"too many segments":      "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01-extra",
		"unsupported version":    "ff-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"short trace id":         "00-4bf92f3577b34da6a3ce929d-00f067aa0ba902b7-01",
		"long span id":           "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7ff-01",
		"uppercase hex":          "00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01",
		"non hex trace id":       "00-4bf92f3577b34da6a3ce929d0e0e47zz-00f067aa0ba902b7-01",
		"all zero trace id":      "00-00000000000000000000000000000000-00f067aa0ba902b7-01",
		"all zero span id":       "00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01",
		"one character flags":    "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-1",
		"non hex flags":          "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-zz",
		"empty version":          "-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"garbage":                "not a trace parent at all",
	}
	for name, header := range malformed {
		t.Run("should soft fail on "+name, func(t *testing.T) {
			carrier := MapCarrier{}
			if header != "" {
				carrier[TraceParentHeader] = header
			}
			_, err := Extract(carrier)
			assert.ErrorIs(t, err, ErrInvalidCarrier)
		})
	}
}

func TestTraceState(t *testing.T) {
	t.Run("should skip malformed entries instead of failing the list", func(t *testing.T) {
		state := ParseTraceState("a=1,,novalue,=orphan,b=2")
		assert.Equal(t, 2, state.Len())
		a, ok := state.Get("a")
		require.True(t, ok)
		assert.Equal(t, "1", a)
		b, ok := state.Get("b")
		require.True(t, ok)
		assert.Equal(t, "2", b)
	})

	t.Run("should drop entries over the per entry size cap", func(t *testing.T) {
		oversized := "big=" + strings.Repeat("x", maxTraceStateMemberSize)
		state := ParseTraceState(oversized + ",small=1")
		assert.Equal(t, 1, state.Len())
		_, ok := state.Get("big")
		assert.False(t, ok)
	})

	t.Run("should cap the number of entries", func(t *testing.T) {
		var entries []string
		for i := 0; i < maxTraceStateMembers+8; i++ {
			entries = append(entries, "k"+string(rune('a'+i%26))+"=v")
		}
		state := ParseTraceState(strings.Join(entries, ","))
		assert.Equal(t, maxTraceStateMembers, state.Len())
	})

	t.Run("should truncate the serialized form from the tail", func(t *testing.T) {
		var entries []string
		for i := 0; i < 16; i++ {
			entries = append(entries, string(rune('a'+i))+"="+strings.Repeat("v", 60))
		}
		state := ParseTraceState(strings.Join(entries, ","))
		serialized := state.String()
		assert.LessOrEqual(t, len(serialized), maxTraceStateSize)
		assert.True(t, strings.HasPrefix(serialized, "a="))
		assert.NotContains(t, serialized, "p=")
	})

	t.Run("should return nothing for a missing key", func(t *testing.T) {
		state := ParseTraceState("a=1")
		_, ok := state.Get("missing")
		assert.False(t, ok)
	})
}
