package trace

import (
	"strings"
)

// TraceFlags is the 8-bit option field carried alongside the trace identity.
// Bit 0 marks the trace as sampled.
type TraceFlags byte

const FlagsSampled TraceFlags = 0x01

func (f TraceFlags) Sampled() bool {
	return f&FlagsSampled == FlagsSampled
}

func (f TraceFlags) WithSampled(sampled bool) TraceFlags {
	if sampled {
		return f | FlagsSampled
	}
	return f &^ FlagsSampled
}

const (
	maxTraceStateMembers    = 32
	maxTraceStateMemberSize = 128
	maxTraceStateSize       = 512
)

// TraceState carries vendor key/value entries alongside the trace identity.
// Services that do not understand an entry pass it through unmodified. Newer
// entries sit at the front of the list, so truncation drops from the tail.
type TraceState struct {
	members []traceStateMember
}

type traceStateMember struct {
	key   string
	value string
}

// ParseTraceState reads the comma-separated key=value form of a trace state.
// Entries that are blank, missing an '=', or over the per-entry size cap are
// skipped rather than failing the whole list.
func ParseTraceState(header string) TraceState {
	var state TraceState
	if header == "" {
		return state
	}
	for _, entry := range strings.Split(header, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" || len(entry) > maxTraceStateMemberSize {
			continue
		}
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			continue
		}
		state.members = append(state.members, traceStateMember{key: key, value: value})
		if len(state.members) == maxTraceStateMembers {
			break
		}
	}
	return state
}

func (s TraceState) Len() int {
	return len(s.members)
}

func (s TraceState) Get(key string) (string, bool) {
	for _, member := range s.members {
		if member.key == key {
			return member.value, true
		}
	}
	return "", false
}

// String serializes the state back to its comma-separated form, dropping
// entries from the tail if the result would exceed the size cap.
func (s TraceState) String() string {
	var builder strings.Builder
	for _, member := range s.members {
		entry := member.key + "=" + member.value
		next := builder.Len() + len(entry)
		if builder.Len() > 0 {
			next++
		}
		if next > maxTraceStateSize {
			break
		}
		if builder.Len() > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(entry)
	}
	return builder.String()
}

// SpanContext is the portable identity of a span: everything a downstream
// service needs to continue the trace. It is a value type and safe to copy.
type SpanContext struct {
	TraceID TraceID
	SpanID  SpanID
	Flags   TraceFlags
	State   TraceState
}

func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

func (sc SpanContext) Sampled() bool {
	return sc.Flags.Sampled()
}
