package trace

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// TraceParentHeader carries the versioned trace identity:
	// version-traceid-spanid-flags as lowercase hex segments.
	TraceParentHeader = "traceparent"
	// TraceStateHeader carries the vendor trace state as key=value pairs.
	TraceStateHeader = "tracestate"
)

const supportedVersion = "00"

var ErrInvalidCarrier = errors.New("carrier does not hold a valid span context")

// Carrier is the read/write surface of a propagation medium, typically the
// headers of an inbound or outbound request.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// HeaderCarrier adapts http.Header to the Carrier interface.
type HeaderCarrier http.Header

func (c HeaderCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// MapCarrier is a Carrier over a plain map, for transports without headers.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// Inject writes sc into the carrier. Invalid contexts write nothing, so a
// request never leaves the process with a half-formed trace identity.
func Inject(sc SpanContext, carrier Carrier) {
	if !sc.IsValid() {
		return
	}
	carrier.Set(TraceParentHeader, fmt.Sprintf(
		"%s-%s-%s-%02x",
		supportedVersion,
		sc.TraceID.String(),
		sc.SpanID.String(),
		byte(sc.Flags),
	))
	if sc.State.Len() > 0 {
		carrier.Set(TraceStateHeader, sc.State.String())
	}
}

// Extract reads a SpanContext from the carrier. A missing or malformed
// carrier returns ErrInvalidCarrier; callers start a new root trace in that
// case instead of failing the request. Validation is purely syntactic, the
// ids are never checked against any upstream state.
func Extract(carrier Carrier) (SpanContext, error) {
	header := carrier.Get(TraceParentHeader)
	if header == "" {
		return SpanContext{}, ErrInvalidCarrier
	}
	segments := strings.Split(header, "-")
	if len(segments) != 4 || segments[0] != supportedVersion {
		return SpanContext{}, ErrInvalidCarrier
	}
	traceID, err := TraceIDFromHex(segments[1])
	if err != nil {
		return SpanContext{}, ErrInvalidCarrier
	}
	spanID, err := SpanIDFromHex(segments[2])
	if err != nil {
		return SpanContext{}, ErrInvalidCarrier
	}
	flags, err := parseTraceFlags(segments[3])
	if err != nil {
		return SpanContext{}, ErrInvalidCarrier
	}
	return SpanContext{
		TraceID: traceID,
		SpanID:  spanID,
		Flags:   flags,
		State:   ParseTraceState(carrier.Get(TraceStateHeader)),
	}, nil
}

func parseTraceFlags(h string) (TraceFlags, error) {
	if len(h) != 2 || h != strings.ToLower(h) {
		return 0, ErrInvalidCarrier
	}
	decoded, err := hex.DecodeString(h)
	if err != nil {
		return 0, ErrInvalidCarrier
	}
	return TraceFlags(decoded[0]), nil
}
