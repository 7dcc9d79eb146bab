package trace

import (
	"encoding/binary"
	"fmt"
)

// Sampler decides the sampled flag for new root spans. Children always
// inherit their parent's flag, so the decision is consulted once per trace.
type Sampler interface {
	ShouldSample(traceID TraceID) bool
	Description() string
}

type alwaysOnSampler struct{}

func (alwaysOnSampler) ShouldSample(TraceID) bool {
	return true
}

func (alwaysOnSampler) Description() string {
	return "AlwaysOn"
}

func AlwaysSample() Sampler {
	return alwaysOnSampler{}
}

type alwaysOffSampler struct{}

func (alwaysOffSampler) ShouldSample(TraceID) bool {
	return false
}

func (alwaysOffSampler) Description() string {
	return "AlwaysOff"
}

func NeverSample() Sampler {
	return alwaysOffSampler{}
}

type ratioSampler struct {
	ratio      float64
	upperBound uint64
}

// TraceIDRatio samples the given fraction of new traces. The decision is a
// pure function of the trace id, so a trace either has every span sampled or
// none, regardless of which service asks. Ratios outside [0, 1] are clamped.
func TraceIDRatio(ratio float64) Sampler {
	if ratio >= 1 {
		return AlwaysSample()
	}
	if ratio <= 0 {
		return NeverSample()
	}
	return ratioSampler{
		ratio:      ratio,
		upperBound: uint64(ratio * (1 << 63)),
	}
}

func (s ratioSampler) ShouldSample(traceID TraceID) bool {
	x := binary.BigEndian.Uint64(traceID[8:]) >> 1
	return x < s.upperBound
}

func (s ratioSampler) Description() string {
	return fmt.Sprintf("TraceIDRatio{%g}", s.ratio)
}
