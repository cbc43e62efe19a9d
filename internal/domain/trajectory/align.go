package trajectory

import "github.com/okian/anchordrift/internal/domain/location"

// DefaultHeadingDistance is how far from the origin a sample must be before
// its direction is trusted as the trajectory's initial heading.
const DefaultHeadingDistance = 2.0

// Aligner expresses a trajectory relative to its own start and initial
// heading.
type Aligner struct {
	headingDistance float64
}

// NewAligner creates an Aligner. Non-positive distances fall back to
// DefaultHeadingDistance.
func NewAligner(headingDistance float64) Aligner {
	if headingDistance <= 0 {
		headingDistance = DefaultHeadingDistance
	}
	return Aligner{headingDistance: headingDistance}
}

// Align translates every sample by the first one and, when some sample lies
// farther than the heading distance from the start, rotates the whole
// trajectory so that sample sits on the positive x axis.
func (a Aligner) Align(samples []location.Sample) []location.Sample {
	if len(samples) == 0 {
		return []location.Sample{}
	}

	origin := samples[0]
	out := make([]location.Sample, len(samples))
	for i, s := range samples {
		out[i] = s.Sub(origin)
	}
	if len(out) == 1 {
		return out
	}

	ref := -1
	for i := 1; i < len(out); i++ {
		if out[i].DistanceTo(out[0]) > a.headingDistance {
			ref = i
			break
		}
	}
	if ref < 0 {
		return out
	}

	angle := -out[ref].Heading()
	for i := range out {
		out[i] = out[i].Rotate(angle)
	}
	return out
}

// Align runs the default Aligner.
func Align(samples []location.Sample) []location.Sample {
	return NewAligner(DefaultHeadingDistance).Align(samples)
}
