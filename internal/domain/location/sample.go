// Package location defines the planar position sample shared by both
// position sources and the geometry operations on it.
package location

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const twoPi = 2 * math.Pi

// Sample is an immutable planar position with heading and timestamp.
// Yaw is always stored normalized into (-π, π].
type Sample struct {
	pos        r2.Vec
	yaw        float64
	timestamp  int64
	floorID    string
	accuracy   int64
	hasBearing bool
}

// Option applies an optional attribute to a Sample under construction.
type Option func(*Sample)

// WithFloor sets the floor identifier.
func WithFloor(floorID string) Option {
	return func(s *Sample) {
		s.floorID = floorID
	}
}

// WithAccuracy sets the reported accuracy.
func WithAccuracy(accuracy int64) Option {
	return func(s *Sample) {
		s.accuracy = accuracy
	}
}

// WithBearing sets whether the source reported a usable bearing.
func WithBearing(hasBearing bool) Option {
	return func(s *Sample) {
		s.hasBearing = hasBearing
	}
}

// New creates a Sample. Bearing defaults to present, accuracy to 0 and floor
// to empty.
func New(x, y, yaw float64, timestamp int64, opts ...Option) Sample {
	s := Sample{
		pos:        r2.Vec{X: x, Y: y},
		yaw:        NormalizeYaw(yaw),
		timestamp:  timestamp,
		hasBearing: true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NormalizeYaw reduces an angle in radians into (-π, π].
func NormalizeYaw(a float64) float64 {
	a = math.Mod(a, twoPi)
	switch {
	case a <= -math.Pi:
		a += twoPi
	case a > math.Pi:
		a -= twoPi
	}
	return a
}

// X returns the x coordinate in meters.
func (s Sample) X() float64 { return s.pos.X }

// Y returns the y coordinate in meters.
func (s Sample) Y() float64 { return s.pos.Y }

// Yaw returns the heading in radians, normalized into (-π, π].
func (s Sample) Yaw() float64 { return s.yaw }

// Timestamp returns the sample time in milliseconds.
func (s Sample) Timestamp() int64 { return s.timestamp }

// FloorID returns the floor the sample was taken on, empty when unknown.
func (s Sample) FloorID() string { return s.floorID }

// Accuracy returns the accuracy reported by the source.
func (s Sample) Accuracy() int64 { return s.accuracy }

// HasBearing reports whether the yaw came from a usable bearing.
func (s Sample) HasBearing() bool { return s.hasBearing }

// IsOrigin reports whether the position is exactly (0, 0).
func (s Sample) IsOrigin() bool { return s.pos.X == 0 && s.pos.Y == 0 }

// SamePosition reports whether s and o share the exact same position.
func (s Sample) SamePosition(o Sample) bool { return s.pos == o.pos }

// Sub returns the componentwise difference s - other. Floor, accuracy and
// bearing are taken from s.
func (s Sample) Sub(other Sample) Sample {
	out := s
	out.pos = r2.Sub(s.pos, other.pos)
	out.yaw = NormalizeYaw(s.yaw - other.yaw)
	out.timestamp = s.timestamp - other.timestamp
	return out
}

// DistanceTo returns the planar Euclidean distance between s and other.
func (s Sample) DistanceTo(other Sample) float64 {
	return r2.Norm(r2.Sub(s.pos, other.pos))
}

// Rotate rotates the position about the origin by angle radians and adds
// angle to the yaw.
func (s Sample) Rotate(angle float64) Sample {
	out := s
	out.pos = r2.Rotate(s.pos, angle, r2.Vec{})
	out.yaw = NormalizeYaw(s.yaw + angle)
	return out
}

// AngularDistanceTo returns the absolute normalized yaw difference.
func (s Sample) AngularDistanceTo(other Sample) float64 {
	return math.Abs(NormalizeYaw(s.yaw - other.yaw))
}

// Heading returns the direction of the position vector from the origin.
func (s Sample) Heading() float64 {
	return math.Atan2(s.pos.Y, s.pos.X)
}
