// Package trajectory holds the bounded per-source sample history and the
// alignment that makes two independently sourced trajectories comparable.
package trajectory

import "github.com/okian/anchordrift/internal/domain/location"

// DefaultCapacity is the number of samples kept per source.
const DefaultCapacity = 15

// Buffer is a bounded, insertion-ordered sample history. The oldest sample
// is evicted once capacity is exceeded. Not safe for concurrent use.
type Buffer struct {
	samples  []location.Sample
	capacity int
}

// NewBuffer creates an empty buffer. Non-positive capacities fall back to
// DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		samples:  make([]location.Sample, 0, capacity+1),
		capacity: capacity,
	}
}

// Push appends s as the newest sample.
func (b *Buffer) Push(s location.Sample) {
	b.samples = append(b.samples, s)
	if len(b.samples) > b.capacity {
		n := copy(b.samples, b.samples[len(b.samples)-b.capacity:])
		b.samples = b.samples[:n]
	}
}

// Clear drops every sample.
func (b *Buffer) Clear() {
	b.samples = b.samples[:0]
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int { return len(b.samples) }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }

// Empty reports whether the buffer holds no samples.
func (b *Buffer) Empty() bool { return len(b.samples) == 0 }

// At returns the i-th sample, oldest first.
func (b *Buffer) At(i int) location.Sample { return b.samples[i] }

// Last returns the newest sample and false when the buffer is empty.
func (b *Buffer) Last() (location.Sample, bool) {
	if len(b.samples) == 0 {
		return location.Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Samples returns a copy of the buffered samples, oldest first.
func (b *Buffer) Samples() []location.Sample {
	out := make([]location.Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// TotalDisplacement is the straight-line distance from the oldest to the
// newest sample, 0 with fewer than two samples.
func (b *Buffer) TotalDisplacement() float64 {
	if len(b.samples) < 2 {
		return 0
	}
	return b.samples[0].DistanceTo(b.samples[len(b.samples)-1])
}
