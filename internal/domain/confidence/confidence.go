// Package confidence scores how far the AR and indoor positioning
// trajectories can be trusted, both individually and against each other.
package confidence

import (
	"math"

	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/trajectory"
)

// Default scoring configuration constants.
const (
	defaultFreshnessWindow   = 10
	defaultDisplacementScale = 10.0
	defaultAgreementScale    = 10.0
	defaultStaleAccuracy     = 5
)

// Result holds the five sub-scores and their product.
type Result struct {
	ARDisplacement     float64 `json:"ar_displacement"`
	IndoorDisplacement float64 `json:"indoor_displacement"`
	ARConfidence       float64 `json:"ar_confidence"`
	IndoorConfidence   float64 `json:"indoor_confidence"`
	Agreement          float64 `json:"agreement"`
	// AgreementDistance is the distance between the aligned newest samples.
	AgreementDistance float64 `json:"agreement_distance"`
	Quality           float64 `json:"quality"`
}

// Estimator computes confidence scores from the two source buffers.
type Estimator struct {
	freshnessWindow   int
	displacementScale float64
	agreementScale    float64
	staleAccuracy     int64
	aligner           trajectory.Aligner
}

// NewEstimator creates an Estimator with configuration options.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		freshnessWindow:   defaultFreshnessWindow,
		displacementScale: defaultDisplacementScale,
		agreementScale:    defaultAgreementScale,
		staleAccuracy:     defaultStaleAccuracy,
		aligner:           trajectory.NewAligner(trajectory.DefaultHeadingDistance),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Estimate scores both buffers. When either is empty every score is 0, so
// missing data always reads as zero trust.
func (e *Estimator) Estimate(ar, indoor *trajectory.Buffer) Result {
	if ar == nil || indoor == nil || ar.Empty() || indoor.Empty() {
		return Result{}
	}

	r := Result{
		ARDisplacement:     e.Displacement(ar.TotalDisplacement()),
		IndoorDisplacement: e.Displacement(indoor.TotalDisplacement()),
		ARConfidence:       e.ARFreshness(ar),
		IndoorConfidence:   e.IndoorFreshness(indoor),
	}
	r.AgreementDistance = e.endpointDistance(ar, indoor)
	r.Agreement = e.Agreement(r.AgreementDistance)

	// Any zero sub-score zeroes the quality.
	r.Quality = r.ARDisplacement * r.IndoorDisplacement * r.ARConfidence * r.IndoorConfidence * r.Agreement
	return r
}

// Displacement ramps linearly from 0 to 1 over the displacement scale.
func (e *Estimator) Displacement(distance float64) float64 {
	return math.Min(1.0, distance/e.displacementScale)
}

// Agreement maps an aligned end-point distance to [0, 1].
func (e *Estimator) Agreement(distance float64) float64 {
	if distance > e.agreementScale {
		return 0
	}
	return 1.0 - distance/e.agreementScale
}

// ARFreshness counts, newest first, the AR samples before the first frozen
// (origin) sample or stalled (same position as its predecessor) sample.
func (e *Estimator) ARFreshness(b *trajectory.Buffer) float64 {
	return e.freshness(b, func(i int) bool {
		s := b.At(i)
		if s.IsOrigin() {
			return false
		}
		return i == 0 || !s.SamePosition(b.At(i-1))
	})
}

// IndoorFreshness counts, newest first, the indoor fixes before the first
// one that is both inaccurate and bearing-less.
func (e *Estimator) IndoorFreshness(b *trajectory.Buffer) float64 {
	return e.freshness(b, func(i int) bool {
		s := b.At(i)
		return !(s.Accuracy() > e.staleAccuracy && !s.HasBearing())
	})
}

func (e *Estimator) freshness(b *trajectory.Buffer, ok func(i int) bool) float64 {
	count := 0
	for i := b.Len() - 1; i >= 0 && count < e.freshnessWindow; i-- {
		if !ok(i) {
			break
		}
		count++
	}
	return float64(count) / float64(e.freshnessWindow)
}

func (e *Estimator) endpointDistance(ar, indoor *trajectory.Buffer) float64 {
	a := e.aligner.Align(ar.Samples())
	b := e.aligner.Align(indoor.Samples())
	return lastOf(a).DistanceTo(lastOf(b))
}

func lastOf(s []location.Sample) location.Sample {
	return s[len(s)-1]
}
