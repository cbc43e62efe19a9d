package confidence

import "github.com/okian/anchordrift/internal/domain/trajectory"

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithFreshnessWindow sets how many of the newest samples the freshness
// scores look at. It is also the denominator of those scores.
func WithFreshnessWindow(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.freshnessWindow = n
		}
	}
}

// WithDisplacementScale sets the net movement at which displacement
// confidence saturates at 1.
func WithDisplacementScale(d float64) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.displacementScale = d
		}
	}
}

// WithAgreementScale sets the aligned end-point distance at which
// agreement confidence drops to 0.
func WithAgreementScale(d float64) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.agreementScale = d
		}
	}
}

// WithStaleAccuracy sets the accuracy above which a bearing-less indoor fix
// counts as stale.
func WithStaleAccuracy(accuracy int64) Option {
	return func(e *Estimator) {
		if accuracy >= 0 {
			e.staleAccuracy = accuracy
		}
	}
}

// WithHeadingDistance sets the heading-stability distance used when
// aligning trajectories.
func WithHeadingDistance(d float64) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.aligner = trajectory.NewAligner(d)
		}
	}
}
