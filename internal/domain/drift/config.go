package drift

import (
	"errors"
	"fmt"

	"github.com/okian/anchordrift/internal/domain/confidence"
	"github.com/okian/anchordrift/internal/domain/threshold"
	"github.com/okian/anchordrift/internal/domain/trajectory"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid drift config")

// Config collects every tunable of the drift monitor.
type Config struct {
	// BufferCapacity is the number of samples kept per source.
	BufferCapacity int
	// HeadingDistance is the distance from the trajectory start beyond which
	// a sample fixes the initial heading during alignment.
	HeadingDistance float64
	// FreshnessWindow is how many of the newest samples the freshness scores
	// inspect.
	FreshnessWindow int
	// DisplacementScale is the net movement at which displacement confidence
	// saturates.
	DisplacementScale float64
	// AgreementScale is the aligned end-point distance at which agreement
	// confidence reaches zero.
	AgreementScale float64
	// StaleAccuracy is the indoor accuracy above which a bearing-less fix is
	// stale.
	StaleAccuracy int64

	// ThresholdFloor is the lowest refresh threshold.
	ThresholdFloor float64
	// ThresholdMargin is how far quality must clear the threshold to trigger
	// a rebuild.
	ThresholdMargin float64
	// MinSourceConfidence forces a rebuild when either freshness score is
	// below it.
	MinSourceConfidence float64
	// DecayRate is the passive per-evaluation decay.
	DecayRate float64
	// DecreaseRate is the step applied when quality sags under the threshold.
	DecreaseRate float64
	// DecayIntervalMS is how long the threshold must be stable before it
	// decays or is lowered.
	DecayIntervalMS int64
	// RefreshIntervalMS forces a refresh of an untouched threshold.
	RefreshIntervalMS int64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:      trajectory.DefaultCapacity,
		HeadingDistance:     trajectory.DefaultHeadingDistance,
		FreshnessWindow:     10,
		DisplacementScale:   10,
		AgreementScale:      10,
		StaleAccuracy:       5,
		ThresholdFloor:      threshold.DefaultFloor,
		ThresholdMargin:     threshold.DefaultMargin,
		MinSourceConfidence: threshold.DefaultMinConfidence,
		DecayRate:           threshold.DefaultDecayRate,
		DecreaseRate:        threshold.DefaultDecreaseRate,
		DecayIntervalMS:     threshold.DefaultDecayIntervalMS,
		RefreshIntervalMS:   threshold.DefaultRefreshIntervalMS,
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	switch {
	case c.BufferCapacity < 2:
		return fmt.Errorf("%w: buffer capacity %d must be at least 2", ErrInvalidConfig, c.BufferCapacity)
	case c.FreshnessWindow < 1:
		return fmt.Errorf("%w: freshness window %d must be positive", ErrInvalidConfig, c.FreshnessWindow)
	case c.HeadingDistance <= 0:
		return fmt.Errorf("%w: heading distance must be positive", ErrInvalidConfig)
	case c.DisplacementScale <= 0 || c.AgreementScale <= 0:
		return fmt.Errorf("%w: displacement and agreement scales must be positive", ErrInvalidConfig)
	case c.ThresholdFloor < 0 || c.ThresholdFloor > 1:
		return fmt.Errorf("%w: threshold floor %.3f outside [0, 1]", ErrInvalidConfig, c.ThresholdFloor)
	case c.MinSourceConfidence < 0 || c.MinSourceConfidence > 1:
		return fmt.Errorf("%w: min source confidence %.3f outside [0, 1]", ErrInvalidConfig, c.MinSourceConfidence)
	case c.ThresholdMargin < 0 || c.DecayRate < 0 || c.DecreaseRate < 0:
		return fmt.Errorf("%w: margin and rates must not be negative", ErrInvalidConfig)
	case c.DecayIntervalMS <= 0 || c.RefreshIntervalMS <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) estimator() *confidence.Estimator {
	return confidence.NewEstimator(
		confidence.WithFreshnessWindow(c.FreshnessWindow),
		confidence.WithDisplacementScale(c.DisplacementScale),
		confidence.WithAgreementScale(c.AgreementScale),
		confidence.WithStaleAccuracy(c.StaleAccuracy),
		confidence.WithHeadingDistance(c.HeadingDistance),
	)
}

func (c Config) controller(now int64) *threshold.Controller {
	return threshold.New(now,
		threshold.WithFloor(c.ThresholdFloor),
		threshold.WithMargin(c.ThresholdMargin),
		threshold.WithMinConfidence(c.MinSourceConfidence),
		threshold.WithDecayRate(c.DecayRate),
		threshold.WithDecreaseRate(c.DecreaseRate),
		threshold.WithDecayInterval(c.DecayIntervalMS),
		threshold.WithRefreshInterval(c.RefreshIntervalMS),
	)
}
