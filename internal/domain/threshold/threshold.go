// Package threshold implements the adaptive refresh threshold that decides
// when the AR world anchor has to be rebuilt.
//
// The state is a single (value, timestamp) pair. Every evaluation applies the
// rules below in order; at most one of the quality rules fires per call:
//
//  1. either source confidence below the minimum: reset to the floor, rebuild.
//  2. passive decay once the value has been stable for the decay interval.
//  3. quality jump above value+margin: raise the bar to quality, rebuild.
//  4. quality sagging below the bar: lower it by the decrease rate.
//  5. untouched for the refresh interval: refresh to max(quality, floor), rebuild.
package threshold

// Default controller configuration constants.
const (
	DefaultFloor             = 0.2
	DefaultMargin            = 0.2
	DefaultMinConfidence     = 0.8
	DefaultDecayRate         = 0.01
	DefaultDecreaseRate      = 0.05
	DefaultDecayIntervalMS   = 1000
	DefaultRefreshIntervalMS = 30000
)

// Rule names the transition an evaluation took.
type Rule string

// Transitions.
const (
	RuleNone             Rule = "none"
	RuleSourceUnreliable Rule = "source_unreliable"
	RuleQualityJump      Rule = "quality_jump"
	RuleThresholdLowered Rule = "threshold_lowered"
	RulePeriodicRefresh  Rule = "periodic_refresh"
	RuleManualReset      Rule = "manual_reset"
	RuleFloorChange      Rule = "floor_change"
)

// RefreshThreshold is the bar quality has to clear, stamped with the time in
// milliseconds it was last set.
type RefreshThreshold struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// Outcome is the result of one evaluation.
type Outcome struct {
	Reset   bool             `json:"reset"`
	Rule    Rule             `json:"rule"`
	Decayed bool             `json:"decayed"`
	Current RefreshThreshold `json:"current"`
}

// Controller holds the current threshold and its diagnostics mirror.
// Not safe for concurrent use.
type Controller struct {
	floor           float64
	margin          float64
	minConfidence   float64
	decayRate       float64
	decreaseRate    float64
	decayInterval   int64
	refreshInterval int64

	current RefreshThreshold
	dynamic RefreshThreshold
}

// New creates a Controller whose threshold starts at the floor at now.
func New(now int64, opts ...Option) *Controller {
	c := &Controller{
		floor:           DefaultFloor,
		margin:          DefaultMargin,
		minConfidence:   DefaultMinConfidence,
		decayRate:       DefaultDecayRate,
		decreaseRate:    DefaultDecreaseRate,
		decayInterval:   DefaultDecayIntervalMS,
		refreshInterval: DefaultRefreshIntervalMS,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Reset(now)
	return c
}

// Current returns the authoritative threshold.
func (c *Controller) Current() RefreshThreshold { return c.current }

// Dynamic returns the diagnostics mirror. It equals Current after every
// mutation.
func (c *Controller) Dynamic() RefreshThreshold { return c.dynamic }

// Reset puts the threshold back at the floor.
func (c *Controller) Reset(now int64) {
	c.set(c.floor, now)
}

// ShouldReset reports whether the anchor must be rebuilt now.
func (c *Controller) ShouldReset(quality, arConfidence, indoorConfidence float64, now int64) bool {
	return c.Evaluate(quality, arConfidence, indoorConfidence, now).Reset
}

// Evaluate applies the transition rules and reports which one fired.
func (c *Controller) Evaluate(quality, arConfidence, indoorConfidence float64, now int64) Outcome {
	if arConfidence < c.minConfidence || indoorConfidence < c.minConfidence {
		c.Reset(now)
		return c.outcome(true, RuleSourceUnreliable, false)
	}

	decayed := false
	if c.current.Value > c.floor && c.elapsed(now) > c.decayInterval {
		c.current.Value = max(c.current.Value-c.decayRate, c.floor)
		c.dynamic = c.current
		decayed = true
	}

	switch {
	case quality > c.current.Value+c.margin:
		c.set(quality, now)
		return c.outcome(true, RuleQualityJump, decayed)
	case quality < c.current.Value && c.elapsed(now) > c.decayInterval && c.current.Value > c.floor:
		c.set(max(c.current.Value-c.decreaseRate, c.floor), now)
		return c.outcome(false, RuleThresholdLowered, decayed)
	case c.elapsed(now) > c.refreshInterval:
		c.set(max(quality, c.floor), now)
		return c.outcome(true, RulePeriodicRefresh, decayed)
	}
	return c.outcome(false, RuleNone, decayed)
}

// elapsed treats a clock that went backwards as no time passing.
func (c *Controller) elapsed(now int64) int64 {
	if d := now - c.current.Timestamp; d > 0 {
		return d
	}
	return 0
}

func (c *Controller) set(value float64, now int64) {
	c.current = RefreshThreshold{Value: value, Timestamp: now}
	c.dynamic = c.current
}

func (c *Controller) outcome(reset bool, rule Rule, decayed bool) Outcome {
	return Outcome{Reset: reset, Rule: rule, Decayed: decayed, Current: c.current}
}
