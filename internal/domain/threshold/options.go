package threshold

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithFloor sets the lowest threshold value.
func WithFloor(floor float64) Option {
	return func(c *Controller) {
		if floor >= 0 {
			c.floor = floor
		}
	}
}

// WithMargin sets how far quality must exceed the threshold to trigger a
// rebuild.
func WithMargin(margin float64) Option {
	return func(c *Controller) {
		if margin >= 0 {
			c.margin = margin
		}
	}
}

// WithMinConfidence sets the source confidence below which a rebuild is forced.
func WithMinConfidence(v float64) Option {
	return func(c *Controller) {
		if v >= 0 {
			c.minConfidence = v
		}
	}
}

// WithDecayRate sets the passive decay applied per evaluation.
func WithDecayRate(rate float64) Option {
	return func(c *Controller) {
		if rate >= 0 {
			c.decayRate = rate
		}
	}
}

// WithDecreaseRate sets the step used when quality sags below the threshold.
func WithDecreaseRate(rate float64) Option {
	return func(c *Controller) {
		if rate >= 0 {
			c.decreaseRate = rate
		}
	}
}

// WithDecayInterval sets, in milliseconds, how long the threshold must be
// stable before it decays or is lowered.
func WithDecayInterval(ms int64) Option {
	return func(c *Controller) {
		if ms > 0 {
			c.decayInterval = ms
		}
	}
}

// WithRefreshInterval sets, in milliseconds, how long an untouched threshold
// lasts before a forced refresh.
func WithRefreshInterval(ms int64) Option {
	return func(c *Controller) {
		if ms > 0 {
			c.refreshInterval = ms
		}
	}
}
