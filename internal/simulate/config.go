// Package simulate generates synthetic AR and indoor positioning streams
// for a walk through a building and replays them against a drift monitor,
// either in-process or through a running service.
package simulate

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/anchordrift/internal/domain/drift"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds the walk and the replay settings.
type Config struct {
	Steps       int     // AR frames to generate
	StepMS      int64   // time between AR frames
	StepLength  float64 // metres walked per AR frame
	TurnEvery   int     // frames between 90 degree turns; 0 walks straight
	IndoorEvery int     // AR frames per indoor fix

	HeadingOffset float64 // fixed rotation of the AR frame, radians
	DriftRate     float64 // AR heading drift per frame, radians
	IndoorNoise   float64 // indoor position noise, metres (std dev)
	Accuracy      int64   // reported indoor accuracy

	FreezeAt      int // first frozen AR frame; negative disables
	FreezeFrames  int // how long the AR pose stays frozen
	FloorChangeAt int // first frame on the second floor; negative disables

	Seed uint64

	Drift drift.Config // monitor tuning for in-process runs

	BaseURL   string        // service to post to; empty runs in-process
	SessionID string        // session to create remotely; empty lets the server pick
	Timeout   time.Duration // HTTP request timeout
	Watch     bool          // also follow the WebSocket decision stream
	Output    string        // optional JSON report file
	Verbose   bool
}

// DefaultConfig is a two minute walk with slow drift, one AR freeze and one
// staircase.
func DefaultConfig() Config {
	return Config{
		Steps:         480,
		StepMS:        250,
		StepLength:    0.35,
		TurnEvery:     60,
		IndoorEvery:   4,
		HeadingOffset: 0.4,
		DriftRate:     0.002,
		IndoorNoise:   0.4,
		Accuracy:      2,
		FreezeAt:      200,
		FreezeFrames:  24,
		FloorChangeAt: 360,
		Seed:          1,
		Drift:         drift.DefaultConfig(),
		Timeout:       10 * time.Second,
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Steps < 1:
		return fmt.Errorf("%w: steps %d must be positive", ErrInvalidConfig, c.Steps)
	case c.StepMS < 1:
		return fmt.Errorf("%w: step_ms %d must be positive", ErrInvalidConfig, c.StepMS)
	case c.IndoorEvery < 1:
		return fmt.Errorf("%w: indoor_every %d must be positive", ErrInvalidConfig, c.IndoorEvery)
	case c.TurnEvery < 0:
		return fmt.Errorf("%w: turn_every %d must not be negative", ErrInvalidConfig, c.TurnEvery)
	case c.IndoorNoise < 0:
		return fmt.Errorf("%w: indoor noise %.2f must not be negative", ErrInvalidConfig, c.IndoorNoise)
	case c.FreezeAt >= 0 && c.FreezeFrames < 0:
		return fmt.Errorf("%w: freeze frames %d must not be negative", ErrInvalidConfig, c.FreezeFrames)
	}
	if c.BaseURL == "" {
		if err := c.Drift.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
