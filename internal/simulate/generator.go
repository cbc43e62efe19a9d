package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/types"
)

const (
	cameraHeight = 1.5
	firstFloor   = "L1"
	secondFloor  = "L2"
	radToDeg     = 180 / math.Pi
)

// Frame is one tick of the walk: always an AR pose, sometimes an indoor fix.
type Frame struct {
	Index     int                     `json:"index"`
	Timestamp int64                   `json:"timestamp"`
	AR        types.ARPoseRequest     `json:"ar"`
	Indoor    *types.IndoorFixRequest `json:"indoor,omitempty"`
	Frozen    bool                    `json:"frozen,omitempty"`
}

// Generate builds the frames of one walk. The same config always yields the
// same frames.
func Generate(cfg *Config) []Frame {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	var (
		x, y    float64 // ground truth
		heading float64
		ax, az  float64 // AR dead reckoning
		last    location.ARPose
		frames  = make([]Frame, cfg.Steps)
	)

	for k := range cfg.Steps {
		if k > 0 {
			if cfg.TurnEvery > 0 && k%cfg.TurnEvery == 0 {
				heading = location.NormalizeYaw(heading + math.Pi/2)
			}
			dx := cfg.StepLength * math.Cos(heading)
			dy := cfg.StepLength * math.Sin(heading)
			x += dx
			y += dy

			// The AR frame is rotated by a fixed offset plus the drift
			// accumulated so far.
			rot := cfg.HeadingOffset + cfg.DriftRate*float64(k)
			ax += dx*math.Cos(rot) - dy*math.Sin(rot)
			az += dx*math.Sin(rot) + dy*math.Cos(rot)
		}

		ts := int64(k) * cfg.StepMS
		f := Frame{Index: k, Timestamp: ts}

		frozen := cfg.FreezeAt >= 0 && k >= cfg.FreezeAt && k < cfg.FreezeAt+cfg.FreezeFrames
		if frozen && k > 0 {
			pose := last
			pose.Timestamp = ts
			f.AR = types.ARPoseRequest{ID: fmt.Sprintf("ar-%d", k), ARPose: pose}
			f.Frozen = true
		} else {
			yaw := location.NormalizeYaw(heading + cfg.HeadingOffset + cfg.DriftRate*float64(k))
			last = location.ARPose{
				Position:  location.Vec3{X: ax, Y: cameraHeight, Z: az},
				Yaw:       &yaw,
				Timestamp: ts,
			}
			f.AR = types.ARPoseRequest{ID: fmt.Sprintf("ar-%d", k), ARPose: last}
		}

		if k%cfg.IndoorEvery == 0 {
			floor := firstFloor
			if cfg.FloorChangeAt >= 0 && k >= cfg.FloorChangeAt {
				floor = secondFloor
			}
			f.Indoor = &types.IndoorFixRequest{
				ID: fmt.Sprintf("fix-%d", k),
				IndoorFix: location.IndoorFix{
					CartesianX:     x + rng.NormFloat64()*cfg.IndoorNoise,
					CartesianY:     y + rng.NormFloat64()*cfg.IndoorNoise,
					BearingDegrees: heading * radToDeg,
					FloorID:        floor,
					Accuracy:       cfg.Accuracy,
					HasBearing:     true,
					Timestamp:      ts,
				},
			}
		}
		frames[k] = f
	}
	return frames
}

// IndoorCount returns how many frames carry an indoor fix.
func IndoorCount(frames []Frame) int {
	n := 0
	for i := range frames {
		if frames[i].Indoor != nil {
			n++
		}
	}
	return n
}
