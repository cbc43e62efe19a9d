package location

import (
	"encoding/json"
	"math"
)

const degToRad = math.Pi / 180

// Vec3 is a 3D position reported by the AR session. Y is the vertical axis.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an AR camera rotation.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Yaw returns the rotation about the vertical (Y) axis in radians.
func (q Quaternion) Yaw() float64 {
	return math.Atan2(2*(q.W*q.Y+q.X*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
}

// ARPose is one frame of the AR tracking session. Either Rotation or Yaw
// carries the heading; Rotation wins when both are set.
type ARPose struct {
	Position  Vec3        `json:"position"`
	Rotation  *Quaternion `json:"rotation,omitempty"`
	Yaw       *float64    `json:"yaw,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// FromARPose maps an AR pose onto the ground plane using x and z.
func FromARPose(p ARPose) Sample {
	var yaw float64
	switch {
	case p.Rotation != nil:
		yaw = p.Rotation.Yaw()
	case p.Yaw != nil:
		yaw = *p.Yaw
	}
	return New(p.Position.X, p.Position.Z, yaw, p.Timestamp)
}

// IndoorFix is one location update from the indoor positioning system.
type IndoorFix struct {
	CartesianX     float64 `json:"cartesian_x"`
	CartesianY     float64 `json:"cartesian_y"`
	BearingDegrees float64 `json:"bearing_degrees"`
	FloorID        string  `json:"floor_id"`
	Accuracy       int64   `json:"accuracy"`
	HasBearing     bool    `json:"has_bearing"`
	Timestamp      int64   `json:"timestamp"`
}

// UnmarshalJSON decodes a fix. An omitted has_bearing means the fix carries
// a bearing.
func (f *IndoorFix) UnmarshalJSON(data []byte) error {
	type plain IndoorFix
	p := plain{HasBearing: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = IndoorFix(p)
	return nil
}

// FromIndoorFix maps an indoor positioning fix directly onto a Sample.
func FromIndoorFix(f IndoorFix) Sample {
	return New(f.CartesianX, f.CartesianY, f.BearingDegrees*degToRad, f.Timestamp,
		WithFloor(f.FloorID),
		WithAccuracy(f.Accuracy),
		WithBearing(f.HasBearing),
	)
}
