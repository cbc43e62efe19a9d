package types_test

import (
	"encoding/json"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/anchordrift/internal/domain/location"
	types "github.com/okian/anchordrift/internal/domain/types"
)

func TestSampleRequests(t *testing.T) {
	Convey("Given an AR pose body with an id", t, func() {
		body := `{"id":"p1","position":{"x":1,"y":1.6,"z":-2},"rotation":{"x":0,"y":0,"z":0,"w":1},"timestamp":42}`

		Convey("When decoding it", func() {
			var req types.ARPoseRequest
			So(json.Unmarshal([]byte(body), &req), ShouldBeNil)

			Convey("Then the pose fields sit beside the id", func() {
				So(req.ID, ShouldEqual, "p1")
				So(req.Position.Z, ShouldEqual, -2)
				So(req.Rotation, ShouldNotBeNil)
				So(req.Yaw, ShouldBeNil)
				So(req.Timestamp, ShouldEqual, 42)
			})
		})
	})

	Convey("Given an indoor fix body without an id", t, func() {
		body := `{"cartesian_x":3,"cartesian_y":4,"bearing_degrees":90,"floor_id":"L2","accuracy":3,"has_bearing":true,"timestamp":7}`

		Convey("When encoding it back", func() {
			var req types.IndoorFixRequest
			So(json.Unmarshal([]byte(body), &req), ShouldBeNil)
			out, err := json.Marshal(req)
			So(err, ShouldBeNil)

			Convey("Then the id is omitted and the fix is flat", func() {
				So(string(out), ShouldNotContainSubstring, `"id"`)
				So(string(out), ShouldContainSubstring, `"floor_id":"L2"`)
				So(req.HasBearing, ShouldBeTrue)
			})
		})
	})
}

func TestIndoorFixRequestDefaults(t *testing.T) {
	Convey("Given an identified fix that omits has_bearing", t, func() {
		body := `{"id":"f9","cartesian_x":3,"cartesian_y":4,"floor_id":"L1","accuracy":8,"timestamp":7}`

		Convey("When decoding it", func() {
			var req types.IndoorFixRequest
			So(json.Unmarshal([]byte(body), &req), ShouldBeNil)

			Convey("Then the id survives and the fix carries a bearing", func() {
				So(req.ID, ShouldEqual, "f9")
				So(req.CartesianY, ShouldEqual, 4)
				So(req.HasBearing, ShouldBeTrue)
			})
		})

		Convey("When decoding it inside a batch", func() {
			var reqs []types.IndoorFixRequest
			So(json.Unmarshal([]byte("["+body+`,{"id":"f10","has_bearing":false,"timestamp":8}]`), &reqs), ShouldBeNil)

			Convey("Then each element keeps its own flag", func() {
				So(reqs, ShouldHaveLength, 2)
				So(reqs[0].HasBearing, ShouldBeTrue)
				So(reqs[1].ID, ShouldEqual, "f10")
				So(reqs[1].HasBearing, ShouldBeFalse)
			})
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given AR poses", t, func() {
		ok := types.ARPoseRequest{ARPose: location.ARPose{Timestamp: 1}}
		So(ok.Validate(), ShouldBeNil)

		late := types.ARPoseRequest{ARPose: location.ARPose{Timestamp: -1}}
		So(errors.Is(late.Validate(), types.ErrInvalidSample), ShouldBeTrue)

		zero := types.ARPoseRequest{ARPose: location.ARPose{Rotation: &location.Quaternion{}, Timestamp: 1}}
		So(errors.Is(zero.Validate(), types.ErrInvalidSample), ShouldBeTrue)
	})

	Convey("Given indoor fixes", t, func() {
		ok := types.IndoorFixRequest{IndoorFix: location.IndoorFix{Accuracy: 3, Timestamp: 1}}
		So(ok.Validate(), ShouldBeNil)

		late := types.IndoorFixRequest{IndoorFix: location.IndoorFix{Timestamp: -1}}
		So(errors.Is(late.Validate(), types.ErrInvalidSample), ShouldBeTrue)

		vague := types.IndoorFixRequest{IndoorFix: location.IndoorFix{Accuracy: -1, Timestamp: 1}}
		So(errors.Is(vague.Validate(), types.ErrInvalidSample), ShouldBeTrue)
	})
}
