package drift_test

import (
	"errors"
	"testing"

	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/threshold"
	. "github.com/smartystreets/goconvey/convey"
)

func indoorFix(x float64, floor string) location.Sample {
	return location.New(x, 0, 0, int64(x*100), location.WithFloor(floor), location.WithAccuracy(1))
}

func arPose(x float64) location.Sample {
	return location.New(x, 0, 0, int64(x*100))
}

func newMonitor(clock drift.Clock) *drift.Monitor {
	m, err := drift.NewMonitor(drift.DefaultConfig(), drift.WithClock(clock))
	So(err, ShouldBeNil)
	return m
}

func TestMonitorConfig(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := drift.DefaultConfig()

		Convey("Then it validates", func() {
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("When the buffer capacity is too small", func() {
			cfg.BufferCapacity = 1
			_, err := drift.NewMonitor(cfg)

			Convey("Then construction fails with ErrInvalidConfig", func() {
				So(errors.Is(err, drift.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When the floor is above one", func() {
			cfg.ThresholdFloor = 1.5
			So(errors.Is(cfg.Validate(), drift.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When an interval is zero", func() {
			cfg.RefreshIntervalMS = 0
			So(errors.Is(cfg.Validate(), drift.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestMonitorDecisions(t *testing.T) {
	Convey("Given a fresh monitor on a manual clock", t, func() {
		clock := drift.NewManualClock(1_000)
		m := newMonitor(clock)

		Convey("Then the threshold starts at the floor", func() {
			snap := m.Snapshot()
			So(snap.Threshold, ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: 1_000})
			So(snap.LastEvaluation, ShouldBeNil)
		})

		Convey("When nothing has been pushed", func() {
			Convey("Then a rebuild is requested", func() {
				So(m.ShouldReset(), ShouldBeTrue)
			})
		})

		Convey("When both sources walk the same straight line", func() {
			for x := 1.0; x <= 12; x++ {
				m.PushIndoorSample(indoorFix(x, "L1"))
			}
			for x := 1.0; x <= 12; x++ {
				m.PushARSample(arPose(x))
			}
			ev := m.Evaluate()

			Convey("Then quality is full and the bar jumps to it", func() {
				So(ev.Confidence.Quality, ShouldAlmostEqual, 1.0, 1e-9)
				So(ev.Reset, ShouldBeTrue)
				So(ev.Rule, ShouldEqual, threshold.RuleQualityJump)
				So(ev.Threshold.Value, ShouldAlmostEqual, 1.0, 1e-9)
				So(ev.DynamicThreshold, ShouldResemble, ev.Threshold)
			})

			Convey("And evaluating again keeps the anchor", func() {
				ev := m.Evaluate()
				So(ev.Reset, ShouldBeFalse)
				So(ev.Rule, ShouldEqual, threshold.RuleNone)
			})

			Convey("And a frozen AR pose forces a rebuild", func() {
				res := m.PushARSample(arPose(12))
				So(res.ARConfidence, ShouldEqual, 0)

				ev := m.Evaluate()
				So(ev.Reset, ShouldBeTrue)
				So(ev.Rule, ShouldEqual, threshold.RuleSourceUnreliable)
				So(ev.Threshold.Value, ShouldEqual, 0.2)
			})

			Convey("And a fix on another floor clears both histories", func() {
				clock.Advance(250)
				ev := m.PushIndoorSample(indoorFix(13, "L2"))

				So(ev.Reset, ShouldBeTrue)
				So(ev.Rule, ShouldEqual, threshold.RuleFloorChange)
				So(ev.Threshold, ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: 1_250})
				So(ev.Confidence, ShouldResemble, drift.Snapshot{}.Confidence)

				snap := m.Snapshot()
				So(snap.ARSamples, ShouldEqual, 0)
				So(snap.IndoorSamples, ShouldEqual, 0)
				So(snap.LastEvaluation.Rule, ShouldEqual, threshold.RuleFloorChange)

				Convey("And the next fix on the new floor is kept", func() {
					m.PushIndoorSample(indoorFix(14, "L2"))
					snap := m.Snapshot()
					So(snap.IndoorSamples, ShouldEqual, 1)
					So(snap.FloorID, ShouldEqual, "L2")
				})
			})

			Convey("And a manual threshold reset keeps the histories", func() {
				clock.Advance(500)
				ev := m.ResetThreshold()

				So(ev.Rule, ShouldEqual, threshold.RuleManualReset)
				So(ev.Threshold, ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: 1_500})
				So(m.Snapshot().ARSamples, ShouldEqual, 12)
				So(m.Snapshot().IndoorSamples, ShouldEqual, 12)
			})

			Convey("And clearing empties both histories", func() {
				m.Clear()
				So(m.ARSamples(), ShouldBeEmpty)
				So(m.IndoorSamples(), ShouldBeEmpty)
			})
		})
	})
}

func TestClocks(t *testing.T) {
	Convey("Given a manual clock", t, func() {
		c := drift.NewManualClock(100)

		Convey("Then it never moves backwards", func() {
			c.Set(50)
			So(c.NowMS(), ShouldEqual, 100)
			c.Advance(-10)
			So(c.NowMS(), ShouldEqual, 100)
			c.Advance(20)
			So(c.NowMS(), ShouldEqual, 120)
		})
	})

	Convey("Given a monotonic clock", t, func() {
		c := drift.NewMonotonicClock()

		Convey("Then it starts near zero", func() {
			So(c.NowMS(), ShouldBeBetweenOrEqual, 0, 1_000)
		})
	})

	Convey("Given a ClockFunc", t, func() {
		So(drift.ClockFunc(func() int64 { return 42 }).NowMS(), ShouldEqual, 42)
	})
}
