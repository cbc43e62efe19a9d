package threshold_test

import (
	"testing"

	"github.com/okian/anchordrift/internal/domain/threshold"
	. "github.com/smartystreets/goconvey/convey"
)

func TestControllerSourceReliability(t *testing.T) {
	Convey("Given a controller started at t0", t, func() {
		const t0 = int64(10_000)
		c := threshold.New(t0)

		Convey("Then the threshold starts at the floor", func() {
			So(c.Current(), ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: t0})
			So(c.Dynamic(), ShouldResemble, c.Current())
		})

		Convey("When both buffers are empty and every score is zero", func() {
			reset := c.ShouldReset(0, 0, 0, t0+500)

			Convey("Then a rebuild is forced and the threshold reset", func() {
				So(reset, ShouldBeTrue)
				So(c.Current(), ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: t0 + 500})
				So(c.Dynamic(), ShouldResemble, c.Current())
			})
		})

		Convey("When AR confidence is below the minimum", func() {
			c.Evaluate(0.9, 1, 1, t0+100)
			So(c.Current().Value, ShouldEqual, 0.9)

			out := c.Evaluate(0.99, 0.7, 1, t0+200)

			Convey("Then quality is ignored and the threshold drops to the floor", func() {
				So(out.Reset, ShouldBeTrue)
				So(out.Rule, ShouldEqual, threshold.RuleSourceUnreliable)
				So(c.Current(), ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: t0 + 200})
			})
		})

		Convey("When indoor confidence is below the minimum", func() {
			So(c.ShouldReset(0.99, 1, 0.79, t0+1), ShouldBeTrue)
			So(c.Current().Value, ShouldEqual, 0.2)
		})
	})
}

func TestControllerScenarios(t *testing.T) {
	Convey("Given a controller at (0.2, t0) and confident sources", t, func() {
		const t0 = int64(0)
		c := threshold.New(t0)

		Convey("When quality 0.5 arrives 100ms later", func() {
			out := c.Evaluate(0.5, 0.9, 0.9, t0+100)

			Convey("Then the bar is raised to the quality and a rebuild requested", func() {
				So(out.Reset, ShouldBeTrue)
				So(out.Rule, ShouldEqual, threshold.RuleQualityJump)
				So(c.Current(), ShouldResemble, threshold.RefreshThreshold{Value: 0.5, Timestamp: t0 + 100})
				So(c.Dynamic(), ShouldResemble, c.Current())
			})

			Convey("And quality 0.45 50ms after that changes nothing", func() {
				out := c.Evaluate(0.45, 0.9, 0.9, t0+150)

				So(out.Reset, ShouldBeFalse)
				So(out.Rule, ShouldEqual, threshold.RuleNone)
				So(c.Current(), ShouldResemble, threshold.RefreshThreshold{Value: 0.5, Timestamp: t0 + 100})
			})
		})

		Convey("When the threshold is untouched for 30001ms with quality 0.1", func() {
			reset := c.ShouldReset(0.1, 0.9, 0.9, t0+30_001)

			Convey("Then it is refreshed to the floor", func() {
				So(reset, ShouldBeTrue)
				So(c.Current(), ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: t0 + 30_001})
			})
		})

		Convey("When the threshold is untouched for exactly 30000ms", func() {
			So(c.ShouldReset(0.1, 0.9, 0.9, t0+30_000), ShouldBeFalse)
		})
	})
}

func TestControllerDecay(t *testing.T) {
	Convey("Given a controller raised to 0.5 at t=100", t, func() {
		c := threshold.New(0)
		c.Evaluate(0.5, 1, 1, 100)

		Convey("When quality stays inside the band after the decay interval", func() {
			out := c.Evaluate(0.6, 1, 1, 1200)

			Convey("Then the value decays without touching the timestamp", func() {
				So(out.Reset, ShouldBeFalse)
				So(out.Decayed, ShouldBeTrue)
				So(out.Rule, ShouldEqual, threshold.RuleNone)
				So(c.Current().Value, ShouldAlmostEqual, 0.49, 1e-12)
				So(c.Current().Timestamp, ShouldEqual, 100)
				So(c.Dynamic(), ShouldResemble, c.Current())
			})
		})

		Convey("When quality sags below the bar after the decay interval", func() {
			out := c.Evaluate(0.3, 1, 1, 1200)

			Convey("Then decay and the larger decrease both apply", func() {
				So(out.Reset, ShouldBeFalse)
				So(out.Decayed, ShouldBeTrue)
				So(out.Rule, ShouldEqual, threshold.RuleThresholdLowered)
				So(c.Current().Value, ShouldAlmostEqual, 0.44, 1e-12)
				So(c.Current().Timestamp, ShouldEqual, 1200)
				So(c.Dynamic(), ShouldResemble, c.Current())
			})
		})

		Convey("When quality sags but the decay interval has not passed", func() {
			out := c.Evaluate(0.3, 1, 1, 1000)

			So(out.Rule, ShouldEqual, threshold.RuleNone)
			So(out.Decayed, ShouldBeFalse)
			So(c.Current().Value, ShouldEqual, 0.5)
		})

		Convey("When the refresh interval passes with quality inside the band", func() {
			out := c.Evaluate(0.55, 1, 1, 30_101)

			Convey("Then the threshold is refreshed to the quality", func() {
				So(out.Reset, ShouldBeTrue)
				So(out.Rule, ShouldEqual, threshold.RulePeriodicRefresh)
				So(c.Current(), ShouldResemble, threshold.RefreshThreshold{Value: 0.55, Timestamp: 30_101})
			})
		})

		Convey("When the clock goes backwards", func() {
			out := c.Evaluate(0.3, 1, 1, 50)

			Convey("Then no time is considered to have passed", func() {
				So(out.Rule, ShouldEqual, threshold.RuleNone)
				So(out.Decayed, ShouldBeFalse)
				So(c.Current().Value, ShouldEqual, 0.5)
			})
		})
	})

	Convey("Given a threshold just above the floor", t, func() {
		c := threshold.New(0, threshold.WithMargin(0))
		c.Evaluate(0.21, 1, 1, 10)

		Convey("When it decays past the floor", func() {
			c.Evaluate(0.1, 1, 1, 1100)

			Convey("Then it stops at the floor", func() {
				So(c.Current().Value, ShouldEqual, 0.2)
			})
		})
	})
}

func TestControllerReset(t *testing.T) {
	Convey("Given a raised controller", t, func() {
		c := threshold.New(0, threshold.WithDecayRate(0.02), threshold.WithDecreaseRate(0.1))
		c.Evaluate(0.9, 1, 1, 10)

		Convey("When reset", func() {
			c.Reset(77)

			Convey("Then both current and mirror are back at the floor", func() {
				want := threshold.RefreshThreshold{Value: 0.2, Timestamp: 77}
				So(c.Current(), ShouldResemble, want)
				So(c.Dynamic(), ShouldResemble, want)
			})
		})

		Convey("When custom rates are configured", func() {
			c.Evaluate(0.5, 1, 1, 1100)

			Convey("Then they are used for decay and decrease", func() {
				So(c.Current().Value, ShouldAlmostEqual, 0.78, 1e-12)
			})
		})
	})
}
