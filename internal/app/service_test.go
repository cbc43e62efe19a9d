package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/anchordrift/internal/app"
	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/threshold"
	"github.com/okian/anchordrift/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// recorder is a sink and a journal in one.
type recorder struct {
	mu        sync.Mutex
	decisions []model.Decision
	dropped   []string
	fail      bool
}

func (r *recorder) Publish(_ context.Context, d model.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sink down")
	}
	r.decisions = append(r.decisions, d)
	return nil
}

func (r *recorder) Record(ctx context.Context, d model.Decision) error { return r.Publish(ctx, d) }

func (r *recorder) List(_ context.Context, sessionID string, limit int) ([]model.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Decision
	for i := len(r.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		if r.decisions[i].SessionID == sessionID {
			out = append(out, r.decisions[i])
		}
	}
	return out, nil
}

func (r *recorder) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, sessionID)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.decisions)
}

func (r *recorder) last() model.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[len(r.decisions)-1]
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func fix(x float64, floor string, ts int64) location.IndoorFix {
	return location.IndoorFix{CartesianX: x, FloorID: floor, Accuracy: 1, Timestamp: ts}
}

func pose(x float64, ts int64) location.ARPose {
	yaw := 0.0
	return location.ARPose{Position: location.Vec3{X: x}, Yaw: &yaw, Timestamp: ts}
}

func startService(opts ...service.Option) (*service.Service, *drift.ManualClock) {
	clock := drift.NewManualClock(0)
	opts = append(opts, service.WithClockFactory(func() drift.Clock { return clock }))
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc, clock
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(100))

		Convey("Then operations fail until it is started", func() {
			_, err := svc.CreateSession(context.Background(), "s1")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats(context.Background()).Started, ShouldBeFalse)
		})

		Convey("When it is started", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)

			stats := svc.GetStats(context.Background())
			So(stats.Started, ShouldBeTrue)
			So(stats.Workers, ShouldEqual, 2)
			So(stats.QueueCapacity, ShouldEqual, 100)

			Convey("Then stopping it twice is harmless", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats(context.Background()).Started, ShouldBeFalse)
			})
		})
	})

	Convey("Given an invalid drift configuration", t, func() {
		cfg := drift.DefaultConfig()
		cfg.BufferCapacity = 0
		svc := service.New(service.WithDriftConfig(cfg))

		Convey("Then Start refuses", func() {
			So(errors.Is(svc.Start(context.Background()), drift.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a started service", t, func() {
		sink := &recorder{}
		svc, _ := startService(service.WithMaxSessions(2), service.WithSink("test", sink))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When sessions are created", func() {
			a, err := svc.CreateSession(ctx, "a")
			So(err, ShouldBeNil)
			So(a.ID, ShouldEqual, "a")

			b, err := svc.CreateSession(ctx, "")
			So(err, ShouldBeNil)
			So(b.ID, ShouldNotBeEmpty)

			Convey("Then the limit and duplicates are enforced", func() {
				_, err := svc.CreateSession(ctx, "c")
				So(errors.Is(err, service.ErrSessionLimit), ShouldBeTrue)
				_, err = svc.CreateSession(ctx, "a")
				So(errors.Is(err, service.ErrSessionExists), ShouldBeTrue)
				So(svc.EnsureSession(ctx, "a"), ShouldBeNil)
			})

			Convey("Then they are listed oldest first", func() {
				list, err := svc.ListSessions(ctx)
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
				So(list[0].ID, ShouldEqual, "a")
			})

			Convey("Then deleting one drops it everywhere", func() {
				So(svc.DeleteSession(ctx, "a"), ShouldBeNil)
				_, err := svc.GetSession(ctx, "a")
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
				So(sink.dropped, ShouldResemble, []string{"a"})
				So(errors.Is(svc.DeleteSession(ctx, "a"), service.ErrSessionNotFound), ShouldBeTrue)
			})
		})

		Convey("When a sample targets an unknown session", func() {
			_, err := svc.SubmitIndoor(ctx, "ghost", "f1", fix(1, "L1", 1))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Pipeline(t *testing.T) {
	Convey("Given a session fed through the service", t, func() {
		journal := &recorder{}
		svc, clock := startService(service.WithWorkerCount(4), service.WithJournal(journal))
		defer svc.Stop()
		ctx := context.Background()

		_, err := svc.CreateSession(ctx, "walk")
		So(err, ShouldBeNil)

		Convey("When AR poses and indoor fixes stream in", func() {
			for i := range 12 {
				clock.Advance(100)
				dup, err := svc.SubmitAR(ctx, "walk", fmt.Sprintf("p%d", i), pose(float64(i), int64(i*100)))
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
			}
			for i := range 12 {
				_, err := svc.SubmitIndoor(ctx, "walk", fmt.Sprintf("f%d", i), fix(float64(i), "L1", int64(i*100)))
				So(err, ShouldBeNil)
			}

			Convey("Then every indoor fix yields exactly one decision", func() {
				So(waitFor(func() bool { return journal.count() == 12 }), ShouldBeTrue)

				info, err := svc.GetSession(ctx, "walk")
				So(err, ShouldBeNil)
				So(info.ARSamples, ShouldEqual, 12)
				So(info.IndoorFixes, ShouldEqual, 12)
				So(info.Monitor.ARSamples, ShouldEqual, 12)
				So(info.Last.EventID, ShouldEqual, "f11")
			})

			Convey("Then a redelivered fix is acknowledged as a duplicate", func() {
				dup, err := svc.SubmitIndoor(ctx, "walk", "f3", fix(3, "L1", 300))
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
			})

			Convey("Then the history comes back newest first", func() {
				So(waitFor(func() bool { return journal.count() == 12 }), ShouldBeTrue)
				history, err := svc.Decisions(ctx, "walk", 3)
				So(err, ShouldBeNil)
				So(len(history), ShouldEqual, 3)
				So(history[0].EventID, ShouldEqual, "f11")
			})
		})

		Convey("When the floor changes", func() {
			_, _ = svc.SubmitIndoor(ctx, "walk", "f1", fix(1, "L1", 100))
			clock.Advance(500)
			_, _ = svc.SubmitIndoor(ctx, "walk", "f2", fix(2, "L2", 200))

			Convey("Then the reset is reported with a fresh threshold", func() {
				So(waitFor(func() bool { return journal.count() == 2 }), ShouldBeTrue)
				d := journal.last()
				So(d.Evaluation.Reset, ShouldBeTrue)
				So(d.Evaluation.Rule, ShouldEqual, threshold.RuleFloorChange)
				So(d.Evaluation.Threshold, ShouldResemble, threshold.RefreshThreshold{Value: 0.2, Timestamp: 500})
			})
		})

		Convey("When a manual reset is requested", func() {
			So(svc.Reset(ctx, "walk"), ShouldBeNil)

			Convey("Then a manual_reset decision follows", func() {
				So(waitFor(func() bool { return journal.count() == 1 }), ShouldBeTrue)
				d := journal.last()
				So(d.Trigger, ShouldEqual, model.KindReset)
				So(d.Evaluation.Rule, ShouldEqual, threshold.RuleManualReset)
			})
		})

		Convey("When the buffers are cleared", func() {
			_, _ = svc.SubmitIndoor(ctx, "walk", "f1", fix(1, "L1", 100))
			So(svc.Clear(ctx, "walk"), ShouldBeNil)

			Convey("Then the session is empty again", func() {
				So(waitFor(func() bool { return journal.count() == 2 }), ShouldBeTrue)
				info, _ := svc.GetSession(ctx, "walk")
				So(info.Monitor.IndoorSamples, ShouldEqual, 0)
				So(journal.last().Trigger, ShouldEqual, model.KindClear)
			})
		})

		Convey("When a sink fails", func() {
			broken := &recorder{fail: true}
			svc.AddSink("broken", broken)
			_, _ = svc.SubmitIndoor(ctx, "walk", "f1", fix(1, "L1", 100))

			Convey("Then the other sinks still receive the decision", func() {
				So(waitFor(func() bool { return journal.count() == 1 }), ShouldBeTrue)
				So(svc.GetStats(ctx).Sinks, ShouldResemble, []string{"journal", "broken"})
			})
		})
	})

	Convey("Given a service without a journal", t, func() {
		svc, _ := startService()
		defer svc.Stop()

		Convey("Then history is unavailable", func() {
			_, err := svc.Decisions(context.Background(), "any", 10)
			So(errors.Is(err, service.ErrJournalDisabled), ShouldBeTrue)
		})
	})
}

// blockingSink holds the only worker inside Notify until released.
type blockingSink struct{ release chan struct{} }

func (b *blockingSink) Publish(context.Context, model.Decision) error {
	<-b.release
	return nil
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a single worker stuck on a slow sink and a one-slot queue", t, func() {
		sink := &blockingSink{release: make(chan struct{})}
		svc, _ := startService(service.WithWorkerCount(1), service.WithQueueSize(1), service.WithSink("slow", sink))
		ctx := context.Background()
		_, err := svc.CreateSession(ctx, "s1")
		So(err, ShouldBeNil)

		Convey("When more fixes arrive than fit", func() {
			var rejected []string
			for i := range 4 {
				id := fmt.Sprintf("f%d", i)
				if _, err := svc.SubmitIndoor(ctx, "s1", id, fix(float64(i), "L1", int64(i))); err != nil {
					So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
					rejected = append(rejected, id)
				}
			}
			So(rejected, ShouldNotBeEmpty)

			close(sink.release)

			Convey("Then a rejected fix can be retried with the same id", func() {
				var dup bool
				So(waitFor(func() bool {
					var err error
					dup, err = svc.SubmitIndoor(ctx, "s1", rejected[0], fix(9, "L1", 9))
					return err == nil
				}), ShouldBeTrue)
				So(dup, ShouldBeFalse)
				svc.Stop()
			})
		})
	})

	Convey("Given a stopped service", t, func() {
		svc, _ := startService()
		ctx := context.Background()
		_, err := svc.CreateSession(ctx, "s1")
		So(err, ShouldBeNil)
		svc.Stop()

		Convey("Then submissions are refused", func() {
			_, err := svc.SubmitIndoor(ctx, "s1", "f1", fix(1, "L1", 1))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}
