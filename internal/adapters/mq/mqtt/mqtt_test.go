package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/pkg/logger"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

// fakeClient records publishes and subscription handlers; every other
// paho.Client method is left nil.
type fakeClient struct {
	paho.Client

	mu          sync.Mutex
	published   map[string][]byte
	handlers    map[string]paho.MessageHandler
	publishErr   error
	unsubscribe  []string
	disconnected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: make(map[string][]byte), handlers: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic], _ = payload.([]byte)
	return doneToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.unsubscribe = append(c.unsubscribe, topics...)
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func (c *fakeClient) deliver(topic string, payload []byte) {
	for filter, h := range c.handlers {
		if _, kind, err := parseTopic("anchordrift", topic); err == nil && filter == "anchordrift/+/"+kind {
			h(c, fakeMessage{topic: topic, payload: payload})
		}
	}
}

type submission struct {
	session, id string
	ar          *location.ARPose
	indoor      *location.IndoorFix
}

type fakeIngester struct {
	mu       sync.Mutex
	ensured  []string
	got      []submission
	seen     map[string]bool
	ensureFn func(string) error
}

func newFakeIngester() *fakeIngester { return &fakeIngester{seen: make(map[string]bool)} }

func (f *fakeIngester) EnsureSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, id)
	if f.ensureFn != nil {
		return f.ensureFn(id)
	}
	return nil
}

func (f *fakeIngester) dup(id string) bool {
	if id == "" {
		return false
	}
	if f.seen[id] {
		return true
	}
	f.seen[id] = true
	return false
}

func (f *fakeIngester) SubmitAR(_ context.Context, session, id string, p location.ARPose) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dup(id) {
		return true, nil
	}
	f.got = append(f.got, submission{session: session, id: id, ar: &p})
	return false, nil
}

func (f *fakeIngester) SubmitIndoor(_ context.Context, session, id string, fix location.IndoorFix) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dup(id) {
		return true, nil
	}
	f.got = append(f.got, submission{session: session, id: id, indoor: &fix})
	return false, nil
}

func TestParseTopic(t *testing.T) {
	Convey("Given topics under the anchordrift prefix", t, func() {
		Convey("Then sample topics are split into session and kind", func() {
			session, kind, err := parseTopic("anchordrift", "anchordrift/s1/ar")
			So(err, ShouldBeNil)
			So(session, ShouldEqual, "s1")
			So(kind, ShouldEqual, "ar")

			_, kind, err = parseTopic("anchordrift", "anchordrift/s1/indoor")
			So(err, ShouldBeNil)
			So(kind, ShouldEqual, "indoor")
		})

		Convey("Then anything else is rejected", func() {
			for _, topic := range []string{
				"other/s1/ar",
				"anchordrift/s1",
				"anchordrift//ar",
				"anchordrift/s1/decision",
				"anchordrift/s1/ar/extra",
			} {
				_, _, err := parseTopic("anchordrift", topic)
				So(errors.Is(err, ErrBadTopic), ShouldBeTrue)
			}
		})
	})
}

func TestAdapterIngest(t *testing.T) {
	Convey("Given an adapter subscribed through a fake client", t, func() {
		So(logger.Init(), ShouldBeNil)

		client := newFakeClient()
		ingester := newFakeIngester()
		a := New(client, ingester, WithAutoCreate(true))
		So(a.Start(context.Background()), ShouldBeNil)
		So(client.handlers, ShouldContainKey, "anchordrift/+/ar")
		So(client.handlers, ShouldContainKey, "anchordrift/+/indoor")

		Convey("When an AR pose arrives", func() {
			client.deliver("anchordrift/s1/ar", []byte(`{"id":"p1","position":{"x":1,"y":0,"z":2},"yaw":0.5,"timestamp":100}`))

			Convey("Then it is submitted with its id and the session is ensured", func() {
				So(ingester.ensured, ShouldResemble, []string{"s1"})
				So(len(ingester.got), ShouldEqual, 1)
				So(ingester.got[0].id, ShouldEqual, "p1")
				So(ingester.got[0].ar.Position.Z, ShouldEqual, 2)
				So(*ingester.got[0].ar.Yaw, ShouldEqual, 0.5)
			})
		})

		Convey("When an indoor fix arrives twice", func() {
			payload := []byte(`{"id":"f1","cartesian_x":3,"cartesian_y":4,"floor_id":"L1","accuracy":2,"timestamp":200}`)
			client.deliver("anchordrift/s2/indoor", payload)
			client.deliver("anchordrift/s2/indoor", payload)

			Convey("Then only the first reaches the ingester", func() {
				So(len(ingester.got), ShouldEqual, 1)
				So(ingester.got[0].indoor.FloorID, ShouldEqual, "L1")
				So(ingester.got[0].indoor.CartesianY, ShouldEqual, 4)
			})
		})

		Convey("When the payload is not JSON", func() {
			err := a.handle(context.Background(), "anchordrift/s1/indoor", []byte("nope"))

			Convey("Then it is rejected as a bad payload", func() {
				So(errors.Is(err, ErrBadPayload), ShouldBeTrue)
				So(ingester.got, ShouldBeEmpty)
			})
		})

		Convey("When a fix omits has_bearing", func() {
			client.deliver("anchordrift/s3/indoor", []byte(`{"id":"f2","cartesian_x":1,"accuracy":8,"floor_id":"L1","timestamp":300}`))

			Convey("Then it is submitted as carrying a bearing", func() {
				So(len(ingester.got), ShouldEqual, 1)
				So(ingester.got[0].indoor.HasBearing, ShouldBeTrue)
			})
		})

		Convey("When samples fail validation", func() {
			for topic, body := range map[string]string{
				"anchordrift/s1/indoor": `{"cartesian_x":1,"accuracy":-1,"timestamp":1}`,
				"anchordrift/s2/indoor": `{"cartesian_x":1,"timestamp":-1}`,
				"anchordrift/s3/ar":     `{"rotation":{"x":0,"y":0,"z":0,"w":0},"timestamp":1}`,
				"anchordrift/s4/ar":     `{"position":{"x":1,"y":0,"z":0},"timestamp":-5}`,
			} {
				err := a.handle(context.Background(), topic, []byte(body))
				So(errors.Is(err, ErrBadPayload), ShouldBeTrue)
			}

			Convey("Then none reaches the ingester", func() {
				So(ingester.got, ShouldBeEmpty)
			})
		})

		Convey("When the session cannot be created", func() {
			limit := errors.New("limit reached")
			ingester.ensureFn = func(string) error { return limit }
			err := a.handle(context.Background(), "anchordrift/s9/ar", []byte(`{"timestamp":1}`))

			Convey("Then the sample is dropped with that error", func() {
				So(errors.Is(err, limit), ShouldBeTrue)
				So(ingester.got, ShouldBeEmpty)
			})
		})

		Convey("When the adapter is closed", func() {
			So(a.Close(), ShouldBeNil)

			Convey("Then both filters are unsubscribed", func() {
				So(client.unsubscribe, ShouldResemble, []string{"anchordrift/+/ar", "anchordrift/+/indoor"})
				So(client.disconnected, ShouldBeTrue)
			})
		})

		Convey("When intake stops before the service drains", func() {
			So(a.StopIntake(), ShouldBeNil)

			Convey("Then decisions can still be published", func() {
				So(client.disconnected, ShouldBeFalse)
				So(a.Publish(context.Background(), model.Decision{SessionID: "s1"}), ShouldBeNil)
				So(client.published, ShouldContainKey, "anchordrift/s1/decision")
			})

			Convey("Then closing afterwards only disconnects", func() {
				So(a.StopIntake(), ShouldBeNil)
				So(a.Close(), ShouldBeNil)
				So(client.unsubscribe, ShouldHaveLength, 2)
				So(client.disconnected, ShouldBeTrue)
			})
		})
	})
}

func TestAdapterPublish(t *testing.T) {
	Convey("Given an adapter with a custom prefix", t, func() {
		So(logger.Init(), ShouldBeNil)

		client := newFakeClient()
		a := New(client, newFakeIngester(), WithTopicPrefix("venue"), WithQoS(0))

		Convey("When a decision is published", func() {
			d := model.Decision{SessionID: "s1", EventID: "f1", Trigger: model.KindIndoor}
			So(a.Publish(context.Background(), d), ShouldBeNil)

			Convey("Then it lands on the session decision topic as JSON", func() {
				payload, ok := client.published["venue/s1/decision"]
				So(ok, ShouldBeTrue)

				var got model.Decision
				So(json.Unmarshal(payload, &got), ShouldBeNil)
				So(got.EventID, ShouldEqual, "f1")
			})
		})

		Convey("When the broker rejects the publish", func() {
			client.publishErr = errors.New("broker down")

			Convey("Then the error is returned", func() {
				So(a.Publish(context.Background(), model.Decision{SessionID: "s1"}), ShouldNotBeNil)
			})
		})
	})

	Convey("Given an adapter without a client", t, func() {
		So(logger.Init(), ShouldBeNil)
		a := New(nil, newFakeIngester())

		Convey("Then publishing and starting report not connected", func() {
			So(errors.Is(a.Publish(context.Background(), model.Decision{}), ErrNotConnected), ShouldBeTrue)
			So(errors.Is(a.Start(context.Background()), ErrNotConnected), ShouldBeTrue)
			So(a.Close(), ShouldBeNil)
		})
	})
}
