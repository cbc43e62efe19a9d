// Package mqtt bridges an MQTT broker to the drift service: AR poses and
// indoor fixes come in on per-session topics and reset decisions go out on
// a per-session decision topic.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/types"
	"github.com/okian/anchordrift/pkg/logger"
	"github.com/okian/anchordrift/pkg/metrics"
)

const (
	defaultPrefix         = "anchordrift"
	defaultQoS            = 1
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMS   = 250

	topicAR       = "ar"
	topicIndoor   = "indoor"
	topicDecision = "decision"
)

// Ingester is the part of the service the adapter feeds.
type Ingester interface {
	EnsureSession(ctx context.Context, sessionID string) error
	SubmitAR(ctx context.Context, sessionID, eventID string, p location.ARPose) (bool, error)
	SubmitIndoor(ctx context.Context, sessionID, eventID string, f location.IndoorFix) (bool, error)
}

// Adapter subscribes to sample topics and publishes decisions.
type Adapter struct {
	client   paho.Client
	ingester Ingester

	prefix         string
	qos            byte
	autoCreate     bool
	publishTimeout time.Duration
	logger         logger.Logger

	mu         sync.Mutex
	subscribed bool
}

// Connect dials the broker and returns a connected client.
func Connect(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(false)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// New creates an adapter over an already connected client.
func New(client paho.Client, ingester Ingester, opts ...Option) *Adapter {
	a := &Adapter{
		client:         client,
		ingester:       ingester,
		prefix:         defaultPrefix,
		qos:            defaultQoS,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("mqtt")
	}
	return a
}

// Start subscribes to the AR and indoor topics of every session.
func (a *Adapter) Start(ctx context.Context) error {
	if a.client == nil {
		return ErrNotConnected
	}
	for _, kind := range []string{topicAR, topicIndoor} {
		filter := a.prefix + "/+/" + kind
		token := a.client.Subscribe(filter, a.qos, func(_ paho.Client, msg paho.Message) {
			if err := a.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
				metrics.RecordErrorByComponent("mqtt", "ingest")
				a.logger.Warn(ctx, "dropping mqtt message",
					logger.String("topic", msg.Topic()), logger.Error(err))
			}
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", filter, token.Error())
		}
		a.logger.Info(ctx, "subscribed", logger.String("topic", filter))
	}
	a.mu.Lock()
	a.subscribed = true
	a.mu.Unlock()
	return nil
}

// Publish sends d to <prefix>/<session>/decision.
func (a *Adapter) Publish(ctx context.Context, d model.Decision) error {
	if a.client == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	token := a.client.Publish(a.DecisionTopic(d.SessionID), a.qos, false, payload)
	if !token.WaitTimeout(a.publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", d.SessionID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", d.SessionID, err)
	}
	metrics.RecordMQTTMessage("out")
	return nil
}

// DecisionTopic returns the topic decisions of sessionID are published on.
func (a *Adapter) DecisionTopic(sessionID string) string {
	return a.prefix + "/" + sessionID + "/" + topicDecision
}

// StopIntake unsubscribes from the sample topics. Decisions can still be
// published until Close.
func (a *Adapter) StopIntake() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil || !a.subscribed {
		return nil
	}
	a.subscribed = false
	token := a.client.Unsubscribe(a.prefix+"/+/"+topicAR, a.prefix+"/+/"+topicIndoor)
	if !token.WaitTimeout(a.publishTimeout) {
		return fmt.Errorf("mqtt unsubscribe: timed out")
	}
	return token.Error()
}

// Close stops intake if still running and disconnects.
func (a *Adapter) Close() error {
	if a.client == nil {
		return nil
	}
	err := a.StopIntake()
	a.client.Disconnect(disconnectQuiesceMS)
	return err
}

func (a *Adapter) handle(ctx context.Context, topic string, payload []byte) error {
	sessionID, kind, err := parseTopic(a.prefix, topic)
	if err != nil {
		return err
	}
	metrics.RecordMQTTMessage("in")

	if a.autoCreate {
		if err := a.ingester.EnsureSession(ctx, sessionID); err != nil {
			return err
		}
	}

	var duplicate bool
	switch kind {
	case topicAR:
		var msg types.ARPoseRequest
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		duplicate, err = a.ingester.SubmitAR(ctx, sessionID, msg.ID, msg.ARPose)
	case topicIndoor:
		var msg types.IndoorFixRequest
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		duplicate, err = a.ingester.SubmitIndoor(ctx, sessionID, msg.ID, msg.IndoorFix)
	}
	if err != nil {
		return err
	}
	if duplicate {
		a.logger.Debug(ctx, "duplicate mqtt sample", logger.String("topic", topic))
	}
	return nil
}

// parseTopic splits <prefix>/<session>/<kind>.
func parseTopic(prefix, topic string) (sessionID, kind string, err error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	sessionID, kind, ok = strings.Cut(rest, "/")
	if !ok || sessionID == "" || strings.Contains(kind, "/") {
		return "", "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	if kind != topicAR && kind != topicIndoor {
		return "", "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return sessionID, kind, nil
}
