package mqtt

import (
	"time"

	"github.com/okian/anchordrift/pkg/logger"
)

// Option applies a configuration option to the Adapter.
type Option func(*Adapter)

// WithTopicPrefix sets the first topic level, "anchordrift" by default.
func WithTopicPrefix(prefix string) Option {
	return func(a *Adapter) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// WithQoS sets the QoS for subscriptions and decision publishes.
func WithQoS(qos byte) Option {
	return func(a *Adapter) {
		if qos <= 2 {
			a.qos = qos
		}
	}
}

// WithAutoCreate makes the adapter create unknown sessions on first message.
func WithAutoCreate(enabled bool) Option {
	return func(a *Adapter) {
		a.autoCreate = enabled
	}
}

// WithPublishTimeout bounds how long Publish waits for the broker.
func WithPublishTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.publishTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}
