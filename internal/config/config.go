// Package config defines service configuration and how it is loaded.
//
// Keys are flat snake_case so the same names work in YAML files and as
// ANCHORDRIFT_-prefixed environment variables.
package config

import (
	"fmt"
	"runtime"

	"github.com/okian/anchordrift/internal/domain/drift"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory event queues, split evenly across workers.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of session workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the redelivery filter.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxSessions caps concurrently live AR sessions; 0 means unlimited.
	MaxSessions int `koanf:"max_sessions"`
	// MaxDecisionsLimit caps GET /sessions/{id}/decisions?limit.
	MaxDecisionsLimit int `koanf:"max_decisions_limit"`
	// StreamBufferSize is the per-subscriber send buffer of the decision stream.
	StreamBufferSize int `koanf:"stream_buffer_size"`

	// MQTTBroker is the broker URL, e.g. tcp://localhost:1883. Empty disables MQTT.
	MQTTBroker string `koanf:"mqtt_broker"`
	// MQTTClientID identifies this service to the broker.
	MQTTClientID string `koanf:"mqtt_client_id"`
	// MQTTTopicPrefix roots all sample and decision topics.
	MQTTTopicPrefix string `koanf:"mqtt_topic_prefix"`
	// MQTTQoS is used for both subscriptions and publishes.
	MQTTQoS int `koanf:"mqtt_qos"`
	// MQTTAutoCreate opens a session on the first sample for an unknown ID.
	MQTTAutoCreate bool `koanf:"mqtt_auto_create"`

	// JournalPath is the sqlite decision journal file. Empty disables it.
	JournalPath string `koanf:"journal_path"`

	// Drift monitor tuning.
	BufferCapacity      int     `koanf:"buffer_capacity"`
	HeadingDistance     float64 `koanf:"heading_distance"`
	FreshnessWindow     int     `koanf:"freshness_window"`
	DisplacementScale   float64 `koanf:"displacement_scale"`
	AgreementScale      float64 `koanf:"agreement_scale"`
	StaleAccuracy       int64   `koanf:"stale_accuracy"`
	ThresholdFloor      float64 `koanf:"threshold_floor"`
	ThresholdMargin     float64 `koanf:"threshold_margin"`
	MinSourceConfidence float64 `koanf:"min_source_confidence"`
	DecayRate           float64 `koanf:"decay_rate"`
	DecreaseRate        float64 `koanf:"decrease_rate"`
	DecayIntervalMS     int64   `koanf:"decay_interval_ms"`
	RefreshIntervalMS   int64   `koanf:"refresh_interval_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	d := drift.DefaultConfig()
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		EventQueueSize:    4_096,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        100_000,
		MaxSessions:       0,
		MaxDecisionsLimit: 500,
		StreamBufferSize:  64,

		MQTTClientID:    "anchordrift",
		MQTTTopicPrefix: "anchordrift",
		MQTTQoS:         1,

		BufferCapacity:      d.BufferCapacity,
		HeadingDistance:     d.HeadingDistance,
		FreshnessWindow:     d.FreshnessWindow,
		DisplacementScale:   d.DisplacementScale,
		AgreementScale:      d.AgreementScale,
		StaleAccuracy:       d.StaleAccuracy,
		ThresholdFloor:      d.ThresholdFloor,
		ThresholdMargin:     d.ThresholdMargin,
		MinSourceConfidence: d.MinSourceConfidence,
		DecayRate:           d.DecayRate,
		DecreaseRate:        d.DecreaseRate,
		DecayIntervalMS:     d.DecayIntervalMS,
		RefreshIntervalMS:   d.RefreshIntervalMS,
	}
}

// Drift projects the tuning keys onto the monitor configuration.
func (c *Config) Drift() drift.Config {
	return drift.Config{
		BufferCapacity:      c.BufferCapacity,
		HeadingDistance:     c.HeadingDistance,
		FreshnessWindow:     c.FreshnessWindow,
		DisplacementScale:   c.DisplacementScale,
		AgreementScale:      c.AgreementScale,
		StaleAccuracy:       c.StaleAccuracy,
		ThresholdFloor:      c.ThresholdFloor,
		ThresholdMargin:     c.ThresholdMargin,
		MinSourceConfidence: c.MinSourceConfidence,
		DecayRate:           c.DecayRate,
		DecreaseRate:        c.DecreaseRate,
		DecayIntervalMS:     c.DecayIntervalMS,
		RefreshIntervalMS:   c.RefreshIntervalMS,
	}
}

// Validate checks the service keys and the drift tuning.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxSessions < 0:
		return fmt.Errorf("%w: max_sessions must not be negative", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos %d outside 0..2", ErrInvalidConfig, c.MQTTQoS)
	case c.MQTTBroker != "" && c.MQTTTopicPrefix == "":
		return fmt.Errorf("%w: mqtt_topic_prefix required with mqtt_broker", ErrInvalidConfig)
	}
	if err := c.Drift().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
