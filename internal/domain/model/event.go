// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/location"
)

// Kind says what a worker must do with an event.
type Kind string

// Event kinds. AR and indoor carry a sample; the others are commands that
// go through the same per-session queue so they stay ordered with samples.
const (
	KindAR     Kind = Kind(drift.SourceAR)
	KindIndoor Kind = Kind(drift.SourceIndoor)
	KindReset  Kind = "reset"
	KindClear  Kind = "clear"
)

// Event is one unit of work for a session.
type Event struct {
	ID        string          // client sample id for redelivery filtering, optional
	SessionID string          // owning AR session
	Kind      Kind            // what to apply
	Sample    location.Sample // set for KindAR and KindIndoor
	Received  time.Time       // ingest time, for latency metrics
}

// IsSample reports whether the event carries a position sample.
func (e Event) IsSample() bool {
	return e.Kind == KindAR || e.Kind == KindIndoor
}

// Decision is a reset evaluation attributed to the session and event that
// produced it. It is what every decision sink receives.
type Decision struct {
	SessionID  string           `json:"session_id"`
	EventID    string           `json:"event_id,omitempty"`
	Trigger    Kind             `json:"trigger"`
	Time       time.Time        `json:"time"`
	Evaluation drift.Evaluation `json:"evaluation"`
}
