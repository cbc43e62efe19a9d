package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/threshold"
)

// Session is one live AR session and its drift monitor. Apply is expected to
// be called by a single worker; the mutex only orders it against readers.
type Session struct {
	id      string
	created time.Time

	mu          sync.Mutex
	monitor     *drift.Monitor
	arSamples   uint64
	indoorFixes uint64
	decisions   uint64
	resets      uint64
	floorSwaps  uint64
	last        *model.Decision
}

// Info is a point-in-time view of a session.
type Info struct {
	ID          string          `json:"session_id"`
	CreatedAt   time.Time       `json:"created_at"`
	ARSamples   uint64          `json:"ar_samples_total"`
	IndoorFixes uint64          `json:"indoor_fixes_total"`
	Decisions   uint64          `json:"decisions_total"`
	Resets      uint64          `json:"resets_total"`
	FloorSwaps  uint64          `json:"floor_changes_total"`
	Monitor     drift.Snapshot  `json:"monitor"`
	Last        *model.Decision `json:"last_decision,omitempty"`
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.created }

// Apply feeds one event to the monitor. It returns the decision for every
// event kind except AR samples, which only update confidences.
func (s *Session) Apply(e model.Event) (model.Decision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ev drift.Evaluation
	switch e.Kind {
	case model.KindAR:
		s.monitor.PushARSample(e.Sample)
		s.arSamples++
		return model.Decision{}, false, nil
	case model.KindIndoor:
		ev = s.monitor.PushIndoorSample(e.Sample)
		s.indoorFixes++
	case model.KindReset:
		ev = s.monitor.ResetThreshold()
	case model.KindClear:
		ev = s.monitor.Clear()
	default:
		return model.Decision{}, false, fmt.Errorf("session %s: unknown event kind %q", s.id, e.Kind)
	}

	at := e.Received
	if at.IsZero() {
		at = time.Now()
	}
	d := model.Decision{
		SessionID:  s.id,
		EventID:    e.ID,
		Trigger:    e.Kind,
		Time:       at,
		Evaluation: ev,
	}

	s.decisions++
	if ev.Reset {
		s.resets++
	}
	if ev.Rule == threshold.RuleFloorChange {
		s.floorSwaps++
	}
	s.last = &d
	return d, true, nil
}

// Info returns a copy of the session state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:          s.id,
		CreatedAt:   s.created,
		ARSamples:   s.arSamples,
		IndoorFixes: s.indoorFixes,
		Decisions:   s.decisions,
		Resets:      s.resets,
		FloorSwaps:  s.floorSwaps,
		Monitor:     s.monitor.Snapshot(),
	}
	if s.last != nil {
		d := *s.last
		info.Last = &d
	}
	return info
}
