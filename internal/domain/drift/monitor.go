// Package drift is the platform-independent anchor drift monitor. It owns
// the AR and indoor positioning histories of one AR session, scores them and
// decides when the AR world anchor must be rebuilt.
//
// A Monitor is single-threaded: every push is applied synchronously and
// returns its recomputed state, so callers notify their own consumers
// explicitly after each call.
package drift

import (
	"github.com/okian/anchordrift/internal/domain/confidence"
	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/threshold"
	"github.com/okian/anchordrift/internal/domain/trajectory"
)

// Source identifies which position stream a sample came from.
type Source string

// Position sources.
const (
	SourceAR     Source = "ar"
	SourceIndoor Source = "indoor"
)

// Evaluation is the outcome of one reset decision.
type Evaluation struct {
	Reset            bool                       `json:"reset"`
	Rule             threshold.Rule             `json:"rule"`
	Decayed          bool                       `json:"decayed"`
	Confidence       confidence.Result          `json:"confidence"`
	Threshold        threshold.RefreshThreshold `json:"threshold"`
	DynamicThreshold threshold.RefreshThreshold `json:"dynamic_threshold"`
	At               int64                      `json:"at"`
}

// Snapshot is a read-only view of the monitor state for diagnostics.
type Snapshot struct {
	ARSamples        int                        `json:"ar_samples"`
	IndoorSamples    int                        `json:"indoor_samples"`
	FloorID          string                     `json:"floor_id"`
	Confidence       confidence.Result          `json:"confidence"`
	Threshold        threshold.RefreshThreshold `json:"threshold"`
	DynamicThreshold threshold.RefreshThreshold `json:"dynamic_threshold"`
	LastEvaluation   *Evaluation                `json:"last_evaluation,omitempty"`
}

// Monitor tracks one AR session. Not safe for concurrent use.
type Monitor struct {
	cfg       Config
	clock     Clock
	ar        *trajectory.Buffer
	indoor    *trajectory.Buffer
	estimator *confidence.Estimator
	ctrl      *threshold.Controller

	conf confidence.Result
	last *Evaluation
}

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithClock sets the time source used for threshold timing.
func WithClock(c Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewMonitor validates cfg and creates a Monitor for a new AR session.
func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:       cfg,
		ar:        trajectory.NewBuffer(cfg.BufferCapacity),
		indoor:    trajectory.NewBuffer(cfg.BufferCapacity),
		estimator: cfg.estimator(),
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = NewMonotonicClock()
	}

	m.ctrl = cfg.controller(m.clock.NowMS())
	return m, nil
}

// Config returns the tuning the monitor was built with.
func (m *Monitor) Config() Config { return m.cfg }

// PushARSample appends an AR sample and returns the recomputed confidences.
// AR samples never produce a reset decision on their own.
func (m *Monitor) PushARSample(s location.Sample) confidence.Result {
	m.ar.Push(s)
	m.conf = m.estimator.Estimate(m.ar, m.indoor)
	return m.conf
}

// PushIndoorSample appends an indoor fix and evaluates the reset decision.
// A fix on a different floor than the previous one clears both histories,
// drops the fix and resets the threshold.
func (m *Monitor) PushIndoorSample(s location.Sample) Evaluation {
	if prev, ok := m.indoor.Last(); ok && prev.FloorID() != s.FloorID() {
		return m.clear(threshold.RuleFloorChange)
	}

	m.indoor.Push(s)
	return m.Evaluate()
}

// Evaluate recomputes confidences and runs the threshold controller at the
// current clock time.
func (m *Monitor) Evaluate() Evaluation {
	now := m.clock.NowMS()
	m.conf = m.estimator.Estimate(m.ar, m.indoor)
	out := m.ctrl.Evaluate(m.conf.Quality, m.conf.ARConfidence, m.conf.IndoorConfidence, now)
	return m.record(out.Reset, out.Rule, out.Decayed, now)
}

// ShouldReset evaluates and reports only the decision.
func (m *Monitor) ShouldReset() bool {
	return m.Evaluate().Reset
}

// ResetThreshold puts the threshold back at the floor without touching the
// histories.
func (m *Monitor) ResetThreshold() Evaluation {
	now := m.clock.NowMS()
	m.ctrl.Reset(now)
	return m.record(true, threshold.RuleManualReset, false, now)
}

// Clear empties both histories and resets the threshold.
func (m *Monitor) Clear() Evaluation {
	return m.clear(threshold.RuleManualReset)
}

func (m *Monitor) clear(rule threshold.Rule) Evaluation {
	now := m.clock.NowMS()
	m.ar.Clear()
	m.indoor.Clear()
	m.ctrl.Reset(now)
	m.conf = confidence.Result{}
	return m.record(true, rule, false, now)
}

func (m *Monitor) record(reset bool, rule threshold.Rule, decayed bool, now int64) Evaluation {
	ev := Evaluation{
		Reset:            reset,
		Rule:             rule,
		Decayed:          decayed,
		Confidence:       m.conf,
		Threshold:        m.ctrl.Current(),
		DynamicThreshold: m.ctrl.Dynamic(),
		At:               now,
	}
	m.last = &ev
	return ev
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() Snapshot {
	snap := Snapshot{
		ARSamples:        m.ar.Len(),
		IndoorSamples:    m.indoor.Len(),
		Confidence:       m.conf,
		Threshold:        m.ctrl.Current(),
		DynamicThreshold: m.ctrl.Dynamic(),
	}
	if last, ok := m.indoor.Last(); ok {
		snap.FloorID = last.FloorID()
	}
	if m.last != nil {
		ev := *m.last
		snap.LastEvaluation = &ev
	}
	return snap
}

// ARSamples returns a copy of the AR history, oldest first.
func (m *Monitor) ARSamples() []location.Sample { return m.ar.Samples() }

// IndoorSamples returns a copy of the indoor history, oldest first.
func (m *Monitor) IndoorSamples() []location.Sample { return m.indoor.Samples() }
