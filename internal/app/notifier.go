package service

import (
	"context"

	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/threshold"
	"github.com/okian/anchordrift/pkg/logger"
	"github.com/okian/anchordrift/pkg/metrics"
)

// Sink receives every decision the workers produce.
type Sink interface {
	Publish(ctx context.Context, d model.Decision) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d model.Decision) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, d model.Decision) error { return f(ctx, d) }

// sessionDropper is implemented by sinks holding per-session state.
type sessionDropper interface {
	Drop(sessionID string)
}

type namedSink struct {
	name string
	sink Sink
}

// Notify fans a decision out to metrics and every sink. A failing sink is
// logged and counted; it never affects the session or the other sinks.
func (s *Service) Notify(ctx context.Context, d model.Decision) { //nolint:gocritic // hugeParam: Decision is passed by value through the worker
	e := d.Evaluation
	metrics.RecordEvaluation(e.Reset, string(e.Rule), e.Confidence.Quality,
		e.Confidence.ARConfidence, e.Confidence.IndoorConfidence, e.Threshold.Value)
	if e.Rule == threshold.RuleFloorChange {
		metrics.RecordFloorChange()
	}
	if e.Reset {
		s.logger.Info(ctx, "anchor reset",
			logger.String("session_id", d.SessionID),
			logger.String("event_id", d.EventID),
			logger.String("rule", string(e.Rule)),
			logger.Float64("quality", e.Confidence.Quality),
			logger.Float64("threshold", e.Threshold.Value),
		)
	}

	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()

	for _, ns := range sinks {
		if err := ns.sink.Publish(ctx, d); err != nil {
			metrics.RecordSinkError(ns.name)
			s.logger.Warn(ctx, "decision sink failed",
				logger.String("sink", ns.name),
				logger.String("session_id", d.SessionID),
				logger.Error(err),
			)
		}
	}
}
