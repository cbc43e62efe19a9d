// Package service wires the session store, the ingest queues and the worker
// pool together and exposes the operations used by the HTTP API and the
// MQTT adapter.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/anchordrift/internal/adapters/mq/queue"
	workerpool "github.com/okian/anchordrift/internal/adapters/mq/worker"
	repository "github.com/okian/anchordrift/internal/adapters/repository"
	"github.com/okian/anchordrift/internal/domain/dedupe"
	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/pkg/logger"
	"github.com/okian/anchordrift/pkg/metrics"
)

const defaultDecisionsLimit = 500

// Journal stores decisions and reads them back for the history endpoint.
type Journal interface {
	Record(ctx context.Context, d model.Decision) error
	List(ctx context.Context, sessionID string, limit int) ([]model.Decision, error)
}

// Stats is a coarse view of the service for the /stats endpoint.
type Stats struct {
	Started       bool     `json:"started"`
	Workers       int      `json:"workers"`
	QueueLength   int      `json:"queue_length"`
	QueueCapacity int      `json:"queue_capacity"`
	Sessions      int      `json:"sessions"`
	MaxSessions   int      `json:"max_sessions"`
	DedupeSize    int64    `json:"dedupe_size"`
	Sinks         []string `json:"sinks"`
	Journal       bool     `json:"journal"`
}

// Service owns every live session and the pipeline that feeds them.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions   *repository.MemoryStore
	deduper    dedupe.Deduper
	eventQueue *eventqueue.Sharded
	workerPool *workerpool.Pool
	sinks      []namedSink
	journal    Journal

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	maxSessions    int
	decisionsLimit int
	driftConfig    drift.Config
	clockFactory   func() drift.Clock

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of workers, and so the number of queue shards.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the total ingest queue capacity across all shards.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many recent sample ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxSessions caps the number of live sessions. Zero means no cap.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxSessions = n
		}
	}
}

// WithDecisionsLimit caps how many journal rows one history request returns.
func WithDecisionsLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.decisionsLimit = n
		}
	}
}

// WithDriftConfig sets the tuning used for new sessions.
func WithDriftConfig(cfg drift.Config) Option {
	return func(s *Service) {
		s.driftConfig = cfg
	}
}

// WithClockFactory overrides the per-session clock.
func WithClockFactory(f func() drift.Clock) Option {
	return func(s *Service) {
		if f != nil {
			s.clockFactory = f
		}
	}
}

// WithSink adds a decision sink.
func WithSink(name string, sink Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
		}
	}
}

// WithJournal records every decision to j and serves history from it.
func WithJournal(j Journal) Option {
	return func(s *Service) {
		if j == nil {
			return
		}
		s.journal = j
		s.sinks = append(s.sinks, namedSink{name: "journal", sink: SinkFunc(j.Record)})
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      4096,
		dedupeSize:     100_000,
		decisionsLimit: defaultDecisionsLimit,
		driftConfig:    drift.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSink registers a sink after construction, for adapters that need the
// service before they can exist.
func (s *Service) AddSink(name string, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	WithSink(name, sink)(s)
}

// Start builds the session store and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.driftConfig.Validate(); err != nil {
		return err
	}

	s.logger.Info(ctx, "starting drift service...")

	if s.sessions == nil {
		storeOpts := []repository.Option{
			repository.WithMaxSessions(s.maxSessions),
			repository.WithDriftConfig(s.driftConfig),
		}
		if s.clockFactory != nil {
			storeOpts = append(storeOpts, repository.WithClockFactory(s.clockFactory))
		}
		s.sessions = repository.NewMemoryStore(storeOpts...)
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}

	perShard := (s.queueSize + s.workerCount - 1) / s.workerCount
	s.eventQueue = eventqueue.NewSharded(s.workerCount, eventqueue.WithCapacity(perShard))
	s.workerPool = workerpool.NewPool(s.eventQueue, s, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "drift service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.eventQueue.Cap()),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("sinks", len(s.sinks)),
	)
	return nil
}

// Stop drains the queues and stops the workers. Sessions are kept.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool := s.workerPool
	s.mu.Unlock()

	// Workers still call Apply and Notify while draining, so the lock is
	// not held here.
	ctx := context.Background()
	s.logger.Info(ctx, "stopping drift service...")
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.logger.Info(ctx, "drift service stopped")
}

func (s *Service) running() (*repository.MemoryStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.sessions, nil
}

// CreateSession opens a new session. An empty id is replaced by a UUID.
func (s *Service) CreateSession(ctx context.Context, id string) (repository.Info, error) {
	store, err := s.running()
	if err != nil {
		return repository.Info{}, err
	}
	sess, err := store.Create(ctx, id)
	if err != nil {
		return repository.Info{}, err
	}
	s.logger.Info(ctx, "session created", logger.String("session_id", sess.ID()))
	return sess.Info(), nil
}

// EnsureSession creates the session unless it already exists.
func (s *Service) EnsureSession(ctx context.Context, id string) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	if _, err := store.Get(ctx, id); err == nil {
		return nil
	}
	if _, err := store.Create(ctx, id); err != nil && !errors.Is(err, repository.ErrExists) {
		return err
	}
	return nil
}

// GetSession returns a snapshot of one session.
func (s *Service) GetSession(ctx context.Context, id string) (repository.Info, error) {
	store, err := s.running()
	if err != nil {
		return repository.Info{}, err
	}
	sess, err := store.Get(ctx, id)
	if err != nil {
		return repository.Info{}, err
	}
	return sess.Info(), nil
}

// ListSessions returns snapshots of every session, oldest first.
func (s *Service) ListSessions(ctx context.Context) ([]repository.Info, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	list := store.List(ctx)
	out := make([]repository.Info, len(list))
	for i, sess := range list {
		out[i] = sess.Info()
	}
	return out, nil
}

// DeleteSession tears a session down. Events still queued for it are
// discarded by the workers.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.RLock()
	for _, ns := range s.sinks {
		if d, ok := ns.sink.(sessionDropper); ok {
			d.Drop(id)
		}
	}
	s.mu.RUnlock()

	s.logger.Info(ctx, "session deleted", logger.String("session_id", id))
	return nil
}

// SubmitAR queues an AR pose. It reports true when eventID was already seen.
func (s *Service) SubmitAR(ctx context.Context, sessionID, eventID string, p location.ARPose) (bool, error) {
	return s.submit(ctx, model.Event{
		ID:        eventID,
		SessionID: sessionID,
		Kind:      model.KindAR,
		Sample:    location.FromARPose(p),
	})
}

// SubmitIndoor queues an indoor fix. It reports true when eventID was
// already seen.
func (s *Service) SubmitIndoor(ctx context.Context, sessionID, eventID string, f location.IndoorFix) (bool, error) {
	return s.submit(ctx, model.Event{
		ID:        eventID,
		SessionID: sessionID,
		Kind:      model.KindIndoor,
		Sample:    location.FromIndoorFix(f),
	})
}

// Reset queues a manual threshold reset behind the session's pending samples.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	_, err := s.submit(ctx, model.Event{SessionID: sessionID, Kind: model.KindReset})
	return err
}

// Clear queues a full reset that also empties both sample buffers.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	_, err := s.submit(ctx, model.Event{SessionID: sessionID, Kind: model.KindClear})
	return err
}

func (s *Service) submit(ctx context.Context, e model.Event) (bool, error) { //nolint:gocritic // hugeParam: Event is queued by value
	store, err := s.running()
	if err != nil {
		return false, err
	}
	if _, err := store.Get(ctx, e.SessionID); err != nil {
		return false, err
	}

	var key string
	if e.ID != "" && e.IsSample() {
		key = dedupe.Key(e.SessionID, string(e.Kind), e.ID)
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordSampleDuplicate(string(e.Kind))
			s.logger.Debug(ctx, "duplicate sample",
				logger.String("session_id", e.SessionID),
				logger.String("event_id", e.ID),
			)
			return true, nil
		}
	}

	e.Received = time.Now()
	s.mu.RLock()
	q := s.eventQueue
	s.mu.RUnlock()

	if err := q.Enqueue(ctx, e); err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		if errors.Is(err, eventqueue.ErrFull) {
			return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return false, err
	}
	return false, nil
}

// Apply feeds one queued event to its session. It is called by exactly one
// worker per session.
func (s *Service) Apply(ctx context.Context, e model.Event) (model.Decision, bool, error) { //nolint:gocritic // hugeParam: Event is dequeued by value
	s.mu.RLock()
	store := s.sessions
	s.mu.RUnlock()

	sess, err := store.Get(ctx, e.SessionID)
	if err != nil {
		return model.Decision{}, false, err
	}
	return sess.Apply(e)
}

// Decisions returns the journaled history of a session, newest first.
func (s *Service) Decisions(ctx context.Context, sessionID string, limit int) ([]model.Decision, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	if limit <= 0 || limit > s.decisionsLimit {
		limit = s.decisionsLimit
	}
	return s.journal.List(ctx, sessionID, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:     s.started,
		Workers:     s.workerCount,
		MaxSessions: s.maxSessions,
		Journal:     s.journal != nil,
		Sinks:       make([]string, 0, len(s.sinks)),
	}
	for _, ns := range s.sinks {
		st.Sinks = append(st.Sinks, ns.name)
	}
	if s.sessions != nil {
		st.Sessions = s.sessions.Count(ctx)
	}
	if s.deduper != nil {
		st.DedupeSize = s.deduper.Size()
	}
	if s.started {
		st.QueueLength = s.eventQueue.Len(ctx)
		st.QueueCapacity = s.eventQueue.Cap()
		metrics.UpdateQueueSize(st.QueueLength)
	}
	return st
}
