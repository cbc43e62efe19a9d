// Package repository holds the live AR sessions of the service.
package repository

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/pkg/metrics"
)

const (
	defaultShardCount = 16
	maxIDLength       = 128
)

// Store provides access to live sessions.
type Store interface {
	// Create opens a session. An empty id is replaced by a random UUID.
	// Returns ErrExists if id is taken and ErrLimitReached when full.
	Create(ctx context.Context, id string) (*Session, error)
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id string) error
	// List returns sessions ordered by creation time, oldest first.
	List(ctx context.Context) []*Session
	Count(ctx context.Context) int
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// MemoryStore is a sharded in-memory Store. Sessions do not survive a
// restart.
type MemoryStore struct {
	shards      []*shard
	shardCount  int
	maxSessions int
	driftConfig drift.Config
	newClock    func() drift.Clock

	count atomic.Int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount:  defaultShardCount,
		driftConfig: drift.DefaultConfig(),
		newClock:    func() drift.Clock { return drift.NewMonotonicClock() },
	}

	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) Create(_ context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > maxIDLength {
		return nil, ErrInvalidID
	}

	monitor, err := drift.NewMonitor(s.driftConfig, drift.WithClock(s.newClock()))
	if err != nil {
		return nil, err
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sessions[id]; ok {
		metrics.RecordErrorByComponent("repository", "exists")
		return nil, ErrExists
	}
	n := s.count.Add(1)
	if s.maxSessions > 0 && n > int64(s.maxSessions) {
		s.count.Add(-1)
		metrics.RecordErrorByComponent("repository", "limit_reached")
		return nil, ErrLimitReached
	}

	sess := &Session{id: id, created: time.Now(), monitor: monitor}
	sh.sessions[id] = sess
	metrics.UpdateActiveSessions(int(n))
	return sess, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(sh.sessions, id)
	metrics.UpdateActiveSessions(int(s.count.Add(-1)))
	return nil
}

func (s *MemoryStore) List(_ context.Context) []*Session {
	out := make([]*Session, 0, s.count.Load())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, sess := range sh.sessions {
			out = append(out, sess)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].created.Equal(out[j].created) {
			return out[i].id < out[j].id
		}
		return out[i].created.Before(out[j].created)
	})
	return out
}

func (s *MemoryStore) Count(_ context.Context) int {
	return int(s.count.Load())
}
