package queue

import (
	"context"
	"hash/fnv"

	"github.com/okian/anchordrift/pkg/metrics"
)

// Sharded fans events out over independent queues by session id, so all
// events of one session land on the same queue in arrival order.
type Sharded struct {
	shards []*InMemoryQueue
}

// NewSharded creates n queues built with opts. n < 1 is treated as 1.
func NewSharded(n int, opts ...Option) *Sharded {
	if n < 1 {
		n = 1
	}
	s := &Sharded{shards: make([]*InMemoryQueue, n)}
	total := 0
	for i := range s.shards {
		s.shards[i] = NewInMemoryQueue(opts...)
		total += s.shards[i].Cap()
	}
	metrics.UpdateQueueCapacity(total)
	metrics.UpdateQueueSize(0)
	return s
}

// Route returns the shard index for a session.
func (s *Sharded) Route(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(s.shards)))
}

// Shards returns the number of queues.
func (s *Sharded) Shards() int { return len(s.shards) }

// Shard returns queue i.
func (s *Sharded) Shard(i int) Queue { return s.shards[i] }

// Enqueue routes e to the queue owning its session.
func (s *Sharded) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	if err := s.shards[s.Route(e.SessionID)].Enqueue(ctx, e); err != nil {
		return err
	}
	metrics.UpdateQueueSize(s.Len(ctx))
	return nil
}

// Len sums the backlog of all queues.
func (s *Sharded) Len(ctx context.Context) int {
	n := 0
	for _, q := range s.shards {
		n += q.Len(ctx)
	}
	return n
}

// Cap sums the capacity of all queues.
func (s *Sharded) Cap() int {
	n := 0
	for _, q := range s.shards {
		n += q.Cap()
	}
	return n
}

// Close closes every queue.
func (s *Sharded) Close() error {
	for _, q := range s.shards {
		_ = q.Close()
	}
	return nil
}
