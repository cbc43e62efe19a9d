package repository

import "github.com/okian/anchordrift/internal/domain/drift"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithShardCount sets the number of lock shards.
func WithShardCount(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMaxSessions caps live sessions. 0 means unlimited.
func WithMaxSessions(n int) Option {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.maxSessions = n
		}
	}
}

// WithDriftConfig sets the monitor tuning used for new sessions.
func WithDriftConfig(cfg drift.Config) Option {
	return func(s *MemoryStore) {
		s.driftConfig = cfg
	}
}

// WithClockFactory sets how each new session gets its clock. By default
// every session runs on its own monotonic clock started at creation.
func WithClockFactory(f func() drift.Clock) Option {
	return func(s *MemoryStore) {
		if f != nil {
			s.newClock = f
		}
	}
}
