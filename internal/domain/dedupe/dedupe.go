// Package dedupe filters redelivered samples.
//
// MQTT QoS 1 and retrying HTTP clients deliver at least once. A pose or fix
// fed twice into a trajectory buffer reads as a stalled tracker, so every
// identified sample passes through a Deduper before it is enqueued.
package dedupe

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Deduper records seen sample keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a sample that was never applied (for example
	// rejected by a full queue) can be retried.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key scopes a client-supplied sample ID to its session and source, so two
// sessions may reuse the same IDs.
func Key(sessionID, source, id string) string {
	var b strings.Builder
	b.Grow(len(sessionID) + len(source) + len(id) + 2)
	b.WriteString(sessionID)
	b.WriteByte('/')
	b.WriteString(source)
	b.WriteByte('/')
	b.WriteString(id)
	return b.String()
}

// inMemoryDeduper keeps the newest maxSize keys in a ring and evicts the
// oldest first. maxSize <= 0 keeps every key.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // key -> ring slot, -1 when unbounded
	ring    []string
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[key] = -1
		d.size.Add(1)
		return false
	}

	if old := d.ring[d.next]; old != "" {
		if slot, ok := d.seen[old]; ok && slot == d.next {
			delete(d.seen, old)
			d.size.Add(-1)
		}
	}
	d.ring[d.next] = key
	d.seen[key] = d.next
	d.next = (d.next + 1) % d.maxSize
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[key]
	if !ok {
		return
	}
	delete(d.seen, key)
	if slot >= 0 {
		d.ring[slot] = ""
	}
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
