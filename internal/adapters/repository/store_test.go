package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/threshold"
)

func manualStore(opts ...Option) (*MemoryStore, *drift.ManualClock) {
	clock := drift.NewManualClock(0)
	opts = append(opts, WithClockFactory(func() drift.Clock { return clock }))
	return NewMemoryStore(opts...), clock
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store, _ := manualStore()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	sess, err := store.Create(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ID() != "s1" {
		t.Errorf("expected id s1, got %s", sess.ID())
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	if _, err := store.Create(ctx, "s1"); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != sess {
		t.Error("expected Get to return the created session")
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}
}

func TestMemoryStore_GeneratedIDs(t *testing.T) {
	ctx := context.Background()
	store, _ := manualStore()

	a, err := store.Create(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := store.Create(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("expected distinct generated ids, got %q and %q", a.ID(), b.ID())
	}

	long := make([]byte, maxIDLength+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := store.Create(ctx, string(long)); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

func TestMemoryStore_Limit(t *testing.T) {
	ctx := context.Background()
	store, _ := manualStore(WithMaxSessions(2), WithShardCount(4))

	for i := range 2 {
		if _, err := store.Create(ctx, fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := store.Create(ctx, "s2"); !errors.Is(err, ErrLimitReached) {
		t.Errorf("expected ErrLimitReached, got %v", err)
	}
	if count := store.Count(ctx); count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	_ = store.Delete(ctx, "s0")
	if _, err := store.Create(ctx, "s2"); err != nil {
		t.Errorf("expected room after delete, got %v", err)
	}
}

func TestMemoryStore_InvalidDriftConfig(t *testing.T) {
	cfg := drift.DefaultConfig()
	cfg.BufferCapacity = 0
	store := NewMemoryStore(WithDriftConfig(cfg))

	if _, err := store.Create(context.Background(), "s1"); !errors.Is(err, drift.ErrInvalidConfig) {
		t.Errorf("expected drift.ErrInvalidConfig, got %v", err)
	}
}

func TestMemoryStore_ListOrder(t *testing.T) {
	ctx := context.Background()
	store, _ := manualStore()

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		if _, err := store.Create(ctx, id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	list := store.List(ctx)
	if len(list) != len(ids) {
		t.Fatalf("expected %d sessions, got %d", len(ids), len(list))
	}
	for i, sess := range list {
		if sess.ID() != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], sess.ID())
		}
	}
}

func TestMemoryStore_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store, _ := manualStore(WithMaxSessions(50))

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Create(ctx, fmt.Sprintf("s%d", i))
		}(i)
	}
	wg.Wait()

	if count := store.Count(ctx); count != 50 {
		t.Errorf("expected exactly 50 sessions, got %d", count)
	}
	if n := len(store.List(ctx)); n != 50 {
		t.Errorf("expected 50 listed sessions, got %d", n)
	}
}

func TestSession_Apply(t *testing.T) {
	ctx := context.Background()
	store, clock := manualStore()
	sess, err := store.Create(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fix := func(x float64, floor string) model.Event {
		return model.Event{
			ID:        fmt.Sprintf("fix-%v", x),
			SessionID: "s1",
			Kind:      model.KindIndoor,
			Sample:    location.New(x, 0, 0, int64(x), location.WithFloor(floor), location.WithAccuracy(1)),
		}
	}

	if _, ok, err := sess.Apply(model.Event{Kind: model.KindAR, Sample: location.New(1, 0, 0, 1)}); ok || err != nil {
		t.Errorf("AR sample must not produce a decision: ok=%v err=%v", ok, err)
	}

	d, ok, err := sess.Apply(fix(1, "L1"))
	if err != nil || !ok {
		t.Fatalf("expected a decision, got ok=%v err=%v", ok, err)
	}
	if d.SessionID != "s1" || d.EventID != "fix-1" || d.Trigger != model.KindIndoor {
		t.Errorf("unexpected decision attribution: %+v", d)
	}
	if d.Time.IsZero() {
		t.Error("expected decision time to default to now")
	}

	clock.Advance(100)
	d, _, _ = sess.Apply(fix(2, "L2"))
	if d.Evaluation.Rule != threshold.RuleFloorChange {
		t.Errorf("expected floor change, got %s", d.Evaluation.Rule)
	}

	d, _, _ = sess.Apply(model.Event{Kind: model.KindReset})
	if d.Evaluation.Rule != threshold.RuleManualReset || d.Evaluation.Threshold.Timestamp != 100 {
		t.Errorf("unexpected manual reset: %+v", d.Evaluation)
	}

	if _, _, err := sess.Apply(model.Event{Kind: "bogus"}); err == nil {
		t.Error("expected an error for an unknown kind")
	}

	info := sess.Info()
	if info.ARSamples != 1 || info.IndoorFixes != 2 {
		t.Errorf("unexpected sample counts: %+v", info)
	}
	if info.Decisions != 3 || info.FloorSwaps != 1 {
		t.Errorf("unexpected decision counts: %+v", info)
	}
	if info.Resets != 3 {
		t.Errorf("expected every decision so far to be a reset, got %d", info.Resets)
	}
	if info.Last == nil || info.Last.Trigger != model.KindReset {
		t.Errorf("expected last decision to be the reset, got %+v", info.Last)
	}
	if info.Monitor.IndoorSamples != 0 {
		t.Errorf("expected the floor change to have emptied the indoor buffer, got %d", info.Monitor.IndoorSamples)
	}
}
