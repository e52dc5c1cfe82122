package fsstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hiveagent/hive/checkpoint"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	cp := checkpoint.Checkpoint{
		CheckpointID: "cp-1",
		SessionID:    "sess-1",
		ExecutionID:  "exec-1",
		CurrentNode:  "node-a",
		VisitCounts:  map[string]int{"node-a": 1},
	}
	if err := store.Save(context.Background(), cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(context.Background(), "sess-1", "cp-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.CurrentNode != "node-a" || got.VisitCounts["node-a"] != 1 {
		t.Fatalf("unexpected checkpoint: %+v", got)
	}
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = store.Load(context.Background(), "sess-1", "missing")
	if !errors.Is(err, checkpoint.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReturnsCreationOrder(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	first := checkpoint.Checkpoint{CheckpointID: "cp-1", SessionID: "sess-1", CreatedAt: time.Now()}
	second := checkpoint.Checkpoint{CheckpointID: "cp-2", SessionID: "sess-1", CreatedAt: first.CreatedAt.Add(time.Second)}

	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	list, err := store.List(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].CheckpointID != "cp-1" || list[1].CheckpointID != "cp-2" {
		t.Fatalf("expected creation-ordered [cp-1 cp-2], got %+v", list)
	}
}

func TestEvictRemovesOlderThanTTL(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	old := checkpoint.Checkpoint{CheckpointID: "old", SessionID: "sess-1", CreatedAt: time.Now().Add(-time.Hour)}
	fresh := checkpoint.Checkpoint{CheckpointID: "fresh", SessionID: "sess-1", CreatedAt: time.Now()}
	if err := store.Save(ctx, old); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	if err := store.Evict(ctx, "sess-1", time.Minute); err != nil {
		t.Fatalf("evict: %v", err)
	}

	list, err := store.List(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].CheckpointID != "fresh" {
		t.Fatalf("expected only fresh to survive eviction, got %+v", list)
	}
}
