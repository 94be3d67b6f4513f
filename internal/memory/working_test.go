package memory

import (
	"context"
	"testing"
	"time"
)

func newTestWorkingEngine() (*WorkingEngine, *fakeStore) {
	store := newFakeStore()
	base := &BaseEngine[*WorkingMemory]{
		Kind: KindWorking, Table: "working_memories",
		Store: store, Embedder: newFakeEmbedder(), Logger: testLogger(),
		Marshal: workingMarshaler{},
	}
	return NewWorkingEngine(base), store
}

func TestStoreTaskDerivesTaskIDAndDefaultsTTL(t *testing.T) {
	engine, _ := newTestWorkingEngine()
	res := engine.StoreTask(context.Background(), "u1", "", "summarise the quarterly report for the board of directors meeting", nil, 3, 0)
	if !res.Success {
		t.Fatalf("StoreTask failed: %+v", res)
	}
	data := res.Data.(map[string]any)
	if data["task_id"] != "summarise_the_quarterly" {
		t.Errorf("task_id = %v, want derived 3-word slug", data["task_id"])
	}
}

func TestDeriveTaskIDFiltersNonAlphanumeric(t *testing.T) {
	got := deriveTaskID("Hello, world! This is great.")
	if got != "hello_world_this" {
		t.Errorf("deriveTaskID = %q, want %q", got, "hello_world_this")
	}
}

func TestStoreTaskClampsPriority(t *testing.T) {
	engine, store := newTestWorkingEngine()
	res := engine.StoreTask(context.Background(), "u1", "t1", "do the thing", nil, 99, 60)
	id := res.Data.(map[string]any)["id"].(string)
	row, _ := store.Get(context.Background(), "working_memories", id)
	if getInt(row, "priority") != MaxPriority {
		t.Errorf("priority = %v, want clamped to %d", row["priority"], MaxPriority)
	}
}

func TestExtendTTLNeverShortensExpiry(t *testing.T) {
	engine, _ := newTestWorkingEngine()
	ctx := context.Background()
	res := engine.StoreTask(ctx, "u1", "t1", "long task", nil, 3, 10000)
	id := res.Data.(map[string]any)["id"].(string)

	before, _ := engine.Base.GetRecord(ctx, id)
	engine.ExtendTTL(ctx, id, 1)
	after, _ := engine.Base.GetRecord(ctx, id)

	if after.ExpiresAt.Before(before.ExpiresAt) {
		t.Error("ExtendTTL must never move expiry earlier than it already was")
	}
}

func TestUpdateTaskContextMergesShallow(t *testing.T) {
	engine, _ := newTestWorkingEngine()
	ctx := context.Background()
	res := engine.StoreTask(ctx, "u1", "t1", "task", map[string]any{"step": 1, "notes": "keep"}, 3, 60)
	id := res.Data.(map[string]any)["id"].(string)

	engine.UpdateTaskContext(ctx, id, map[string]any{"step": 2})
	got, _ := engine.Base.GetRecord(ctx, id)
	if got.TaskContext["step"] != 2 {
		t.Errorf("step = %v, want 2", got.TaskContext["step"])
	}
	if got.TaskContext["notes"] != "keep" {
		t.Errorf("notes = %v, want unchanged 'keep'", got.TaskContext["notes"])
	}
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	engine, store := newTestWorkingEngine()
	ctx := context.Background()
	engine.StoreTask(ctx, "u1", "expired", "old task", nil, 3, 1)
	engine.StoreTask(ctx, "u1", "active", "current task", nil, 3, 10000)

	// force the first row's expiry into the past directly.
	for id, row := range store.table("working_memories") {
		if row["task_id"] == "expired" {
			row["expires_at"] = time.Now().Add(-time.Hour)
			store.table("working_memories")[id] = row
		}
	}

	n, err := engine.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired error: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupExpired removed %d rows, want exactly the 1 expired row", n)
	}
	remaining, _ := store.Select(ctx, "working_memories", "u1", StoreFilter{})
	if len(remaining) != 1 {
		t.Errorf("expected 1 row remaining after cleanup, got %d", len(remaining))
	}
}

func TestActiveExcludesExpiredTasks(t *testing.T) {
	engine, store := newTestWorkingEngine()
	ctx := context.Background()
	res := engine.StoreTask(ctx, "u1", "stale", "stale task", nil, 3, 10000)
	id := res.Data.(map[string]any)["id"].(string)
	row, _ := store.Get(ctx, "working_memories", id)
	row["expires_at"] = time.Now().Add(-time.Minute)
	store.table("working_memories")[id] = row

	engine.StoreTask(ctx, "u1", "fresh", "fresh task", nil, 3, 10000)

	hits := engine.Active(ctx, "u1", 10)
	if len(hits) != 1 {
		t.Fatalf("expected exactly one active task, got %d", len(hits))
	}
	w, ok := hits[0].Record.(*WorkingMemory)
	if !ok || w.TaskID != "fresh" {
		t.Errorf("expected the fresh task to remain active, got %+v", hits[0].Record)
	}
}

func TestByTimeRemainingFiltersShortLivedTasks(t *testing.T) {
	engine, _ := newTestWorkingEngine()
	ctx := context.Background()
	engine.StoreTask(ctx, "u1", "short", "short task", nil, 3, 30)
	engine.StoreTask(ctx, "u1", "long", "long task", nil, 3, 10000)

	hits := engine.ByTimeRemaining(ctx, "u1", time.Hour, 10)
	if len(hits) != 1 {
		t.Fatalf("expected exactly one task with >1h remaining, got %d", len(hits))
	}
	w := hits[0].Record.(*WorkingMemory)
	if w.TaskID != "long" {
		t.Errorf("expected the long-lived task, got %+v", w)
	}
}

func TestByContextKeyFiltersOnPresence(t *testing.T) {
	engine, _ := newTestWorkingEngine()
	ctx := context.Background()
	engine.StoreTask(ctx, "u1", "has-key", "task with key", map[string]any{"report_id": "r1"}, 3, 10000)
	engine.StoreTask(ctx, "u1", "no-key", "task without key", nil, 3, 10000)

	hits := engine.ByContextKey(ctx, "u1", "report_id", 10)
	if len(hits) != 1 {
		t.Fatalf("expected exactly one task with report_id, got %d", len(hits))
	}
	w := hits[0].Record.(*WorkingMemory)
	if w.TaskID != "has-key" {
		t.Errorf("expected the task carrying report_id, got %+v", w)
	}
}
