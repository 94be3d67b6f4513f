package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
)

// WorkingEngine stores short-lived in-progress task state and runs the TTL
// controller (spec C6 Working, C9 TTL controller), grounded on the teacher's
// ShortTermStore TTL/cleanup-goroutine pattern and original_source's
// working_memory_engine.py.
type WorkingEngine struct {
	Base *BaseEngine[*WorkingMemory]
}

func NewWorkingEngine(base *BaseEngine[*WorkingMemory]) *WorkingEngine {
	return &WorkingEngine{Base: base}
}

const (
	DefaultTTLSeconds = 3600
	MinPriority       = 1
	MaxPriority       = 5
)

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

var nonAlphanumericRun = regexp.MustCompile(`[^a-z0-9]+`)

// deriveTaskID builds a stable task id from dialog when the caller doesn't
// supply one — first three alphanumeric words, lowercased and underscored.
func deriveTaskID(dialog string) string {
	var words []string
	for _, f := range strings.Fields(strings.ToLower(dialog)) {
		w := nonAlphanumericRun.ReplaceAllString(f, "")
		if w == "" {
			continue
		}
		words = append(words, w)
		if len(words) == 3 {
			break
		}
	}
	return strings.Join(words, "_")
}

// StoreTask creates or refreshes a working-memory task slot.
func (e *WorkingEngine) StoreTask(ctx context.Context, userID, taskID, content string, taskContext map[string]any, priority, ttlSeconds int) OpResult {
	if taskID == "" {
		taskID = deriveTaskID(content)
	}
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	if taskContext == nil {
		taskContext = map[string]any{}
	}
	now := time.Now()
	rec := &WorkingMemory{
		Envelope: Envelope{
			ID: uuid.New().String(), UserID: userID, Kind: KindWorking,
			Content: content, Importance: float64(priority) / float64(MaxPriority), Confidence: 1.0,
			Context: map[string]any{}, CreatedAt: now,
		},
		TaskID: taskID, TaskContext: taskContext, TTLSeconds: ttlSeconds,
		Priority: clampPriority(priority), ExpiresAt: now.Add(time.Duration(ttlSeconds) * time.Second),
	}
	res := e.Base.StoreRecord(ctx, rec)
	if !res.Success {
		return res
	}
	return opOK("store_working", map[string]any{"id": rec.ID, "task_id": taskID, "expires_at": rec.ExpiresAt})
}

// ExtendTTL pushes a task's expiry out by extraSeconds from now.
func (e *WorkingEngine) ExtendTTL(ctx context.Context, id string, extraSeconds int) OpResult {
	rec, ok := e.Base.GetRecord(ctx, id)
	if !ok {
		return opFail("extend_ttl", "task not found")
	}
	newExpiry := time.Now().Add(time.Duration(extraSeconds) * time.Second)
	if newExpiry.Before(rec.ExpiresAt) {
		newExpiry = rec.ExpiresAt
	}
	return e.Base.UpdateRecord(ctx, id, Row{"expires_at": newExpiry})
}

// UpdateTaskContext merges updates into the existing task_context map one
// level deep — nested maps are replaced wholesale, not recursively
// merged (matches working_memory_engine.py's shallow merge).
func (e *WorkingEngine) UpdateTaskContext(ctx context.Context, id string, updates map[string]any) OpResult {
	rec, ok := e.Base.GetRecord(ctx, id)
	if !ok {
		return opFail("update_task_context", "task not found")
	}
	if rec.TaskContext == nil {
		rec.TaskContext = map[string]any{}
	}
	for k, v := range updates {
		rec.TaskContext[k] = v
	}
	return e.Base.UpdateRecord(ctx, id, Row{"task_context": rec.TaskContext})
}

// UpdateTaskProgress is a thin convenience wrapper over UpdateTaskContext
// that also bumps a "progress" field, recording textual progress updates
// as tasks advance (spec §4.2 Working).
func (e *WorkingEngine) UpdateTaskProgress(ctx context.Context, id string, progress string, pctComplete float64) OpResult {
	return e.UpdateTaskContext(ctx, id, map[string]any{
		"progress": progress, "pct_complete": clampFloat(pctComplete, 0, 1),
	})
}

// CleanupExpired bulk-deletes every working-memory row whose expires_at has
// passed (spec C9 TTL controller), grounded on ShortTermStore.cleanup's
// ticker-driven sweep, generalised from the in-memory map to a bulk SQL
// delete against the Store.
func (e *WorkingEngine) CleanupExpired(ctx context.Context) (int, error) {
	n, err := e.Base.Store.BulkDelete(ctx, e.Base.Table, "expires_at < $1", time.Now())
	if err != nil {
		e.Base.Logger.Warnw("cleanup_expired failed", "operation", "cleanup_expired", "kind", e.Base.Kind, "error", err)
		return 0, fmt.Errorf("cleanup_expired: %w", err)
	}
	return n, nil
}

// RunTTLSweeper schedules CleanupExpired on a cron spec (default "@every
// 1m") — the Go-native replacement for the teacher's ShortTermStore.cleanup
// ticker loop, promoting the teacher's declared-but-unwired robfig/cron
// dependency to an actual background job scheduler (spec §4.B domain stack).
func (e *WorkingEngine) RunTTLSweeper(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = "@every 1m"
	}
	c := cron.New()
	if err := c.AddFunc(spec, func() {
		if n, err := e.CleanupExpired(ctx); err == nil && n > 0 {
			e.Base.Logger.Infow("expired working memories swept", "operation", "cleanup_expired", "count", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule ttl sweep: %w", err)
	}
	c.Start()
	return c, nil
}

// ---- typed search methods ----

func (e *WorkingEngine) ByTaskID(ctx context.Context, userID, taskID string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: taskID, TopK: topK, Threshold: 0, ActiveOnly: true})
	return filterWorking(hits, func(w *WorkingMemory) bool { return w.TaskID == taskID })
}

func (e *WorkingEngine) ByPriority(ctx context.Context, userID string, minPriority, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0, ActiveOnly: true})
	return filterWorking(hits, func(w *WorkingMemory) bool { return w.Priority >= minPriority })
}

func (e *WorkingEngine) Active(ctx context.Context, userID string, topK int) []SearchHit {
	return e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0, ActiveOnly: true})
}

// ByTimeRemaining returns active tasks with at least minRemaining until
// expiry, ranked by BaseEngine.Search's similarity order (spec §6.2).
func (e *WorkingEngine) ByTimeRemaining(ctx context.Context, userID string, minRemaining time.Duration, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0, ActiveOnly: true})
	now := time.Now()
	return filterWorking(hits, func(w *WorkingMemory) bool { return w.ExpiresAt.Sub(now) >= minRemaining })
}

// ByContextKey returns active tasks whose task_context carries contextKey.
func (e *WorkingEngine) ByContextKey(ctx context.Context, userID, contextKey string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0, ActiveOnly: true})
	return filterWorking(hits, func(w *WorkingMemory) bool {
		_, ok := w.TaskContext[contextKey]
		return ok
	})
}

func filterWorking(hits []SearchHit, pred func(*WorkingMemory) bool) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if w, ok := h.Record.(*WorkingMemory); ok && pred(w) {
			out = append(out, h)
		}
	}
	return out
}
