package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/antigravity/cogmem/internal/telemetry"
)

// Marshaler converts a kind's typed record to and from an opaque Store Row.
// Each typed engine supplies one; BaseEngine never hand-serialises a
// kind-specific field itself (spec §4.1: "complex fields... serialised to
// a string encoding at the boundary").
type Marshaler[T Recorder] interface {
	ToRow(rec T) Row
	FromRow(row Row) (T, error)
	New() T // zero-value constructor so BaseEngine can build a scratch record
}

// BaseEngine implements the common store/get/search/update/delete/related
// contract (spec C5) once, generically over a Recorder-satisfying kind. Each
// typed engine (spec C6) embeds a BaseEngine and adds extraction, validation,
// dedup/merge, and type-specific search on top.
type BaseEngine[T Recorder] struct {
	Kind     Kind
	Table    string
	Store    Store
	Embedder Embedder
	Logger   *zap.SugaredLogger
	Marshal  Marshaler[T]
	Now      func() time.Time
	Metrics  *telemetry.Metrics // optional; nil is a no-op (spec §4.B otel wiring)
}

func (e *BaseEngine[T]) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// StoreRecord persists rec, generating an id and embedding if absent (spec §4.1
// storage protocol). Failure never panics: it is reported via OpResult.
func (e *BaseEngine[T]) StoreRecord(ctx context.Context, rec T) OpResult {
	e.Metrics.RecordEngineCall(ctx, string(e.Kind), "store")
	if rec.GetContent() == "" {
		return opFail("store", "content must not be empty")
	}
	if rec.GetID() == "" {
		setID(rec, uuid.New().String())
	}
	if len(rec.GetEmbedding()) == 0 {
		vec, err := e.Embedder.Embed(ctx, rec.GetContent())
		if err != nil {
			e.Logger.Warnw("embed failed on store", "operation", "store", "kind", e.Kind, "error", err)
			return opFail("store", fmt.Sprintf("embedder unavailable: %v", err))
		}
		rec.SetEmbedding(vec)
	}
	now := e.now()
	rec.SetUpdatedAt(now)

	row := e.Marshal.ToRow(rec)
	row["updated_at"] = now
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	row["context"] = serializeDatetimeRecursive(rec.GetContext())

	id, err := e.Store.Upsert(ctx, e.Table, row, []string{"id"})
	if err != nil {
		e.Logger.Errorw("store upsert failed", "operation", "store", "kind", e.Kind, "memory_id", rec.GetID(), "error", err)
		return opFail("store", fmt.Sprintf("store adapter unavailable: %v", err))
	}
	return opOK("store", map[string]any{"id": id})
}

// GetRecord returns the record by id, tracking access best-effort.
func (e *BaseEngine[T]) GetRecord(ctx context.Context, id string) (T, bool) {
	var zero T
	row, err := e.Store.Get(ctx, e.Table, id)
	if err != nil {
		e.Logger.Warnw("get failed", "operation", "get", "kind", e.Kind, "memory_id", id, "error", err)
		return zero, false
	}
	if row == nil {
		return zero, false
	}
	rec, err := e.Marshal.FromRow(row)
	if err != nil {
		e.Logger.Warnw("row decode failed", "operation", "get", "kind", e.Kind, "memory_id", id, "error", err)
		return zero, false
	}
	if err := e.Store.TrackAccess(ctx, string(e.Kind), id, rec.GetUserID()); err != nil {
		e.Logger.Debugw("access tracking failed", "operation", "get", "kind", e.Kind, "memory_id", id, "error", err)
	}
	return rec, true
}

// Search runs the five-step protocol from spec §4.1: embed query, load
// candidates, score by Embedder similarity, threshold, sort+rank+truncate.
func (e *BaseEngine[T]) Search(ctx context.Context, q SearchQuery) []SearchHit {
	e.Metrics.RecordEngineCall(ctx, string(e.Kind), "search")
	if q.TopK == 0 {
		return nil
	}
	qVec, err := e.Embedder.Embed(ctx, q.Text)
	if err != nil {
		e.Logger.Warnw("embed failed on search", "operation", "search", "kind", e.Kind, "error", err)
		return nil
	}

	filter := StoreFilter{ImportanceFloor: q.ImportanceFloor, ConfidenceFloor: q.ConfidenceFloor}
	if q.CreatedAfter != nil {
		s := q.CreatedAfter.Format(time.RFC3339)
		filter.CreatedAfter = &s
	}
	if q.CreatedBefore != nil {
		s := q.CreatedBefore.Format(time.RFC3339)
		filter.CreatedBefore = &s
	}
	rows, err := e.Store.Select(ctx, e.Table, q.UserID, filter)
	if err != nil {
		e.Logger.Warnw("select failed", "operation", "search", "kind", e.Kind, "error", err)
		return nil
	}

	type scored struct {
		rec   T
		s     float64
		order int
	}
	var candidates []scored
	for i, row := range rows {
		rec, err := e.Marshal.FromRow(row)
		if err != nil {
			continue
		}
		if q.ActiveOnly {
			if we, ok := any(rec).(interface{ expiresAt() time.Time }); ok {
				if !e.now().Before(we.expiresAt()) {
					continue
				}
			}
		}
		s, err := e.Embedder.Similarity(ctx, qVec, rec.GetEmbedding())
		if err != nil {
			continue
		}
		if s < q.Threshold {
			continue
		}
		candidates = append(candidates, scored{rec: rec, s: s, order: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].s != candidates[j].s {
			return candidates[i].s > candidates[j].s
		}
		return candidates[i].order < candidates[j].order
	})

	topK := q.TopK
	if topK > 0 && topK < len(candidates) {
		candidates = candidates[:topK]
	}

	hits := make([]SearchHit, 0, len(candidates))
	for i, c := range candidates {
		hits = append(hits, SearchHit{Record: c.rec, Similarity: c.s, Rank: i + 1, Kind: e.Kind})
	}
	return hits
}

// UpdateRecord applies changes to an existing row; if content changed, the
// embedding is regenerated (spec §3.3).
func (e *BaseEngine[T]) UpdateRecord(ctx context.Context, id string, changes Row) OpResult {
	now := e.now()
	changes["updated_at"] = now
	if newContent, ok := changes["content"].(string); ok && newContent != "" {
		vec, err := e.Embedder.Embed(ctx, newContent)
		if err != nil {
			e.Logger.Warnw("embed failed on update", "operation", "update", "kind", e.Kind, "memory_id", id, "error", err)
		} else {
			changes["embedding"] = vec
		}
	}
	if err := e.Store.Update(ctx, e.Table, id, changes); err != nil {
		e.Logger.Errorw("update failed", "operation", "update", "kind", e.Kind, "memory_id", id, "error", err)
		return opFail("update", fmt.Sprintf("store adapter unavailable: %v", err))
	}
	return opOK("update", map[string]any{"id": id})
}

// DeleteRecord removes a row by id.
func (e *BaseEngine[T]) DeleteRecord(ctx context.Context, id string) OpResult {
	if err := e.Store.Delete(ctx, e.Table, id); err != nil {
		e.Logger.Errorw("delete failed", "operation", "delete", "kind", e.Kind, "memory_id", id, "error", err)
		return opFail("delete", fmt.Sprintf("store adapter unavailable: %v", err))
	}
	return opOK("delete", map[string]any{"id": id})
}

// Related returns the n most similar memories to rec's own content,
// excluding rec itself (spec §4.1 find_related_memories; threshold 0.6 is
// the Python original's default, kept here as the package constant
// DefaultRelatedThreshold).
const DefaultRelatedThreshold = 0.6

func (e *BaseEngine[T]) Related(ctx context.Context, rec T, n int) []SearchHit {
	hits := e.Search(ctx, SearchQuery{
		UserID:    rec.GetUserID(),
		Text:      rec.GetContent(),
		TopK:      n + 1,
		Threshold: DefaultRelatedThreshold,
	})
	out := make([]SearchHit, 0, n)
	for _, h := range hits {
		if r, ok := h.Record.(T); ok && any(r).(Recorder).GetID() == rec.GetID() {
			continue
		}
		out = append(out, h)
		if len(out) == n {
			break
		}
	}
	return out
}

// setID assigns an id to any Recorder via the Envelope-satisfying setter.
// Recorder does not expose SetID directly (ids are normally server-assigned
// once); engines that need to mint one implement idSetter.
type idSetter interface{ setID(string) }

func setID(rec Recorder, id string) {
	if s, ok := rec.(idSetter); ok {
		s.setID(id)
		return
	}
}

func (e *Envelope) setID(id string) { e.ID = id }

// serializeDatetimeRecursive walks a nested map/slice structure and
// converts any time.Time to a stable RFC3339 string, mirroring the Python
// original's recursive datetime serialiser (spec §4.1 storage protocol).
func serializeDatetimeRecursive(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = serializeDatetimeRecursive(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = serializeDatetimeRecursive(vv)
		}
		return out
	default:
		return v
	}
}
