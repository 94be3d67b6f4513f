package memory

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MemoryService fans a request out across the typed engines (spec C7,
// §4.3), grounded on the teacher's `internal/server/agent_server.go`
// optional-component wiring (tolerate partial failure, never let one
// broken collaborator take down the whole request).
type MemoryService struct {
	Factual    *FactualEngine
	Episodic   *EpisodicEngine
	Semantic   *SemanticEngine
	Procedural *ProceduralEngine
	Working    *WorkingEngine
	Session    *SessionEngine
	Extractor  Extractor
	Logger     *zap.SugaredLogger
}

// Store dispatches a dialog-derived store call to the engine for kind.
// Session is handled separately via Session.AddMessage — it has no
// single-call dialog-extraction story (spec §4.2's per-kind templates).
func (m *MemoryService) Store(ctx context.Context, kind Kind, userID, dialog string, importanceHint float64) OpResult {
	switch kind {
	case KindFactual:
		return m.Factual.StoreFromDialog(ctx, userID, dialog, m.Extractor, importanceHint)
	case KindEpisodic:
		return m.Episodic.StoreFromDialog(ctx, userID, dialog, m.Extractor, importanceHint)
	case KindSemantic:
		return m.Semantic.StoreFromDialog(ctx, userID, dialog, m.Extractor, importanceHint)
	case KindProcedural:
		return m.Procedural.StoreFromDialog(ctx, userID, dialog, m.Extractor, importanceHint)
	default:
		return opFail("store", fmt.Sprintf("unsupported kind for dialog store: %s", kind))
	}
}

// BatchStoreRequest is one dialog to be routed to one kind in a
// BatchStore call (spec §4.3 batch_store).
type BatchStoreRequest struct {
	Kind           Kind
	UserID         string
	Dialog         string
	ImportanceHint float64
}

// BatchStore dispatches every request to its engine in parallel, combining
// per-request errors with multierr.Append rather than dropping all but the
// first (spec §4.B domain stack: "a caller inspecting a combined error sees
// every engine that failed").
func (m *MemoryService) BatchStore(ctx context.Context, reqs []BatchStoreRequest) ([]OpResult, error) {
	results := make([]OpResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	var combinedErr error
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			res := m.Store(ctx, r.Kind, r.UserID, r.Dialog, r.ImportanceHint)
			results[i] = res
			if !res.Success {
				combinedErr = multierr.Append(combinedErr, fmt.Errorf("%s[%d]: %s", r.Kind, i, res.Message))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, combinedErr
}

// SearchAll fans q out across every requested kind (or all six if q.Kinds
// is empty) and merges the ranked hits (spec §4.3 search, cross-kind
// retrieval layer).
func (m *MemoryService) SearchAll(ctx context.Context, q SearchQuery) ([]SearchHit, error) {
	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = AllKinds
	}

	g, ctx := errgroup.WithContext(ctx)
	hitsByKind := make([][]SearchHit, len(kinds))
	for i, k := range kinds {
		i, k := i, k
		g.Go(func() error {
			hitsByKind[i] = m.searchKind(ctx, k, q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []SearchHit
	for _, hs := range hitsByKind {
		merged = append(merged, hs...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if q.TopK > 0 && q.TopK < len(merged) {
		merged = merged[:q.TopK]
	}
	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged, nil
}

func (m *MemoryService) searchKind(ctx context.Context, k Kind, q SearchQuery) []SearchHit {
	switch k {
	case KindFactual:
		if m.Factual != nil {
			return m.Factual.Base.Search(ctx, q)
		}
	case KindEpisodic:
		if m.Episodic != nil {
			return m.Episodic.Base.Search(ctx, q)
		}
	case KindSemantic:
		if m.Semantic != nil {
			return m.Semantic.Base.Search(ctx, q)
		}
	case KindProcedural:
		if m.Procedural != nil {
			return m.Procedural.Base.Search(ctx, q)
		}
	case KindWorking:
		if m.Working != nil {
			wq := q
			wq.ActiveOnly = true
			return m.Working.Base.Search(ctx, wq)
		}
	case KindSession:
		if m.Session != nil {
			return m.Session.Search(ctx, q)
		}
	}
	return nil
}

// Statistics reports per-kind counts plus a crude diversity metric
// (distinct kinds with at least one record), gathered with bounded
// parallel COUNT queries (spec §4.3 statistics).
type Statistics struct {
	CountByKind map[Kind]int
	Total       int
	Diversity   float64
}

func (m *MemoryService) Statistics(ctx context.Context, userID string) (Statistics, error) {
	type kindCount struct {
		kind  Kind
		count int
	}
	tables := map[Kind]struct {
		store Store
		table string
	}{
		KindFactual:    {m.Factual.Base.Store, m.Factual.Base.Table},
		KindEpisodic:   {m.Episodic.Base.Store, m.Episodic.Base.Table},
		KindSemantic:   {m.Semantic.Base.Store, m.Semantic.Base.Table},
		KindProcedural: {m.Procedural.Base.Store, m.Procedural.Base.Table},
		KindWorking:    {m.Working.Base.Store, m.Working.Base.Table},
		KindSession:    {m.Session.Store, m.Session.MessagesTable},
	}

	g, ctx := errgroup.WithContext(ctx)
	counts := make(chan kindCount, len(tables))
	for k, t := range tables {
		k, t := k, t
		g.Go(func() error {
			n, err := t.store.Count(ctx, t.table, userID)
			if err != nil {
				n = 0
			}
			counts <- kindCount{kind: k, count: n}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(counts)
	}()

	results := make([]kindCount, 0, len(tables))
	for kc := range counts {
		results = append(results, kc)
	}

	stats := Statistics{CountByKind: map[Kind]int{}}
	nonEmpty := 0
	for _, r := range results {
		stats.CountByKind[r.kind] = r.count
		stats.Total += r.count
		if r.count > 0 {
			nonEmpty++
		}
	}
	stats.Diversity = float64(nonEmpty) / float64(len(tables))
	return stats, nil
}

// ConsolidationReport summarises what a Consolidate pass did.
type ConsolidationReport struct {
	ExpiredWorkingRemoved int
	Errors                error
}

// Consolidate runs housekeeping across engines: expire Working memory and
// best-effort per-engine storage optimisation (spec §4.3 consolidate).
// Engine-specific "optimize_storage" has no meaningful operation for the
// non-Working kinds in this design (no secondary indexes to rebuild), so
// it is a no-op placeholder there — only Working's TTL sweep does real work.
func (m *MemoryService) Consolidate(ctx context.Context) ConsolidationReport {
	var report ConsolidationReport
	n, err := m.Working.CleanupExpired(ctx)
	report.ExpiredWorkingRemoved = n
	if err != nil {
		report.Errors = multierr.Append(report.Errors, err)
	}
	return report
}
