package memory

import (
	"context"
	"testing"
	"time"
)

func mustPastTime() time.Time { return time.Now().Add(-time.Hour) }

func newTestMemoryService() *MemoryService {
	store := newFakeStore()
	extractor := &fakeExtractor{result: ExtractResult{Success: true, Data: map[string]any{
		"facts": []any{
			map[string]any{"fact_type": "preference", "subject": "Bob", "predicate": "likes", "object_value": "pizza", "confidence": 0.7},
		},
	}}}
	return NewMemoryService(store, newFakeEmbedder(), extractor, &fakeSummariser{}, testLogger(), nil, NewMemoryServiceOptions{})
}

func TestMemoryServiceStoreRoutesByKind(t *testing.T) {
	svc := newTestMemoryService()
	res := svc.Store(context.Background(), KindFactual, "u1", "Bob likes pizza.", 0.5)
	if !res.Success {
		t.Fatalf("Store failed: %+v", res)
	}
}

func TestMemoryServiceStoreRejectsUnsupportedKind(t *testing.T) {
	svc := newTestMemoryService()
	res := svc.Store(context.Background(), KindSession, "u1", "n/a", 0.5)
	if res.Success {
		t.Error("expected Store to reject KindSession (routed through Session.AddMessage instead)")
	}
}

func TestMemoryServiceBatchStoreCombinesErrors(t *testing.T) {
	svc := newTestMemoryService()
	reqs := []BatchStoreRequest{
		{Kind: KindFactual, UserID: "u1", Dialog: "Bob likes pizza.", ImportanceHint: 0.5},
		{Kind: KindSession, UserID: "u1", Dialog: "unsupported", ImportanceHint: 0.5},
	}
	results, err := svc.BatchStore(context.Background(), reqs)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Errorf("expected first request to succeed: %+v", results[0])
	}
	if results[1].Success {
		t.Error("expected second request to fail")
	}
	if err == nil {
		t.Error("expected a combined error reporting the failed request")
	}
}

func TestMemoryServiceSearchAllMergesAcrossKinds(t *testing.T) {
	svc := newTestMemoryService()
	ctx := context.Background()
	svc.Store(ctx, KindFactual, "u1", "Bob likes pizza.", 0.5)

	hits, err := svc.SearchAll(ctx, SearchQuery{UserID: "u1", Text: "pizza", TopK: 10, Threshold: -1})
	if err != nil {
		t.Fatalf("SearchAll error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit across kinds")
	}
	for i, h := range hits {
		if h.Rank != i+1 {
			t.Errorf("hit %d rank = %d, want %d", i, h.Rank, i+1)
		}
	}
}

func TestMemoryServiceStatisticsCountsPerKind(t *testing.T) {
	svc := newTestMemoryService()
	ctx := context.Background()
	svc.Store(ctx, KindFactual, "u1", "Bob likes pizza.", 0.5)

	stats, err := svc.Statistics(ctx, "u1")
	if err != nil {
		t.Fatalf("Statistics error: %v", err)
	}
	if stats.CountByKind[KindFactual] != 1 {
		t.Errorf("factual count = %d, want 1", stats.CountByKind[KindFactual])
	}
	if stats.Total != 1 {
		t.Errorf("total = %d, want 1", stats.Total)
	}
	if stats.Diversity <= 0 {
		t.Errorf("expected positive diversity, got %v", stats.Diversity)
	}
}

func TestMemoryServiceStatisticsAndSearchCoverSessionKind(t *testing.T) {
	svc := newTestMemoryService()
	ctx := context.Background()
	svc.Session.AddMessage(ctx, "s1", "u1", "user", "I need help with pizza orders", "text", nil)

	stats, err := svc.Statistics(ctx, "u1")
	if err != nil {
		t.Fatalf("Statistics error: %v", err)
	}
	if stats.CountByKind[KindSession] != 1 {
		t.Errorf("session count = %d, want 1", stats.CountByKind[KindSession])
	}
	if got, want := stats.Diversity, 1.0/6.0; got != want {
		t.Errorf("diversity = %v, want %v (1 of 6 kinds populated)", got, want)
	}

	hits, err := svc.SearchAll(ctx, SearchQuery{UserID: "u1", Kinds: []Kind{KindSession}, Text: "pizza orders", TopK: 10, Threshold: -1})
	if err != nil {
		t.Fatalf("SearchAll error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected exactly one session hit, got %d", len(hits))
	}
	if hits[0].Kind != KindSession {
		t.Errorf("hit kind = %v, want %v", hits[0].Kind, KindSession)
	}
}

func TestMemoryServiceConsolidateRemovesExpiredWorking(t *testing.T) {
	svc := newTestMemoryService()
	ctx := context.Background()
	res := svc.Working.StoreTask(ctx, "u1", "stale", "stale task", nil, 3, 1)
	id := res.Data.(map[string]any)["id"].(string)

	store := svc.Working.Base.Store.(*fakeStore)
	row, _ := store.Get(ctx, svc.Working.Base.Table, id)
	row["expires_at"] = mustPastTime()
	store.table(svc.Working.Base.Table)[id] = row

	report := svc.Consolidate(ctx)
	if report.Errors != nil {
		t.Errorf("unexpected consolidate errors: %v", report.Errors)
	}
	if report.ExpiredWorkingRemoved != 1 {
		t.Errorf("ExpiredWorkingRemoved = %d, want 1", report.ExpiredWorkingRemoved)
	}
}
