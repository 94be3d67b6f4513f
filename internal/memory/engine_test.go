package memory

import (
	"context"
	"testing"
)

func newTestFactualBase() (*BaseEngine[*FactualMemory], *fakeStore) {
	store := newFakeStore()
	base := &BaseEngine[*FactualMemory]{
		Kind: KindFactual, Table: "factual_memories",
		Store: store, Embedder: newFakeEmbedder(), Logger: testLogger(),
		Marshal: factualMarshaler{},
	}
	return base, store
}

func TestStoreRecordAssignsIDAndEmbedding(t *testing.T) {
	base, _ := newTestFactualBase()
	rec := &FactualMemory{
		Envelope:  Envelope{UserID: "u1", Kind: KindFactual, Content: "Paris is the capital of France"},
		FactType:  "geography", Subject: "Paris", Predicate: "is the capital of", ObjectValue: "France",
	}
	res := base.StoreRecord(context.Background(), rec)
	if !res.Success {
		t.Fatalf("StoreRecord failed: %+v", res)
	}
	if rec.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if len(rec.Embedding) == 0 {
		t.Error("expected an embedding to be assigned")
	}
}

func TestStoreRecordRejectsEmptyContent(t *testing.T) {
	base, _ := newTestFactualBase()
	res := base.StoreRecord(context.Background(), &FactualMemory{Envelope: Envelope{UserID: "u1"}})
	if res.Success {
		t.Error("expected StoreRecord to fail on empty content")
	}
}

func TestGetRecordRoundTrips(t *testing.T) {
	base, _ := newTestFactualBase()
	ctx := context.Background()
	rec := &FactualMemory{
		Envelope:  Envelope{UserID: "u1", Kind: KindFactual, Content: "the sky is blue"},
		FactType:  "observation", Subject: "the sky", Predicate: "is", ObjectValue: "blue",
	}
	base.StoreRecord(ctx, rec)

	got, ok := base.GetRecord(ctx, rec.ID)
	if !ok {
		t.Fatal("expected GetRecord to find the stored record")
	}
	if got.Subject != "the sky" || got.ObjectValue != "blue" {
		t.Errorf("round-tripped record mismatch: %+v", got)
	}
}

func TestSearchRanksByThresholdAndTopK(t *testing.T) {
	base, _ := newTestFactualBase()
	ctx := context.Background()

	for _, content := range []string{"cats are mammals", "dogs are mammals", "rockets burn fuel"} {
		base.StoreRecord(ctx, &FactualMemory{
			Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: content},
		})
	}

	hits := base.Search(ctx, SearchQuery{UserID: "u1", Text: "cats are mammals", TopK: 1, Threshold: 0})
	if len(hits) != 1 {
		t.Fatalf("expected TopK=1 to return exactly one hit, got %d", len(hits))
	}
	if hits[0].Rank != 1 {
		t.Errorf("expected rank 1, got %d", hits[0].Rank)
	}
}

func TestSearchTopKZeroReturnsNil(t *testing.T) {
	base, _ := newTestFactualBase()
	hits := base.Search(context.Background(), SearchQuery{UserID: "u1", Text: "anything", TopK: 0})
	if hits != nil {
		t.Errorf("expected nil hits for TopK=0, got %v", hits)
	}
}

func TestSearchScopesToUser(t *testing.T) {
	base, _ := newTestFactualBase()
	ctx := context.Background()
	base.StoreRecord(ctx, &FactualMemory{Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: "u1's fact"}})
	base.StoreRecord(ctx, &FactualMemory{Envelope: Envelope{UserID: "u2", Kind: KindFactual, Content: "u2's fact"}})

	hits := base.Search(ctx, SearchQuery{UserID: "u1", Text: "fact", TopK: 10, Threshold: -1})
	if len(hits) != 1 {
		t.Fatalf("expected exactly one hit scoped to u1, got %d", len(hits))
	}
}

func TestUpdateRecordRegeneratesEmbeddingOnContentChange(t *testing.T) {
	base, store := newTestFactualBase()
	ctx := context.Background()
	rec := &FactualMemory{Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: "original content"}}
	base.StoreRecord(ctx, rec)

	res := base.UpdateRecord(ctx, rec.ID, Row{"content": "replaced content"})
	if !res.Success {
		t.Fatalf("UpdateRecord failed: %+v", res)
	}
	row, _ := store.Get(ctx, "factual_memories", rec.ID)
	if row["content"] != "replaced content" {
		t.Errorf("content not updated: %+v", row)
	}
	if _, ok := row["embedding"].([]float32); !ok {
		t.Error("expected embedding to be regenerated as []float32")
	}
}

func TestDeleteRecordRemovesRow(t *testing.T) {
	base, _ := newTestFactualBase()
	ctx := context.Background()
	rec := &FactualMemory{Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: "to be deleted"}}
	base.StoreRecord(ctx, rec)

	if res := base.DeleteRecord(ctx, rec.ID); !res.Success {
		t.Fatalf("DeleteRecord failed: %+v", res)
	}
	if _, ok := base.GetRecord(ctx, rec.ID); ok {
		t.Error("expected record to be gone after delete")
	}
}

func TestRelatedExcludesSelf(t *testing.T) {
	base, _ := newTestFactualBase()
	ctx := context.Background()
	rec := &FactualMemory{Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: "shared topic alpha"}}
	base.StoreRecord(ctx, rec)
	other := &FactualMemory{Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: "shared topic alpha variant"}}
	base.StoreRecord(ctx, other)

	related := base.Related(ctx, rec, 5)
	for _, h := range related {
		if f, ok := h.Record.(*FactualMemory); ok && f.ID == rec.ID {
			t.Error("Related must not include the record itself")
		}
	}
}
