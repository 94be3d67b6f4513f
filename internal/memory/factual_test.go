package memory

import (
	"context"
	"testing"
)

type fakeExtractor struct {
	result ExtractResult
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, text string, schema map[string]any) (ExtractResult, error) {
	return f.result, f.err
}

func (f *fakeExtractor) ExtractEntities(ctx context.Context, text string, threshold float64) ([]Entity, error) {
	return nil, nil
}

func (f *fakeExtractor) AnalyzeSentiment(ctx context.Context, text string, granularity string) (SentimentResult, error) {
	return SentimentResult{}, nil
}

func TestStoreFromDialogInsertsNewFact(t *testing.T) {
	base, _ := newTestFactualBase()
	engine := NewFactualEngine(base, nil)

	extractor := &fakeExtractor{result: ExtractResult{
		Success: true,
		Data: map[string]any{
			"facts": []any{
				map[string]any{
					"fact_type": "preference", "subject": "Alice", "predicate": "likes",
					"object_value": "tea", "confidence": 0.8,
				},
			},
			"source": "chat",
		},
	}}

	res := engine.StoreFromDialog(context.Background(), "u1", "Alice said she likes tea.", extractor, 0.5)
	if !res.Success {
		t.Fatalf("StoreFromDialog failed: %+v", res)
	}

	hits := engine.BySubject(context.Background(), "u1", "Alice", 10)
	if len(hits) != 1 {
		t.Fatalf("expected exactly one fact for Alice, got %d", len(hits))
	}
}

func TestStoreFromDialogMergesExistingFact(t *testing.T) {
	base, _ := newTestFactualBase()
	engine := NewFactualEngine(base, nil)
	ctx := context.Background()

	extractor := &fakeExtractor{result: ExtractResult{
		Success: true,
		Data: map[string]any{
			"facts": []any{
				map[string]any{
					"fact_type": "preference", "subject": "Alice", "predicate": "likes",
					"object_value": "tea", "confidence": 0.6,
				},
			},
		},
	}}
	engine.StoreFromDialog(ctx, "u1", "Alice likes tea.", extractor, 0.5)

	extractor.result.Data["facts"] = []any{
		map[string]any{
			"fact_type": "preference", "subject": "Alice", "predicate": "likes",
			"object_value": "coffee", "confidence": 0.6,
		},
	}
	engine.StoreFromDialog(ctx, "u1", "Alice actually likes coffee.", extractor, 0.5)

	hits := engine.BySubject(ctx, "u1", "Alice", 10)
	if len(hits) != 1 {
		t.Fatalf("expected the fact to be merged in place, got %d facts", len(hits))
	}
	f, ok := hits[0].Record.(*FactualMemory)
	if !ok {
		t.Fatal("expected a *FactualMemory hit")
	}
	if f.ObjectValue != "coffee" {
		t.Errorf("ObjectValue = %q, want %q (latest merge wins)", f.ObjectValue, "coffee")
	}
	if f.Confidence <= 0.6 {
		t.Errorf("Confidence = %v, want > 0.6 (merge raises confidence)", f.Confidence)
	}
}

func TestStoreFromDialogFailsWhenExtractionFails(t *testing.T) {
	base, _ := newTestFactualBase()
	engine := NewFactualEngine(base, nil)
	extractor := &fakeExtractor{result: ExtractResult{Success: false}}

	res := engine.StoreFromDialog(context.Background(), "u1", "no verbs here", extractor, 0.5)
	if res.Success {
		t.Error("expected StoreFromDialog to fail when extraction fails and no fallback facts are found")
	}
}

func TestByConfidenceFiltersBelowFloor(t *testing.T) {
	base, _ := newTestFactualBase()
	ctx := context.Background()
	base.StoreRecord(ctx, &FactualMemory{
		Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: "low confidence fact", Confidence: 0.2},
	})
	base.StoreRecord(ctx, &FactualMemory{
		Envelope: Envelope{UserID: "u1", Kind: KindFactual, Content: "high confidence fact", Confidence: 0.9},
	})

	engine := NewFactualEngine(base, nil)
	hits := engine.ByConfidence(ctx, "u1", 0.5, 10)
	if len(hits) != 1 {
		t.Fatalf("expected exactly one fact above the confidence floor, got %d", len(hits))
	}
}
