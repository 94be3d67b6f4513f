package adapters

import (
	"context"
	"math"
	"testing"
)

func TestSimilarityIdenticalVectorsIsOne(t *testing.T) {
	e := NewGeminiEmbedder("unused", 3)
	got, err := e.Similarity(context.Background(), []float32{1, 2, 3}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("Similarity error: %v", err)
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Similarity(identical) = %v, want 1.0", got)
	}
}

func TestSimilarityOpposingVectorsIsZero(t *testing.T) {
	e := NewGeminiEmbedder("unused", 3)
	got, err := e.Similarity(context.Background(), []float32{1, 0, 0}, []float32{-1, 0, 0})
	if err != nil {
		t.Fatalf("Similarity error: %v", err)
	}
	if math.Abs(got-0.0) > 1e-9 {
		t.Errorf("Similarity(opposing) = %v, want 0.0 (cosine -1 rescaled)", got)
	}
}

func TestSimilarityMismatchedLengthsIsZero(t *testing.T) {
	e := NewGeminiEmbedder("unused", 3)
	got, err := e.Similarity(context.Background(), []float32{1, 2}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("Similarity error: %v", err)
	}
	if got != 0 {
		t.Errorf("Similarity(mismatched lengths) = %v, want 0", got)
	}
}

func TestEmbedEmptyTextShortCircuits(t *testing.T) {
	e := NewGeminiEmbedder("unused", 3)
	vec, err := e.Embed(context.Background(), "")
	if err != nil || vec != nil {
		t.Errorf("Embed(\"\") = %v, %v; want nil, nil", vec, err)
	}
}

func TestEmbeddingCacheServesWithoutNetworkCall(t *testing.T) {
	e := NewGeminiEmbedder("unused", 3)
	want := []float32{0.1, 0.2, 0.3}
	e.cache.put("hello", want)

	got, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("cached embedding length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cached embedding[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDimensionDefaultsTo768(t *testing.T) {
	e := NewGeminiEmbedder("unused", 0)
	if e.Dimension() != 768 {
		t.Errorf("Dimension() = %d, want 768", e.Dimension())
	}
}
