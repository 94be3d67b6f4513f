package adapters

import (
	"context"
	"strings"
	"testing"

	"github.com/antigravity/cogmem/internal/memory"
)

func TestSummarizeEmptyTextShortCircuits(t *testing.T) {
	s := NewLLMSummarizer(nil, "", "")
	res, err := s.Summarize(context.Background(), "", memory.SummarizeOptions{})
	if err != nil || !res.Success || res.Summary != "" {
		t.Errorf("Summarize(\"\") = %+v, %v", res, err)
	}
}

func TestSummarizeWithoutRouterFallsBackToDeterministicSummary(t *testing.T) {
	s := NewLLMSummarizer(nil, "", "")
	text := "user: hello there.\nassistant: hi, how can I help.\nuser: I need a refund."
	res, err := s.Summarize(context.Background(), text, memory.SummarizeOptions{Length: "brief"})
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !res.Success || res.Summary == "" {
		t.Fatalf("expected a non-empty fallback summary, got %+v", res)
	}
	if res.WordCount == 0 {
		t.Error("expected a non-zero word count")
	}
	if res.CompressionRatio <= 0 {
		t.Error("expected a positive compression ratio")
	}
}

func TestSimpleSummarizeTruncatesToTargetWords(t *testing.T) {
	text := strings.Repeat("word ", 200)
	got := simpleSummarize(text, 10)
	words := strings.Fields(strings.TrimSuffix(got, "..."))
	if len(words) != 10 {
		t.Errorf("simpleSummarize produced %d words, want 10", len(words))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("expected truncated summary to end with ellipsis")
	}
}

func TestExtractKeyPointsWithoutRouterUsesLines(t *testing.T) {
	s := NewLLMSummarizer(nil, "", "")
	text := "first point\nsecond point\nthird point\nfourth point"
	points, err := s.ExtractKeyPoints(context.Background(), text, 2)
	if err != nil {
		t.Fatalf("ExtractKeyPoints error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 key points, got %d: %v", len(points), points)
	}
	if points[0] != "first point" || points[1] != "second point" {
		t.Errorf("unexpected key points: %v", points)
	}
}

func TestExtractKeyPointsEmptyText(t *testing.T) {
	s := NewLLMSummarizer(nil, "", "")
	points, err := s.ExtractKeyPoints(context.Background(), "", 5)
	if err != nil || points != nil {
		t.Errorf("ExtractKeyPoints(\"\") = %v, %v", points, err)
	}
}
