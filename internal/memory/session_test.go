package memory

import (
	"context"
	"fmt"
	"testing"
)

type fakeSummariser struct {
	calls int
}

func (f *fakeSummariser) Summarize(ctx context.Context, text string, opts SummarizeOptions) (SummaryResult, error) {
	f.calls++
	return SummaryResult{Success: true, Summary: fmt.Sprintf("summary #%d", f.calls)}, nil
}

func (f *fakeSummariser) ExtractKeyPoints(ctx context.Context, text string, maxPoints int) ([]string, error) {
	return []string{"decided something"}, nil
}

func newTestSessionEngine(summarizeEvery int) (*SessionEngine, *fakeStore, *fakeSummariser) {
	store := newFakeStore()
	summariser := &fakeSummariser{}
	e := NewSessionEngine(store, newFakeEmbedder(), summariser, testLogger())
	e.SummarizeEvery = summarizeEvery
	return e, store, summariser
}

func TestAddMessageTriggersSummarizeAtThreshold(t *testing.T) {
	engine, _, summariser := newTestSessionEngine(3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		engine.AddMessage(ctx, "s1", "u1", "user", fmt.Sprintf("message %d", i), "text", nil)
	}
	if summariser.calls != 0 {
		t.Fatalf("expected no summarisation before threshold, got %d calls", summariser.calls)
	}

	engine.AddMessage(ctx, "s1", "u1", "user", "message 2", "text", nil)
	if summariser.calls != 1 {
		t.Fatalf("expected summarisation to trigger at threshold, got %d calls", summariser.calls)
	}

	if pending := engine.pendingCount(ctx, "s1"); pending != 0 {
		t.Errorf("expected pending count to reset to 0 after summarise, got %d", pending)
	}
}

func TestAddMessageRejectsEmptyContent(t *testing.T) {
	engine, _, _ := newTestSessionEngine(20)
	res := engine.AddMessage(context.Background(), "s1", "u1", "user", "", "text", nil)
	if res.Success {
		t.Error("expected AddMessage to reject empty content")
	}
}

func TestSummarizeSessionMergesWithExistingSummary(t *testing.T) {
	engine, _, _ := newTestSessionEngine(2)
	ctx := context.Background()

	engine.AddMessage(ctx, "s1", "u1", "user", "first round message one", "text", nil)
	engine.AddMessage(ctx, "s1", "u1", "user", "first round message two", "text", nil)

	first, _ := engine.getSummaryRow(ctx, "s1")
	if first == nil {
		t.Fatal("expected a summary row after the first trigger")
	}
	if getInt(first, "total_messages") != 2 {
		t.Errorf("total_messages after first summary = %v, want 2", first["total_messages"])
	}

	engine.AddMessage(ctx, "s1", "u1", "user", "second round message one", "text", nil)
	engine.AddMessage(ctx, "s1", "u1", "user", "second round message two", "text", nil)

	second, _ := engine.getSummaryRow(ctx, "s1")
	if getInt(second, "total_messages") != 4 {
		t.Errorf("total_messages after second summary = %v, want 4 (cumulative)", second["total_messages"])
	}
	if getString(second, "conversation_summary") == getString(first, "conversation_summary") {
		t.Error("expected the second summary to differ from (and fold in) the first")
	}
}

func TestGetSessionContextReturnsRecentAndRelevantTurns(t *testing.T) {
	engine, _, _ := newTestSessionEngine(1000)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		engine.AddMessage(ctx, "s1", "u1", "user", fmt.Sprintf("turn number %d about cats", i), "text", nil)
	}

	sc, err := engine.GetSessionContext(ctx, "s1", "u1", "cats", 2, 3)
	if err != nil {
		t.Fatalf("GetSessionContext error: %v", err)
	}
	if len(sc.RecentTurns) != 3 {
		t.Errorf("RecentTurns = %d, want 3", len(sc.RecentTurns))
	}
	if len(sc.RelevantTurns) != 2 {
		t.Errorf("RelevantTurns = %d, want 2", len(sc.RelevantTurns))
	}
}
