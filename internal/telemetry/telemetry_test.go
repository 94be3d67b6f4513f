package telemetry

import (
	"context"
	"testing"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	// None of these must panic on a nil receiver.
	m.RecordEngineCall(context.Background(), "factual", "store")
	m.RecordExecutorAttempt(context.Background(), "primary", true, 12.5)
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil Metrics returned an error: %v", err)
	}
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() returned an error: %v", err)
	}
	defer m.Shutdown(context.Background())

	// Recording against a live Metrics must not panic either.
	m.RecordEngineCall(context.Background(), "episodic", "search")
	m.RecordExecutorAttempt(context.Background(), "fallback:simplify_query", false, 42.0)
}
