package adapters

import (
	"context"
	"testing"
)

func TestExtractWithoutRouterDegradesGracefully(t *testing.T) {
	x := NewLLMExtractor(nil, "", "")
	res, err := x.Extract(context.Background(), "some text", map[string]any{"type": "object"})
	if err == nil {
		t.Error("expected an error when no router is configured")
	}
	if res.Success {
		t.Error("expected Success=false when no router is configured")
	}
}

func TestParseJSONObjectStripsFencedBlock(t *testing.T) {
	raw := "```json\n{\"facts\": []}\n```"
	data, ok := parseJSONObject(raw)
	if !ok {
		t.Fatal("expected parseJSONObject to succeed on a fenced JSON block")
	}
	if _, exists := data["facts"]; !exists {
		t.Errorf("expected a facts key, got %+v", data)
	}
}

func TestParseJSONObjectStripsLeadingProse(t *testing.T) {
	raw := "Sure, here's the JSON: {\"a\": 1, \"b\": 2} Hope that helps!"
	data, ok := parseJSONObject(raw)
	if !ok {
		t.Fatal("expected parseJSONObject to find the embedded object")
	}
	if data["a"] != 1.0 {
		t.Errorf("a = %v, want 1", data["a"])
	}
}

func TestParseJSONObjectFailsOnGarbage(t *testing.T) {
	if _, ok := parseJSONObject("not json at all"); ok {
		t.Error("expected parseJSONObject to fail on non-JSON text")
	}
}

func TestParseJSONArraySucceeds(t *testing.T) {
	var out []struct {
		Text string `json:"text"`
	}
	ok := parseJSONArray(`prefix [{"text":"hi"}] suffix`, &out)
	if !ok || len(out) != 1 || out[0].Text != "hi" {
		t.Errorf("parseJSONArray = %v, %+v", ok, out)
	}
}

func TestExtractEntitiesWithoutRouterReturnsError(t *testing.T) {
	x := NewLLMExtractor(nil, "", "")
	_, err := x.ExtractEntities(context.Background(), "text", 0.5)
	if err == nil {
		t.Error("expected an error when no router is configured")
	}
}

func TestAnalyzeSentimentWithoutRouterDefaultsNeutral(t *testing.T) {
	x := NewLLMExtractor(nil, "", "")
	res, err := x.AnalyzeSentiment(context.Background(), "text", "document")
	if err == nil {
		t.Error("expected an error when no router is configured")
	}
	if res.Label != "neutral" {
		t.Errorf("Label = %q, want neutral on error path", res.Label)
	}
}
