package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antigravity/cogmem/internal/agent"
	"github.com/antigravity/cogmem/internal/memory"
)

// LLMExtractor performs schema-driven structured extraction by prompting an
// LLM for a JSON object matching the requested schema, built on the
// teacher's internal/agent.LLMRouter (spec C2). When no provider is
// configured, Extract degrades to ExtractResult{Success:false} so the
// calling engine falls through to its own heuristic fallback (spec §4.2
// "basic facts synthesised... if the model returned none").
type LLMExtractor struct {
	router   *agent.LLMRouter
	provider string
	model    string
}

func NewLLMExtractor(router *agent.LLMRouter, provider, model string) *LLMExtractor {
	return &LLMExtractor{router: router, provider: provider, model: model}
}

func (x *LLMExtractor) generate(ctx context.Context, system, prompt string) (string, error) {
	if x.router == nil {
		return "", fmt.Errorf("no LLM provider configured")
	}
	return x.router.GenerateResponse(ctx, x.provider, x.model, prompt, system, nil)
}

// Extract asks the LLM to fill the given schema and parses the response as
// JSON, tolerating a fenced ```json block around it.
func (x *LLMExtractor) Extract(ctx context.Context, text string, schema map[string]any) (memory.ExtractResult, error) {
	schemaJSON, _ := json.Marshal(schema)
	system := "You extract structured data from conversational text. Respond with ONLY a JSON object matching the given schema, no prose."
	prompt := fmt.Sprintf("Schema:\n%s\n\nText:\n%s\n\nJSON:", schemaJSON, text)

	raw, err := x.generate(ctx, system, prompt)
	if err != nil {
		return memory.ExtractResult{Success: false}, err
	}

	data, ok := parseJSONObject(raw)
	if !ok {
		return memory.ExtractResult{Success: false}, nil
	}
	return memory.ExtractResult{Success: true, Data: data, Confidence: 0.8}, nil
}

// ExtractEntities asks for a flat list of {text,label,score} entities.
func (x *LLMExtractor) ExtractEntities(ctx context.Context, text string, threshold float64) ([]memory.Entity, error) {
	system := "You perform named-entity recognition. Respond with ONLY a JSON array of objects {\"text\":...,\"label\":...,\"score\":...}."
	raw, err := x.generate(ctx, system, text)
	if err != nil {
		return nil, err
	}
	var items []struct {
		Text  string  `json:"text"`
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if !parseJSONArray(raw, &items) {
		return nil, nil
	}
	out := make([]memory.Entity, 0, len(items))
	for _, it := range items {
		if it.Score >= threshold {
			out = append(out, memory.Entity{Text: it.Text, Label: it.Label, Score: it.Score})
		}
	}
	return out, nil
}

// AnalyzeSentiment asks for a {label,score} sentiment verdict.
func (x *LLMExtractor) AnalyzeSentiment(ctx context.Context, text string, granularity string) (memory.SentimentResult, error) {
	system := "You perform sentiment analysis. Respond with ONLY JSON {\"label\":\"positive|negative|neutral\",\"score\":0.0-1.0}."
	raw, err := x.generate(ctx, system, text)
	if err != nil {
		return memory.SentimentResult{Label: "neutral"}, err
	}
	var out memory.SentimentResult
	data, ok := parseJSONObject(raw)
	if !ok {
		return memory.SentimentResult{Label: "neutral"}, nil
	}
	if l, ok := data["label"].(string); ok {
		out.Label = l
	} else {
		out.Label = "neutral"
	}
	if s, ok := data["score"].(float64); ok {
		out.Score = s
	}
	return out, nil
}

// parseJSONObject extracts a JSON object from raw text, tolerating a
// ```json fenced block or leading/trailing prose around the braces.
func parseJSONObject(raw string) (map[string]any, bool) {
	candidate := extractJSONSpan(raw, '{', '}')
	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, false
	}
	return out, true
}

func parseJSONArray(raw string, out any) bool {
	candidate := extractJSONSpan(raw, '[', ']')
	return json.Unmarshal([]byte(candidate), out) == nil
}

func extractJSONSpan(raw string, open, close byte) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, close)
	if start < 0 || end < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}
