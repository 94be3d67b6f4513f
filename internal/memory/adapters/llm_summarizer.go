package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/antigravity/cogmem/internal/agent"
	"github.com/antigravity/cogmem/internal/memory"
)

// LLMSummarizer implements memory.Summariser, adapted from the teacher's
// internal/context.SessionCompressor: call the LLM for a style-/length-
// parameterised summary, falling back to a simple deterministic
// concatenation when no provider is configured or the call fails (spec C3,
// §7 AdapterUnavailable: "SQL generation falls through to the template
// path" — the same degrade-gracefully posture applies here).
type LLMSummarizer struct {
	router   *agent.LLMRouter
	provider string
	model    string
}

func NewLLMSummarizer(router *agent.LLMRouter, provider, model string) *LLMSummarizer {
	return &LLMSummarizer{router: router, provider: provider, model: model}
}

var lengthWordTargets = map[string]int{"brief": 40, "medium": 120, "detailed": 300}

func (s *LLMSummarizer) Summarize(ctx context.Context, text string, opts memory.SummarizeOptions) (memory.SummaryResult, error) {
	if text == "" {
		return memory.SummaryResult{Success: true}, nil
	}
	target := lengthWordTargets[opts.Length]
	if target == 0 {
		target = 120
	}

	if s.router == nil {
		summary := simpleSummarize(text, target)
		return buildResult(summary, text), nil
	}

	focus := ""
	if len(opts.CustomFocus) > 0 {
		focus = "Focus on: " + strings.Join(opts.CustomFocus, ", ") + "."
	}
	system := fmt.Sprintf(
		"You write %s-style summaries of conversations, target length ~%d words. %s",
		opts.Style, target, focus,
	)
	summary, err := s.router.GenerateResponse(ctx, s.provider, s.model, text, system, nil)
	if err != nil || strings.TrimSpace(summary) == "" {
		summary = simpleSummarize(text, target)
	}
	return buildResult(summary, text), nil
}

func (s *LLMSummarizer) ExtractKeyPoints(ctx context.Context, text string, maxPoints int) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	if s.router == nil {
		return simpleKeyPoints(text, maxPoints), nil
	}
	system := fmt.Sprintf("List at most %d key points from the text as a JSON array of short strings.", maxPoints)
	raw, err := s.router.GenerateResponse(ctx, s.provider, s.model, text, system, nil)
	if err != nil {
		return simpleKeyPoints(text, maxPoints), nil
	}
	var points []string
	if !parseJSONArray(raw, &points) {
		return simpleKeyPoints(text, maxPoints), nil
	}
	if len(points) > maxPoints {
		points = points[:maxPoints]
	}
	return points, nil
}

func buildResult(summary, original string) memory.SummaryResult {
	wc := len(strings.Fields(summary))
	origLen := len(original)
	ratio := 0.0
	if origLen > 0 {
		ratio = float64(len(summary)) / float64(origLen)
	}
	quality := 1.0 - ratio
	if quality < 0 {
		quality = 0
	}
	return memory.SummaryResult{
		Success:          true,
		Summary:          summary,
		WordCount:        wc,
		CharacterCount:   len(summary),
		QualityScore:     quality,
		CompressionRatio: ratio,
	}
}

// simpleSummarize builds a deterministic summary by taking the first
// sentence of each line, truncated to roughly `targetWords` words —
// grounded on SessionCompressor.simpleSummarize's fallback strategy.
func simpleSummarize(text string, targetWords int) string {
	lines := strings.Split(text, "\n")
	var points []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.Index(line, "."); idx > 0 && idx < 160 {
			line = line[:idx+1]
		} else if len(line) > 160 {
			line = line[:160] + "..."
		}
		points = append(points, line)
	}
	joined := strings.Join(points, " ")
	words := strings.Fields(joined)
	if len(words) > targetWords {
		words = words[:targetWords]
		return strings.Join(words, " ") + "..."
	}
	return joined
}

func simpleKeyPoints(text string, maxPoints int) []string {
	lines := strings.Split(text, "\n")
	var points []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		points = append(points, line)
		if len(points) == maxPoints {
			break
		}
	}
	return points
}
