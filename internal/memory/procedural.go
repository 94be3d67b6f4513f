package memory

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProceduralEngine stores learned skills/procedures (spec C6 Procedural),
// grounded on original_source's procedural_engine.py.
type ProceduralEngine struct {
	Base *BaseEngine[*ProceduralMemory]
}

func NewProceduralEngine(base *BaseEngine[*ProceduralMemory]) *ProceduralEngine {
	return &ProceduralEngine{Base: base}
}

var proceduralSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"skill_type":       map[string]any{"type": "string"},
		"steps":            map[string]any{"type": "array"},
		"prerequisites":    map[string]any{"type": "array"},
		"difficulty_level": map[string]any{"type": "string"},
		"domain":           map[string]any{"type": "string"},
		"importance_score": map[string]any{"type": "number"},
	},
}

var validDifficulty = map[string]bool{"beginner": true, "intermediate": true, "advanced": true, "expert": true}

func normalizeDifficulty(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	if validDifficulty[l] {
		return l
	}
	return "medium"
}

// stepsFromStringFallback splits dialog on numbered-list markers ("1.",
// "2)", newlines) when structured extraction yields no steps — mirrors
// procedural_engine.py's naive line-split fallback.
func stepsFromStringFallback(dialog string) []ProceduralStep {
	lines := strings.Split(dialog, "\n")
	var steps []ProceduralStep
	n := 1
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.) -")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		steps = append(steps, ProceduralStep{Number: n, Description: line, Importance: 0.5})
		n++
	}
	return steps
}

func (e *ProceduralEngine) StoreFromDialog(ctx context.Context, userID, dialog string, extractor Extractor, importanceHint float64) OpResult {
	raw, err := extractor.Extract(ctx, dialog, proceduralSchema)

	skillType := "general"
	var steps []ProceduralStep
	var prerequisites []string
	difficulty := "intermediate"
	domain := ""
	importance := importanceHint

	if err == nil && raw.Success {
		if v, ok := raw.Data["skill_type"].(string); ok && v != "" {
			skillType = strings.ToLower(strings.ReplaceAll(v, " ", "_"))
		}
		if arr, ok := raw.Data["steps"].([]any); ok {
			for i, s := range arr {
				switch val := s.(type) {
				case string:
					steps = append(steps, ProceduralStep{Number: i + 1, Description: val, Importance: 0.5})
				case map[string]any:
					num := i + 1
					if n, ok := val["number"].(float64); ok {
						num = int(n)
					}
					desc, _ := val["description"].(string)
					imp, _ := val["importance"].(float64)
					est, _ := val["estimated_time"].(string)
					var tools []string
					if ta, ok := val["tools_needed"].([]any); ok {
						for _, t := range ta {
							if ts, ok := t.(string); ok {
								tools = append(tools, ts)
							}
						}
					}
					steps = append(steps, ProceduralStep{Number: num, Description: desc, Importance: imp, ToolsNeeded: tools, EstimatedTime: est})
				}
			}
		}
		if arr, ok := raw.Data["prerequisites"].([]any); ok {
			for _, p := range arr {
				if s, ok := p.(string); ok {
					prerequisites = append(prerequisites, s)
				}
			}
		}
		difficulty = normalizeDifficulty(fmt2(raw.Data["difficulty_level"]))
		domain, _ = raw.Data["domain"].(string)
		if v, ok := raw.Data["importance_score"].(float64); ok {
			importance = clampFloat(v, 0, 1)
		}
	}

	if len(steps) == 0 {
		steps = stepsFromStringFallback(dialog)
	}
	if len(steps) == 0 {
		return opFail("store_procedural", "no steps extracted")
	}

	var descs []string
	for _, s := range steps {
		descs = append(descs, strconv.Itoa(s.Number)+". "+s.Description)
	}

	rec := &ProceduralMemory{
		Envelope: Envelope{
			ID: uuid.New().String(), UserID: userID, Kind: KindProcedural,
			Content: skillType + ": " + strings.Join(descs, " "), Importance: importance, Confidence: 0.65,
			Context: map[string]any{}, CreatedAt: time.Now(),
		},
		SkillType: skillType, Steps: steps, Prerequisites: prerequisites,
		DifficultyLevel: difficulty, SuccessRate: 0, Domain: domain,
	}
	res := e.Base.StoreRecord(ctx, rec)
	if !res.Success {
		return res
	}
	return opOK("store_procedural", map[string]any{"id": rec.ID})
}

// UpdateSuccessRate applies a running-mean update to a procedure's
// success_rate after an execution attempt (spec §4.2 "learning from use").
func (e *ProceduralEngine) UpdateSuccessRate(ctx context.Context, id string, succeeded bool) OpResult {
	rec, ok := e.Base.GetRecord(ctx, id)
	if !ok {
		return opFail("update_success_rate", "procedure not found")
	}
	outcome := 0.0
	if succeeded {
		outcome = 1.0
	}
	n := float64(rec.GetAccessCount())
	var newRate float64
	if n < 1 {
		newRate = outcome
	} else {
		newRate = (rec.SuccessRate*n + outcome) / (n + 1)
	}
	return e.Base.UpdateRecord(ctx, id, Row{
		"success_rate": clampFloat(newRate, 0, 1),
		"access_count": rec.GetAccessCount() + 1,
	})
}

// ---- typed search methods ----

func (e *ProceduralEngine) BySkillType(ctx context.Context, userID, skillType string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: skillType, TopK: topK, Threshold: 0})
	return filterProcedural(hits, func(p *ProceduralMemory) bool { return p.SkillType == skillType })
}

func (e *ProceduralEngine) ByDifficulty(ctx context.Context, userID, difficulty string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: difficulty, TopK: topK, Threshold: 0})
	return filterProcedural(hits, func(p *ProceduralMemory) bool { return p.DifficultyLevel == difficulty })
}

func (e *ProceduralEngine) ByDomain(ctx context.Context, userID, domain string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: domain, TopK: topK, Threshold: 0})
	return filterProcedural(hits, func(p *ProceduralMemory) bool { return strings.EqualFold(p.Domain, domain) })
}

func (e *ProceduralEngine) BySuccessRate(ctx context.Context, userID string, minRate float64, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0})
	return filterProcedural(hits, func(p *ProceduralMemory) bool { return p.SuccessRate >= minRate })
}

func (e *ProceduralEngine) ByPrerequisites(ctx context.Context, userID, prerequisite string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: prerequisite, TopK: topK, Threshold: 0})
	return filterProcedural(hits, func(p *ProceduralMemory) bool {
		for _, pr := range p.Prerequisites {
			if strings.EqualFold(pr, prerequisite) {
				return true
			}
		}
		return false
	})
}

func filterProcedural(hits []SearchHit, pred func(*ProceduralMemory) bool) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if p, ok := h.Record.(*ProceduralMemory); ok && pred(p) {
			out = append(out, h)
		}
	}
	return out
}
