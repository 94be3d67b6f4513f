package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SemanticEngine stores general concepts/definitions (spec C6 Semantic),
// grounded on original_source's semantic_engine.py.
type SemanticEngine struct {
	Base             *BaseEngine[*SemanticMemory]
	DedupPrefixLen   int // config knob, default 50 (spec DESIGN.md Open Question 2)
}

func NewSemanticEngine(base *BaseEngine[*SemanticMemory], dedupPrefixLen int) *SemanticEngine {
	if dedupPrefixLen <= 0 {
		dedupPrefixLen = 50
	}
	return &SemanticEngine{Base: base, DedupPrefixLen: dedupPrefixLen}
}

var semanticSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"concept_type":      map[string]any{"type": "string"},
		"concept":           map[string]any{"type": "string"},
		"definition":        map[string]any{"type": "string"},
		"properties":        map[string]any{"type": "object"},
		"abstraction_level": map[string]any{"type": "string"},
		"category":          map[string]any{"type": "string"},
		"related_concepts":  map[string]any{"type": "array"},
		"confidence":        map[string]any{"type": "number"},
	},
}

func normalizeAbstraction(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "concrete", "medium", "abstract":
		return strings.ToLower(level)
	default:
		return "medium"
	}
}

// dedupFingerprint takes the lower-cased first DedupPrefixLen runes of a
// definition as a cheap near-duplicate key (spec DESIGN.md Open Question 2:
// kept as a heuristic, exposed as a config knob rather than a fixed constant).
func (e *SemanticEngine) dedupFingerprint(definition string) string {
	d := []rune(strings.ToLower(strings.TrimSpace(definition)))
	if len(d) > e.DedupPrefixLen {
		d = d[:e.DedupPrefixLen]
	}
	return string(d)
}

// StoreFromDialog extracts a concept, dedupes by definition-prefix
// fingerprint against existing concepts with the same concept_type, and
// merges on a hit (union properties/related_concepts, max importance) or
// inserts on a miss (spec §4.2 Semantic).
func (e *SemanticEngine) StoreFromDialog(ctx context.Context, userID, dialog string, extractor Extractor, importanceHint float64) OpResult {
	raw, err := extractor.Extract(ctx, dialog, semanticSchema)
	if err != nil || !raw.Success {
		return opFail("store_semantic", "extraction failed")
	}

	concept, _ := raw.Data["concept"].(string)
	definition, _ := raw.Data["definition"].(string)
	if concept == "" || definition == "" {
		return opFail("store_semantic", "no concept extracted")
	}
	conceptType, _ := raw.Data["concept_type"].(string)
	if conceptType == "" {
		conceptType = "general"
	}
	category, _ := raw.Data["category"].(string)
	abstraction := normalizeAbstraction(fmt2(raw.Data["abstraction_level"]))
	properties := map[string]any{}
	if p, ok := raw.Data["properties"].(map[string]any); ok {
		properties = p
	}
	var related []string
	if arr, ok := raw.Data["related_concepts"].([]any); ok {
		for _, r := range arr {
			if s, ok := r.(string); ok {
				related = append(related, s)
			}
		}
	}
	confidence, _ := raw.Data["confidence"].(float64)
	if confidence == 0 {
		confidence = 0.7
	}
	confidence = clampFloat(confidence, 0, 1)

	fingerprint := e.dedupFingerprint(definition)
	existing, found := e.findByFingerprint(ctx, userID, conceptType, fingerprint)
	if found {
		return e.merge(ctx, existing, properties, related, importanceHint, confidence)
	}

	rec := &SemanticMemory{
		Envelope: Envelope{
			ID: uuid.New().String(), UserID: userID, Kind: KindSemantic,
			Content: concept + ": " + definition, Importance: importanceHint, Confidence: confidence,
			Context: map[string]any{}, CreatedAt: time.Now(),
		},
		ConceptType: conceptType, Definition: definition, Properties: properties,
		AbstractionLevel: abstraction, Category: category, RelatedConcepts: dedupStrings(related),
	}
	res := e.Base.StoreRecord(ctx, rec)
	if !res.Success {
		return res
	}
	return opOK("store_semantic", map[string]any{"id": rec.ID})
}

func fmt2(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// findByFingerprint enforces the per-fingerprint dedup invariant (spec
// §3.2) via an uncapped exact structural scan rather than a capped
// embedding-similarity search, so a match outside any similarity top-K
// can never be missed (grounded on original_source's semantic_engine.py,
// which filters by exact concept_type before comparing fingerprints).
func (e *SemanticEngine) findByFingerprint(ctx context.Context, userID, conceptType, fingerprint string) (*SemanticMemory, bool) {
	rows, err := e.Base.Store.Select(ctx, e.Base.Table, userID, StoreFilter{})
	if err != nil {
		return nil, false
	}
	for _, row := range rows {
		s, err := e.Base.Marshal.FromRow(row)
		if err != nil || s.ConceptType != conceptType {
			continue
		}
		if e.dedupFingerprint(s.Definition) == fingerprint {
			return s, true
		}
	}
	return nil, false
}

// merge unions properties and related_concepts, keeps the max importance,
// and sets confidence to the mean of the stored and new confidence plus
// 0.05, clamped to [0,1] — so it drops when the new confidence is more than
// 0.1 below the stored one (spec §3.2 uniqueness).
func (e *SemanticEngine) merge(ctx context.Context, existing *SemanticMemory, newProps map[string]any, newRelated []string, newImportance, newConfidence float64) OpResult {
	if existing.Properties == nil {
		existing.Properties = map[string]any{}
	}
	for k, v := range newProps {
		existing.Properties[k] = v
	}
	existing.RelatedConcepts = dedupStrings(append(existing.RelatedConcepts, newRelated...))
	if newImportance > existing.Importance {
		existing.Importance = newImportance
	}
	existing.Confidence = clampFloat((existing.Confidence+newConfidence)/2+0.05, 0, 1)
	res := e.Base.StoreRecord(ctx, existing)
	if !res.Success {
		return res
	}
	return opOK("store_semantic", map[string]any{"id": existing.ID, "merged": true})
}

// ---- typed search methods ----

func (e *SemanticEngine) ByConceptType(ctx context.Context, userID, conceptType string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: conceptType, TopK: topK, Threshold: 0})
	return filterSemantic(hits, func(s *SemanticMemory) bool { return s.ConceptType == conceptType })
}

func (e *SemanticEngine) ByCategory(ctx context.Context, userID, category string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: category, TopK: topK, Threshold: 0})
	return filterSemantic(hits, func(s *SemanticMemory) bool { return strings.EqualFold(s.Category, category) })
}

func (e *SemanticEngine) ByAbstractionLevel(ctx context.Context, userID, level string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: level, TopK: topK, Threshold: 0})
	return filterSemantic(hits, func(s *SemanticMemory) bool { return s.AbstractionLevel == level })
}

func filterSemantic(hits []SearchHit, pred func(*SemanticMemory) bool) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if s, ok := h.Record.(*SemanticMemory); ok && pred(s) {
			out = append(out, h)
		}
	}
	return out
}
