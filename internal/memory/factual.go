package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FactualEngine stores subject-predicate-object triples extracted from
// dialog (spec C6 Factual), grounded on original_source's factual_engine.py.
type FactualEngine struct {
	Base *BaseEngine[*FactualMemory]
	Assoc *AssociationStore
}

func NewFactualEngine(base *BaseEngine[*FactualMemory], assoc *AssociationStore) *FactualEngine {
	return &FactualEngine{Base: base, Assoc: assoc}
}

var factualSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"facts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fact_type":    map[string]any{"type": "string"},
					"subject":      map[string]any{"type": "string"},
					"predicate":    map[string]any{"type": "string"},
					"object_value": map[string]any{"type": "string"},
					"context":      map[string]any{"type": "string"},
					"confidence":   map[string]any{"type": "number"},
				},
			},
		},
		"source": map[string]any{"type": "string"},
		"domain": map[string]any{"type": "string"},
	},
}

func factualContent(subject, predicate, object string, ctx map[string]any) string {
	c := fmt.Sprintf("%s %s %s", subject, predicate, object)
	if notes, ok := ctx["notes"].(string); ok && notes != "" {
		c += fmt.Sprintf(" (%s)", notes)
	}
	return c
}

// StoreFromDialog runs extract -> normalise -> merge-or-insert for Factual
// memories (spec §4.2 template; this is the intelligent/dialog path).
func (e *FactualEngine) StoreFromDialog(ctx context.Context, userID, dialog string, extractor Extractor, importanceHint float64) OpResult {
	raw, err := extractor.Extract(ctx, dialog, factualSchema)
	if err != nil || !raw.Success {
		return opFail("store_factual", "extraction failed")
	}

	facts, _ := raw.Data["facts"].([]any)
	source, _ := raw.Data["source"].(string)
	domain, _ := raw.Data["domain"].(string)

	type cleanFact struct {
		factType, subject, predicate, object, notes string
		confidence                                    float64
	}
	var clean []cleanFact
	for _, f := range facts {
		m, ok := f.(map[string]any)
		if !ok {
			continue
		}
		ft, _ := m["fact_type"].(string)
		sub, _ := m["subject"].(string)
		pred, _ := m["predicate"].(string)
		obj, _ := m["object_value"].(string)
		if ft == "" || sub == "" || pred == "" || obj == "" {
			continue
		}
		notes, _ := m["context"].(string)
		conf, _ := m["confidence"].(float64)
		clean = append(clean, cleanFact{
			factType:   strings.ToLower(strings.ReplaceAll(ft, " ", "_")),
			subject:    sub,
			predicate:  pred,
			object:     obj,
			notes:      notes,
			confidence: clampFloat(conf, 0, 1),
		})
	}

	if len(clean) == 0 {
		clean = basicFactFallback(dialog)
	}
	if len(clean) == 0 {
		return opFail("store_factual", "no facts extracted")
	}

	var lastID string
	for _, f := range clean {
		ctxMap := map[string]any{}
		if f.notes != "" {
			ctxMap["notes"] = f.notes
		}
		existing, found := e.findExisting(ctx, userID, f.factType, f.subject, f.predicate)
		if found {
			if res := e.merge(ctx, existing, f.object, f.confidence, ctxMap); res.Success {
				e.discoverAssociations(ctx, existing)
			}
			lastID = existing.ID
		} else {
			conf := f.confidence
			if conf == 0 {
				conf = 0.6
			}
			rec := &FactualMemory{
				Envelope: Envelope{
					ID: uuid.New().String(), UserID: userID, Kind: KindFactual,
					Content: factualContent(f.subject, f.predicate, f.object, ctxMap),
					Importance: importanceHint, Confidence: conf,
					Context: ctxMap, CreatedAt: time.Now(),
				},
				FactType: f.factType, Subject: f.subject, Predicate: f.predicate,
				ObjectValue: f.object, Source: strings.ToLower(source), VerificationStatus: "unverified",
			}
			res := e.Base.StoreRecord(ctx, rec)
			if res.Success {
				lastID = rec.ID
				e.discoverAssociations(ctx, rec)
			}
		}
		_ = domain
	}
	return opOK("store_factual", map[string]any{"id": lastID})
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var verbSplitRe = regexp.MustCompile(`(?i)\b(is|are|was|were|has|have)\b`)

// basicFactFallback synthesises at most 2 facts by naive verb-splitting,
// used only when extraction returns no facts (spec §4.2, §8.3).
func basicFactFallback(dialog string) []struct {
	factType, subject, predicate, object, notes string
	confidence                                    float64
} {
	type cf = struct {
		factType, subject, predicate, object, notes string
		confidence                                    float64
	}
	var out []cf
	sentences := strings.Split(dialog, ".")
	for _, s := range sentences {
		loc := verbSplitRe.FindStringIndex(s)
		if loc == nil {
			continue
		}
		subject := strings.TrimSpace(s[:loc[0]])
		predicate := strings.TrimSpace(s[loc[0]:loc[1]])
		object := strings.TrimSpace(s[loc[1]:])
		if subject == "" || object == "" {
			continue
		}
		out = append(out, cf{factType: "basic_fact", subject: subject, predicate: predicate, object: object, confidence: 0.6})
		if len(out) == 2 {
			break
		}
	}
	return out
}

// findExisting enforces spec §3.2's uniqueness rule — at most one record
// per (user_id, fact_type, subject, predicate) — via an uncapped exact
// structural scan rather than a capped embedding-similarity search, so a
// match outside any similarity top-K can never be missed (grounded on
// original_source's factual_engine.py _find_existing_fact, which uses
// exact .eq(...) filters with no cap).
func (e *FactualEngine) findExisting(ctx context.Context, userID, factType, subject, predicate string) (*FactualMemory, bool) {
	rows, err := e.Base.Store.Select(ctx, e.Base.Table, userID, StoreFilter{})
	if err != nil {
		return nil, false
	}
	for _, row := range rows {
		f, err := e.Base.Marshal.FromRow(row)
		if err != nil {
			continue
		}
		if f.FactType == factType && strings.EqualFold(f.Subject, subject) && strings.EqualFold(f.Predicate, predicate) {
			return f, true
		}
	}
	return nil, false
}

// merge applies spec §3.2's uniqueness rule: update object_value, raise
// confidence by +0.1 capped at 1.0, append context notes with "; "
// (the mapping-everywhere deviation from the Python original's string
// concatenation merge — see DESIGN.md Open Question 1).
func (e *FactualEngine) merge(ctx context.Context, existing *FactualMemory, newObject string, newConfidence float64, newCtx map[string]any) OpResult {
	existing.ObjectValue = newObject
	existing.Confidence = clampFloat(existing.Confidence+0.1, 0, 1)
	if notes, ok := newCtx["notes"].(string); ok && notes != "" {
		if prior, ok2 := existing.Context["notes"].(string); ok2 && prior != "" {
			existing.Context["notes"] = prior + "; " + notes
		} else {
			if existing.Context == nil {
				existing.Context = map[string]any{}
			}
			existing.Context["notes"] = notes
		}
	}
	existing.Content = factualContent(existing.Subject, existing.Predicate, existing.ObjectValue, existing.Context)
	return e.Base.StoreRecord(ctx, existing)
}

// discoverAssociations links a newly-merged/inserted fact to its top-5
// nearest neighbours via directed semantic_similarity edges (spec §4.2).
func (e *FactualEngine) discoverAssociations(ctx context.Context, rec *FactualMemory) {
	if e.Assoc == nil {
		return
	}
	related := e.Base.Related(ctx, rec, 5)
	for _, h := range related {
		e.Assoc.LinkIfAbsent(ctx, rec.ID, h.Record.(*FactualMemory).ID, "semantic_similarity", h.Similarity)
	}
}

// ---- typed search methods (spec §6.2) ----

func (e *FactualEngine) BySubject(ctx context.Context, userID, subject string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: subject, TopK: topK, Threshold: 0})
	return filterFactual(hits, func(f *FactualMemory) bool { return strings.EqualFold(f.Subject, subject) })
}

func (e *FactualEngine) ByFactType(ctx context.Context, userID, factType string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: factType, TopK: topK, Threshold: 0})
	return filterFactual(hits, func(f *FactualMemory) bool { return f.FactType == factType })
}

func (e *FactualEngine) ByConfidence(ctx context.Context, userID string, minConfidence float64, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0, ConfidenceFloor: &minConfidence})
	return hits
}

func (e *FactualEngine) BySource(ctx context.Context, userID, source string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: source, TopK: topK, Threshold: 0})
	return filterFactual(hits, func(f *FactualMemory) bool { return strings.EqualFold(f.Source, source) })
}

func (e *FactualEngine) ByVerification(ctx context.Context, userID, status string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: status, TopK: topK, Threshold: 0})
	return filterFactual(hits, func(f *FactualMemory) bool { return f.VerificationStatus == status })
}

func filterFactual(hits []SearchHit, pred func(*FactualMemory) bool) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if f, ok := h.Record.(*FactualMemory); ok && pred(f) {
			out = append(out, h)
		}
	}
	return out
}
