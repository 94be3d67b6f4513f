package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EpisodicEngine stores remembered events (spec C6 Episodic), grounded on
// original_source's episodic_engine.py.
type EpisodicEngine struct {
	Base *BaseEngine[*EpisodicMemory]
}

func NewEpisodicEngine(base *BaseEngine[*EpisodicMemory]) *EpisodicEngine {
	return &EpisodicEngine{Base: base}
}

var episodicSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"event_type":       map[string]any{"type": "string"},
		"clean_content":    map[string]any{"type": "string"},
		"location":         map[string]any{"type": "string"},
		"participants":     map[string]any{"type": "array"},
		"emotional_valence": map[string]any{"type": "number"},
		"vividness":        map[string]any{"type": "number"},
		"importance_score": map[string]any{"type": "number"},
	},
}

var assistantAliases = map[string]bool{"ai": true, "assistant": true, "claude": true, "chatbot": true, "bot": true}

func filterAssistantAliases(participants []string) []string {
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		if !assistantAliases[strings.ToLower(strings.TrimSpace(p))] {
			out = append(out, p)
		}
	}
	return out
}

// StoreFromDialog extracts an event record from dialog, normalises it, and
// augments it with entity extraction and sentiment (spec §4.2 Episodic).
// Unlike Factual/Semantic, Episodic always writes a record — even with zero
// extraction a fallback content/defaults path is used (spec §8.3).
func (e *EpisodicEngine) StoreFromDialog(ctx context.Context, userID, dialog string, extractor Extractor, importanceHint float64) OpResult {
	raw, err := extractor.Extract(ctx, dialog, episodicSchema)

	eventType := "general_event"
	cleanContent := firstWords(dialog, 30)
	var location string
	var participants []string
	valence := 0.0
	vividness := 0.5
	importance := importanceHint

	if err == nil && raw.Success {
		if v, ok := raw.Data["event_type"].(string); ok && v != "" {
			eventType = strings.ToLower(strings.ReplaceAll(v, " ", "_"))
		}
		if v, ok := raw.Data["clean_content"].(string); ok && v != "" {
			cleanContent = v
		}
		if v, ok := raw.Data["location"].(string); ok {
			location = v
		}
		if arr, ok := raw.Data["participants"].([]any); ok {
			for _, p := range arr {
				if s, ok := p.(string); ok {
					participants = append(participants, s)
				}
			}
		}
		participants = filterAssistantAliases(participants)
		if v, ok := raw.Data["emotional_valence"].(float64); ok {
			valence = clampFloat(v, -1, 1)
		}
		if v, ok := raw.Data["vividness"].(float64); ok {
			vividness = clampFloat(v, 0, 1)
		}
		if v, ok := raw.Data["importance_score"].(float64); ok {
			importance = clampFloat(v, 0, 1)
		}
	}

	if entities, err := extractor.ExtractEntities(ctx, dialog, 0.5); err == nil {
		var personNames []string
		for _, ent := range entities {
			if ent.Label == "PERSON" {
				personNames = append(personNames, ent.Text)
			}
			if location == "" && ent.Label == "LOCATION" {
				location = ent.Text
			}
		}
		participants = append(participants, filterAssistantAliases(personNames)...)
	}

	if sentiment, err := extractor.AnalyzeSentiment(ctx, dialog, "overall"); err == nil {
		switch sentiment.Label {
		case "positive":
			valence = minFloat(0.8, sentiment.Score)
		case "negative":
			valence = maxFloat(-0.8, -sentiment.Score)
		default:
			valence = 0
		}
	}

	rec := &EpisodicMemory{
		Envelope: Envelope{
			ID: uuid.New().String(), UserID: userID, Kind: KindEpisodic,
			Content: cleanContent, Importance: importance, Confidence: 0.7,
			Context: map[string]any{}, CreatedAt: time.Now(),
		},
		EventType: eventType, Location: location, Participants: dedupStrings(participants),
		EmotionalValence: valence, Vividness: vividness, EpisodeDate: time.Now(),
	}
	res := e.Base.StoreRecord(ctx, rec)
	if !res.Success {
		return res
	}
	return opOK("store_episodic", map[string]any{"id": rec.ID})
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func dedupStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// ---- typed search methods ----

func (e *EpisodicEngine) ByEventType(ctx context.Context, userID, eventType string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: eventType, TopK: topK, Threshold: 0})
	return filterEpisodic(hits, func(m *EpisodicMemory) bool { return m.EventType == eventType })
}

func (e *EpisodicEngine) ByParticipant(ctx context.Context, userID, participant string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: participant, TopK: topK, Threshold: 0})
	return filterEpisodic(hits, func(m *EpisodicMemory) bool {
		for _, p := range m.Participants {
			if strings.EqualFold(p, participant) {
				return true
			}
		}
		return false
	})
}

func (e *EpisodicEngine) ByLocation(ctx context.Context, userID, location string, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: location, TopK: topK, Threshold: 0})
	return filterEpisodic(hits, func(m *EpisodicMemory) bool { return strings.EqualFold(m.Location, location) })
}

func (e *EpisodicEngine) ByTimeframe(ctx context.Context, userID string, after, before time.Time, topK int) []SearchHit {
	return e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0, CreatedAfter: &after, CreatedBefore: &before})
}

func (e *EpisodicEngine) ByEmotionalTone(ctx context.Context, userID string, positive bool, topK int) []SearchHit {
	hits := e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0})
	return filterEpisodic(hits, func(m *EpisodicMemory) bool {
		if positive {
			return m.EmotionalValence > 0
		}
		return m.EmotionalValence < 0
	})
}

func (e *EpisodicEngine) ByImportance(ctx context.Context, userID string, minImportance float64, topK int) []SearchHit {
	return e.Base.Search(ctx, SearchQuery{UserID: userID, Text: "", TopK: topK, Threshold: 0, ImportanceFloor: &minImportance})
}

func filterEpisodic(hits []SearchHit, pred func(*EpisodicMemory) bool) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if m, ok := h.Record.(*EpisodicMemory); ok && pred(m) {
			out = append(out, h)
		}
	}
	return out
}
