package memory

import "time"

func getString(row Row, k string) string {
	if v, ok := row[k].(string); ok {
		return v
	}
	return ""
}

func getFloat(row Row, k string) float64 {
	switch v := row[k].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func getInt(row Row, k string) int {
	switch v := row[k].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func getBool(row Row, k string) bool {
	v, _ := row[k].(bool)
	return v
}

func getStrings(row Row, k string) []string {
	if v, ok := row[k].([]string); ok {
		return v
	}
	return nil
}

func getMap(row Row, k string) map[string]any {
	if v, ok := row[k].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func getTime(row Row, k string) time.Time {
	switch v := row[k].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func envelopeToRow(e Envelope) Row {
	return Row{
		"id": e.ID, "user_id": e.UserID, "kind": string(e.Kind),
		"content": e.Content, "embedding": e.Embedding,
		"importance": e.Importance, "confidence": e.Confidence,
		"access_count": e.AccessCount, "created_at": e.CreatedAt,
		"context": e.Context, "tags": e.Tags,
	}
}

func envelopeFromRow(row Row) Envelope {
	embedding, _ := row["embedding"].([]float32)
	return Envelope{
		ID: getString(row, "id"), UserID: getString(row, "user_id"), Kind: Kind(getString(row, "kind")),
		Content: getString(row, "content"), Embedding: embedding,
		Importance: getFloat(row, "importance"), Confidence: getFloat(row, "confidence"),
		AccessCount: getInt(row, "access_count"), CreatedAt: getTime(row, "created_at"),
		UpdatedAt: getTime(row, "updated_at"), Context: getMap(row, "context"), Tags: getStrings(row, "tags"),
	}
}

type factualMarshaler struct{}

func (factualMarshaler) New() *FactualMemory { return &FactualMemory{Envelope: Envelope{Kind: KindFactual}} }
func (factualMarshaler) ToRow(r *FactualMemory) Row {
	row := envelopeToRow(r.Envelope)
	row["fact_type"] = r.FactType
	row["subject"] = r.Subject
	row["predicate"] = r.Predicate
	row["object_value"] = r.ObjectValue
	row["source"] = r.Source
	row["verification_status"] = r.VerificationStatus
	row["related_facts"] = r.RelatedFacts
	return row
}
func (factualMarshaler) FromRow(row Row) (*FactualMemory, error) {
	return &FactualMemory{
		Envelope: envelopeFromRow(row), FactType: getString(row, "fact_type"), Subject: getString(row, "subject"),
		Predicate: getString(row, "predicate"), ObjectValue: getString(row, "object_value"),
		Source: getString(row, "source"), VerificationStatus: getString(row, "verification_status"),
		RelatedFacts: getStrings(row, "related_facts"),
	}, nil
}

type episodicMarshaler struct{}

func (episodicMarshaler) New() *EpisodicMemory {
	return &EpisodicMemory{Envelope: Envelope{Kind: KindEpisodic}}
}
func (episodicMarshaler) ToRow(r *EpisodicMemory) Row {
	row := envelopeToRow(r.Envelope)
	row["event_type"] = r.EventType
	row["location"] = r.Location
	row["participants"] = r.Participants
	row["emotional_valence"] = r.EmotionalValence
	row["vividness"] = r.Vividness
	row["episode_date"] = r.EpisodeDate
	return row
}
func (episodicMarshaler) FromRow(row Row) (*EpisodicMemory, error) {
	return &EpisodicMemory{
		Envelope: envelopeFromRow(row), EventType: getString(row, "event_type"), Location: getString(row, "location"),
		Participants: getStrings(row, "participants"), EmotionalValence: getFloat(row, "emotional_valence"),
		Vividness: getFloat(row, "vividness"), EpisodeDate: getTime(row, "episode_date"),
	}, nil
}

type semanticMarshaler struct{}

func (semanticMarshaler) New() *SemanticMemory {
	return &SemanticMemory{Envelope: Envelope{Kind: KindSemantic}}
}
func (semanticMarshaler) ToRow(r *SemanticMemory) Row {
	row := envelopeToRow(r.Envelope)
	row["concept_type"] = r.ConceptType
	row["definition"] = r.Definition
	row["properties"] = r.Properties
	row["abstraction_level"] = r.AbstractionLevel
	row["category"] = r.Category
	row["related_concepts"] = r.RelatedConcepts
	return row
}
func (semanticMarshaler) FromRow(row Row) (*SemanticMemory, error) {
	return &SemanticMemory{
		Envelope: envelopeFromRow(row), ConceptType: getString(row, "concept_type"), Definition: getString(row, "definition"),
		Properties: getMap(row, "properties"), AbstractionLevel: getString(row, "abstraction_level"),
		Category: getString(row, "category"), RelatedConcepts: getStrings(row, "related_concepts"),
	}, nil
}

type proceduralMarshaler struct{}

func (proceduralMarshaler) New() *ProceduralMemory {
	return &ProceduralMemory{Envelope: Envelope{Kind: KindProcedural}}
}
func (proceduralMarshaler) ToRow(r *ProceduralMemory) Row {
	row := envelopeToRow(r.Envelope)
	steps := make([]map[string]any, len(r.Steps))
	for i, st := range r.Steps {
		steps[i] = map[string]any{
			"number": st.Number, "description": st.Description, "importance": st.Importance,
			"tools_needed": st.ToolsNeeded, "estimated_time": st.EstimatedTime,
		}
	}
	row["skill_type"] = r.SkillType
	row["steps"] = steps
	row["prerequisites"] = r.Prerequisites
	row["difficulty_level"] = r.DifficultyLevel
	row["success_rate"] = r.SuccessRate
	row["domain"] = r.Domain
	return row
}
func (proceduralMarshaler) FromRow(row Row) (*ProceduralMemory, error) {
	var steps []ProceduralStep
	if raw, ok := row["steps"].([]map[string]any); ok {
		for _, m := range raw {
			tools, _ := m["tools_needed"].([]any)
			var toolStrs []string
			for _, t := range tools {
				if ts, ok := t.(string); ok {
					toolStrs = append(toolStrs, ts)
				}
			}
			num, _ := m["number"].(float64)
			imp, _ := m["importance"].(float64)
			desc, _ := m["description"].(string)
			est, _ := m["estimated_time"].(string)
			steps = append(steps, ProceduralStep{Number: int(num), Description: desc, Importance: imp, ToolsNeeded: toolStrs, EstimatedTime: est})
		}
	}
	return &ProceduralMemory{
		Envelope: envelopeFromRow(row), SkillType: getString(row, "skill_type"), Steps: steps,
		Prerequisites: getStrings(row, "prerequisites"), DifficultyLevel: getString(row, "difficulty_level"),
		SuccessRate: getFloat(row, "success_rate"), Domain: getString(row, "domain"),
	}, nil
}

type workingMarshaler struct{}

func (workingMarshaler) New() *WorkingMemory { return &WorkingMemory{Envelope: Envelope{Kind: KindWorking}} }
func (workingMarshaler) ToRow(r *WorkingMemory) Row {
	row := envelopeToRow(r.Envelope)
	row["task_id"] = r.TaskID
	row["task_context"] = r.TaskContext
	row["ttl_seconds"] = r.TTLSeconds
	row["priority"] = r.Priority
	row["expires_at"] = r.ExpiresAt
	return row
}
func (workingMarshaler) FromRow(row Row) (*WorkingMemory, error) {
	return &WorkingMemory{
		Envelope: envelopeFromRow(row), TaskID: getString(row, "task_id"), TaskContext: getMap(row, "task_context"),
		TTLSeconds: getInt(row, "ttl_seconds"), Priority: getInt(row, "priority"), ExpiresAt: getTime(row, "expires_at"),
	}, nil
}

func (w *WorkingMemory) expiresAt() time.Time { return w.ExpiresAt }
