// Package match implements the NL->SQL pipeline's query-matching stage
// (spec §4.5.3, C11): turning a natural-language query into a QueryContext,
// a ranked list of metadata matches, and a draft QueryPlan, grounded on
// query_matcher.QueryMatcher.match_query_to_metadata (referenced from
// data_analytics_tools.py's step 4) and the semantic metadata produced by
// internal/analytics/enrich.
package match

import (
	"context"
	"sort"
	"strings"

	"github.com/antigravity/cogmem/internal/analytics/enrich"
	"github.com/antigravity/cogmem/internal/memory"
)

// QueryContext is the parsed intent behind a natural-language query (spec §4.5.3).
type QueryContext struct {
	BusinessIntent     string   `json:"business_intent"`
	EntitiesMentioned  []string `json:"entities_mentioned"`
	AttributesMentioned []string `json:"attributes_mentioned"`
	Operations         []string `json:"operations"`
	Aggregations       []string `json:"aggregations"`
	Filters            []string `json:"filters"`
	TemporalReferences []string `json:"temporal_references"`
	Confidence         float64  `json:"confidence"`
}

// MetadataMatch is one entity the query appears to reference (spec §4.5.3).
type MetadataMatch struct {
	EntityName         string   `json:"entity_name"`
	EntityType         string   `json:"entity_type"`
	MatchType          string   `json:"match_type"` // exact|semantic|fuzzy
	SimilarityScore    float64  `json:"similarity_score"`
	RelevantAttributes []string `json:"relevant_attributes"`
	SuggestedJoins     []string `json:"suggested_joins"`
}

// QueryPlan is the draft execution shape handed to the SQL generator (spec §4.5.3).
type QueryPlan struct {
	PrimaryTables    []string `json:"primary_tables"`
	RequiredJoins    []string `json:"required_joins"`
	SelectColumns    []string `json:"select_columns"`
	WhereConditions  []string `json:"where_conditions"`
	Aggregations     []string `json:"aggregations"`
	OrderBy          []string `json:"order_by"`
	Confidence       float64  `json:"confidence"`
}

var operationKeywords = map[string]string{
	"count": "count", "how many": "count", "total": "sum",
	"sum": "sum", "average": "avg", "avg": "avg",
	"max": "max", "maximum": "max", "min": "min", "minimum": "min",
	"list": "select", "show": "select", "find": "select", "get": "select",
	"top": "select", "group": "group_by", "sort": "order_by", "order": "order_by",
}

var aggregationKeywords = []string{"count", "sum", "avg", "average", "max", "min", "total"}

var temporalKeywords = []string{
	"today", "yesterday", "this week", "last week", "this month", "last month",
	"this year", "last year", "recent", "latest", "since", "between", "before", "after",
}

// Matcher turns natural-language queries into QueryContext + matches + plan,
// using an Embedder for similarity scoring against table-level semantic tags.
type Matcher struct {
	Embedder memory.Embedder
}

func NewMatcher(embedder memory.Embedder) *Matcher {
	return &Matcher{Embedder: embedder}
}

// Match implements the query -> (QueryContext, []MetadataMatch, QueryPlan) pipeline.
func (m *Matcher) Match(ctx context.Context, query string, semantic enrich.SemanticMetadata) (QueryContext, []MetadataMatch, QueryPlan, error) {
	qc := m.buildQueryContext(query)

	matches, err := m.matchEntities(ctx, qc, semantic)
	if err != nil {
		return qc, nil, QueryPlan{}, err
	}

	plan := m.buildQueryPlan(qc, matches, semantic)
	return qc, matches, plan, nil
}

func (m *Matcher) buildQueryContext(query string) QueryContext {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)

	qc := QueryContext{BusinessIntent: inferIntent(lower)}

	for phrase, op := range operationKeywords {
		if strings.Contains(lower, phrase) {
			qc.Operations = appendUnique(qc.Operations, op)
		}
	}
	for _, agg := range aggregationKeywords {
		if strings.Contains(lower, agg) {
			qc.Aggregations = appendUnique(qc.Aggregations, agg)
		}
	}
	for _, t := range temporalKeywords {
		if strings.Contains(lower, t) {
			qc.TemporalReferences = appendUnique(qc.TemporalReferences, t)
		}
	}

	for _, w := range words {
		w = strings.Trim(w, ".,?!")
		if len(w) < 3 || isStopword(w) {
			continue
		}
		if isLikelyEntity(w) {
			qc.EntitiesMentioned = appendUnique(qc.EntitiesMentioned, w)
		} else {
			qc.AttributesMentioned = appendUnique(qc.AttributesMentioned, w)
		}
	}

	if strings.Contains(lower, "where") || strings.Contains(lower, "with") {
		qc.Filters = append(qc.Filters, extractAfter(lower, "where", "with"))
	}

	confidence := 0.4
	if len(qc.Operations) > 0 {
		confidence += 0.2
	}
	if len(qc.EntitiesMentioned) > 0 {
		confidence += 0.2
	}
	if len(qc.Aggregations) > 0 {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	qc.Confidence = confidence

	return qc
}

func inferIntent(lower string) string {
	switch {
	case strings.Contains(lower, "how many") || strings.Contains(lower, "count"):
		return "count"
	case strings.Contains(lower, "total") || strings.Contains(lower, "sum"):
		return "aggregate"
	case strings.Contains(lower, "trend") || strings.Contains(lower, "over time"):
		return "trend_analysis"
	case strings.Contains(lower, "compare") || strings.Contains(lower, "versus") || strings.Contains(lower, " vs "):
		return "comparison"
	case strings.Contains(lower, "top") || strings.Contains(lower, "best") || strings.Contains(lower, "highest"):
		return "ranking"
	default:
		return "retrieval"
	}
}

func isStopword(w string) bool {
	switch w {
	case "the", "and", "for", "are", "with", "from", "this", "that", "what",
		"how", "many", "show", "all", "per", "where", "who", "did", "was", "were":
		return true
	}
	return false
}

func isLikelyEntity(w string) bool {
	return strings.HasSuffix(w, "s") && len(w) > 3
}

func extractAfter(lower string, markers ...string) string {
	for _, marker := range markers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			rest := strings.TrimSpace(lower[idx+len(marker):])
			if rest != "" {
				return rest
			}
		}
	}
	return ""
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func (m *Matcher) matchEntities(ctx context.Context, qc QueryContext, semantic enrich.SemanticMetadata) ([]MetadataMatch, error) {
	var queryVec []float32
	if m.Embedder != nil && len(qc.EntitiesMentioned) > 0 {
		v, err := m.Embedder.Embed(ctx, strings.Join(qc.EntitiesMentioned, " "))
		if err == nil {
			queryVec = v
		}
	}

	var matches []MetadataMatch
	for _, entity := range semantic.BusinessEntities {
		name := strings.ToLower(entity.EntityName)
		matchType, score := "", 0.0

		for _, mentioned := range qc.EntitiesMentioned {
			if name == mentioned || strings.TrimSuffix(mentioned, "s") == name {
				matchType, score = "exact", 1.0
				break
			}
			if strings.Contains(name, mentioned) || strings.Contains(mentioned, name) {
				matchType, score = "fuzzy", 0.6
			}
		}

		if matchType == "" && queryVec != nil && m.Embedder != nil {
			tagVec, err := m.Embedder.Embed(ctx, strings.Join(semantic.SemanticTags["table:"+entity.EntityName], " "))
			if err == nil {
				sim, err := m.Embedder.Similarity(ctx, queryVec, tagVec)
				if err == nil && sim > 0.5 {
					matchType, score = "semantic", sim
				}
			}
		}

		if matchType == "" {
			continue
		}

		matches = append(matches, MetadataMatch{
			EntityName: entity.EntityName, EntityType: entity.EntityType,
			MatchType: matchType, SimilarityScore: score,
			RelevantAttributes: entity.KeyAttributes,
			SuggestedJoins:     suggestedJoins(entity.EntityName, semantic),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].SimilarityScore > matches[j].SimilarityScore })
	return matches, nil
}

func suggestedJoins(entityName string, semantic enrich.SemanticMetadata) []string {
	var joins []string
	for _, r := range semantic.OriginalMetadata.Relationships {
		if r.FromTable == entityName {
			joins = append(joins, r.FromTable+"."+r.FromColumn+" = "+r.ToTable+"."+r.ToColumn)
		} else if r.ToTable == entityName {
			joins = append(joins, r.ToTable+"."+r.ToColumn+" = "+r.FromTable+"."+r.FromColumn)
		}
	}
	return joins
}

func (m *Matcher) buildQueryPlan(qc QueryContext, matches []MetadataMatch, semantic enrich.SemanticMetadata) QueryPlan {
	plan := QueryPlan{Aggregations: qc.Aggregations, WhereConditions: qc.Filters}

	limit := len(matches)
	if limit > 3 {
		limit = 3
	}
	for _, match := range matches[:limit] {
		plan.PrimaryTables = appendUnique(plan.PrimaryTables, match.EntityName)
		plan.RequiredJoins = append(plan.RequiredJoins, match.SuggestedJoins...)
		for _, attr := range match.RelevantAttributes {
			plan.SelectColumns = appendUnique(plan.SelectColumns, match.EntityName+"."+attr)
		}
	}

	for _, t := range qc.TemporalReferences {
		if t == "recent" || t == "latest" {
			plan.OrderBy = append(plan.OrderBy, "created_at DESC")
		}
	}

	confidence := qc.Confidence
	if len(matches) == 0 {
		confidence *= 0.3
	} else if matches[0].MatchType == "exact" {
		confidence = confidence*0.5 + 0.5
	}
	plan.Confidence = confidence

	return plan
}
