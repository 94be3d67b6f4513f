package enrich

import (
	"sort"
	"strings"
)

// BusinessEntity classifies one table as a business entity (spec §4.5.2).
type BusinessEntity struct {
	EntityName         string   `json:"entity_name"`
	EntityType         string   `json:"entity_type"` // reference|transaction|event|configuration|bridge|entity
	Confidence         float64  `json:"confidence"`
	KeyAttributes      []string `json:"key_attributes"`
	RecordCount        int64    `json:"record_count"`
	BusinessImportance string   `json:"business_importance"` // high|medium|low
}

// DataPattern is one detected structural pattern (spec §4.5.2).
type DataPattern struct {
	PatternType     string   `json:"pattern_type"`
	Description     string   `json:"description"`
	TablesInvolved  []string `json:"tables_involved,omitempty"`
	ColumnsInvolved []string `json:"columns_involved,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// BusinessRule is one inferred rule (spec §4.5.2).
type BusinessRule struct {
	RuleType         string   `json:"rule_type"` // referential_integrity|uniqueness|data_validation
	Description      string   `json:"description"`
	Confidence       float64  `json:"confidence"`
	TablesInvolved   []string `json:"tables_involved"`
	SQLConstraint    string   `json:"sql_constraint,omitempty"`
	ValidationRegex  string   `json:"validation_regex,omitempty"`
}

// DomainClassification is the business-domain verdict (spec §4.5.2).
type DomainClassification struct {
	PrimaryDomain  string             `json:"primary_domain"`
	Confidence     float64            `json:"confidence"`
	DomainScores   map[string]float64 `json:"domain_scores"`
	IsMultiDomain  bool               `json:"is_multi_domain"`
}

// SemanticMetadata is the enriched output of Enrich (spec §4.5.2).
type SemanticMetadata struct {
	OriginalMetadata Metadata              `json:"original_metadata"`
	BusinessEntities []BusinessEntity      `json:"business_entities"`
	SemanticTags     map[string][]string   `json:"semantic_tags"`
	DataPatterns     []DataPattern         `json:"data_patterns"`
	BusinessRules    []BusinessRule        `json:"business_rules"`
	DomainClassification DomainClassification `json:"domain_classification"`
	ConfidenceScores map[string]float64    `json:"confidence_scores"`
}

var businessKeywords = map[string][]string{
	"customer":   {"customer", "client", "buyer", "user", "account"},
	"product":    {"product", "item", "inventory", "catalog", "sku"},
	"order":      {"order", "purchase", "transaction", "sale", "booking"},
	"financial":  {"price", "cost", "amount", "value", "payment", "invoice", "billing"},
	"temporal":   {"date", "time", "created", "updated", "modified", "timestamp"},
	"location":   {"address", "city", "country", "region", "location", "postal"},
	"identifier": {"id", "code", "number", "reference", "key", "uuid"},
	"status":     {"status", "state", "condition", "flag", "active", "enabled"},
}

// Enricher enriches raw discovery output with semantic meaning (spec C10,
// grounded on semantic_enricher.py).
type Enricher struct{}

func NewEnricher() *Enricher { return &Enricher{} }

func (e *Enricher) Enrich(meta Metadata) SemanticMetadata {
	entities := e.extractBusinessEntities(meta)
	tags := e.generateSemanticTags(meta)
	patterns := e.detectDataPatterns(meta)
	rules := e.inferBusinessRules(meta)
	domain := e.classifyDomain(meta)
	scores := e.calculateConfidenceScores(entities, tags, patterns, rules)

	return SemanticMetadata{
		OriginalMetadata:      meta,
		BusinessEntities:      entities,
		SemanticTags:          tags,
		DataPatterns:          patterns,
		BusinessRules:         rules,
		DomainClassification:  domain,
		ConfidenceScores:      scores,
	}
}

func (e *Enricher) extractBusinessEntities(meta Metadata) []BusinessEntity {
	colsByTable := map[string][]ColumnMeta{}
	for _, c := range meta.Columns {
		colsByTable[c.TableName] = append(colsByTable[c.TableName], c)
	}

	var out []BusinessEntity
	for _, t := range meta.Tables {
		name := strings.ToLower(t.TableName)
		cols := colsByTable[t.TableName]
		out = append(out, BusinessEntity{
			EntityName:          t.TableName,
			EntityType:          classifyEntityType(name, cols),
			Confidence:          entityConfidence(name, cols),
			KeyAttributes:       keyAttributes(cols),
			RecordCount:         t.RecordCount,
			BusinessImportance:  businessImportance(name, t.RecordCount),
		})
	}
	return out
}

func classifyEntityType(tableName string, cols []ColumnMeta) string {
	switch {
	case containsAny(tableName, "master", "dim", "ref", "lookup"):
		return "reference"
	case containsAny(tableName, "transaction", "order", "payment", "invoice"):
		return "transaction"
	case containsAny(tableName, "log", "audit", "history", "event"):
		return "event"
	case containsAny(tableName, "config", "setting", "parameter"):
		return "configuration"
	}
	idLike := 0
	for _, c := range cols {
		if strings.HasSuffix(strings.ToLower(c.ColumnName), "_id") {
			idLike++
		}
	}
	if idLike >= 2 {
		return "bridge"
	}
	return "entity"
}

func keyAttributes(cols []ColumnMeta) []string {
	var out []string
	for _, c := range cols {
		name := strings.ToLower(c.ColumnName)
		switch {
		case (strings.Contains(name, "id") && name != "id") || strings.HasSuffix(name, "_id"):
			out = append(out, c.ColumnName)
		case containsAny(name, "code", "number", "reference", "key"):
			out = append(out, c.ColumnName)
		case containsAny(name, "name", "title", "description"):
			out = append(out, c.ColumnName)
		}
		if len(out) >= 5 {
			break
		}
	}
	return out
}

func businessImportance(tableName string, recordCount int64) string {
	switch {
	case containsAny(tableName, "customer", "order", "product", "user", "account"):
		return "high"
	case containsAny(tableName, "transaction", "payment", "inventory", "category"):
		return "medium"
	case containsAny(tableName, "config", "setting", "lookup", "ref"):
		return "low"
	case recordCount > 10000:
		return "high"
	case recordCount > 1000:
		return "medium"
	default:
		return "low"
	}
}

func entityConfidence(tableName string, cols []ColumnMeta) float64 {
	confidence := 0.5
	if containsAny(tableName, "master", "dim", "fact", "ref") {
		confidence += 0.2
	}
	hasID, hasTimestamps := false, false
	for _, c := range cols {
		n := strings.ToLower(c.ColumnName)
		if strings.Contains(n, "id") {
			hasID = true
		}
		if strings.Contains(n, "created") || strings.Contains(n, "updated") {
			hasTimestamps = true
		}
	}
	if hasID {
		confidence += 0.1
	}
	if hasTimestamps {
		confidence += 0.1
	}
	for _, word := range []string{"customer", "order", "product", "user"} {
		if strings.Contains(tableName, word) {
			confidence += 0.05
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func (e *Enricher) generateSemanticTags(meta Metadata) map[string][]string {
	tags := map[string][]string{}

	for _, t := range meta.Tables {
		name := strings.ToLower(t.TableName)
		var tableTags []string
		for domain, keywords := range businessKeywords {
			if containsAny(name, keywords...) {
				tableTags = append(tableTags, "domain:"+domain)
			}
		}
		if containsAny(name, "log", "audit") {
			tableTags = append(tableTags, "pattern:temporal")
		}
		if containsAny(name, "ref", "lookup") {
			tableTags = append(tableTags, "pattern:reference")
		}
		if containsAny(name, "master", "dim") {
			tableTags = append(tableTags, "pattern:dimension")
		}
		if containsAny(name, "fact", "transaction") {
			tableTags = append(tableTags, "pattern:fact")
		}
		sort.Strings(tableTags)
		tags["table:"+t.TableName] = tableTags
	}

	for _, c := range meta.Columns {
		name := strings.ToLower(c.ColumnName)
		dataType := strings.ToLower(c.DataType)
		var colTags []string
		if strings.Contains(dataType, "timestamp") || strings.Contains(dataType, "date") {
			colTags = append(colTags, "semantic:temporal")
		}
		if strings.Contains(name, "id") {
			colTags = append(colTags, "semantic:identifier")
		}
		if containsAny(name, "address", "city", "country", "location") {
			colTags = append(colTags, "semantic:geospatial")
		}
		if containsAny(name, "price", "cost", "amount", "value") {
			colTags = append(colTags, "semantic:monetary")
		}
		for domain, keywords := range businessKeywords {
			if containsAny(name, keywords...) {
				colTags = append(colTags, "business:"+domain)
			}
		}
		sort.Strings(colTags)
		tags["column:"+c.TableName+"."+c.ColumnName] = colTags
	}

	return tags
}

func (e *Enricher) detectDataPatterns(meta Metadata) []DataPattern {
	var patterns []DataPattern

	var temporalTables []string
	for _, t := range meta.Tables {
		name := strings.ToLower(t.TableName)
		if containsAny(name, "log", "history", "audit", "event") {
			temporalTables = append(temporalTables, t.TableName)
		}
	}
	if len(temporalTables) > 0 {
		patterns = append(patterns, DataPattern{
			PatternType: "temporal", Description: "Time-series data pattern detected",
			TablesInvolved: temporalTables, Confidence: 0.8,
		})
	}

	var hierarchicalCols []string
	for _, c := range meta.Columns {
		name := strings.ToLower(c.ColumnName)
		if containsAny(name, "parent_id", "parent", "level", "hierarchy") {
			hierarchicalCols = append(hierarchicalCols, c.TableName+"."+c.ColumnName)
		}
	}
	if len(hierarchicalCols) > 0 {
		patterns = append(patterns, DataPattern{
			PatternType: "hierarchical", Description: "Hierarchical data structure detected",
			ColumnsInvolved: hierarchicalCols, Confidence: 0.7,
		})
	}

	refCounts := map[string][]string{}
	for _, r := range meta.Relationships {
		refCounts[r.ToTable] = append(refCounts[r.ToTable], r.FromTable)
	}
	for master, details := range refCounts {
		if len(details) >= 2 {
			for _, detail := range details {
				patterns = append(patterns, DataPattern{
					PatternType: "master_detail",
					Description: "Master-detail relationship: " + master + " -> " + detail,
					TablesInvolved: []string{master, detail}, Confidence: 0.7,
				})
			}
		}
	}

	var categoricalTables []string
	for _, t := range meta.Tables {
		name := strings.ToLower(t.TableName)
		if containsAny(name, "category", "type", "status", "lookup", "ref") {
			categoricalTables = append(categoricalTables, t.TableName)
		}
	}
	if len(categoricalTables) > 0 {
		patterns = append(patterns, DataPattern{
			PatternType: "categorical", Description: "Categorical classification tables detected",
			TablesInvolved: categoricalTables, Confidence: 0.7,
		})
	}

	return patterns
}

func (e *Enricher) inferBusinessRules(meta Metadata) []BusinessRule {
	var rules []BusinessRule

	for _, r := range meta.Relationships {
		rules = append(rules, BusinessRule{
			RuleType:      "referential_integrity",
			Description:   r.FromTable + "." + r.FromColumn + " must reference valid " + r.ToTable + "." + r.ToColumn,
			Confidence:    0.9,
			TablesInvolved: []string{r.FromTable, r.ToTable},
			SQLConstraint: "FOREIGN KEY (" + r.FromColumn + ") REFERENCES " + r.ToTable + "(" + r.ToColumn + ")",
		})
	}

	for _, c := range meta.Columns {
		name := strings.ToLower(c.ColumnName)
		if c.UniquePercentage != nil && *c.UniquePercentage > 0.95 && !c.IsNullable && strings.Contains(name, "id") {
			rules = append(rules, BusinessRule{
				RuleType: "uniqueness", Description: c.TableName + "." + c.ColumnName + " should be unique",
				Confidence: 0.85, TablesInvolved: []string{c.TableName},
				SQLConstraint: "UNIQUE (" + c.ColumnName + ")",
			})
		}
		switch {
		case strings.Contains(name, "email"):
			rules = append(rules, BusinessRule{
				RuleType: "data_validation", Description: c.TableName + "." + c.ColumnName + " should be valid email format",
				Confidence: 0.8, TablesInvolved: []string{c.TableName},
				ValidationRegex: `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`,
			})
		case strings.Contains(name, "phone"):
			rules = append(rules, BusinessRule{
				RuleType: "data_validation", Description: c.TableName + "." + c.ColumnName + " should be valid phone format",
				Confidence: 0.8, TablesInvolved: []string{c.TableName},
				ValidationRegex: `^\+?[\d\s\-\(\)]+$`,
			})
		}
	}

	return rules
}

var domainKeywords = map[string][]string{
	"ecommerce": {"order", "product", "customer", "cart", "payment", "inventory", "category"},
	"hr":        {"employee", "user", "department", "salary", "role", "permission"},
	"finance":   {"transaction", "account", "balance", "invoice", "payment", "ledger"},
	"crm":       {"customer", "contact", "lead", "opportunity", "campaign", "activity"},
}

func (e *Enricher) classifyDomain(meta Metadata) DomainClassification {
	var names []string
	for _, t := range meta.Tables {
		names = append(names, strings.ToLower(t.TableName))
	}
	allNames := strings.Join(names, " ")

	scores := map[string]float64{}
	for domain, keywords := range domainKeywords {
		matched := 0
		for _, kw := range keywords {
			if strings.Contains(allNames, kw) {
				matched++
			}
		}
		scores[domain] = float64(matched) / float64(len(keywords))
	}

	primaryDomain, primaryScore := "unknown", 0.0
	multiCount := 0
	for domain, score := range scores {
		if score > primaryScore {
			primaryDomain, primaryScore = domain, score
		}
		if score > 0.3 {
			multiCount++
		}
	}

	return DomainClassification{
		PrimaryDomain: primaryDomain, Confidence: primaryScore,
		DomainScores: scores, IsMultiDomain: multiCount > 1,
	}
}

func (e *Enricher) calculateConfidenceScores(entities []BusinessEntity, tags map[string][]string, patterns []DataPattern, rules []BusinessRule) map[string]float64 {
	scores := map[string]float64{}

	if len(entities) > 0 {
		var sum float64
		for _, ent := range entities {
			sum += ent.Confidence
		}
		scores["entity_extraction"] = sum / float64(len(entities))
	}

	if len(tags) > 0 {
		total := 0
		for _, t := range tags {
			total += len(t)
		}
		ratio := float64(total) / (float64(len(tags)) * 3)
		if ratio > 1.0 {
			ratio = 1.0
		}
		scores["semantic_tagging"] = ratio
	}

	if len(patterns) > 0 {
		var sum float64
		for _, p := range patterns {
			sum += p.Confidence
		}
		scores["pattern_detection"] = sum / float64(len(patterns))
	}

	if len(rules) > 0 {
		var sum float64
		for _, r := range rules {
			sum += r.Confidence
		}
		scores["business_rules"] = sum / float64(len(rules))
	}

	if len(scores) > 0 {
		var sum float64
		for _, v := range scores {
			sum += v
		}
		scores["overall"] = sum / float64(len(scores))
	}

	return scores
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
