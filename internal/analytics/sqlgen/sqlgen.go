// Package sqlgen implements the NL->SQL pipeline's SQL-generation stage
// (spec §4.5.4, C12): prompt assembly, an LLM call (falling back to the
// LLM router's configured provider, same pattern as
// internal/memory/adapters/llm_extractor.go), tolerant JSON/SQL-block
// parsing, schema validation, and auto-repair.
package sqlgen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/antigravity/cogmem/internal/agent"
	"github.com/antigravity/cogmem/internal/analytics/enrich"
	"github.com/antigravity/cogmem/internal/analytics/match"
)

// Result is the outcome of Generate (spec §4.5.4).
type Result struct {
	SQL                     string   `json:"sql"`
	Explanation             string   `json:"explanation"`
	Confidence              float64  `json:"confidence"`
	ComplexityLevel         string   `json:"complexity_level"`
	EstimatedRows           int      `json:"estimated_rows"`
	Optimizations           []string `json:"optimizations,omitempty"`
	ValidationErrors        []string `json:"validation_errors,omitempty"`
}

var domainLabels = map[string]string{
	"ecommerce": "ecommerce", "finance": "finance", "hr": "human resources",
	"crm": "customer relationship management", "unknown": "general business",
}

// Generator calls the configured LLM to turn a QueryContext + metadata
// matches into a validated SQL statement (spec C12).
type Generator struct {
	Router   *agent.LLMRouter
	Provider string
	Model    string
}

func NewGenerator(router *agent.LLMRouter, provider, model string) *Generator {
	return &Generator{Router: router, Provider: provider, Model: model}
}

// Generate builds the prompt, calls the LLM, parses the result, validates
// it against the known schema, and auto-repairs unknown table references.
func (g *Generator) Generate(ctx context.Context, originalQuery string, qc match.QueryContext, matches []match.MetadataMatch, semantic enrich.SemanticMetadata) (Result, error) {
	domain := detectDomain(semantic)
	language := detectLanguage(originalQuery)
	prompt := buildPrompt(originalQuery, qc, matches, semantic, domain, language)

	raw, err := g.Router.GenerateResponse(ctx, g.Provider, g.Model, originalQuery, prompt, nil)
	if err != nil || strings.TrimSpace(raw) == "" {
		return g.fallback(matches, qc), nil
	}

	result := parseGenerationResponse(raw)
	result = postProcess(result)
	result.ValidationErrors = validateAgainstSchema(result.SQL, semantic)
	if len(result.ValidationErrors) > 0 {
		result.SQL = autoRepair(result.SQL, result.ValidationErrors, semantic)
		result.Confidence *= 0.8
	}
	return result, nil
}

func (g *Generator) fallback(matches []match.MetadataMatch, qc match.QueryContext) Result {
	if len(matches) > 0 {
		return Result{
			SQL:             fmt.Sprintf("SELECT * FROM %s LIMIT 10;", matches[0].EntityName),
			Explanation:     "fallback SQL generated without an LLM call",
			Confidence:      0.3,
			ComplexityLevel: "simple",
		}
	}
	return Result{SQL: "SELECT 1 AS result;", Explanation: "no matching entity found", Confidence: 0.2, ComplexityLevel: "simple"}
}

func detectDomain(semantic enrich.SemanticMetadata) string {
	label, ok := domainLabels[semantic.DomainClassification.PrimaryDomain]
	if !ok {
		return "general business"
	}
	return label
}

// detectLanguage flags a query as Chinese iff >=30% of its characters fall
// in the CJK Unified Ideographs block (spec §4.5.4), else English.
func detectLanguage(query string) string {
	total := 0
	cjk := 0
	for _, r := range query {
		total++
		if r >= 0x4e00 && r <= 0x9fff {
			cjk++
		}
	}
	if total > 0 && float64(cjk)/float64(total) >= 0.3 {
		return "Chinese"
	}
	return "English"
}

func buildPrompt(query string, qc match.QueryContext, matches []match.MetadataMatch, semantic enrich.SemanticMetadata, domain, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a SQL generation assistant for a %s domain. Respond in %s.\n", domain, language)
	b.WriteString("Given the user's query and the schema below, produce a single SQL statement.\n\n")
	fmt.Fprintf(&b, "Query: %s\n", query)
	fmt.Fprintf(&b, "Business intent: %s\n", qc.BusinessIntent)
	if len(qc.Operations) > 0 {
		fmt.Fprintf(&b, "Operations: %s\n", strings.Join(qc.Operations, ", "))
	}

	b.WriteString("\nSchema:\n")
	b.WriteString(formatSchema(matches, semantic))

	b.WriteString("\nRelevant examples:\n")
	b.WriteString(domainExamples(domain))

	b.WriteString("\nBusiness context:\n")
	b.WriteString(businessContext(domain, matches))

	b.WriteString("\nRespond with JSON: {\"sql\": \"...\", \"explanation\": \"...\", \"confidence\": 0.0-1.0, \"complexity_level\": \"simple|medium|complex\", \"estimated_rows\": 0, \"optimizations\": [\"...\"]}\n")
	return b.String()
}

func formatSchema(matches []match.MetadataMatch, semantic enrich.SemanticMetadata) string {
	colsByTable := map[string][]enrich.ColumnMeta{}
	for _, c := range semantic.OriginalMetadata.Columns {
		colsByTable[c.TableName] = append(colsByTable[c.TableName], c)
	}
	tableComments := map[string]string{}
	for _, t := range semantic.OriginalMetadata.Tables {
		tableComments[t.TableName] = t.Comment
	}

	var lines []string
	for _, m := range matches {
		lines = append(lines, "Table: "+m.EntityName)
		if comment := tableComments[m.EntityName]; comment != "" {
			lines = append(lines, "  Description: "+comment)
		}
		cols := colsByTable[m.EntityName]
		if len(cols) > 10 {
			cols = cols[:10]
		}
		for _, c := range cols {
			desc := fmt.Sprintf("  %s (%s)", c.ColumnName, c.DataType)
			if c.Comment != "" {
				desc += " - " + c.Comment
			}
			lines = append(lines, desc)
		}
	}
	return strings.Join(lines, "\n")
}

var domainExampleSQL = map[string][]string{
	"ecommerce": {
		"SELECT c.name, SUM(o.total_amount) AS total FROM orders o JOIN customers c ON o.customer_id = c.id GROUP BY c.name ORDER BY total DESC LIMIT 10;",
		"SELECT p.name, COUNT(*) AS order_count FROM order_items oi JOIN products p ON oi.product_id = p.id GROUP BY p.name ORDER BY order_count DESC LIMIT 10;",
		"SELECT status, COUNT(*) FROM orders GROUP BY status;",
	},
	"finance": {
		"SELECT account_id, SUM(amount) AS balance FROM transactions GROUP BY account_id ORDER BY balance DESC LIMIT 10;",
		"SELECT DATE_TRUNC('month', posted_at) AS month, SUM(amount) FROM transactions GROUP BY month ORDER BY month;",
		"SELECT * FROM invoices WHERE status = 'overdue' LIMIT 100;",
	},
}

func domainExamples(domain string) string {
	examples := domainExampleSQL[domain]
	if len(examples) == 0 {
		return "(no domain examples available)"
	}
	if len(examples) > 3 {
		examples = examples[:3]
	}
	return strings.Join(examples, "\n")
}

func businessContext(domain string, matches []match.MetadataMatch) string {
	var lines []string
	lines = append(lines, "Domain: "+domain)
	if len(matches) > 1 {
		lines = append(lines, "Relationships:")
		for _, m := range matches {
			for _, join := range m.SuggestedJoins {
				lines = append(lines, "- "+join)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func parseGenerationResponse(raw string) Result {
	span := extractJSONObject(raw)
	if span != "" {
		var parsed struct {
			SQL             string   `json:"sql"`
			Explanation     string   `json:"explanation"`
			Confidence      float64  `json:"confidence"`
			ComplexityLevel string   `json:"complexity_level"`
			EstimatedRows   int      `json:"estimated_rows"`
			Optimizations   []string `json:"optimizations"`
		}
		if err := json.Unmarshal([]byte(span), &parsed); err == nil && parsed.SQL != "" {
			return Result{
				SQL: parsed.SQL, Explanation: parsed.Explanation,
				Confidence: parsed.Confidence, ComplexityLevel: parsed.ComplexityLevel,
				EstimatedRows: parsed.EstimatedRows, Optimizations: parsed.Optimizations,
			}
		}
	}

	sql := extractSQLFromText(raw)
	return Result{SQL: sql, Explanation: "extracted from free-form LLM response", Confidence: 0.5, ComplexityLevel: "medium"}
}

var sqlBlockPattern = regexp.MustCompile(`(?is)` + "```sql\\s*(.*?)\\s*```")
var selectPattern = regexp.MustCompile(`(?is)(SELECT\s+.*?;?)`)

func extractSQLFromText(text string) string {
	if m := sqlBlockPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := selectPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

func extractJSONObject(raw string) string {
	s := raw
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

func postProcess(r Result) Result {
	sql := strings.Join(strings.Fields(r.SQL), " ")
	if !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	upper := strings.ToUpper(sql)
	if !strings.Contains(upper, "LIMIT") && !strings.Contains(upper, "TOP ") {
		sql = strings.TrimSuffix(sql, ";") + " LIMIT 1000;"
	}
	r.SQL = sql
	return r
}

var tableRefPattern = regexp.MustCompile(`(?i)FROM\s+(\w+)|JOIN\s+(\w+)`)

func validateAgainstSchema(sql string, semantic enrich.SemanticMetadata) []string {
	known := map[string]bool{}
	for _, t := range semantic.OriginalMetadata.Tables {
		known[t.TableName] = true
	}

	var errs []string
	seen := map[string]bool{}
	for _, m := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name == "" || known[name] || seen[name] {
			continue
		}
		seen[name] = true
		errs = append(errs, fmt.Sprintf("table %q does not exist", name))
	}
	return errs
}

var unknownTablePattern = regexp.MustCompile(`table "(\w+)" does not exist`)

func autoRepair(sql string, errs []string, semantic enrich.SemanticMetadata) string {
	var known []string
	for _, t := range semantic.OriginalMetadata.Tables {
		known = append(known, t.TableName)
	}

	for _, e := range errs {
		m := unknownTablePattern.FindStringSubmatch(e)
		if m == nil {
			continue
		}
		wrong := m[1]
		best := mostSimilarTable(wrong, known)
		if best != "" {
			sql = strings.ReplaceAll(sql, wrong, best)
		}
	}
	return sql
}

func mostSimilarTable(wrong string, known []string) string {
	lower := strings.ToLower(wrong)
	for _, t := range known {
		tl := strings.ToLower(t)
		if strings.Contains(tl, lower) || strings.Contains(lower, tl) {
			return t
		}
	}
	return ""
}
