// Package sqlexec implements the NL->SQL pipeline's bounded execution
// stage (spec §4.5.5-4.5.6, C13): primary execution under time/row bounds,
// a nine-step fallback ladder on failure, EXPLAIN dialect dispatch, and a
// bounded feedback ring buffer feeding insights().
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/antigravity/cogmem/internal/analytics/match"
	"github.com/antigravity/cogmem/internal/analytics/sqlgen"
	"github.com/antigravity/cogmem/internal/telemetry"
)

// Result is the outcome of a (possibly fallback-resolved) execution (spec §4.5.5).
type Result struct {
	Success         bool             `json:"success"`
	Rows            []map[string]any `json:"rows,omitempty"`
	RowCount        int              `json:"row_count"`
	Truncated       bool             `json:"truncated"`
	Warnings        []string         `json:"warnings,omitempty"`
	ExecutionTimeMS int64            `json:"execution_time_ms"`
	Error           string           `json:"error,omitempty"`
	FinalSQL        string           `json:"final_sql"`
}

// Attempt records one fallback-ladder step (spec §4.5.5).
type Attempt struct {
	AttemptNumber   int    `json:"attempt_number"`
	Strategy        string `json:"strategy"`
	SQLAttempted    string `json:"sql_attempted"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// FeedbackRecord is one entry in the bounded ring buffer (spec §4.5.5).
type FeedbackRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	OriginalQuery   string    `json:"original_query"`
	GeneratedSQL    string    `json:"generated_sql"`
	LLMConfidence   float64   `json:"llm_confidence"`
	Success         bool      `json:"success"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	RowCount        int       `json:"row_count"`
	Error           string    `json:"error,omitempty"`
	FeedbackType    string    `json:"feedback_type"`
}

// Insights is the output of Insights() (spec §4.5.5).
type Insights struct {
	Total                      int            `json:"total"`
	SuccessRate                float64        `json:"success_rate"`
	TopFailures                []FailurePattern `json:"top_failures"`
	ConfidenceSuccessCorrelation float64      `json:"confidence_success_correlation"`
	AvgExecutionTimeMS         float64        `json:"avg_execution_time_ms"`
	RecentTrend                string         `json:"recent_trend"` // improving|stable|declining|insufficient_data
}

// FailurePattern is one entry of the top-5 failure breakdown.
type FailurePattern struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

const feedbackCapacity = 1000

// Executor runs generated SQL against a live database connection with
// bounded time/rows and a fallback ladder on failure (spec C13).
type Executor struct {
	DB                *sql.DB
	Dialect           string // postgres|mysql|other
	MaxExecutionTime  time.Duration
	MaxRows           int
	Metrics           *telemetry.Metrics // optional; nil is a no-op

	mu       sync.Mutex
	feedback []FeedbackRecord
}

func NewExecutor(db *sql.DB, dialect string, maxExecutionTime time.Duration, maxRows int) *Executor {
	return &Executor{DB: db, Dialect: dialect, MaxExecutionTime: maxExecutionTime, MaxRows: maxRows}
}

// Execute runs the generated SQL, falling through the nine-step ladder on
// failure (spec §4.5.5-4.5.6). The primary run is not part of the returned
// Attempt slice (it is nil when the primary run succeeds); fallback attempts
// are numbered consecutively from 1, and steps skipped for lack of a primary
// or alternative table take no number, so there are at most nine.
func (e *Executor) Execute(ctx context.Context, gen sqlgen.Result, originalQuery string, qp match.QueryPlan) (Result, []Attempt) {
	start := time.Now()
	result, err := e.runBounded(ctx, gen.SQL, e.MaxExecutionTime)
	elapsed := time.Since(start).Milliseconds()
	e.Metrics.RecordExecutorAttempt(ctx, "primary", err == nil, float64(elapsed))

	if err == nil {
		result.ExecutionTimeMS = elapsed
		result.FinalSQL = gen.SQL
		e.recordFeedback(originalQuery, gen.SQL, gen.Confidence, true, elapsed, result.RowCount, "")
		return result, nil
	}

	attempts, finalResult := e.runFallbackLadder(ctx, gen.SQL, err.Error(), qp)
	success := finalResult.Success
	e.recordFeedback(originalQuery, finalResult.FinalSQL, gen.Confidence, success, finalResult.ExecutionTimeMS, finalResult.RowCount, finalResult.Error)
	return finalResult, attempts
}

func (e *Executor) runBounded(ctx context.Context, query string, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := e.DB.QueryContext(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	return e.collectRows(rows)
}

func (e *Executor) collectRows(rows *sql.Rows) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	var out []map[string]any
	var warnings []string
	truncated := false
	for rows.Next() {
		if len(out) >= e.MaxRows {
			truncated = true
			warnings = append(warnings, fmt.Sprintf("result truncated to %d rows", e.MaxRows))
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := map[string]any{}
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return Result{Success: true, Rows: out, RowCount: len(out), Truncated: truncated, Warnings: warnings}, nil
}

// fallback step names, spec §4.5.5 order 1-9.
const (
	stepExtendedTimeout = "extended_timeout"
	stepAddLimit        = "add_limit"
	stepRetry           = "retry"
	stepSimplifyQuery   = "simplify_query"
	stepRemoveJoins     = "remove_joins"
	stepColumnFallback  = "column_fallback"
	stepTableFallback   = "table_fallback"
	stepSyntaxCorrect   = "syntax_correction"
	stepBasicSelect     = "basic_select"
)

func (e *Executor) runFallbackLadder(ctx context.Context, originalSQL, originalErr string, qp match.QueryPlan) ([]Attempt, Result) {
	var attempts []Attempt
	n := 0
	record := func(strategy, sqlText string, res Result, err error, elapsed int64) bool {
		n++
		a := Attempt{AttemptNumber: n, Strategy: strategy, SQLAttempted: sqlText, ExecutionTimeMS: elapsed}
		if err != nil {
			a.Error = err.Error()
		} else {
			a.Success = true
		}
		attempts = append(attempts, a)
		return err == nil
	}

	try := func(strategy, sqlText string, timeout time.Duration) (Result, bool) {
		s := time.Now()
		res, err := e.runBounded(ctx, sqlText, timeout)
		elapsed := time.Since(s).Milliseconds()
		ok := record(strategy, sqlText, res, err, elapsed)
		e.Metrics.RecordExecutorAttempt(ctx, strategy, ok, float64(elapsed))
		if ok {
			res.ExecutionTimeMS = elapsed
			res.FinalSQL = sqlText
			return res, true
		}
		return Result{}, false
	}

	if res, ok := try(stepExtendedTimeout, originalSQL, 2*e.MaxExecutionTime); ok {
		return attempts, res
	}

	limited := addLimitClause(originalSQL, e.MaxRows)
	if res, ok := try(stepAddLimit, limited, e.MaxExecutionTime); ok {
		return attempts, res
	}

	if res, ok := try(stepRetry, originalSQL, e.MaxExecutionTime); ok {
		return attempts, res
	}

	simplified := simplifyQuery(originalSQL)
	if res, ok := try(stepSimplifyQuery, simplified, e.MaxExecutionTime); ok {
		return attempts, res
	}

	primary := primaryTable(qp)
	joinless := removeComplexJoins(originalSQL, primary)
	if joinless != "" {
		if res, ok := try(stepRemoveJoins, joinless, e.MaxExecutionTime); ok {
			return attempts, res
		}
	}

	if primary != "" {
		colFallback := fmt.Sprintf("SELECT * FROM %s LIMIT %d;", primary, min(5, e.MaxRows))
		if res, ok := try(stepColumnFallback, colFallback, e.MaxExecutionTime); ok {
			return attempts, res
		}
	}

	if alt := alternativeTable(qp, primary); alt != "" {
		tableFallback := fmt.Sprintf("SELECT * FROM %s LIMIT 100;", alt)
		if res, ok := try(stepTableFallback, tableFallback, e.MaxExecutionTime); ok {
			return attempts, res
		}
	}

	corrected := correctSyntax(originalSQL, originalErr)
	if res, ok := try(stepSyntaxCorrect, corrected, e.MaxExecutionTime); ok {
		return attempts, res
	}

	basic := basicSelect(primary)
	res, ok := try(stepBasicSelect, basic, e.MaxExecutionTime)
	if ok {
		return attempts, res
	}

	return attempts, Result{Success: false, Error: "all fallback strategies exhausted", FinalSQL: basic}
}

func primaryTable(qp match.QueryPlan) string {
	if len(qp.PrimaryTables) == 0 {
		return ""
	}
	return qp.PrimaryTables[0]
}

func alternativeTable(qp match.QueryPlan, exclude string) string {
	for _, t := range qp.PrimaryTables {
		if t != exclude {
			return t
		}
	}
	return ""
}

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

func addLimitClause(sqlText string, maxRows int) string {
	if limitPattern.MatchString(sqlText) {
		return sqlText
	}
	n := 1000
	if maxRows < n {
		n = maxRows
	}
	return strings.TrimSuffix(strings.TrimSpace(sqlText), ";") + fmt.Sprintf(" LIMIT %d;", n)
}

var (
	subqueryPattern  = regexp.MustCompile(`(?is)\(\s*SELECT\s.*?\)`)
	caseWhenPattern  = regexp.MustCompile(`(?is)CASE\s+WHEN.*?END`)
	coalescePattern  = regexp.MustCompile(`(?i)(COALESCE|NULLIF)\([^)]*\)`)
	groupByPattern   = regexp.MustCompile(`(?is)\bGROUP BY\b.*?(?:\bORDER BY\b|\bLIMIT\b|;|$)`)
	havingPattern    = regexp.MustCompile(`(?is)\bHAVING\b.*?(?:\bORDER BY\b|\bLIMIT\b|;|$)`)
)

// simplifyQuery removes subqueries, CASE WHEN, COALESCE/NULLIF, GROUP BY,
// and HAVING (spec §4.5.5 step 4, grounded on sql_executor.py's
// _simplify_query).
func simplifyQuery(sqlText string) string {
	s := subqueryPattern.ReplaceAllString(sqlText, "1")
	s = caseWhenPattern.ReplaceAllString(s, "NULL")
	s = coalescePattern.ReplaceAllString(s, "NULL")
	s = havingPattern.ReplaceAllString(s, "")
	s = groupByPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

var fromJoinPattern = regexp.MustCompile(`(?i)\bFROM\s+(\w+)`)

// removeComplexJoins keeps only the primary table (spec §4.5.5 step 5): when
// sqlText has a FROM clause it returns `SELECT * FROM <primary> LIMIT 100;`.
// The original select list and WHERE conditions are not carried over, not
// even those that refer only to the primary table.
func removeComplexJoins(sqlText, primary string) string {
	if primary == "" {
		return ""
	}
	m := fromJoinPattern.FindString(sqlText)
	if m == "" {
		return ""
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT 100;", primary)
}

var withWindowPattern = regexp.MustCompile(`(?is)\bWITH\b.*?\bAS\b\s*\([^)]*\)|\bOVER\s*\([^)]*\)`)
var qualifiedColumnPattern = regexp.MustCompile(`\b\w+\.\w+\b`)

// correctSyntax removes WITH/window clauses and, when the original error
// indicates a missing column, replaces qualified column references with
// `*` (spec §4.5.5 step 8, grounded on sql_executor.py's
// _correct_syntax_errors).
func correctSyntax(sqlText, errText string) string {
	s := withWindowPattern.ReplaceAllString(sqlText, "")
	if strings.Contains(strings.ToLower(errText), "does not exist") || strings.Contains(strings.ToLower(errText), "unknown column") {
		s = qualifiedColumnPattern.ReplaceAllString(s, "*")
	}
	return strings.Join(strings.Fields(s), " ")
}

func basicSelect(primary string) string {
	if primary == "" {
		return "SELECT 1 AS test_query;"
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT 10;", primary)
}

// Explain runs a dialect-dispatched EXPLAIN (spec §4.5.5).
func (e *Executor) Explain(ctx context.Context, sqlText string) (map[string]any, error) {
	var explainSQL string
	switch e.Dialect {
	case "postgres":
		explainSQL = "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) " + sqlText
	case "mysql":
		explainSQL = "EXPLAIN FORMAT=JSON " + sqlText
	default:
		explainSQL = "EXPLAIN " + sqlText
	}

	rows, err := e.DB.QueryContext(ctx, explainSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, err := e.collectRows(rows)
	if err != nil {
		return nil, err
	}
	return map[string]any{"dialect": e.Dialect, "plan": result.Rows}, nil
}

func (e *Executor) recordFeedback(originalQuery, generatedSQL string, confidence float64, success bool, execMS int64, rowCount int, errText string) {
	feedbackType := "execution_success"
	if !success {
		feedbackType = "execution_failure"
	}
	rec := FeedbackRecord{
		Timestamp: time.Now(), OriginalQuery: originalQuery, GeneratedSQL: generatedSQL,
		LLMConfidence: confidence, Success: success, ExecutionTimeMS: execMS,
		RowCount: rowCount, Error: errText, FeedbackType: feedbackType,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.feedback = append(e.feedback, rec)
	if len(e.feedback) > feedbackCapacity {
		e.feedback = e.feedback[len(e.feedback)-feedbackCapacity:]
	}
}

// Insights computes aggregate statistics over the feedback buffer (spec §4.5.5).
func (e *Executor) Insights() Insights {
	e.mu.Lock()
	records := make([]FeedbackRecord, len(e.feedback))
	copy(records, e.feedback)
	e.mu.Unlock()

	if len(records) == 0 {
		return Insights{RecentTrend: "insufficient_data"}
	}

	var successCount int
	var totalTime int64
	var successConfSum, failConfSum float64
	var successConfN, failConfN int
	failureCounts := map[string]int{}

	for _, r := range records {
		if r.Success {
			successCount++
			successConfSum += r.LLMConfidence
			successConfN++
		} else {
			failConfSum += r.LLMConfidence
			failConfN++
			if r.Error != "" {
				failureCounts[r.Error]++
			}
		}
		totalTime += r.ExecutionTimeMS
	}

	successRate := float64(successCount) / float64(len(records))
	avgTime := float64(totalTime) / float64(len(records))

	var correlation float64
	if successConfN > 0 && failConfN > 0 {
		correlation = (successConfSum / float64(successConfN)) - (failConfSum / float64(failConfN))
	}

	topFailures := topFailurePatterns(failureCounts, 5)
	trend := recentTrend(records)

	return Insights{
		Total: len(records), SuccessRate: successRate, TopFailures: topFailures,
		ConfidenceSuccessCorrelation: correlation, AvgExecutionTimeMS: avgTime, RecentTrend: trend,
	}
}

func topFailurePatterns(counts map[string]int, limit int) []FailurePattern {
	var patterns []FailurePattern
	for err, count := range counts {
		patterns = append(patterns, FailurePattern{Error: err, Count: count})
	}
	// simple selection sort: failure counts are small (<=1000 records)
	for i := 0; i < len(patterns); i++ {
		max := i
		for j := i + 1; j < len(patterns); j++ {
			if patterns[j].Count > patterns[max].Count {
				max = j
			}
		}
		patterns[i], patterns[max] = patterns[max], patterns[i]
	}
	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}

// recentTrend compares the last 10 executions' success rate to the
// previous 10 (spec §4.5.5, grounded on sql_executor.py's
// _calculate_recent_trend).
func recentTrend(records []FeedbackRecord) string {
	if len(records) < 10 {
		return "insufficient_data"
	}
	last10 := records[len(records)-10:]
	lastRate := successRateOf(last10)

	if len(records) < 20 {
		return "insufficient_data"
	}
	prev10 := records[len(records)-20 : len(records)-10]
	prevRate := successRateOf(prev10)

	diff := lastRate - prevRate
	switch {
	case diff > 0.1:
		return "improving"
	case diff < -0.1:
		return "declining"
	default:
		return "stable"
	}
}

func successRateOf(records []FeedbackRecord) float64 {
	n := 0
	for _, r := range records {
		if r.Success {
			n++
		}
	}
	return float64(n) / float64(len(records))
}
