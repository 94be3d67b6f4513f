// Package analytics orchestrates the NL->SQL pipeline end to end (spec
// §4.5, C10-C13): data sourcing (discover -> enrich -> index) and data
// query (match -> generate -> execute), grounded on
// data_analytics_tools.py's data_sourcing/data_query orchestration
// functions.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antigravity/cogmem/internal/agent"
	"github.com/antigravity/cogmem/internal/analytics/enrich"
	"github.com/antigravity/cogmem/internal/analytics/match"
	"github.com/antigravity/cogmem/internal/analytics/sqlexec"
	"github.com/antigravity/cogmem/internal/analytics/sqlgen"
	"github.com/antigravity/cogmem/internal/memory"
	"github.com/antigravity/cogmem/internal/telemetry"
)

// SourcingResult is the outcome of DataSourcing (spec: data_sourcing's
// workflow_results shape, generalised).
type SourcingResult struct {
	TablesDiscovered       int                  `json:"tables_discovered"`
	ColumnsDiscovered      int                  `json:"columns_discovered"`
	RelationshipsDiscovered int                 `json:"relationships_discovered"`
	BusinessEntities       int                  `json:"business_entities_identified"`
	DataPatterns           int                  `json:"data_patterns_found"`
	BusinessRules          int                  `json:"business_rules_inferred"`
	DomainClassification   enrich.DomainClassification `json:"domain_classification"`
	Semantic               enrich.SemanticMetadata     `json:"-"`
	ElapsedMS              int64                `json:"elapsed_ms"`
}

// QueryResult is the outcome of DataQuery (spec: data_query's return shape).
type QueryResult struct {
	QueryContext      match.QueryContext    `json:"query_context"`
	MetadataMatches   []match.MetadataMatch `json:"metadata_matches"`
	QueryPlan         match.QueryPlan       `json:"query_plan"`
	GeneratedSQL      sqlgen.Result         `json:"generated_sql"`
	Execution         sqlexec.Result        `json:"execution"`
	FallbackAttempts  []sqlexec.Attempt     `json:"fallback_attempts"`
	ElapsedMS         int64                 `json:"elapsed_ms"`
}

// Service wires the four pipeline stages together and caches the most
// recently produced semantic metadata for DataQuery to match against —
// a deliberate simplification of the Python original's vector-database
// round trip (embedding_storage.store/retrieve), which itself notes the
// retrieval side is a placeholder ("simplified... mock semantic metadata
// structure") pending a real vector index.
type Service struct {
	discoverer *enrich.Discoverer
	enricher   *enrich.Enricher
	matcher    *match.Matcher
	generator  *sqlgen.Generator
	executor   *sqlexec.Executor
	logger     *zap.SugaredLogger

	mu       sync.RWMutex
	semantic *enrich.SemanticMetadata
}

// NewService builds a Service from a database connection used both for
// catalog discovery and SQL execution, an LLM router for SQL generation,
// an Embedder for query matching, and execution bounds.
func NewService(db *sql.DB, dialect string, router *agent.LLMRouter, provider, model string, embedder memory.Embedder, maxExecTime time.Duration, maxRows int, logger *zap.SugaredLogger, metrics *telemetry.Metrics) *Service {
	executor := sqlexec.NewExecutor(db, dialect, maxExecTime, maxRows)
	executor.Metrics = metrics
	return &Service{
		discoverer: enrich.NewDiscoverer(db),
		enricher:   enrich.NewEnricher(),
		matcher:    match.NewMatcher(embedder),
		generator:  sqlgen.NewGenerator(router, provider, model),
		executor:   executor,
		logger:     logger,
	}
}

// DataSourcing runs metadata discovery then semantic enrichment, caching
// the result for subsequent DataQuery calls (spec §4.5.1-4.5.2, grounded
// on data_sourcing's steps 1-2; step 3's embedding/vector storage is
// folded into the in-memory cache above rather than a separate vector
// collection, since this service already has its own pgvector-backed
// memory store and does not need a second one).
func (s *Service) DataSourcing(ctx context.Context, schema string) (SourcingResult, error) {
	start := time.Now()

	meta, err := s.discoverer.Discover(ctx, schema)
	if err != nil {
		return SourcingResult{}, fmt.Errorf("metadata discovery: %w", err)
	}
	s.logger.Infow("metadata discovery completed", "tables", len(meta.Tables), "columns", len(meta.Columns))

	semantic := s.enricher.Enrich(meta)
	s.logger.Infow("semantic enrichment completed", "entities", len(semantic.BusinessEntities), "domain", semantic.DomainClassification.PrimaryDomain)

	s.mu.Lock()
	s.semantic = &semantic
	s.mu.Unlock()

	return SourcingResult{
		TablesDiscovered:        len(meta.Tables),
		ColumnsDiscovered:       len(meta.Columns),
		RelationshipsDiscovered: len(meta.Relationships),
		BusinessEntities:        len(semantic.BusinessEntities),
		DataPatterns:            len(semantic.DataPatterns),
		BusinessRules:           len(semantic.BusinessRules),
		DomainClassification:    semantic.DomainClassification,
		Semantic:                semantic,
		ElapsedMS:               time.Since(start).Milliseconds(),
	}, nil
}

// DataQuery runs query matching, SQL generation, and bounded execution
// against the most recently sourced schema (spec §4.5.3-4.5.5, grounded
// on data_query's steps 4-6).
func (s *Service) DataQuery(ctx context.Context, naturalQuery string) (QueryResult, error) {
	start := time.Now()

	s.mu.RLock()
	semantic := s.semantic
	s.mu.RUnlock()
	if semantic == nil {
		return QueryResult{}, fmt.Errorf("no schema has been sourced yet: call DataSourcing first")
	}

	qc, matches, plan, err := s.matcher.Match(ctx, naturalQuery, *semantic)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query matching: %w", err)
	}
	s.logger.Infow("query matched", "intent", qc.BusinessIntent, "matches", len(matches))

	genResult, err := s.generator.Generate(ctx, naturalQuery, qc, matches, *semantic)
	if err != nil {
		return QueryResult{}, fmt.Errorf("sql generation: %w", err)
	}
	s.logger.Infow("sql generated", "confidence", genResult.Confidence, "sql", genResult.SQL)

	execResult, attempts := s.executor.Execute(ctx, genResult, naturalQuery, plan)
	if !execResult.Success {
		s.logger.Warnw("sql execution failed after fallback ladder", "attempts", len(attempts), "error", execResult.Error)
	}

	return QueryResult{
		QueryContext:     qc,
		MetadataMatches:  matches,
		QueryPlan:        plan,
		GeneratedSQL:     genResult,
		Execution:        execResult,
		FallbackAttempts: attempts,
		ElapsedMS:        time.Since(start).Milliseconds(),
	}, nil
}

// Insights exposes the executor's accumulated feedback-buffer statistics
// (spec §4.5.5 insights()).
func (s *Service) Insights() sqlexec.Insights {
	return s.executor.Insights()
}
