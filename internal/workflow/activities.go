// Package workflow provides the Temporal activities backing
// DataSourcingWorkflow: each NL->SQL sourcing stage (C10 discover, C10
// enrich) runs as its own activity, retried and timed out independently by
// the Temporal worker (spec §4.B: "each pipeline stage... as a Temporal
// activity").
package workflow

import (
	"context"
	"time"

	"github.com/antigravity/cogmem/internal/analytics/enrich"
)

// Activities holds the dependencies the sourcing activities call into.
type Activities struct {
	Discoverer *enrich.Discoverer
	Enricher   *enrich.Enricher
}

func NewActivities(discoverer *enrich.Discoverer, enricher *enrich.Enricher) *Activities {
	return &Activities{Discoverer: discoverer, Enricher: enricher}
}

// DiscoverResult is DiscoverMetadataActivity's typed outcome. Temporal's
// default data converter round-trips this through JSON, so the payload is
// kept as concrete fields rather than a map[string]any the caller would
// have to re-decode.
type DiscoverResult struct {
	Success           bool            `json:"success"`
	Metadata          enrich.Metadata `json:"metadata"`
	TablesDiscovered  int             `json:"tables_discovered"`
	ColumnsDiscovered int             `json:"columns_discovered"`
	Error             string          `json:"error,omitempty"`
	Duration          time.Duration   `json:"duration"`
}

// EnrichResult is EnrichMetadataActivity's typed outcome.
type EnrichResult struct {
	Success  bool                   `json:"success"`
	Semantic enrich.SemanticMetadata `json:"semantic"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// DiscoverMetadataActivity runs the catalog-introspection stage.
func (a *Activities) DiscoverMetadataActivity(ctx context.Context, schema string) (*DiscoverResult, error) {
	start := time.Now()

	meta, err := a.Discoverer.Discover(ctx, schema)
	if err != nil {
		return &DiscoverResult{Success: false, Error: err.Error(), Duration: time.Since(start)}, nil
	}

	return &DiscoverResult{
		Success:           true,
		Metadata:          meta,
		TablesDiscovered:  len(meta.Tables),
		ColumnsDiscovered: len(meta.Columns),
		Duration:          time.Since(start),
	}, nil
}

// EnrichMetadataActivity runs the semantic-enrichment stage over metadata
// produced by DiscoverMetadataActivity.
func (a *Activities) EnrichMetadataActivity(ctx context.Context, meta enrich.Metadata) (*EnrichResult, error) {
	start := time.Now()

	semantic := a.Enricher.Enrich(meta)

	return &EnrichResult{
		Success:  true,
		Semantic: semantic,
		Duration: time.Since(start),
	}, nil
}
