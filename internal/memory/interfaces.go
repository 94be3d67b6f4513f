package memory

import "context"

// Embedder is the text<->vector adapter (spec C1, §6.1). D is fixed per
// deployment; engines never assume a dimensionality or a particular
// distance function.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Similarity(ctx context.Context, a, b []float32) (float64, error)
	Dimension() int
}

// ExtractResult is the outcome of a schema-driven extraction call.
type ExtractResult struct {
	Success    bool
	Data       map[string]any
	Confidence float64
	Billing    map[string]any
}

// Entity is one named entity recognised in free text.
type Entity struct {
	Text  string
	Label string // e.g. PERSON, LOCATION, ORG
	Score float64
}

// SentimentResult is the outcome of a sentiment analysis call.
type SentimentResult struct {
	Label string // positive|negative|neutral
	Score float64
}

// Extractor is the schema-driven structured-extraction adapter (spec C2, §6.1).
type Extractor interface {
	Extract(ctx context.Context, text string, schema map[string]any) (ExtractResult, error)
	ExtractEntities(ctx context.Context, text string, threshold float64) ([]Entity, error)
	AnalyzeSentiment(ctx context.Context, text string, granularity string) (SentimentResult, error)
}

// SummarizeOptions parameterises a Summariser call.
type SummarizeOptions struct {
	Style       string // e.g. "narrative"
	Length      string // brief|medium|detailed
	CustomFocus []string
}

// SummaryResult is the outcome of a Summariser.Summarize call.
type SummaryResult struct {
	Success          bool
	Summary          string
	WordCount        int
	CharacterCount   int
	QualityScore     float64
	CompressionRatio float64
	Billing          map[string]any
}

// Summariser is the style-/length-parameterised text-compression adapter
// (spec C3, §6.1).
type Summariser interface {
	Summarize(ctx context.Context, text string, opts SummarizeOptions) (SummaryResult, error)
	ExtractKeyPoints(ctx context.Context, text string, maxPoints int) ([]string, error)
}

// Row is an opaque relational row: the core treats the vector column as a
// serialised blob on the way in and a reconstructable sequence on the way
// out (spec §6.1); everything else passes through as plain values.
type Row map[string]any

// StoreFilter narrows a Select call (spec §4.1 step 2: "with
// optional row-level filters").
type StoreFilter struct {
	ImportanceFloor *float64
	ConfidenceFloor *float64
	CreatedAfter    *string
	CreatedBefore   *string
	Extra           map[string]any // equality filters on arbitrary columns, e.g. by_subject
}

// Store is the row CRUD + small relational query adapter (spec C4, §6.1).
// Table names are the six memory tables plus session_messages/session_summaries;
// the core never embeds SQL dialect assumptions here beyond what a concrete
// adapter (e.g. Postgres) chooses to implement.
type Store interface {
	Upsert(ctx context.Context, table string, row Row, conflictCols []string) (string, error)
	Get(ctx context.Context, table, id string) (Row, error)
	// Select loads full candidate rows for userID with row-level filters
	// applied (importance/confidence floor, created-after/before). Vector
	// similarity ranking happens engine-side via Embedder (spec §4.1):
	// a vector index, if any, is a Store-internal optimisation, never an
	// engine assumption.
	Select(ctx context.Context, table, userID string, filter StoreFilter) ([]Row, error)
	// SelectByColumn loads every row where column = value, unordered by
	// user ownership — used where the natural grouping key isn't user_id
	// (session messages/summaries grouped by session_id, association edges
	// grouped by from_id).
	SelectByColumn(ctx context.Context, table, column, value string) ([]Row, error)
	Update(ctx context.Context, table, id string, changes Row) error
	Delete(ctx context.Context, table, id string) error
	Count(ctx context.Context, table, userID string) (int, error)
	BulkUpdate(ctx context.Context, table string, ids []string, changes Row) error
	BulkDelete(ctx context.Context, table, whereExpiredBefore string, args ...any) (int, error)
	TrackAccess(ctx context.Context, kind, memoryID, userID string) error
}
