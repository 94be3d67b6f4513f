package memory

import (
	"go.uber.org/zap"

	"github.com/antigravity/cogmem/internal/telemetry"
)

// NewMemoryServiceOptions parameterises NewMemoryService with the tuning
// knobs exposed in config (spec §6.3).
type NewMemoryServiceOptions struct {
	SemanticDedupPrefixLen int
}

// NewMemoryService builds the six typed engines over one Store and wires
// them into a MemoryService. This is the only place the package's
// unexported per-kind Marshaler implementations are referenced, so
// callers outside the package never need to construct a BaseEngine by
// hand (spec C6-C7).
func NewMemoryService(store Store, embedder Embedder, extractor Extractor, summariser Summariser, logger *zap.SugaredLogger, metrics *telemetry.Metrics, opts NewMemoryServiceOptions) *MemoryService {
	factual := NewFactualEngine(&BaseEngine[*FactualMemory]{
		Kind: KindFactual, Table: "factual_memories", Store: store, Embedder: embedder,
		Logger: logger, Marshal: factualMarshaler{}, Metrics: metrics,
	}, NewAssociationStore(store))

	episodic := NewEpisodicEngine(&BaseEngine[*EpisodicMemory]{
		Kind: KindEpisodic, Table: "episodic_memories", Store: store, Embedder: embedder,
		Logger: logger, Marshal: episodicMarshaler{}, Metrics: metrics,
	})

	dedupLen := opts.SemanticDedupPrefixLen
	if dedupLen <= 0 {
		dedupLen = 50
	}
	semantic := NewSemanticEngine(&BaseEngine[*SemanticMemory]{
		Kind: KindSemantic, Table: "semantic_memories", Store: store, Embedder: embedder,
		Logger: logger, Marshal: semanticMarshaler{}, Metrics: metrics,
	}, dedupLen)

	procedural := NewProceduralEngine(&BaseEngine[*ProceduralMemory]{
		Kind: KindProcedural, Table: "procedural_memories", Store: store, Embedder: embedder,
		Logger: logger, Marshal: proceduralMarshaler{}, Metrics: metrics,
	})

	working := NewWorkingEngine(&BaseEngine[*WorkingMemory]{
		Kind: KindWorking, Table: "working_memories", Store: store, Embedder: embedder,
		Logger: logger, Marshal: workingMarshaler{}, Metrics: metrics,
	})

	session := NewSessionEngine(store, embedder, summariser, logger)

	return &MemoryService{
		Factual:    factual,
		Episodic:   episodic,
		Semantic:   semantic,
		Procedural: procedural,
		Working:    working,
		Session:    session,
		Extractor:  extractor,
		Logger:     logger,
	}
}
