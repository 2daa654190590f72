// Package search provides hybrid retrieval combining BM25 and vector
// search. Results are fused with min-max normalized linear
// interpolation and optionally refined by a cross-encoder reranker.
package search

import (
	"context"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/vectorstore"
)

// SortOrder controls result ordering.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortDateDesc  SortOrder = "date_desc"
	SortDateAsc   SortOrder = "date_asc"
)

// Valid reports whether the sort order is one of the known values.
func (s SortOrder) Valid() bool {
	switch s {
	case SortRelevance, SortDateDesc, SortDateAsc, "":
		return true
	}
	return false
}

// SearchOptions configures a single search request.
type SearchOptions struct {
	// TopK is the maximum number of results to return (default from config).
	TopK int

	// Alpha overrides the lexical/vector interpolation weight.
	// 1.0 is pure lexical, 0.0 pure vector. Nil uses the config default.
	Alpha *float64

	// SortBy selects result ordering (default: relevance).
	SortBy SortOrder

	// UseReranking toggles the cross-encoder for this request.
	// Nil means true. Only relevance sorts rerank either way.
	UseReranking *bool

	// Filters restricts results to a corpus subset.
	Filters docstore.Filters
}

// SearchResult is one ranked document with its component scores.
type SearchResult struct {
	Document *docstore.Document `json:"document"`

	LexicalScore  float64 `json:"lexical_score"`
	VectorScore   float64 `json:"vector_score"`
	CombinedScore float64 `json:"combined_score"`
	RerankScore   float64 `json:"rerank_score,omitempty"`

	// FinalScore is the ranking score: the combined score, or the
	// reranker blend when reranking ran.
	FinalScore float64 `json:"final_score"`

	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// EngineConfig holds engine tuning parameters.
type EngineConfig struct {
	// Alpha is the default lexical weight in [0,1].
	Alpha float64

	// TopK is the default result count.
	TopK int

	// CandidateMultiplier scales how many candidates each leg
	// retrieves before fusion (candidates = TopK * multiplier).
	CandidateMultiplier int

	// EmbedBatchSize is the batch size for document embedding during
	// indexing.
	EmbedBatchSize int
}

// DefaultEngineConfig returns the default engine tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Alpha:               0.5,
		TopK:                10,
		CandidateMultiplier: 3,
		EmbedBatchSize:      32,
	}
}

// VectorIndex is the vector retrieval surface the engine depends on.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*vectorstore.VectorHit, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
}

// EngineStats summarizes index state for the statistics endpoint.
type EngineStats struct {
	DocumentCount   int                         `json:"document_count"`
	VectorCount     int                         `json:"vector_count"`
	CountsBySource  map[docstore.SourceType]int `json:"counts_by_source"`
	EmbeddingModel  string                      `json:"embedding_model"`
	RerankerEnabled bool                        `json:"reranker_enabled"`
}
