package search

import "context"

// RerankResult is one document scored by the reranker.
type RerankResult struct {
	Index int     // position in the input document list
	Score float64 // relevance score, higher is better
}

// Reranker scores query/document pairs with a cross-encoder.
// Reranking is best-effort: the engine falls back to fused order on
// any failure.
type Reranker interface {
	// Rerank scores the documents against the query. The returned
	// results cover every input index.
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)

	// Available reports whether the reranker can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// RerankerBlend controls how the reranker score is mixed with the
// fused score.
type RerankerBlend struct {
	CombinedWeight float64 // weight of the fusion score
	RerankWeight   float64 // weight of the reranker score
}

// DefaultRerankerBlend returns the standard blend favoring the
// cross-encoder.
func DefaultRerankerBlend() RerankerBlend {
	return RerankerBlend{CombinedWeight: 0.3, RerankWeight: 0.7}
}

// NoOpReranker returns inputs unchanged with zero scores. Used when
// reranking is disabled.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

func (NoOpReranker) Rerank(_ context.Context, _ string, documents []string) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{Index: i}
	}
	return results, nil
}

func (NoOpReranker) Available(_ context.Context) bool { return true }

func (NoOpReranker) Close() error { return nil }
