// Package vectorstore provides approximate nearest neighbor search
// over document embeddings using an HNSW graph.
package vectorstore

import (
	"context"
	"fmt"
)

// VectorHit is one nearest-neighbor match.
type VectorHit struct {
	// DocID is the document the vector belongs to.
	DocID string

	// Distance is the raw metric distance to the query.
	Distance float32

	// Score is the similarity score in [0,1] after the score transform.
	// Scores leave the store already usable by fusion; any backend that
	// stores shifted values must unshift here, never downstream.
	Score float64
}

// ScoreTransform converts a raw distance into a similarity score.
type ScoreTransform func(distance float32) float64

// CosineScore is the default transform for cosine distance, which
// ranges from 0 (identical) to 2 (opposite).
func CosineScore(distance float32) float64 {
	return 1.0 - float64(distance)/2.0
}

// L2Score converts Euclidean distance to a score in (0,1].
func L2Score(distance float32) float64 {
	return 1.0 / (1.0 + float64(distance))
}

// Config configures the vector store.
type Config struct {
	// Dimensions is the embedding dimensionality. Required.
	Dimensions int

	// Metric is "cos" (default) or "l2".
	Metric string

	// M is the HNSW max connections per node.
	M int

	// EfSearch is the HNSW search beam width.
	EfSearch int
}

// DefaultConfig returns the default vector store configuration for
// the given dimensionality.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   40,
	}
}

// VectorStore is the interface for embedding storage and search.
type VectorStore interface {
	// Add inserts vectors with their document IDs, replacing existing ones.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	// An empty store returns an empty slice, nil error.
	Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error)

	// Delete removes vectors by document ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count() int

	// Save persists the store to disk.
	Save(path string) error

	// Load restores the store from disk.
	Load(path string) error

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch is returned when a vector's dimensionality does
// not match the store's configuration.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
