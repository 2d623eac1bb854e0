// Package vector provides vector index and similarity search.
package vector

import "context"

// VectorIndex defines vector storage and similarity search over record embeddings.
type VectorIndex interface {
	// Add inserts or replaces vectors by ID.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Reset() error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit keyed by record ID.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}
