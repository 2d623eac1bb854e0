package chunker

import (
	"context"
	"fmt"

	"github.com/hyperjump/bunsho/internal/embedding"
	"github.com/hyperjump/bunsho/internal/vector"
)

// Similarity is the outcome of comparing two texts. Err is set when either text could
// not be embedded, in which case Score is 0 and must not be trusted.
type Similarity struct {
	Score float64
	Err   error
}

// OK reports whether the comparison produced a score.
func (s Similarity) OK() bool {
	return s.Err == nil
}

// SimilarityScorer compares two texts.
type SimilarityScorer interface {
	Similarity(ctx context.Context, a, b string) Similarity
}

// Scorer computes cosine similarity between text embeddings.
type Scorer struct {
	embedder embedding.Embedder
}

// NewScorer returns a scorer backed by embedder. Wrap the embedder in a
// CachedEmbedder when sentences are compared repeatedly.
func NewScorer(embedder embedding.Embedder) *Scorer {
	return &Scorer{embedder: embedder}
}

// Similarity embeds a and b and returns their cosine similarity.
func (s *Scorer) Similarity(ctx context.Context, a, b string) Similarity {
	va, err := s.embedder.Embed(ctx, a)
	if err != nil {
		return Similarity{Err: fmt.Errorf("embed context: %w", err)}
	}
	vb, err := s.embedder.Embed(ctx, b)
	if err != nil {
		return Similarity{Err: fmt.Errorf("embed sentence: %w", err)}
	}
	return Similarity{Score: vector.Cosine(va, vb)}
}
