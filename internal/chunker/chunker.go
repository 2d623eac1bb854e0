package chunker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/models"
)

// Chunker runs the semantic chunker and degrades to paragraph chunking when it fails.
type Chunker struct {
	semantic *SemanticChunker
	fallback *FallbackChunker
	logger   *zap.Logger
}

// New returns a Chunker. A nil semantic chunker always uses the fallback.
func New(semantic *SemanticChunker, fallback *FallbackChunker, logger *zap.Logger) *Chunker {
	if fallback == nil {
		fallback = NewFallbackChunker(DefaultFallbackChunkSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{semantic: semantic, fallback: fallback, logger: logger}
}

// Chunk splits text, recording the method used in each chunk's metadata. Only
// cancellation of ctx is returned as an error; any other semantic failure falls back.
func (c *Chunker) Chunk(ctx context.Context, text string) ([]models.Chunk, error) {
	if c.semantic != nil {
		chunks, err := c.semantic.Chunk(ctx, text)
		if err == nil {
			return chunks, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.logger.Warn("semantic chunking failed, using paragraph chunking", zap.Error(err))
	}
	chunks := c.fallback.Chunk(text)
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	return chunks, nil
}
