package chunker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/pkg/utils"
)

// ErrSimilarityUnavailable is returned when no sentence comparison succeeded, so the
// chunk boundaries would carry no semantic information.
var ErrSimilarityUnavailable = errors.New("similarity unavailable for every sentence")

// Options tunes the semantic chunker. SimilarityThreshold is used as given, so start
// from DefaultOptions; non-positive sizes take the defaults.
type Options struct {
	SimilarityThreshold float64 // default 0.7; 0 keeps every non-negative score together
	MinChunkSize        int     // default 200 characters
	MaxChunkSize        int     // default 2000 characters
	ContextSentences    int     // default 3
}

// DefaultOptions returns the default semantic chunking parameters.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.7,
		MinChunkSize:        200,
		MaxChunkSize:        2000,
		ContextSentences:    3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = d.MinChunkSize
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = d.MaxChunkSize
	}
	if o.ContextSentences <= 0 {
		o.ContextSentences = d.ContextSentences
	}
	return o
}

// SemanticOption configures a SemanticChunker.
type SemanticOption func(*SemanticChunker)

// WithLogger sets the logger for similarity failures and chunk decisions.
func WithLogger(logger *zap.Logger) SemanticOption {
	return func(c *SemanticChunker) {
		c.logger = logger
	}
}

// SemanticChunker merges consecutive sentences while they stay similar to the chunk
// being built, closing a chunk once it is large enough and the next sentence diverges.
type SemanticChunker struct {
	scorer SimilarityScorer
	opts   Options
	logger *zap.Logger
}

// NewSemanticChunker returns a chunker that compares sentences with scorer.
func NewSemanticChunker(scorer SimilarityScorer, opts Options, options ...SemanticOption) *SemanticChunker {
	c := &SemanticChunker{
		scorer: scorer,
		opts:   opts.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Options returns the effective parameters.
func (c *SemanticChunker) Options() Options {
	return c.opts
}

type openChunk struct {
	sentences []string
	length    int // characters of the sentences joined with single spaces
}

func (o *openChunk) add(s string) {
	if len(o.sentences) > 0 {
		o.length++
	}
	o.sentences = append(o.sentences, s)
	o.length += utils.CharLen(s)
}

// Chunk splits text into semantically coherent chunks. Text without sentences yields an
// empty slice. A failed comparison keeps the sentence in the open chunk. An error is
// returned when ctx is done or when every comparison failed; callers then fall back to
// paragraph chunking.
func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]models.Chunk, error) {
	if c.scorer == nil {
		return nil, fmt.Errorf("semantic chunker: %w", ErrSimilarityUnavailable)
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return []models.Chunk{}, nil
	}

	var chunks []models.Chunk
	emit := func(o *openChunk, sim *float64) {
		content := joinSentences(o.sentences)
		chunks = append(chunks, models.Chunk{
			Content: content,
			Metadata: models.ChunkMetadata{
				Index:         len(chunks),
				Size:          utils.CharLen(content),
				SentenceCount: len(o.sentences),
				Similarity:    sim,
				Method:        models.MethodSemantic,
			},
		})
	}

	cur := &openChunk{}
	cur.add(sentences[0])
	compared, failed := 0, 0

	for i, sentence := range sentences[1:] {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("semantic chunking interrupted: %w", err)
		}

		from := len(cur.sentences) - c.opts.ContextSentences
		if from < 0 {
			from = 0
		}
		window := joinSentences(cur.sentences[from:])

		sim := c.scorer.Similarity(ctx, window, sentence)
		compared++
		similar := false
		var score *float64
		if sim.OK() {
			s := sim.Score
			score = &s
			similar = s >= c.opts.SimilarityThreshold
		} else {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("semantic chunking interrupted: %w", err)
			}
			failed++
			similar = true
			c.logger.Warn("similarity failed, keeping sentence in current chunk",
				zap.Int("sentence", i+1),
				zap.Error(sim.Err),
			)
		}

		switch {
		case similar && cur.length < c.opts.MaxChunkSize:
			cur.add(sentence)
		case cur.length >= c.opts.MinChunkSize:
			emit(cur, score)
			cur = &openChunk{}
			cur.add(sentence)
		default:
			// still below the minimum size: grow even when dissimilar
			cur.add(sentence)
		}
	}

	if compared > 0 && failed == compared {
		return nil, fmt.Errorf("semantic chunker: %w", ErrSimilarityUnavailable)
	}
	emit(cur, nil)

	c.logger.Debug("semantic chunking done",
		zap.Int("sentences", len(sentences)),
		zap.Int("chunks", len(chunks)),
		zap.Int("failed_comparisons", failed),
	)
	return chunks, nil
}
