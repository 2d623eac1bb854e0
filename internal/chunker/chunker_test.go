package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunsho/internal/models"
)

// topicEmbedder maps text onto [cats, rockets, bias] so cat sentences are similar to
// each other and dissimilar to rocket sentences.
type topicEmbedder struct {
	failOn string
	calls  int
}

func (e *topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, errors.New("embedding backend unavailable")
	}
	v := []float32{0, 0, 0.1}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "cat") {
		v[0] = 1
	}
	if strings.Contains(lower, "rocket") {
		v[1] = 1
	}
	return v, nil
}

func (e *topicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *topicEmbedder) Dimensions() int { return 3 }
func (e *topicEmbedder) Close() error    { return nil }

// fixedScorer returns scripted results in order.
type fixedScorer struct {
	results []Similarity
	next    int
}

func (s *fixedScorer) Similarity(ctx context.Context, a, b string) Similarity {
	r := s.results[s.next%len(s.results)]
	s.next++
	return r
}

const catsAndRockets = "Sentence one about cats. Sentence two about cats too. Sentence three about rockets."

func TestSemanticChunker_CatsAndRockets(t *testing.T) {
	c := NewSemanticChunker(NewScorer(&topicEmbedder{}), Options{SimilarityThreshold: 0.7, MinChunkSize: 10})

	chunks, err := c.Chunk(context.Background(), catsAndRockets)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "Sentence one about cats. Sentence two about cats too.", chunks[0].Content)
	assert.Equal(t, "Sentence three about rockets.", chunks[1].Content)

	assert.Equal(t, 0, chunks[0].Metadata.Index)
	assert.Equal(t, 2, chunks[0].Metadata.SentenceCount)
	assert.Equal(t, len(chunks[0].Content), chunks[0].Metadata.Size)
	assert.Equal(t, models.MethodSemantic, chunks[0].Metadata.Method)
	require.NotNil(t, chunks[0].Metadata.Similarity)
	assert.Less(t, *chunks[0].Metadata.Similarity, 0.7)

	assert.Equal(t, 1, chunks[1].Metadata.Index)
	assert.Nil(t, chunks[1].Metadata.Similarity, "final chunk has no triggering similarity")
}

func TestSemanticChunker_EmptyText(t *testing.T) {
	c := NewSemanticChunker(NewScorer(&topicEmbedder{}), DefaultOptions())
	for _, text := range []string{"", "   \n\t ", "...!?"} {
		chunks, err := c.Chunk(context.Background(), text)
		require.NoError(t, err)
		assert.NotNil(t, chunks)
		assert.Empty(t, chunks, "text %q", text)
	}
}

func TestSemanticChunker_SmallChunkGrowsWhenDissimilar(t *testing.T) {
	c := NewSemanticChunker(NewScorer(&topicEmbedder{}), Options{SimilarityThreshold: 0.7, MinChunkSize: 200})

	chunks, err := c.Chunk(context.Background(), catsAndRockets)
	require.NoError(t, err)
	require.Len(t, chunks, 1, "chunk below min size must absorb the dissimilar sentence")
	assert.Equal(t, 3, chunks[0].Metadata.SentenceCount)
}

func TestSemanticChunker_MaxSizeForcesClose(t *testing.T) {
	// every sentence is about cats, so only the ceiling closes chunks
	sentence := "Cats nap in the warm afternoon sun near the window."
	text := strings.Repeat(sentence+" ", 20)
	c := NewSemanticChunker(NewScorer(&topicEmbedder{}), Options{SimilarityThreshold: 0.7, MinChunkSize: 50, MaxChunkSize: 200})

	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks[:len(chunks)-1] {
		// appended only while below the ceiling, so at most one sentence past it
		assert.Less(t, ch.Metadata.Size, 200+len(sentence)+1)
		assert.GreaterOrEqual(t, ch.Metadata.Size, 200)
	}
}

func TestSemanticChunker_EverySentenceOnceInOrder(t *testing.T) {
	text := "Cats purr. Rockets launch at dawn! Cats sleep? Rockets need fuel. " +
		"Cats chase mice... Rockets orbit Earth. Cats again. Final line about nothing"
	c := NewSemanticChunker(NewScorer(&topicEmbedder{}), Options{SimilarityThreshold: 0.7, MinChunkSize: 15})

	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)

	var got []string
	for _, ch := range chunks {
		got = append(got, SplitSentences(ch.Content)...)
	}
	assert.Equal(t, SplitSentences(text), got)

	for i, ch := range chunks[:len(chunks)-1] {
		assert.GreaterOrEqual(t, ch.Metadata.Size, 15, "non-final chunk %d closed below min size", i)
	}
}

func TestSemanticChunker_FailedComparisonTreatedAsSimilar(t *testing.T) {
	emb := &topicEmbedder{failOn: "rockets"}
	c := NewSemanticChunker(NewScorer(emb), Options{SimilarityThreshold: 0.7, MinChunkSize: 10})

	chunks, err := c.Chunk(context.Background(), catsAndRockets)
	require.NoError(t, err)
	require.Len(t, chunks, 1, "the rocket sentence is kept with the cats when scoring fails")
	assert.Contains(t, chunks[0].Content, "rockets")
}

func TestSemanticChunker_AllComparisonsFail(t *testing.T) {
	scorer := &fixedScorer{results: []Similarity{{Err: errors.New("down")}}}
	c := NewSemanticChunker(scorer, DefaultOptions())

	_, err := c.Chunk(context.Background(), catsAndRockets)
	require.ErrorIs(t, err, ErrSimilarityUnavailable)
}

func TestSemanticChunker_SingleSentenceNeedsNoComparison(t *testing.T) {
	scorer := &fixedScorer{results: []Similarity{{Err: errors.New("down")}}}
	c := NewSemanticChunker(scorer, DefaultOptions())

	chunks, err := c.Chunk(context.Background(), "Only one sentence here")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, scorer.next)
}

func TestSemanticChunker_ContextWindowIsLastSentences(t *testing.T) {
	var windows []string
	scorer := scorerFunc(func(ctx context.Context, a, b string) Similarity {
		windows = append(windows, a)
		return Similarity{Score: 1}
	})
	c := NewSemanticChunker(scorer, Options{SimilarityThreshold: 0.7, ContextSentences: 2})

	_, err := c.Chunk(context.Background(), "A one. B two. C three. D four.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A one.", "A one. B two.", "B two. C three."}, windows)
}

func TestSemanticChunker_Cancelled(t *testing.T) {
	c := NewSemanticChunker(NewScorer(&topicEmbedder{}), DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Chunk(ctx, catsAndRockets)
	require.ErrorIs(t, err, context.Canceled)
}

type scorerFunc func(ctx context.Context, a, b string) Similarity

func (f scorerFunc) Similarity(ctx context.Context, a, b string) Similarity { return f(ctx, a, b) }

func TestChunker_FallsBackOnSemanticFailure(t *testing.T) {
	scorer := &fixedScorer{results: []Similarity{{Err: errors.New("down")}}}
	c := New(NewSemanticChunker(scorer, DefaultOptions()), NewFallbackChunker(1000), nil)

	chunks, err := c.Chunk(context.Background(), "First para. More.\nSecond para.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, models.MethodFallback, chunks[0].Metadata.Method)
	assert.Equal(t, "First para. More.\nSecond para.", chunks[0].Content)
}

func TestChunker_PropagatesCancellation(t *testing.T) {
	c := New(NewSemanticChunker(NewScorer(&topicEmbedder{}), DefaultOptions()), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Chunk(ctx, catsAndRockets)
	require.ErrorIs(t, err, context.Canceled)
}

func TestChunker_WithoutSemanticUsesFallback(t *testing.T) {
	c := New(nil, NewFallbackChunker(10), nil)
	chunks, err := c.Chunk(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

func TestScorer_Similarity(t *testing.T) {
	s := NewScorer(&topicEmbedder{})
	ctx := context.Background()

	same := s.Similarity(ctx, "The cat sleeps.", "A cat purrs.")
	require.True(t, same.OK())
	assert.InDelta(t, 1.0, same.Score, 1e-6)

	diff := s.Similarity(ctx, "The cat sleeps.", "The rocket launches.")
	require.True(t, diff.OK())
	assert.Less(t, diff.Score, 0.1)
}

func TestScorer_EmbeddingFailure(t *testing.T) {
	s := NewScorer(&topicEmbedder{failOn: "rocket"})
	sim := s.Similarity(context.Background(), "The cat sleeps.", "The rocket launches.")
	assert.False(t, sim.OK())
	assert.Zero(t, sim.Score)
	assert.Contains(t, sim.Err.Error(), "embed sentence")
}

func TestSemanticChunker_ZeroThresholdIsUsedAsGiven(t *testing.T) {
	const text = "Alpha one. Beta two. Gamma three."

	c := NewSemanticChunker(&fixedScorer{results: []Similarity{{Score: 0.5}}}, Options{SimilarityThreshold: 0, MinChunkSize: 5})
	assert.Zero(t, c.Options().SimilarityThreshold)
	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)

	c = NewSemanticChunker(&fixedScorer{results: []Similarity{{Score: -0.2}}}, Options{SimilarityThreshold: 0, MinChunkSize: 5})
	chunks, err = c.Chunk(context.Background(), text)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}
