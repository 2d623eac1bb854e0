package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunsho/internal/chunker"
	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/internal/embedding"
	"github.com/hyperjump/bunsho/internal/extract"
	"github.com/hyperjump/bunsho/internal/fileid"
	"github.com/hyperjump/bunsho/internal/keyword"
	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/internal/search"
	"github.com/hyperjump/bunsho/internal/storage"
	"github.com/hyperjump/bunsho/internal/vector"
)

const fourTopics = "Cats purr softly in the warm sun. Dogs bark loudly at passing cars. " +
	"Broken sentence that will not embed. Rockets launch into orbit every week."

// dissimilar scores every pair as unrelated, so each sentence past the minimum size closes a chunk.
type dissimilar struct{}

func (dissimilar) Similarity(context.Context, string, string) chunker.Similarity {
	return chunker.Similarity{Score: 0}
}

type unavailable struct{}

func (unavailable) Similarity(context.Context, string, string) chunker.Similarity {
	return chunker.Similarity{Err: embedding.ErrEmbedding}
}

// prefixFailingEmbedder fails for texts starting with prefix.
type prefixFailingEmbedder struct {
	*embedding.HashEmbedder
	prefix string
}

func (e prefixFailingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.HasPrefix(text, e.prefix) {
		return nil, embedding.ErrEmbedding
	}
	return e.HashEmbedder.Embed(ctx, text)
}

type harness struct {
	idx    *Indexer
	store  storage.Storage
	engine *search.Engine
}

func newHarness(t *testing.T, emb embedding.Embedder, scorer chunker.SimilarityScorer, opts ...Option) *harness {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vecIndex, err := vector.NewMemoryIndex(0)
	require.NoError(t, err)
	kwIndex, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kwIndex.Close() })

	engine := search.NewEngine(store, emb, vecIndex, kwIndex, &config.SearchConfig{KeywordWeight: 0.4, SemanticWeight: 0.6})
	semantic := chunker.NewSemanticChunker(scorer, chunker.Options{SimilarityThreshold: 0.7, MinChunkSize: 20})
	ch := chunker.New(semantic, chunker.NewFallbackChunker(40), nil)

	idx, err := NewIndexer(store, emb, ch, engine, extract.NewExtractor(), opts...)
	require.NoError(t, err)
	t.Cleanup(idx.Release)
	return &harness{idx: idx, store: store, engine: engine}
}

func TestIndexDocument_storesDocumentAndChunks(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), dissimilar{})
	ctx := context.Background()

	res, err := h.idx.IndexDocument(ctx, &models.DocumentInput{Name: "pets", Content: "Cats purr softly in the sun. Rockets launch into orbit."})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, models.MethodSemantic, res.Method)
	require.Len(t, res.ChunkIDs, 2)
	assert.Empty(t, res.Skipped)

	doc, err := h.store.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.KindDocument, doc.Kind)
	assert.NotEmpty(t, doc.Embedding)

	chunks, err := h.store.ListChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for i, c := range chunks {
		assert.Equal(t, models.KindChunk, c.Kind)
		assert.Equal(t, res.DocumentID, c.ParentID)
		assert.Equal(t, models.ChunkName("pets", models.MethodSemantic, i), c.Name)
		require.NotNil(t, c.Chunk)
		assert.Equal(t, i, c.Chunk.Index)
		assert.NotEmpty(t, c.Embedding)
	}
	assert.Equal(t, "Cats purr softly in the sun.", chunks[0].Content)
	assert.Equal(t, "Rockets launch into orbit.", chunks[1].Content)
	assert.Equal(t, 3, h.engine.Size())
}

func TestIndexDocument_sameIDReplacesDocumentAndChunks(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), dissimilar{})
	ctx := context.Background()

	first, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc-1", Name: "resume", Content: fourTopics})
	require.NoError(t, err)
	require.Len(t, first.ChunkIDs, 4)

	replacement := "Short replacement text about gardening and tomatoes."
	second, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc-1", Name: "resume", Content: replacement})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", second.DocumentID)

	chunks, err := h.store.ListChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, replacement, chunks[0].Content)
	assert.Equal(t, models.ChunkName("resume", models.MethodSemantic, 0), chunks[0].Name)
	for _, id := range first.ChunkIDs {
		_, err := h.store.Get(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	assert.Equal(t, 2, h.engine.Size())

	resp, err := h.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit"})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotContains(t, r.Text, "Rockets", "stale chunk %s still searchable", r.Name)
	}
}

func TestIndexDocument_skipsChunksThatFailToEmbed(t *testing.T) {
	emb := prefixFailingEmbedder{HashEmbedder: embedding.NewHashEmbedder(64), prefix: "Broken"}
	h := newHarness(t, emb, dissimilar{}, WithConcurrency(3))
	ctx := context.Background()

	res, err := h.idx.IndexDocument(ctx, &models.DocumentInput{Name: "mixed", Content: fourTopics})
	require.NoError(t, err)
	assert.Len(t, res.ChunkIDs, 3)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 2, res.Skipped[0].Index)

	n, err := h.store.CountChunks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestIndexDocument_documentEmbeddingFailureIsFatal(t *testing.T) {
	emb := prefixFailingEmbedder{HashEmbedder: embedding.NewHashEmbedder(64), prefix: "Cats"}
	h := newHarness(t, emb, dissimilar{})
	ctx := context.Background()

	_, err := h.idx.IndexDocument(ctx, &models.DocumentInput{Name: "x", Content: fourTopics})
	assert.ErrorIs(t, err, embedding.ErrEmbedding)
	n, err := h.store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndexDocument_fallsBackWhenSimilarityUnavailable(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), unavailable{})
	ctx := context.Background()

	text := "First paragraph is here.\nSecond paragraph follows.\nThird one closes."
	res, err := h.idx.IndexDocument(ctx, &models.DocumentInput{Name: "notes", Content: text})
	require.NoError(t, err)
	assert.Equal(t, models.MethodFallback, res.Method)
	require.NotEmpty(t, res.ChunkIDs)

	chunks, err := h.store.ListChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		assert.Equal(t, models.ChunkName("notes", models.MethodFallback, i), c.Name)
		parts[i] = c.Content
	}
	assert.Equal(t, text, strings.Join(parts, "\n"))
}

func TestIndexDocument_emptyAndCancelled(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), dissimilar{})

	_, err := h.idx.IndexDocument(context.Background(), &models.DocumentInput{Name: "blank", Content: " \n\t "})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.idx.IndexDocument(ctx, &models.DocumentInput{Name: "late", Content: fourTopics})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexFile_createAndReplace(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), dissimilar{})
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.txt")

	require.NoError(t, os.WriteFile(path, []byte("Worked on rockets for years. Then moved to cats."), 0600))
	first, err := h.idx.IndexFile(ctx, path)
	require.NoError(t, err)
	abs, _ := filepath.Abs(path)
	assert.Equal(t, fileid.DocID(abs), first.DocumentID)
	assert.Equal(t, "resume", first.Name)

	doc, err := h.store.Get(ctx, first.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "resume.txt", doc.Metadata[extract.MetaFileName])

	require.NoError(t, os.WriteFile(path, []byte("Only one sentence now."), 0600))
	second, err := h.idx.IndexFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	docs, err := h.store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, docs)
	chunks, err := h.store.ListChunks(ctx, second.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Only one sentence now.", chunks[0].Content)
	assert.Equal(t, 2, h.engine.Size())
}

func TestIndexFile_extensionFilter(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), dissimilar{}, WithExtensions([]string{".md"}))
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some text here."), 0600))

	_, err := h.idx.IndexFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrExtensionNotAllowed)
}

func TestIndexPaths_recordsFailuresAndContinues(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), dissimilar{})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Alpha text about cats."), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("Beta text about rockets."), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.pptx"), []byte("ignored"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   "), 0600))

	report, err := h.idx.IndexPaths(context.Background(), []string{dir, filepath.Join(dir, "missing.txt")})
	require.NoError(t, err)
	assert.Len(t, report.Ingested, 2)
	assert.Equal(t, 2, report.ChunkCount())
	require.Len(t, report.Failed, 2)

	var sawEmpty bool
	for _, f := range report.Failed {
		if strings.HasSuffix(f.Path, "empty.txt") {
			sawEmpty = true
		}
	}
	assert.True(t, sawEmpty)
}

func TestDeleteDocumentAndClearAll(t *testing.T) {
	h := newHarness(t, embedding.NewHashEmbedder(64), dissimilar{})
	ctx := context.Background()

	a, err := h.idx.IndexDocument(ctx, &models.DocumentInput{Name: "a", Content: "Cats purr softly in the sun. Rockets launch into orbit."})
	require.NoError(t, err)
	_, err = h.idx.IndexDocument(ctx, &models.DocumentInput{Name: "b", Content: "Dogs bark loudly at passing cars."})
	require.NoError(t, err)

	n, err := h.idx.DeleteDocument(ctx, a.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, h.engine.Size())

	_, err = h.idx.DeleteDocument(ctx, a.DocumentID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	n, err = h.idx.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	recs, err := h.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, h.engine.Size())
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{"md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestPreprocess(t *testing.T) {
	got := Preprocess("\ufeff  line one  \r\nline\x00 two\r\n\r\n")
	if got != "line one\nline two" {
		t.Errorf("got %q", got)
	}
}
