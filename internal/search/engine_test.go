package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/internal/embedding"
	"github.com/hyperjump/bunsho/internal/keyword"
	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/internal/storage"
	"github.com/hyperjump/bunsho/internal/vector"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrEmbedding
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrEmbedding
}

func (failingEmbedder) Dimensions() int { return 64 }
func (failingEmbedder) Close() error    { return nil }

type failingKeywordIndex struct {
	keyword.KeywordIndex
}

func (failingKeywordIndex) DocCount() (uint64, error) {
	return 0, errors.New("index closed")
}

type fixture struct {
	store  storage.Storage
	emb    embedding.Embedder
	engine *Engine
}

func newFixture(t *testing.T, emb embedding.Embedder, kw keyword.KeywordIndex) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vecIndex, err := vector.NewMemoryIndex(0)
	require.NoError(t, err)

	if kw == nil {
		bleveIndex, err := keyword.NewBleveIndex("")
		require.NoError(t, err)
		t.Cleanup(func() { bleveIndex.Close() })
		kw = bleveIndex
	}
	cfg := &config.SearchConfig{DefaultLimit: 10, MaxLimit: 100, KeywordWeight: 0.4, SemanticWeight: 0.6}
	return &fixture{store: store, emb: emb, engine: NewEngine(store, emb, vecIndex, kw, cfg)}
}

func (f *fixture) add(t *testing.T, rec *models.Record) {
	t.Helper()
	ctx := context.Background()
	vec, err := embedding.NewHashEmbedder(64).Embed(ctx, rec.Content)
	require.NoError(t, err)
	rec.Embedding = vec
	_, err = f.store.Store(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, f.engine.Index(ctx, rec))
}

func seed(t *testing.T, f *fixture) {
	f.add(t, &models.Record{ID: "rockets", Name: "rockets.txt", Kind: models.KindDocument,
		Content: "Rockets launch into orbit carrying satellites."})
	f.add(t, &models.Record{ID: "cats", Name: "cats.txt", Kind: models.KindDocument,
		Content: "Cats purr softly while sleeping in the sun."})
	f.add(t, &models.Record{ID: "rockets-c0", Name: "rockets.txt (semantic chunk 1)", Kind: models.KindChunk,
		ParentID: "rockets", Content: "Rockets launch into orbit."})
}

func TestEngine_SearchRanksRelevantFirst(t *testing.T) {
	f := newFixture(t, embedding.NewHashEmbedder(64), nil)
	seed(t, f)

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: "rockets orbit"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "rockets orbit", resp.Query)

	assert.Contains(t, []string{"rockets", "rockets-c0"}, resp.Results[0].ID)
	last := resp.Results[len(resp.Results)-1]
	assert.Equal(t, "cats", last.ID)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score, "results must be sorted by score")
		assert.Equal(t, i+1, resp.Results[i].Rank)
	}
	top := resp.Results[0]
	assert.InDelta(t, 0.4*top.KeywordScore+0.6*top.SemanticScore, top.Score, 1e-9)
	assert.NotEmpty(t, top.Text)
}

func TestEngine_SearchKindFilterAndPaging(t *testing.T) {
	f := newFixture(t, embedding.NewHashEmbedder(64), nil)
	seed(t, f)
	ctx := context.Background()

	resp, err := f.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit", Kind: models.KindChunk})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "rockets-c0", resp.Results[0].ID)
	assert.Equal(t, "rockets", resp.Results[0].ParentID)

	all, err := f.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit"})
	require.NoError(t, err)

	page, err := f.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, all.Total, page.Total)
	assert.Equal(t, all.Results[1].ID, page.Results[0].ID)
	assert.Equal(t, 2, page.Results[0].Rank)

	beyond, err := f.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit", Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, beyond.Results)
}

func TestEngine_SearchMinScore(t *testing.T) {
	f := newFixture(t, embedding.NewHashEmbedder(64), nil)
	seed(t, f)

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: "rockets orbit", MinScore: 0.4})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.4)
		assert.NotEqual(t, "cats", r.ID)
	}
}

func TestEngine_SearchDegradesWhenEmbeddingFails(t *testing.T) {
	f := newFixture(t, failingEmbedder{}, nil)
	seed(t, f)

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: "purr"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "cats", resp.Results[0].ID)
	assert.Zero(t, resp.Results[0].SemanticScore)
}

func TestEngine_SearchDegradesWhenKeywordFails(t *testing.T) {
	f := newFixture(t, embedding.NewHashEmbedder(64), failingKeywordIndex{})
	ctx := context.Background()
	rec := &models.Record{ID: "cats", Name: "cats.txt", Kind: models.KindDocument, Content: "Cats purr softly."}
	vec, err := f.emb.Embed(ctx, rec.Content)
	require.NoError(t, err)
	rec.Embedding = vec
	_, err = f.store.Store(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, f.engine.vectorIndex.Add(ctx, []string{rec.ID}, [][]float32{vec}))

	resp, err := f.engine.Search(ctx, &models.SearchQuery{Query: "cats purr"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "cats", resp.Results[0].ID)
}

func TestEngine_SearchFailsWhenBothLegsFail(t *testing.T) {
	f := newFixture(t, failingEmbedder{}, failingKeywordIndex{})
	_, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: "anything"})
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestEngine_SearchValidation(t *testing.T) {
	f := newFixture(t, embedding.NewHashEmbedder(64), nil)
	_, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: "   "})
	assert.Error(t, err)

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: "nothing indexed"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestEngine_RemoveAndSync(t *testing.T) {
	f := newFixture(t, embedding.NewHashEmbedder(64), nil)
	seed(t, f)
	ctx := context.Background()
	assert.Equal(t, 3, f.engine.Size())

	require.NoError(t, f.engine.Remove(ctx, "cats"))
	resp, err := f.engine.Search(ctx, &models.SearchQuery{Query: "purr"})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, "cats", r.ID)
	}

	n, err := f.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	resp, err = f.engine.Search(ctx, &models.SearchQuery{Query: "purr"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "cats", resp.Results[0].ID)

	require.NoError(t, f.engine.Reset())
	assert.Zero(t, f.engine.Size())
}

func TestEngine_SearchSkipsRecordsMissingFromStore(t *testing.T) {
	f := newFixture(t, embedding.NewHashEmbedder(64), nil)
	seed(t, f)
	ctx := context.Background()

	ghost := &models.Record{ID: "ghost", Name: "ghost", Kind: models.KindChunk, ParentID: "rockets",
		Content: "Rockets orbit. Rockets orbit."}
	vec, err := embedding.NewHashEmbedder(64).Embed(ctx, ghost.Content)
	require.NoError(t, err)
	ghost.Embedding = vec
	require.NoError(t, f.engine.Index(ctx, ghost))

	resp, err := f.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit", Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.NotEqual(t, "ghost", resp.Results[0].ID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, 3, resp.Total)

	page2, err := f.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page2.Results, 1)
	assert.NotEqual(t, resp.Results[0].ID, page2.Results[0].ID)
	assert.Equal(t, 2, page2.Results[0].Rank)

	all, err := f.engine.Search(ctx, &models.SearchQuery{Query: "rockets orbit", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all.Results, all.Total)
}
