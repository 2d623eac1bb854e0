// Package search provides the hybrid search engine. It owns the derived keyword and
// vector indexes and fuses their scores into one ranking over stored records.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/internal/embedding"
	"github.com/hyperjump/bunsho/internal/keyword"
	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/internal/storage"
	"github.com/hyperjump/bunsho/internal/vector"
)

// ErrSearchUnavailable is returned when both retrieval legs fail.
var ErrSearchUnavailable = errors.New("search unavailable")

// Engine runs hybrid (keyword + semantic) search.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex
	config       *config.SearchConfig
	logger       *zap.Logger

	mu    sync.RWMutex
	kinds map[string]models.Kind
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{KeywordWeight: config.DefaultKeywordWeight, SemanticWeight: config.DefaultSemanticWeight}
	}
	e := &Engine{
		storage:      storage,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		config:       cfg,
		logger:       zap.NewNop(),
		kinds:        make(map[string]models.Kind),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index adds or replaces rec in both indexes. Records without an embedding are only
// searchable by keyword.
func (e *Engine) Index(ctx context.Context, rec *models.Record) error {
	if err := e.keywordIndex.Index(ctx, rec); err != nil {
		return fmt.Errorf("keyword index %s: %w", rec.ID, err)
	}
	if len(rec.Embedding) > 0 {
		if err := e.vectorIndex.Add(ctx, []string{rec.ID}, [][]float32{rec.Embedding}); err != nil {
			return fmt.Errorf("vector index %s: %w", rec.ID, err)
		}
	}
	e.mu.Lock()
	e.kinds[rec.ID] = rec.Kind
	e.mu.Unlock()
	return nil
}

// Remove drops ids from both indexes.
func (e *Engine) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	err := multierr.Combine(
		e.keywordIndex.Delete(ctx, ids...),
		e.vectorIndex.Remove(ctx, ids),
	)
	e.mu.Lock()
	for _, id := range ids {
		delete(e.kinds, id)
	}
	e.mu.Unlock()
	return err
}

// Reset empties both indexes.
func (e *Engine) Reset() error {
	e.mu.Lock()
	e.kinds = make(map[string]models.Kind)
	e.mu.Unlock()
	return multierr.Combine(e.keywordIndex.Reset(), e.vectorIndex.Reset())
}

// Sync rebuilds both indexes from every stored record.
func (e *Engine) Sync(ctx context.Context) (int, error) {
	records, err := e.storage.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}
	if err := e.Reset(); err != nil {
		return 0, fmt.Errorf("reset indexes: %w", err)
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := e.Index(ctx, rec); err != nil {
			return 0, err
		}
	}
	e.logger.Debug("indexes synced", zap.Int("records", len(records)))
	return len(records), nil
}

// Size returns the number of records known to the engine.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.kinds)
}

// Search runs hybrid search over every indexed record. When one leg fails the other
// leg's scores are used alone and the response is marked degraded.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}

	var (
		keywordResults  []*keyword.KeywordResult
		semanticResults []*vector.VectorResult
		keywordErr      error
		semanticErr     error
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		keywordResults, keywordErr = e.searchKeyword(ctx, query)
	}()
	go func() {
		defer wg.Done()
		semanticResults, semanticErr = e.searchSemantic(ctx, query.Query)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if keywordErr != nil && semanticErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchUnavailable, multierr.Combine(keywordErr, semanticErr))
	}
	degraded := false
	if keywordErr != nil {
		degraded = true
		e.logger.Warn("keyword search failed, using semantic scores only", zap.Error(keywordErr))
	}
	if semanticErr != nil {
		degraded = true
		e.logger.Warn("semantic search failed, using keyword scores only", zap.Error(semanticErr))
	}

	fused := Fuse(
		NormalizeKeywordScores(keywordResults),
		NormalizeSemanticScores(semanticResults),
		e.config.KeywordWeight,
		e.config.SemanticWeight,
	)
	fused = e.filter(fused, query)

	results, missing, err := e.hydrate(ctx, fused, query.Offset, query.Limit)
	if err != nil {
		return nil, err
	}

	return &models.SearchResponse{
		Results:   results,
		Total:     len(fused) - missing,
		QueryTime: time.Since(startTime).Milliseconds(),
		Query:     query.Query,
		Degraded:  degraded,
	}, nil
}

// hydrate loads the page [offset, offset+limit) of fused from the store. Index entries
// whose record is gone are skipped and do not count toward the offset; missing reports
// how many were seen.
func (e *Engine) hydrate(ctx context.Context, fused []*FusedResult, offset, limit int) ([]*models.SearchResult, int, error) {
	results := make([]*models.SearchResult, 0, limit)
	found, missing := 0, 0
	for _, f := range fused {
		if len(results) == limit {
			break
		}
		rec, err := e.storage.Get(ctx, f.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				e.logger.Warn("indexed record missing from store", zap.String("id", f.ID))
				missing++
				continue
			}
			return nil, 0, fmt.Errorf("load record %s: %w", f.ID, err)
		}
		found++
		if found <= offset {
			continue
		}
		results = append(results, &models.SearchResult{
			ID:            rec.ID,
			Name:          rec.Name,
			Kind:          rec.Kind,
			ParentID:      rec.ParentID,
			Text:          rec.Content,
			Score:         f.Score,
			KeywordScore:  f.KeywordScore,
			SemanticScore: f.SemanticScore,
			Rank:          found,
		})
	}
	return results, missing, nil
}

func (e *Engine) searchKeyword(ctx context.Context, query *models.SearchQuery) ([]*keyword.KeywordResult, error) {
	count, err := e.keywordIndex.DocCount()
	if err != nil {
		return nil, fmt.Errorf("keyword doc count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	results, err := e.keywordIndex.Search(ctx, query.Query, int(count), &keyword.SearchOptions{FuzzyEnabled: query.Fuzzy})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return results, nil
}

func (e *Engine) searchSemantic(ctx context.Context, text string) ([]*vector.VectorResult, error) {
	queryEmbedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := e.vectorIndex.Search(ctx, queryEmbedding, 0)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

// filter applies the kind restriction and score floor, keeping order.
func (e *Engine) filter(fused []*FusedResult, query *models.SearchQuery) []*FusedResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := fused[:0]
	for _, f := range fused {
		if query.MinScore > 0 && f.Score < query.MinScore {
			continue
		}
		if query.Kind != "" && e.kinds[f.ID] != query.Kind {
			continue
		}
		out = append(out, f)
	}
	return out
}
