package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/chunker"
	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/internal/embedding"
	"github.com/hyperjump/bunsho/internal/extract"
	"github.com/hyperjump/bunsho/internal/indexer"
	"github.com/hyperjump/bunsho/internal/keyword"
	"github.com/hyperjump/bunsho/internal/search"
	"github.com/hyperjump/bunsho/internal/storage"
	"github.com/hyperjump/bunsho/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  *vector.MemoryIndex
	KeywordIndex *keyword.BleveIndex
	Chunker      *chunker.Chunker
	Engine       *search.Engine
	Indexer      *indexer.Indexer
}

// Close releases every component, returning all close errors combined.
func (c *Components) Close() error {
	if c.Indexer != nil {
		c.Indexer.Release()
	}
	var err error
	if c.Storage != nil {
		err = multierr.Append(err, c.Storage.Close())
	}
	if c.Embedder != nil {
		err = multierr.Append(err, c.Embedder.Close())
	}
	if c.VectorIndex != nil {
		err = multierr.Append(err, c.VectorIndex.Close())
	}
	if c.KeywordIndex != nil {
		err = multierr.Append(err, c.KeywordIndex.Close())
	}
	return err
}

func newStorage(cfg *config.StorageConfig, logger *zap.Logger) (storage.Storage, error) {
	if cfg.Backend == config.BackendBadger {
		s, err := storage.NewBadgerStorage(cfg.BadgerPath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newEmbedder builds the provider and wraps it in the cache and the rate limiter. The
// cache sits inside the limiter so repeated texts never spend a request.
func newEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	var provider embedding.Embedder
	switch cfg.Provider {
	case config.ProviderOpenAI:
		e, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey(),
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, err
		}
		provider = e
	case config.ProviderONNX:
		e, err := embedding.NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		provider = e
	default:
		provider = embedding.NewHashEmbedder(cfg.Dimensions)
	}
	cached := embedding.NewCachedEmbedder(provider, cfg.CacheSize)
	if cfg.Provider != config.ProviderOpenAI {
		return cached, nil
	}
	return embedding.NewRateLimitedEmbedder(cached, cfg.RequestsPerSecond, cfg.Burst, cfg.Timeout), nil
}

func newChunker(cfg *config.ChunkingConfig, embedder embedding.Embedder, logger *zap.Logger) *chunker.Chunker {
	semantic := chunker.NewSemanticChunker(
		chunker.NewScorer(embedder),
		chunker.Options{
			SimilarityThreshold: cfg.SimilarityThreshold,
			MinChunkSize:        cfg.MinChunkSize,
			MaxChunkSize:        cfg.MaxChunkSize,
			ContextSentences:    cfg.ContextSentences,
		},
		chunker.WithLogger(logger),
	)
	return chunker.New(semantic, chunker.NewFallbackChunker(cfg.FallbackChunkSize), logger)
}

// initializeComponents wires storage, embedder, indexes, engine, and indexer, then
// rebuilds the search indexes from the store.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	fail := func(format string, err error) (*Components, error) {
		_ = c.Close()
		return nil, fmt.Errorf(format, err)
	}

	var err error
	if c.Storage, err = newStorage(&cfg.Storage, logger); err != nil {
		return fail("failed to initialize storage: %w", err)
	}
	if c.Embedder, err = newEmbedder(&cfg.Embedding, logger); err != nil {
		return fail("failed to initialize embedder: %w", err)
	}
	if c.VectorIndex, err = vector.NewMemoryIndex(0); err != nil {
		return fail("failed to initialize vector index: %w", err)
	}
	if c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath); err != nil {
		return fail("failed to initialize keyword index: %w", err)
	}

	c.Chunker = newChunker(&cfg.Chunking, c.Embedder, logger)
	c.Engine = search.NewEngine(c.Storage, c.Embedder, c.VectorIndex, c.KeywordIndex, &cfg.Search, search.WithLogger(logger))

	c.Indexer, err = indexer.NewIndexer(c.Storage, c.Embedder, c.Chunker, c.Engine, extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithConcurrency(cfg.Embedding.Concurrency),
		indexer.WithStoreTimeout(cfg.Storage.Timeout),
		indexer.WithExtensions(cfg.Watch.Extensions),
	)
	if err != nil {
		return fail("failed to initialize indexer: %w", err)
	}

	n, err := c.Engine.Sync(ctx)
	if err != nil {
		return fail("failed to sync search indexes: %w", err)
	}
	logger.Debug("search indexes ready", zap.Int("records", n))
	return c, nil
}
