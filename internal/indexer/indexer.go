// Package indexer provides the ingestion pipeline: load a document, embed it, store it,
// chunk it, embed the chunks, and store them as children of the document.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/chunker"
	"github.com/hyperjump/bunsho/internal/embedding"
	"github.com/hyperjump/bunsho/internal/extract"
	"github.com/hyperjump/bunsho/internal/fileid"
	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/internal/storage"
)

var (
	// ErrEmptyDocument is returned for documents with no text after preprocessing.
	ErrEmptyDocument = errors.New("document has no text")

	// ErrExtensionNotAllowed is returned by IndexFile for files outside the allowed extensions.
	ErrExtensionNotAllowed = errors.New("extension not allowed")
)

// RecordIndex keeps derived search indexes in step with the store.
type RecordIndex interface {
	Index(ctx context.Context, rec *models.Record) error
	Remove(ctx context.Context, ids ...string) error
	Reset() error
}

// Indexer ingests documents into the store and the search indexes.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	chunker      *chunker.Chunker
	index        RecordIndex
	extractor    *extract.Extractor
	pool         *ants.Pool
	storeTimeout time.Duration
	allowedExts  []string
	logger       *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithLogger sets the indexer logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) error {
		if l != nil {
			idx.logger = l
		}
		return nil
	}
}

// WithConcurrency sets how many chunk embeddings may run at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(idx *Indexer) error {
		if n < 1 {
			n = 1
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		if idx.pool != nil {
			idx.pool.Release()
		}
		idx.pool = pool
		return nil
	}
}

// WithStoreTimeout bounds each store mutation. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(idx *Indexer) error {
		idx.storeTimeout = d
		return nil
	}
}

// WithExtensions restricts IndexFile and directory walks to the given extensions.
func WithExtensions(exts []string) Option {
	return func(idx *Indexer) error {
		idx.allowedExts = exts
		return nil
	}
}

// NewIndexer creates an indexer. index may be nil when no search indexes are kept.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	ch *chunker.Chunker,
	index RecordIndex,
	extractor *extract.Extractor,
	opts ...Option,
) (*Indexer, error) {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	if ch == nil {
		ch = chunker.New(nil, nil, nil)
	}
	idx := &Indexer{
		storage:   store,
		embedder:  embedder,
		chunker:   ch,
		index:     index,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			idx.Release()
			return nil, err
		}
	}
	if idx.pool == nil {
		if err := WithConcurrency(1)(idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Release frees the worker pool.
func (idx *Indexer) Release() {
	if idx.pool != nil {
		idx.pool.Release()
	}
}

// IndexDocument embeds and stores input as a document record, then chunks it and stores
// each chunk that embeds successfully. When input.ID names a stored document, that
// document and its chunks are replaced. A whole-document embedding failure fails the call;
// chunk embedding failures are reported in IngestResult.Skipped. On cancellation the
// records stored so far remain and the partial result is returned with the error.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*IngestResult, error) {
	content := Preprocess(input.Content)
	if content == "" {
		return nil, fmt.Errorf("%s: %w", input.Name, ErrEmptyDocument)
	}

	docEmbedding, err := idx.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", input.Name, err)
	}
	if input.ID != "" {
		if _, err := idx.DeleteDocument(ctx, input.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("replace %s: %w", input.ID, err)
		}
	}
	doc := &models.Record{
		ID:        input.ID,
		Name:      input.Name,
		Kind:      models.KindDocument,
		Content:   content,
		Embedding: docEmbedding,
		Metadata:  input.Metadata,
	}
	docID, err := idx.store(ctx, doc)
	if err != nil {
		return nil, err
	}
	result := &IngestResult{DocumentID: docID, Name: input.Name, ChunkIDs: []string{}}
	idx.logger.Debug("document stored", zap.String("id", docID), zap.String("name", input.Name))

	chunks, err := idx.chunker.Chunk(ctx, content)
	if err != nil {
		return result, fmt.Errorf("chunk %s: %w", input.Name, err)
	}
	if len(chunks) > 0 {
		result.Method = chunks[0].Metadata.Method
	}

	embeddings, embedErrs := idx.embedChunks(ctx, chunks)
	for i, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if embedErrs[i] != nil {
			idx.logger.Warn("chunk embedding failed, skipping chunk",
				zap.String("document", docID),
				zap.Int("chunk_index", ch.Metadata.Index),
				zap.Error(embedErrs[i]))
			result.Skipped = append(result.Skipped, SkippedChunk{Index: ch.Metadata.Index, Error: embedErrs[i].Error()})
			continue
		}
		meta := ch.Metadata
		rec := &models.Record{
			Name:      models.ChunkName(input.Name, meta.Method, meta.Index),
			Kind:      models.KindChunk,
			ParentID:  docID,
			Content:   ch.Content,
			Embedding: embeddings[i],
			Chunk:     &meta,
		}
		id, err := idx.store(ctx, rec)
		if err != nil {
			return result, err
		}
		result.ChunkIDs = append(result.ChunkIDs, id)
	}

	idx.logger.Info("document ingested",
		zap.String("id", docID),
		zap.String("name", input.Name),
		zap.String("method", result.Method),
		zap.Int("chunks", len(result.ChunkIDs)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// embedChunks embeds chunk texts on the worker pool. The returned slices are indexed like chunks.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, []error) {
	embeddings := make([][]float32, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			embeddings[i], errs[i] = idx.embedder.Embed(ctx, chunks[i].Content)
		}
		if err := idx.pool.Submit(task); err != nil {
			errs[i] = fmt.Errorf("submit chunk %d: %w", i, err)
			wg.Done()
		}
	}
	wg.Wait()
	return embeddings, errs
}

// store persists rec under the store timeout and adds it to the search indexes.
func (idx *Indexer) store(ctx context.Context, rec *models.Record) (string, error) {
	storeCtx, cancel := idx.storeContext(ctx)
	id, err := idx.storage.Store(storeCtx, rec)
	cancel()
	if err != nil {
		return "", fmt.Errorf("store %s %s: %w", rec.Kind, rec.Name, err)
	}
	if idx.index != nil {
		if err := idx.index.Index(ctx, rec); err != nil {
			return id, fmt.Errorf("index %s: %w", id, err)
		}
	}
	return id, nil
}

func (idx *Indexer) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if idx.storeTimeout > 0 {
		return context.WithTimeout(ctx, idx.storeTimeout)
	}
	return context.WithCancel(ctx)
}

// IndexFile loads the file at path and ingests it. The document ID is derived from the
// absolute path, so re-ingesting a file replaces its document and chunks.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*IngestResult, error) {
	absPath, docID, err := fileid.ForPath(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !idx.allowed(absPath) {
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotAllowed, filepath.Ext(absPath))
	}
	idx.logger.Debug("indexing file", zap.String("path", absPath))

	loaded, err := idx.extractor.Load(absPath)
	if err != nil {
		return nil, err
	}
	return idx.IndexDocument(ctx, &models.DocumentInput{
		ID:       docID,
		Name:     strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath)),
		Content:  loaded.Text,
		Metadata: loaded.Metadata,
	})
}

// IndexPaths ingests files and directories. Directories are walked recursively for
// allowed extensions. Per-file failures are recorded in the report and do not stop the
// batch; only cancellation aborts it.
func (idx *Indexer) IndexPaths(ctx context.Context, paths []string) (*BatchReport, error) {
	report := &BatchReport{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			report.Failed = append(report.Failed, FileError{Path: p, Error: err.Error()})
			continue
		}
		if !info.IsDir() {
			if err := idx.ingestInto(ctx, report, p); err != nil {
				return report, err
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				report.Failed = append(report.Failed, FileError{Path: path, Error: walkErr.Error()})
				return nil
			}
			if d.IsDir() || !idx.allowed(path) {
				return nil
			}
			return idx.ingestInto(ctx, report, path)
		})
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (idx *Indexer) ingestInto(ctx context.Context, report *BatchReport, path string) error {
	res, err := idx.IndexFile(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if res != nil {
				report.Ingested = append(report.Ingested, res)
			}
			return ctxErr
		}
		idx.logger.Warn("file not ingested", zap.String("path", path), zap.Error(err))
		report.Failed = append(report.Failed, FileError{Path: path, Error: err.Error()})
		return nil
	}
	report.Ingested = append(report.Ingested, res)
	return nil
}

func (idx *Indexer) allowed(path string) bool {
	if !extract.IsSupported(path) {
		return false
	}
	if len(idx.allowedExts) == 0 {
		return true
	}
	return extensionAllowed(filepath.Ext(path), idx.allowedExts)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document and its chunks from the store and the indexes.
// Returns storage.ErrNotFound when nothing was deleted.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) (int, error) {
	chunks, err := idx.storage.ListChunks(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("list chunks of %s: %w", id, err)
	}
	storeCtx, cancel := idx.storeContext(ctx)
	n, err := idx.storage.Delete(storeCtx, id)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", id, err)
	}
	if idx.index != nil {
		ids := make([]string, 0, len(chunks)+1)
		ids = append(ids, id)
		for _, ch := range chunks {
			ids = append(ids, ch.ID)
		}
		if err := idx.index.Remove(ctx, ids...); err != nil {
			return n, fmt.Errorf("remove %s from indexes: %w", id, err)
		}
	}
	if n == 0 {
		return 0, storage.ErrNotFound
	}
	idx.logger.Debug("document deleted", zap.String("id", id), zap.Int("records", n))
	return n, nil
}

// DeleteFile removes the document ingested from path, if any.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) (int, error) {
	_, docID, err := fileid.ForPath(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	return idx.DeleteDocument(ctx, docID)
}

// ClearAll removes every record and empties the indexes.
func (idx *Indexer) ClearAll(ctx context.Context) (int, error) {
	storeCtx, cancel := idx.storeContext(ctx)
	n, err := idx.storage.ClearAll(storeCtx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	if idx.index != nil {
		if err := idx.index.Reset(); err != nil {
			return n, fmt.Errorf("reset indexes: %w", err)
		}
	}
	idx.logger.Info("store cleared", zap.Int("records", n))
	return n, nil
}
