package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/bunsho/internal/models"
)

// indexedRecord is the bleve document for a record.
type indexedRecord struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Kind     string `json:"kind"`
	ParentID string `json:"parent_id"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	path  string
	index bleve.Index
	mu    sync.RWMutex
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// standard analyzer: lowercase + tokenize, no stemming, so query terms match exact words
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("kind", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("parent_id", keywordFieldMapping)
	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index
// in memory; it is then rebuilt from the record store on start-up.
func NewBleveIndex(path string) (*BleveIndex, error) {
	index, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{path: path, index: index}, nil
}

func openOrCreate(path string) (bleve.Index, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return index, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return index, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

// Index adds or replaces rec in the index.
func (b *BleveIndex) Index(ctx context.Context, rec *models.Record) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.Index(rec.ID, indexedRecord{
		Name:     rec.Name,
		Content:  rec.Content,
		Kind:     string(rec.Kind),
		ParentID: rec.ParentID,
	})
}

// Search runs a match query over name and content and returns up to limit results.
// Multi-term queries are scaled by squared term coverage, so a record sharing more query
// terms never scores below one sharing fewer with otherwise equal weight. With a name or
// phrase boost, name and content are scored separately and merged additively.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	nameBoost := 1.0
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.NameBoost > 0 {
			nameBoost = opts.NameBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}
	if limit <= 0 {
		return nil, nil
	}
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	scores := make(map[string]float64)
	if nameBoost <= 1.0 && phraseBoost <= 1.0 {
		hits, err := b.run(ctx, b.matchQuery(query, "", fuzzyEnabled, fuzziness), reqSize)
		if err != nil {
			return nil, err
		}
		for id, s := range hits {
			scores[id] = s
		}
	} else {
		nameHits, err := b.run(ctx, b.matchQuery(query, "name", fuzzyEnabled, fuzziness), reqSize)
		if err != nil {
			return nil, err
		}
		contentHits, err := b.run(ctx, b.matchQuery(query, "content", fuzzyEnabled, fuzziness), reqSize)
		if err != nil {
			return nil, err
		}
		for id, s := range nameHits {
			scores[id] += s * nameBoost
		}
		for id, s := range contentHits {
			scores[id] += s
		}
		if phraseBoost > 1.0 && len(terms) > 1 {
			for id := range b.phraseMatches(ctx, query, reqSize) {
				if _, ok := scores[id]; ok {
					scores[id] *= phraseBoost
				}
			}
		}
	}

	// (matched/total)^2: records matching all terms are not penalized
	if len(terms) > 1 {
		coverage := b.termCoverage(ctx, terms, reqSize, fuzzyEnabled, fuzziness)
		for id := range scores {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			scores[id] *= c * c
		}
	}

	out := make([]*KeywordResult, 0, len(scores))
	for id, score := range scores {
		out = append(out, &KeywordResult{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	hits := make(map[string]float64, len(results.Hits))
	for _, hit := range results.Hits {
		hits[hit.ID] = hit.Score
	}
	return hits, nil
}

func (b *BleveIndex) matchQuery(query, field string, fuzzy bool, fuzziness int) blevequery.Query {
	if fuzzy {
		return buildFuzzyQuery(query, fuzziness, field)
	}
	mq := bleve.NewMatchQuery(query)
	if field != "" {
		mq.SetField(field)
	}
	return mq
}

// tokenizeQuery splits query into lowercase terms on non-alphanumeric runes.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries for each term in the query.
// If field is empty, searches all fields; otherwise restricts to the specified field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many distinct query terms each record matches.
func (b *BleveIndex) termCoverage(ctx context.Context, terms []string, reqSize int, fuzzy bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		hits, err := b.run(ctx, b.matchQuery(term, "", fuzzy, fuzziness), reqSize)
		if err != nil {
			continue
		}
		for id := range hits {
			coverage[id]++
		}
	}
	return coverage
}

// phraseMatches returns records where the query appears as a phrase in name or content.
func (b *BleveIndex) phraseMatches(ctx context.Context, query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	for _, field := range []string{"content", "name"} {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(field)
		hits, err := b.run(ctx, pq, reqSize)
		if err != nil {
			continue
		}
		for id := range hits {
			matches[id] = true
		}
	}
	return matches
}

// Delete removes records from the index.
func (b *BleveIndex) Delete(ctx context.Context, ids ...string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(ids) == 1 {
		return b.index.Delete(ids[0])
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Reset closes the index and replaces it with an empty one.
func (b *BleveIndex) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close Bleve index: %w", err)
	}
	if b.path != "" {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("failed to remove Bleve index: %w", err)
		}
	}
	index, err := openOrCreate(b.path)
	if err != nil {
		return err
	}
	b.index = index
	return nil
}

// DocCount returns the number of indexed records.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
