// Package keyword provides the lexical leg of hybrid search: a bleve index over every
// stored document and chunk record.
package keyword

import (
	"context"

	"github.com/hyperjump/bunsho/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution from matches in the record name.
	// Use 1.0 (or 0) for no boost.
	NameBoost float64
	// PhraseBoost multiplies the score when query terms appear close together.
	// Use 1.0 (or 0) for no boost.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy term matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2, default 2).
	Fuzziness int
}

// KeywordIndex defines keyword search operations over records.
type KeywordIndex interface {
	Index(ctx context.Context, rec *models.Record) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids ...string) error
	// Reset drops every indexed record.
	Reset() error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit keyed by record ID.
type KeywordResult struct {
	ID    string
	Score float64
}
