package models

import "fmt"

// SearchQuery represents a search request.
type SearchQuery struct {
	Query    string  `json:"query"`
	Limit    int     `json:"limit,omitempty"`
	Offset   int     `json:"offset,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
	Kind     Kind    `json:"kind,omitempty"` // restrict to documents or chunks; empty searches both
	Fuzzy    bool    `json:"fuzzy,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is empty or the kind filter is unknown.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	switch q.Kind {
	case "", KindDocument, KindChunk:
	default:
		return fmt.Errorf("unknown kind %q", q.Kind)
	}
	return nil
}
