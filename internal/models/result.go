package models

// SearchResult is a single ranked hit. It is built per query and never persisted.
type SearchResult struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Kind          Kind    `json:"kind"`
	ParentID      string  `json:"parent_id,omitempty"`
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
	Rank          int     `json:"rank"`
}

// SearchResponse is the response for a search request.
// Degraded is set when one retrieval leg failed and results come from the other alone.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
	Degraded  bool            `json:"degraded,omitempty"`
}
