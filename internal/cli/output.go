// Package cli formats search results, stored records, and chunk previews for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/internal/search"
	"github.com/hyperjump/bunsho/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named s. Unknown names are an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
}

const previewLen = 200

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.Score, kindLabel(r.Kind), r.Name)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms\n", response.Total, response.QueryTime)
	if response.Degraded {
		fmt.Fprintln(w, "(one retrieval method failed; results are partial)")
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
			result.Rank, result.Score, result.KeywordScore, result.SemanticScore)
		fmt.Fprintf(w, "[%s] %s\n", kindLabel(result.Kind), result.Name)
		fmt.Fprintf(w, "ID: %s\n", result.ID)
		fmt.Fprintf(w, "\n%s\n\n", search.Highlight(result.Text, response.Query, previewLen))
	}
}

func kindLabel(k models.Kind) string {
	if k == models.KindChunk {
		return "chunk"
	}
	return "full document"
}

// WriteChunks writes a chunk preview: boundaries, sizes, and closing similarity.
func WriteChunks(w io.Writer, chunks []models.Chunk, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, chunks)
	case OutputCompact:
		for _, c := range chunks {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", c.Metadata.Index, c.Metadata.Size, similarityLabel(c.Metadata.Similarity), c.Metadata.Method)
		}
		return nil
	}
	stats := ChunkStatsOf(chunkSizes(chunks))
	method := ""
	if len(chunks) > 0 {
		method = chunks[0].Metadata.Method
	}
	fmt.Fprintf(w, "%d chunks (%s), avg %.0f, min %d, max %d characters\n\n",
		stats.Count, method, stats.Average, stats.Min, stats.Max)
	for _, c := range chunks {
		fmt.Fprintf(w, "--- chunk %d | %d chars | %d sentences | similarity %s ---\n",
			c.Metadata.Index, c.Metadata.Size, c.Metadata.SentenceCount, similarityLabel(c.Metadata.Similarity))
		fmt.Fprintf(w, "%s\n\n", utils.Truncate(c.Content, previewLen))
	}
	return nil
}

func chunkSizes(chunks []models.Chunk) []int {
	sizes := make([]int, len(chunks))
	for i, c := range chunks {
		sizes[i] = c.Metadata.Size
	}
	return sizes
}

func similarityLabel(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *s)
}
