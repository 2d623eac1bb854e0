package cli

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/pkg/utils"
)

// ChunkStats summarizes chunk sizes in characters.
type ChunkStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
}

// ChunkStatsOf computes statistics over sizes. Empty input yields zero stats.
func ChunkStatsOf(sizes []int) ChunkStats {
	if len(sizes) == 0 {
		return ChunkStats{}
	}
	s := ChunkStats{Count: len(sizes), Min: math.MaxInt}
	total := 0
	for _, n := range sizes {
		total += n
		if n < s.Min {
			s.Min = n
		}
		if n > s.Max {
			s.Max = n
		}
	}
	s.Average = float64(total) / float64(len(sizes))
	return s
}

// DocumentGroup is a document with its chunks in index order. Document is nil for chunks
// whose parent is not stored.
type DocumentGroup struct {
	Document *models.Record   `json:"document,omitempty"`
	ParentID string           `json:"parent_id"`
	Chunks   []*models.Record `json:"chunks"`
	Stats    ChunkStats       `json:"stats"`
}

// GroupRecords groups chunks under their parent documents, keeping document order.
func GroupRecords(records []*models.Record) []*DocumentGroup {
	var groups []*DocumentGroup
	byID := make(map[string]*DocumentGroup)
	for _, rec := range records {
		if rec.Kind == models.KindDocument {
			g := &DocumentGroup{Document: rec, ParentID: rec.ID, Chunks: []*models.Record{}}
			byID[rec.ID] = g
			groups = append(groups, g)
		}
	}
	for _, rec := range records {
		if rec.Kind != models.KindChunk {
			continue
		}
		g, ok := byID[rec.ParentID]
		if !ok {
			g = &DocumentGroup{ParentID: rec.ParentID, Chunks: []*models.Record{}}
			byID[rec.ParentID] = g
			groups = append(groups, g)
		}
		g.Chunks = append(g.Chunks, rec)
	}
	for _, g := range groups {
		sort.SliceStable(g.Chunks, func(i, j int) bool {
			return chunkIndex(g.Chunks[i]) < chunkIndex(g.Chunks[j])
		})
		sizes := make([]int, len(g.Chunks))
		for i, c := range g.Chunks {
			sizes[i] = utils.CharLen(c.Content)
		}
		g.Stats = ChunkStatsOf(sizes)
	}
	return groups
}

func chunkIndex(r *models.Record) int {
	if r.Chunk == nil {
		return 0
	}
	return r.Chunk.Index
}

// WriteRecordList writes stored records grouped by document.
func WriteRecordList(w io.Writer, records []*models.Record, format OutputFormat) error {
	groups := GroupRecords(records)
	switch format {
	case OutputJSON:
		if groups == nil {
			groups = []*DocumentGroup{}
		}
		return WriteJSON(w, groups)
	case OutputCompact:
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%s\t%d\n", g.ParentID, groupName(g), len(g.Chunks))
		}
		return nil
	}
	if len(groups) == 0 {
		fmt.Fprintln(w, "No documents stored.")
		return nil
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%s  (%s)\n", groupName(g), g.ParentID)
		if g.Document != nil {
			fmt.Fprintf(w, "  %d characters, created %s\n", utils.CharLen(g.Document.Content), g.Document.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if g.Stats.Count > 0 {
			fmt.Fprintf(w, "  %d chunks, avg %.0f, min %d, max %d characters\n",
				g.Stats.Count, g.Stats.Average, g.Stats.Min, g.Stats.Max)
		}
		for _, c := range g.Chunks {
			fmt.Fprintf(w, "    - %s: %s\n", c.Name, utils.Truncate(utils.CollapseWhitespace(c.Content), 60))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func groupName(g *DocumentGroup) string {
	if g.Document != nil {
		return g.Document.Name
	}
	return "(missing parent)"
}
