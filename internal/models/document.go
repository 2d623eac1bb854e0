// Package models defines core data structures for records, chunks, queries, and search results.
package models

import (
	"fmt"
	"time"
)

// Kind distinguishes whole-document records from chunk records.
type Kind string

const (
	KindDocument Kind = "document"
	KindChunk    Kind = "chunk"
)

// Chunking methods recorded on chunk metadata.
const (
	MethodSemantic = "semantic"
	MethodFallback = "fallback"
)

// Record is a persisted document or chunk together with its embedding.
// Chunks point at their parent through ParentID; Name is a display label only.
type Record struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Kind      Kind                   `json:"kind"`
	ParentID  string                 `json:"parent_id,omitempty"`
	Content   string                 `json:"content"`
	Embedding []float32              `json:"embedding,omitempty"`
	Chunk     *ChunkMetadata         `json:"chunk,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// IsChunk reports whether r is a chunk record.
func (r *Record) IsChunk() bool {
	return r.Kind == KindChunk
}

// ChunkMetadata describes how a chunk was produced.
// Similarity is the score that closed the chunk; the final chunk of a document has none.
type ChunkMetadata struct {
	Index         int      `json:"chunk_index"`
	Size          int      `json:"chunk_size"`
	SentenceCount int      `json:"sentence_count,omitempty"`
	Similarity    *float64 `json:"avg_similarity,omitempty"`
	Method        string   `json:"chunking_method"`
}

// Chunk is chunker output before persistence.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChunkName returns the display label for chunk index of parent, following the
// {parent}_semantic_chunk_{i} and {parent}_chunk_{i} conventions.
func ChunkName(parent string, method string, index int) string {
	if method == MethodFallback {
		return fmt.Sprintf("%s_chunk_%d", parent, index)
	}
	return fmt.Sprintf("%s_semantic_chunk_%d", parent, index)
}
