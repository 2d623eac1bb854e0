package indexer

// IngestResult reports what one document ingestion stored.
type IngestResult struct {
	DocumentID string         `json:"document_id"`
	Name       string         `json:"name"`
	Method     string         `json:"chunking_method,omitempty"`
	ChunkIDs   []string       `json:"chunk_ids"`
	Skipped    []SkippedChunk `json:"skipped,omitempty"`
}

// SkippedChunk is a chunk that was not stored because its embedding failed.
type SkippedChunk struct {
	Index int    `json:"chunk_index"`
	Error string `json:"error"`
}

// FileError records a file that could not be ingested.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BatchReport summarizes ingestion of several files.
type BatchReport struct {
	Ingested []*IngestResult `json:"ingested"`
	Failed   []FileError     `json:"failed,omitempty"`
}

// ChunkCount returns the number of chunks stored across the batch.
func (r *BatchReport) ChunkCount() int {
	n := 0
	for _, res := range r.Ingested {
		n += len(res.ChunkIDs)
	}
	return n
}
