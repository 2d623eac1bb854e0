package chunker

import (
	"strings"

	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/pkg/utils"
)

// DefaultFallbackChunkSize is the paragraph-accumulation limit in characters.
const DefaultFallbackChunkSize = 1000

// FallbackChunker groups newline-separated paragraphs into chunks of at most ChunkSize
// characters. A paragraph longer than ChunkSize becomes a chunk on its own. It makes no
// external calls.
type FallbackChunker struct {
	ChunkSize int
}

// NewFallbackChunker returns a fallback chunker; size <= 0 uses DefaultFallbackChunkSize.
func NewFallbackChunker(size int) *FallbackChunker {
	if size <= 0 {
		size = DefaultFallbackChunkSize
	}
	return &FallbackChunker{ChunkSize: size}
}

// Chunk splits text into paragraph chunks joined by "\n". Blank paragraphs are skipped.
func (c *FallbackChunker) Chunk(text string) []models.Chunk {
	var chunks []models.Chunk
	var current []string
	currentLen := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, "\n")
		chunks = append(chunks, models.Chunk{
			Content: content,
			Metadata: models.ChunkMetadata{
				Index:  len(chunks),
				Size:   utils.CharLen(content),
				Method: models.MethodFallback,
			},
		})
		current = nil
		currentLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		paragraph := strings.TrimSpace(line)
		if paragraph == "" {
			continue
		}
		n := utils.CharLen(paragraph)
		if len(current) > 0 && currentLen+1+n > c.ChunkSize {
			emit()
		}
		if len(current) > 0 {
			currentLen++
		}
		current = append(current, paragraph)
		currentLen += n
	}
	emit()
	return chunks
}
