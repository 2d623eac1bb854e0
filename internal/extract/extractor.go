// Package extract loads documents from disk and normalizes them to plain text plus
// descriptive metadata.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Metadata keys set by Load.
const (
	MetaSource          = "source"
	MetaFileName        = "file_name"
	MetaFileSize        = "file_size"
	MetaLastModified    = "last_modified"
	MetaFormat          = "format"
	MetaTotalParagraphs = "total_paragraphs"
	MetaTotalCharacters = "total_characters"
)

// SupportedExtensions lists the extensions the loader can normalize.
var SupportedExtensions = []string{".txt", ".md", ".rst", ".docx", ".pdf", ".xlsx"}

// Loaded is a normalized document: its text and metadata describing the source file.
type Loaded struct {
	Text     string
	Metadata map[string]any
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// IsSupported reports whether the loader handles files with the extension of path.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Load reads the file at path and returns its text with file metadata.
// Read and decode failures wrap ErrUnreadable.
func (e *Extractor) Load(path string) (*Loaded, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	text, err := e.Extract(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	return &Loaded{
		Text: text,
		Metadata: map[string]any{
			MetaSource:          path,
			MetaFileName:        filepath.Base(path),
			MetaFileSize:        info.Size(),
			MetaLastModified:    info.ModTime().UTC().Format(time.RFC3339),
			MetaFormat:          strings.TrimPrefix(ext, "."),
			MetaTotalParagraphs: CountParagraphs(text),
			MetaTotalCharacters: utf8.RuneCountInString(text),
		},
	}, nil
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read file: %w", ErrUnreadable, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"); an empty extension is read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".xlsx":
		text, err = extractExcel(content)
	case ".txt", ".md", ".rst", "":
		text, err = extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return text, nil
}

// CountParagraphs counts non-blank lines.
func CountParagraphs(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
