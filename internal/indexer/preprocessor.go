package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes text for ingestion: line endings become "\n", a leading byte order
// mark and control characters other than newline and tab are dropped, trailing spaces are
// trimmed from each line, and the result is trimmed. Paragraph breaks are preserved.
func Preprocess(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
