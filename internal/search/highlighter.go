package search

import (
	"strings"
	"unicode"
)

// Highlight returns a window of at most maxLen characters of content, starting a little
// before the first occurrence of a query term. Cut ends are marked with "...".
func Highlight(content, query string, maxLen int) string {
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}
	start := 0
	lower := []rune(strings.ToLower(content))
	for _, term := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if i := indexRunes(lower, []rune(term)); i >= 0 {
			start = i - maxLen/4
			break
		}
	}
	if start < 0 {
		start = 0
	}
	if start > len(runes)-maxLen {
		start = len(runes) - maxLen
	}
	out := string(runes[start : start+maxLen])
	if start > 0 {
		out = "..." + out
	}
	if start+maxLen < len(runes) {
		out += "..."
	}
	return out
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 || len(sub) > len(s) {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
