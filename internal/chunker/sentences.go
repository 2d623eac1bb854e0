// Package chunker splits document text into passages, either by sentence similarity
// (SemanticChunker) or by paragraph accumulation (FallbackChunker).
package chunker

import (
	"regexp"
	"strings"
)

var terminatorRun = regexp.MustCompile(`[.!?]+`)

// SplitSentences splits text after each run of '.', '!' or '?' and returns the trimmed,
// non-empty sentences in order. Terminators stay attached to their sentence so that
// joining the sentences with spaces reproduces the text up to whitespace. A segment made
// only of punctuation is attached to the preceding sentence (or the next one when it
// leads the text).
func SplitSentences(text string) []string {
	var sentences []string
	pending := ""
	add := func(seg string) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return
		}
		if strings.Trim(seg, ".!?") == "" {
			if n := len(sentences); n > 0 {
				sentences[n-1] += seg
			} else {
				pending += seg
			}
			return
		}
		if pending != "" {
			seg = pending + " " + seg
			pending = ""
		}
		sentences = append(sentences, seg)
	}

	start := 0
	for _, loc := range terminatorRun.FindAllStringIndex(text, -1) {
		add(text[start:loc[1]])
		start = loc[1]
	}
	add(text[start:])
	return sentences
}

// joinSentences joins sentences the way chunk content is built.
func joinSentences(sentences []string) string {
	return strings.Join(sentences, " ")
}
