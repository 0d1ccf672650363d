// Package chunker splits narrative text into sentence-bounded chunks for the
// narrator and into paragraphs for chapter building.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize bounds a narrator request, in bytes.
	DefaultChunkSize = 2000
	// MinParagraphLength drops fragments at or below this many bytes.
	MinParagraphLength = 10
)

var (
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	word           = regexp.MustCompile(`\p{L}[\p{L}\p{M}'’-]*`)
)

// SplitSentences breaks text after each '.', '!' or '?' that is followed by
// whitespace. The whitespace is consumed; empty pieces are dropped.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := text[start : m[0]+1]; s != "" {
			out = append(out, s)
		}
		start = m[1]
	}
	if tail := text[start:]; strings.TrimSpace(tail) != "" {
		out = append(out, tail)
	}
	return out
}

// SplitIntoChunks groups whole sentences into chunks of at most maxSize
// bytes. A sentence longer than maxSize becomes a chunk on its own. The result
// always holds at least one chunk for non-blank input.
func SplitIntoChunks(text string, maxSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range SplitSentences(text) {
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// SplitIntoParagraphs splits on blank lines, trims each piece and discards
// fragments of MinParagraphLength bytes or fewer.
func SplitIntoParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if len(p) > MinParagraphLength {
			out = append(out, p)
		}
	}
	return out
}

// WordCount counts runs of letters, allowing inner apostrophes and hyphens.
// Digits and punctuation on their own are not words.
func WordCount(text string) int {
	return len(word.FindAllStringIndex(text, -1))
}
