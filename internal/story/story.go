// Package story turns a flat cat narrative into a titled, chaptered
// document and serializes it to the markdown the renderer consumes.
package story

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/chunker"
)

const (
	DefaultWordsPerChapter = 200
	MinChapterWords        = 10
	WordsPerMinute         = 225
)

// Chapter is one numbered section of a Document.
type Chapter struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"wordCount"`
}

// Document is the structured form of a narrative. It is never stored on its
// own; RenderToText flattens it into the project's formatted narrative.
type Document struct {
	Title                string    `json:"title"`
	Chapters             []Chapter `json:"chapters"`
	TotalWordCount       int       `json:"totalWordCount"`
	EstimatedReadingTime int       `json:"estimatedReadingTime"`
	FormattedAt          time.Time `json:"formattedAt"`
}

// Formatter builds Documents. The zero value is not usable; call
// NewFormatter.
type Formatter struct {
	chooser         Chooser
	now             func() time.Time
	wordsPerChapter int
}

type Option func(*Formatter)

func WithChooser(c Chooser) Option {
	return func(f *Formatter) { f.chooser = c }
}

func WithClock(now func() time.Time) Option {
	return func(f *Formatter) { f.now = now }
}

func WithWordsPerChapter(n int) Option {
	return func(f *Formatter) {
		if n > 0 {
			f.wordsPerChapter = n
		}
	}
}

func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		chooser:         randomChooser{},
		now:             time.Now,
		wordsPerChapter: DefaultWordsPerChapter,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var chapterMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Chapter \d+`),
	regexp.MustCompile(`(?i)Part \d+`),
	regexp.MustCompile(`(?i)Section \d+`),
}

// BuildDocument segments text into chapters, titles them and totals the word
// counts. It always returns at least one chapter.
func (f *Formatter) BuildDocument(text, seedTitle string) *Document {
	raw := f.splitChapters(text)
	doc := &Document{
		Title:       f.storyTitle(seedTitle),
		Chapters:    make([]Chapter, 0, len(raw)),
		FormattedAt: f.now(),
	}
	for i, body := range raw {
		words := chunker.WordCount(body)
		doc.Chapters = append(doc.Chapters, Chapter{
			Title:     f.chapterTitle(i+1, body),
			Content:   NormalizeContent(body),
			WordCount: words,
		})
		doc.TotalWordCount += words
	}
	doc.EstimatedReadingTime = ReadingTime(doc.TotalWordCount)
	return doc
}

func (f *Formatter) splitChapters(text string) []string {
	for _, marker := range chapterMarkers {
		if !marker.MatchString(text) {
			continue
		}
		var pieces []string
		for _, p := range marker.Split(text, -1) {
			p = strings.TrimSpace(strings.TrimLeft(p, ":.-–— \t"))
			if p != "" {
				pieces = append(pieces, p)
			}
		}
		if len(pieces) > 0 {
			return mergeShort(pieces)
		}
		break
	}

	var (
		chapters []string
		current  []string
		count    int
	)
	for _, para := range chunker.SplitIntoParagraphs(text) {
		words := chunker.WordCount(para)
		if count > 0 && count+words > f.wordsPerChapter {
			chapters = append(chapters, strings.Join(current, "\n\n"))
			current, count = nil, 0
		}
		current = append(current, para)
		count += words
	}
	if len(current) > 0 {
		chapters = append(chapters, strings.Join(current, "\n\n"))
	}
	if len(chapters) == 0 {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return []string{text}
	}
	return mergeShort(chapters)
}

// mergeShort folds any chapter under MinChapterWords into its neighbour so a
// stray closing line does not fail validation on its own.
func mergeShort(chapters []string) []string {
	out := make([]string, 0, len(chapters))
	var carry string
	for _, ch := range chapters {
		if carry != "" {
			ch = carry + "\n\n" + ch
			carry = ""
		}
		if chunker.WordCount(ch) >= MinChapterWords {
			out = append(out, ch)
			continue
		}
		if len(out) > 0 {
			out[len(out)-1] += "\n\n" + ch
			continue
		}
		carry = ch
	}
	if carry != "" {
		out = append(out, carry)
	}
	return out
}

var (
	extraNewlines  = regexp.MustCompile(`\n{3,}`)
	dialogueLine   = regexp.MustCompile(`(?m)^"([^"\n]*)"$`)
	sentenceJoiner = regexp.MustCompile(`([.!?])[ \t]*([A-Z])`)
)

// NormalizeContent trims, collapses blank-line runs, indents lines that are a
// bare quotation and puts exactly one space between a sentence end and the
// next capital on the same line.
func NormalizeContent(content string) string {
	content = strings.TrimSpace(content)
	content = extraNewlines.ReplaceAllString(content, "\n\n")
	content = dialogueLine.ReplaceAllString(content, `    "${1}"`)
	content = sentenceJoiner.ReplaceAllString(content, "${1} ${2}")
	return content
}

// ReadingTime is whole minutes at WordsPerMinute, never below one.
func ReadingTime(words int) int {
	return max(1, int(math.Ceil(float64(words)/WordsPerMinute)))
}
