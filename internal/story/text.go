package story

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	Byline         = "_A feline perspective brought to you by a very sophisticated cat_"
	ChapterDivider = "🐾 🐾 🐾"
	ClosingLine    = "_The End_"
	SignOff        = "🐱 **Purr-fectly narrated by your friendly neighborhood cat** 🐱"
	horizontalRule = "---"
	titlePrefix    = "# "
	chapterPrefix  = "## "
)

// RenderToText serializes doc into the markdown stored as the project's
// formatted narrative.
func RenderToText(doc *Document) string {
	var b strings.Builder
	b.WriteString(titlePrefix + doc.Title + "\n\n")
	b.WriteString(Byline + "\n\n")
	fmt.Fprintf(&b, "**Word Count:** %s words  \n", humanize.Comma(int64(doc.TotalWordCount)))
	fmt.Fprintf(&b, "**Estimated Reading Time:** %d minute(s)\n\n", doc.EstimatedReadingTime)
	b.WriteString(horizontalRule + "\n\n")

	for i, ch := range doc.Chapters {
		b.WriteString(chapterPrefix + ch.Title + "\n\n")
		b.WriteString(ch.Content + "\n\n")
		if i < len(doc.Chapters)-1 {
			b.WriteString(ChapterDivider + "\n\n")
		}
	}

	b.WriteString(horizontalRule + "\n\n")
	b.WriteString(ClosingLine + "\n\n")
	b.WriteString(SignOff)
	return b.String()
}

// Validate returns every problem found; it does not stop at the first.
func Validate(doc *Document) []string {
	var issues []string
	if doc == nil {
		return []string{"Missing story title", "No chapters found"}
	}
	if strings.TrimSpace(doc.Title) == "" {
		issues = append(issues, "Missing story title")
	}
	if len(doc.Chapters) == 0 {
		return append(issues, "No chapters found")
	}
	for i, ch := range doc.Chapters {
		n := i + 1
		if strings.TrimSpace(ch.Title) == "" {
			issues = append(issues, fmt.Sprintf("Chapter %d missing title", n))
		}
		if strings.TrimSpace(ch.Content) == "" {
			issues = append(issues, fmt.Sprintf("Chapter %d has no content", n))
		}
		if ch.WordCount < MinChapterWords {
			issues = append(issues, fmt.Sprintf("Chapter %d is too short", n))
		}
	}
	return issues
}
