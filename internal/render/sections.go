package render

import (
	"regexp"
	"strings"
)

var (
	titleLine     = regexp.MustCompile(`(?m)^# (.+)$`)
	chapterLine   = regexp.MustCompile(`(?m)^## (.+)$`)
	extraNewlines = regexp.MustCompile(`\n{3,}`)
	boldMarkup    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicMarkup  = regexp.MustCompile(`_([^_]+)_`)
)

// Section is a run of paragraphs, optionally under a chapter heading. The
// intro section has an empty Title.
type Section struct {
	Title   string
	Content string
}

// ExtractTitle returns the first top-level heading, or "".
func ExtractTitle(formatted string) string {
	if m := titleLine.FindStringSubmatch(formatted); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// StripTitle removes top-level headings; the title goes on the cover.
func StripTitle(formatted string) string {
	content := titleLine.ReplaceAllString(formatted, "")
	return strings.TrimSpace(extraNewlines.ReplaceAllString(content, "\n\n"))
}

// SplitSections cuts content at each "## " heading. Text ahead of the first
// heading becomes the intro.
func SplitSections(content string) (intro *Section, chapters []Section) {
	locs := chapterLine.FindAllStringSubmatchIndex(content, -1)
	end := len(content)
	if len(locs) > 0 {
		end = locs[0][0]
	}
	if head := strings.TrimSpace(content[:end]); head != "" {
		intro = &Section{Content: head}
	}
	for i, loc := range locs {
		bodyEnd := len(content)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		chapters = append(chapters, Section{
			Title:   strings.TrimSpace(content[loc[2]:loc[3]]),
			Content: strings.TrimSpace(content[loc[1]:bodyEnd]),
		})
	}
	return intro, chapters
}

// Span is a run of text in one style.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
}

// ParseInline maps **bold** and, when at least two underscores are present,
// _italic_ markup onto spans. The bool reports whether any markup was found;
// when false the paragraph should go through the plain text call.
func ParseInline(paragraph string) ([]Span, bool) {
	switch {
	case strings.Contains(paragraph, "**"):
		return splitSpans(paragraph, boldMarkup, func(s *Span) { s.Bold = true })
	case strings.Count(paragraph, "_") >= 2:
		return splitSpans(paragraph, italicMarkup, func(s *Span) { s.Italic = true })
	}
	return []Span{{Text: paragraph}}, false
}

func splitSpans(text string, re *regexp.Regexp, style func(*Span)) ([]Span, bool) {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []Span{{Text: text}}, false
	}
	var spans []Span
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			spans = append(spans, Span{Text: text[last:loc[0]]})
		}
		s := Span{Text: text[loc[2]:loc[3]]}
		style(&s)
		spans = append(spans, s)
		last = loc[1]
	}
	if last < len(text) {
		spans = append(spans, Span{Text: text[last:]})
	}
	return spans, true
}
