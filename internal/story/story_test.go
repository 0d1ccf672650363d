package story

import (
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/chunker"
)

type fixedChooser int

func (c fixedChooser) IntN(n int) int { return int(c) % n }

func newTestFormatter() *Formatter {
	at := time.Date(2025, 6, 29, 12, 0, 0, 0, time.UTC)
	return NewFormatter(WithChooser(fixedChooser(0)), WithClock(func() time.Time { return at }))
}

// paragraph returns n words that match none of the chapter themes.
func paragraph(n int) string {
	return strings.TrimSpace(strings.Repeat("whisker ", n-1) + "whisker.")
}

func TestTopic(t *testing.T) {
	tests := []struct{ in, want string }{
		{"The Annual Report of Widgets and Gadgets", "Annual Report Widgets"},
		{"This Adventure", "This Adventure"},
		{"A to Z", "My Adventure"},
		{"", "My Adventure"},
		{"  QUARTERLY   budget  ", "Quarterly Budget"},
	}
	for _, tt := range tests {
		if got := Topic(tt.in); got != tt.want {
			t.Errorf("Topic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildDocumentTitle(t *testing.T) {
	f := newTestFormatter()
	if got := f.BuildDocument(paragraph(20), "Quarterly Budget Review Meeting").Title; got != "The Purrfect Tale of Quarterly Budget Review" {
		t.Fatalf("title = %q", got)
	}
	if got := f.BuildDocument(paragraph(20), "").Title; got != "The Purrfect Tale of This Adventure" {
		t.Fatalf("default title = %q", got)
	}
	g := NewFormatter(WithChooser(fixedChooser(8)))
	if got := g.BuildDocument(paragraph(20), "Budget").Title; got != "Nine Lives and Budget" {
		t.Fatalf("title with chooser 8 = %q", got)
	}
}

func TestBuildDocumentAlwaysHasAChapter(t *testing.T) {
	for _, in := range []string{"Meow.", "tiny", "", "One short paragraph about whiskers."} {
		doc := newTestFormatter().BuildDocument(in, "x")
		if len(doc.Chapters) != 1 {
			t.Errorf("BuildDocument(%q) has %d chapters", in, len(doc.Chapters))
		}
	}
}

func TestBuildDocumentGroupsParagraphsByBudget(t *testing.T) {
	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, paragraph(50))
	}
	text := strings.Join(paras, "\n\n")
	if chunker.WordCount(text) != 1000 {
		t.Fatalf("fixture has %d words", chunker.WordCount(text))
	}

	doc := newTestFormatter().BuildDocument(text, "Story")
	if len(doc.Chapters) != 5 {
		t.Fatalf("expected 5 chapters, got %d", len(doc.Chapters))
	}
	for i, ch := range doc.Chapters {
		if ch.WordCount > 220 {
			t.Errorf("chapter %d has %d words", i+1, ch.WordCount)
		}
		if want := "Chapter " + string(rune('1'+i)) + ": Whisker Twitches and Discoveries"; ch.Title != want {
			t.Errorf("chapter %d title = %q, want %q", i+1, ch.Title, want)
		}
	}
	if doc.TotalWordCount != 1000 || doc.EstimatedReadingTime != 5 {
		t.Fatalf("totals = %d words, %d minutes", doc.TotalWordCount, doc.EstimatedReadingTime)
	}
}

func TestBuildDocumentOverflowByOneParagraph(t *testing.T) {
	text := strings.Join([]string{paragraph(150), paragraph(40), paragraph(30), paragraph(120)}, "\n\n")
	doc := newTestFormatter().BuildDocument(text, "Story")
	got := []int{}
	for _, ch := range doc.Chapters {
		got = append(got, ch.WordCount)
	}
	if len(got) != 2 || got[0] != 190 || got[1] != 150 {
		t.Fatalf("chapter word counts = %v, want [190 150]", got)
	}
}

func TestBuildDocumentSplitsOnMarkers(t *testing.T) {
	text := "Chapter 1: I woke on the keyboard and typed a stern memo to the humans about breakfast.\n\n" +
		"CHAPTER 2 - Later I supervised the printer with great suspicion and a twitching tail."
	doc := newTestFormatter().BuildDocument(text, "Memo")
	if len(doc.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(doc.Chapters))
	}
	if !strings.HasPrefix(doc.Chapters[0].Content, "I woke on the keyboard") {
		t.Fatalf("marker residue left in content: %q", doc.Chapters[0].Content)
	}
	if doc.Chapters[0].Title != "Chapter 1: Human Relations" {
		t.Fatalf("chapter 1 title = %q", doc.Chapters[0].Title)
	}
}

func TestBuildDocumentPrefersChapterOverPartMarkers(t *testing.T) {
	text := "Part 1 of my day. Chapter 1 I sat on the warm laptop all morning long and refused to move for anyone. " +
		"Chapter 2 I watched the printer spit out paper and judged every single page it produced."
	doc := newTestFormatter().BuildDocument(text, "Day")
	if len(doc.Chapters) != 2 {
		t.Fatalf("expected the short preface merged into chapter 1, got %d chapters", len(doc.Chapters))
	}
	if strings.Contains(doc.Chapters[len(doc.Chapters)-1].Content, "Chapter 2") {
		t.Fatal("text was not split on chapter markers")
	}
}

func TestBuildDocumentMergesShortTrailingChapter(t *testing.T) {
	text := paragraph(200) + "\n\n" + "The very end, meow."
	doc := newTestFormatter().BuildDocument(text, "Story")
	if len(doc.Chapters) != 1 {
		t.Fatalf("expected short tail merged, got %d chapters", len(doc.Chapters))
	}
	if issues := Validate(doc); len(issues) != 0 {
		t.Fatalf("unexpected issues %v", issues)
	}
}

func TestValidateBuiltDocumentsAreClean(t *testing.T) {
	inputs := []string{
		paragraph(12),
		paragraph(199) + "\n\n" + paragraph(3) + "\n\n" + paragraph(205),
		"Chapter 1 " + paragraph(40) + " Chapter 2 tiny bit. Chapter 3 " + paragraph(30),
	}
	for i, in := range inputs {
		doc := newTestFormatter().BuildDocument(in, "Something")
		if issues := Validate(doc); len(issues) != 0 {
			t.Errorf("input %d: unexpected issues %v", i, issues)
		}
	}
}

func TestChapterThemes(t *testing.T) {
	tests := []struct{ content, want string }{
		{"I took a long nap on the report.", "The Art of Perfect Napping"},
		{"The fish in the break room was mine.", "Culinary Adventures"},
		{"A bird outside the window mocked me.", "Window Watching Wisdom"},
		{"My human typed all day.", "Human Relations"},
		{"I pounce on the stapler.", "The Hunter's Tale"},
	}
	for _, tt := range tests {
		got, ok := ThemeFor(tt.content)
		if !ok || got != tt.want {
			t.Errorf("ThemeFor(%q) = %q, %v", tt.content, got, ok)
		}
	}
	if _, ok := ThemeFor("whisker whisker"); ok {
		t.Fatal("expected no theme")
	}
}

func TestNormalizeContent(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  one.\n\n\n\ntwo.  ", "one.\n\ntwo."},
		{"\"Feed me now\"\nshe said.", "    \"Feed me now\"\nshe said."},
		{"Done.Next thing!   Then?\tOkay.", "Done. Next thing! Then? Okay."},
		{"First.\n\nSecond.", "First.\n\nSecond."},
	}
	for _, tt := range tests {
		if got := NormalizeContent(tt.in); got != tt.want {
			t.Errorf("NormalizeContent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct{ words, want int }{
		{0, 1}, {1, 1}, {224, 1}, {225, 1}, {226, 2}, {450, 2}, {451, 3},
	}
	for _, tt := range tests {
		if got := ReadingTime(tt.words); got != tt.want {
			t.Errorf("ReadingTime(%d) = %d, want %d", tt.words, got, tt.want)
		}
	}
}

func TestRenderToText(t *testing.T) {
	doc := &Document{
		Title: "Paws and Reflect: Budget",
		Chapters: []Chapter{
			{Title: "Chapter 1: Human Relations", Content: "First content."},
			{Title: "Chapter 2: Comfort Seeking", Content: "Second content."},
		},
		TotalWordCount:       1234,
		EstimatedReadingTime: 6,
	}
	want := "# Paws and Reflect: Budget\n\n" +
		"_A feline perspective brought to you by a very sophisticated cat_\n\n" +
		"**Word Count:** 1,234 words  \n" +
		"**Estimated Reading Time:** 6 minute(s)\n\n" +
		"---\n\n" +
		"## Chapter 1: Human Relations\n\nFirst content.\n\n" +
		"🐾 🐾 🐾\n\n" +
		"## Chapter 2: Comfort Seeking\n\nSecond content.\n\n" +
		"---\n\n" +
		"_The End_\n\n" +
		"🐱 **Purr-fectly narrated by your friendly neighborhood cat** 🐱"
	if got := RenderToText(doc); got != want {
		t.Fatalf("RenderToText mismatch:\n%s\n---want---\n%s", got, want)
	}
}

func TestRenderToTextRoundTrip(t *testing.T) {
	text := strings.Join([]string{paragraph(120), "I napped on the spreadsheet.", paragraph(150), paragraph(90)}, "\n\n")
	doc := newTestFormatter().BuildDocument(text, "Spreadsheet Review")
	out := RenderToText(doc)
	if !strings.Contains(out, doc.Title) {
		t.Fatal("rendered text lost the document title")
	}
	for _, ch := range doc.Chapters {
		if !strings.Contains(out, "## "+ch.Title) {
			t.Errorf("rendered text lost %q", ch.Title)
		}
	}
	if got := strings.Count(out, ChapterDivider); got != len(doc.Chapters)-1 {
		t.Fatalf("%d dividers for %d chapters", got, len(doc.Chapters))
	}
}

func TestValidateReportsEveryIssue(t *testing.T) {
	doc := &Document{Chapters: []Chapter{
		{Title: "", Content: "", WordCount: 0},
		{Title: "Chapter 2: Fine", Content: paragraph(12), WordCount: 12},
		{Title: "Chapter 3: Short", Content: "meow", WordCount: 1},
	}}
	want := []string{
		"Missing story title",
		"Chapter 1 missing title",
		"Chapter 1 has no content",
		"Chapter 1 is too short",
		"Chapter 3 is too short",
	}
	got := Validate(doc)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Validate() = %v, want %v", got, want)
	}
	if got := Validate(&Document{Title: "T"}); len(got) != 1 || got[0] != "No chapters found" {
		t.Fatalf("Validate(no chapters) = %v", got)
	}
}

func TestEndToEndShortNarrativeIsOneChapter(t *testing.T) {
	var paras []string
	for i := 0; i < 4; i++ {
		paras = append(paras, paragraph(45))
	}
	paras = append(paras, "Test Document wraps up here with ten more words, truly.")
	text := strings.Join(paras, "\n\n")
	words := chunker.WordCount(text)
	if words != 190 {
		t.Fatalf("fixture has %d words", words)
	}
	doc := newTestFormatter().BuildDocument(text, "Test Document")
	if len(doc.Chapters) != 1 || doc.TotalWordCount != words || doc.EstimatedReadingTime != 1 {
		t.Fatalf("got %d chapters, %d words, %d minutes", len(doc.Chapters), doc.TotalWordCount, doc.EstimatedReadingTime)
	}
}

func TestSeededChooserIsReproducible(t *testing.T) {
	a, b := NewSeededChooser(42), NewSeededChooser(42)
	for i := 0; i < 20; i++ {
		if a.IntN(10) != b.IntN(10) {
			t.Fatal("same seed produced different choices")
		}
	}
}
