package chunker

import (
	"strings"
	"testing"
)

func TestSplitIntoChunksShortInputIsOneTrimmedChunk(t *testing.T) {
	chunks := SplitIntoChunks("  The cat sat. It napped!  \n", 2000)
	if len(chunks) != 1 || chunks[0] != "The cat sat. It napped!" {
		t.Fatalf("got %q", chunks)
	}
}

func TestSplitIntoChunksBlankInput(t *testing.T) {
	if got := SplitIntoChunks(" \n\t ", 100); len(got) != 0 {
		t.Fatalf("expected no chunks, got %q", got)
	}
}

func TestSplitIntoChunksKeepsSentencesWhole(t *testing.T) {
	var sentences []string
	for i := 0; i < 60; i++ {
		sentences = append(sentences, "The cat inspected the sunbeam with great care and no hurry at all.")
		sentences = append(sentences, "Was it warm enough?")
		sentences = append(sentences, "Absolutely!")
	}
	text := strings.Join(sentences, " ")
	chunks := SplitIntoChunks(text, 200)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d is %d bytes", i, len(c))
		}
		if last := c[len(c)-1]; last != '.' && last != '!' && last != '?' {
			t.Errorf("chunk %d ends mid-sentence: %q", i, c)
		}
	}
	if got := strings.Join(chunks, " "); got != text {
		t.Fatal("joined chunks do not reproduce the sentence sequence")
	}
}

func TestSplitIntoChunksCollapsesSeparatingWhitespace(t *testing.T) {
	text := "First sentence here.\n\nSecond sentence follows!   Third one?\tFourth."
	chunks := SplitIntoChunks(text, 25)
	want := "First sentence here. Second sentence follows! Third one? Fourth."
	if got := strings.Join(chunks, " "); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitIntoChunksOversizedSentenceStandsAlone(t *testing.T) {
	long := strings.Repeat("meow", 100) + "."
	text := "Short one. " + long + " Another short one."
	chunks := SplitIntoChunks(text, 50)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != long {
		t.Fatalf("oversized sentence was altered")
	}
}

func TestSplitIntoParagraphs(t *testing.T) {
	text := "First paragraph is long enough.\n\n  tiny  \n\nSecond paragraph is also fine.\n   \nThird paragraph after a spaced blank line."
	got := SplitIntoParagraphs(text)
	want := []string{
		"First paragraph is long enough.",
		"Second paragraph is also fine.",
		"Third paragraph after a spaced blank line.",
	}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"The cat's well-being matters.", 4},
		{"Chapter 1: The Nap", 3},
		{"  meow\n\nmeow  ", 2},
		{"123 456 !!", 0},
	}
	for _, tt := range tests {
		if got := WordCount(tt.in); got != tt.want {
			t.Errorf("WordCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
