package story

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultSeedTitle = "This Adventure"
	fallbackTopic    = "My Adventure"
	topicWords       = 3
)

var titleTemplates = []string{
	"The Purrfect Tale of {topic}",
	"A Cat's Eye View of {topic}",
	"Whiskers and Wisdom: {topic}",
	"The Feline Chronicles: {topic}",
	"Meow-sings on {topic}",
	"Paws and Reflect: {topic}",
	"The Cat's Meow About {topic}",
	"Fur Real Stories: {topic}",
	"Nine Lives and {topic}",
	"The Purr-fessional Guide to {topic}",
}

var chapterTitles = []string{
	"Whisker Twitches and Discoveries",
	"The Great Nap Interruption",
	"Adventures in the Sunbeam",
	"When the Red Dot Appeared",
	"The Mystery of the Empty Food Bowl",
	"Paws for Thought",
	"The Cardboard Castle Chronicles",
	"Midnight Zoomies and Revelations",
	"The Curious Case of the Catnip",
	"Purrs and Ponderings",
	"The Great Window Watch",
	"Tales from the Cat Tree",
	"The Afternoon Contemplation",
	"Whiskers in the Wind",
	"The Epic Yarn Ball Saga",
}

// themes are tried in order; the first match names the chapter. Matching is
// by substring, so "nap" also fires on "snapped".
var themes = []struct {
	pattern  *regexp.Regexp
	subtitle string
}{
	{regexp.MustCompile(`(?i)sleep|nap|snooze`), "The Art of Perfect Napping"},
	{regexp.MustCompile(`(?i)food|eat|hungry|fish`), "Culinary Adventures"},
	{regexp.MustCompile(`(?i)play|toy|mouse|ball`), "Playtime Chronicles"},
	{regexp.MustCompile(`(?i)window|outside|bird`), "Window Watching Wisdom"},
	{regexp.MustCompile(`(?i)human|owner|pet`), "Human Relations"},
	{regexp.MustCompile(`(?i)curious|explore|discover`), "Curious Investigations"},
	{regexp.MustCompile(`(?i)comfortable|cozy|warm`), "Comfort Seeking"},
	{regexp.MustCompile(`(?i)hunt|catch|pounce`), "The Hunter's Tale"},
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "about": true,
}

// Chooser picks an index in [0, n). Tests inject a fixed one.
type Chooser interface {
	IntN(n int) int
}

type randomChooser struct{}

func (randomChooser) IntN(n int) int { return rand.IntN(n) }

type seededChooser struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededChooser returns a reproducible chooser safe for concurrent use.
func NewSeededChooser(seed uint64) Chooser {
	return &seededChooser{rng: rand.New(rand.NewPCG(seed, seed))}
}

func (c *seededChooser) IntN(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IntN(n)
}

// Topic reduces a seed title to at most three meaningful, title-cased words.
func Topic(seed string) string {
	var kept []string
	for _, w := range strings.Fields(strings.ToLower(seed)) {
		if stopWords[w] || len(w) <= 2 {
			continue
		}
		kept = append(kept, w)
		if len(kept) == topicWords {
			break
		}
	}
	if len(kept) == 0 {
		return fallbackTopic
	}
	return cases.Title(language.English).String(strings.Join(kept, " "))
}

func (f *Formatter) storyTitle(seed string) string {
	if strings.TrimSpace(seed) == "" {
		seed = DefaultSeedTitle
	}
	tmpl := titleTemplates[f.chooser.IntN(len(titleTemplates))]
	return strings.ReplaceAll(tmpl, "{topic}", Topic(seed))
}

// ThemeFor returns the subtitle of the first theme found in content.
func ThemeFor(content string) (string, bool) {
	for _, th := range themes {
		if th.pattern.MatchString(content) {
			return th.subtitle, true
		}
	}
	return "", false
}

func (f *Formatter) chapterTitle(n int, content string) string {
	subtitle, ok := ThemeFor(content)
	if !ok {
		subtitle = chapterTitles[f.chooser.IntN(len(chapterTitles))]
	}
	return fmt.Sprintf("Chapter %d: %s", n, subtitle)
}
