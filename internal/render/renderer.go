// Package render lays a formatted cat narrative out as a PDF: a cover, one
// section per chapter and a closing page.
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/chunker"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/story"
	"github.com/dustin/go-humanize"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// PageBreakY is the cursor height (mm) past which a chapter starts on a
	// fresh page.
	PageBreakY = 200

	// MinNarrativeLength is the shortest formatted narrative worth rendering.
	MinNarrativeLength = 100

	pdfSignature = "%PDF-"
	defaultTitle = "A Cat Narrative"
)

// Input is everything the renderer reads from a project.
type Input struct {
	ProjectID        string
	Formatted        string
	FallbackTitle    string
	OriginalFilename string
}

// Artifact is a rendered and validated PDF.
type Artifact struct {
	Data  []byte
	Pages int
}

type Renderer struct {
	newCanvas func(DocumentInfo) Canvas
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Renderer)

// WithCanvas swaps the drawing surface; tests record calls instead of
// producing a PDF.
func WithCanvas(fn func(DocumentInfo) Canvas) Option {
	return func(r *Renderer) { r.newCanvas = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		newCanvas: func(info DocumentInfo) Canvas { return NewFPDFCanvas(info) },
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Requirements lists why in cannot be rendered; empty means it can.
func Requirements(formatted string) []string {
	var issues []string
	if strings.TrimSpace(formatted) == "" {
		issues = append(issues, "No formatted narrative available for PDF generation")
	}
	if len(formatted) < MinNarrativeLength {
		issues = append(issues, "Formatted narrative is too short for PDF generation")
	}
	return issues
}

// Compose draws the whole document onto a fresh canvas.
func (r *Renderer) Compose(in Input) Canvas {
	now := r.now()
	title := ExtractTitle(in.Formatted)
	if title == "" {
		title = in.FallbackTitle
	}
	if title == "" {
		title = defaultTitle
	}

	c := r.newCanvas(DocumentInfo{Title: title, CreatedAt: now})
	r.cover(c, title, in.Formatted, now)
	r.body(c, StripTitle(in.Formatted))
	r.closing(c, in.OriginalFilename, now)
	return c
}

// Render composes, serializes and validates the PDF.
func (r *Renderer) Render(ctx context.Context, in Input) (*Artifact, error) {
	if issues := Requirements(in.Formatted); len(issues) > 0 {
		return nil, &models.RenderError{Reason: strings.Join(issues, "; ")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &models.RenderError{Reason: "render cancelled", Err: err}
	}

	var buf bytes.Buffer
	if err := r.Compose(in).Output(&buf); err != nil {
		return nil, &models.RenderError{Reason: "failed to serialize PDF", Err: err}
	}
	art, err := Finalize(buf.Bytes())
	if err != nil {
		return nil, err
	}
	r.logger.Info("PDF rendered.", "projectId", in.ProjectID, "pages", art.Pages, "size", humanize.Bytes(uint64(len(art.Data))))
	return art, nil
}

func (r *Renderer) cover(c Canvas, title, formatted string, now time.Time) {
	c.AddPage()
	c.SetTextColor(51, 65, 85)
	c.Ln(60)

	c.SetFont("B", 20)
	c.Text(12, title, "C")
	c.Ln(15)

	c.SetFont("I", 14)
	c.SetTextColor(100, 116, 139)
	c.Text(8, "A Feline Perspective", "C")
	c.Ln(5)
	c.Text(8, "Brought to you by a very sophisticated cat", "C")

	c.Ln(30)
	c.SetFont("", 10)
	c.SetTextColor(148, 163, 184)
	words := chunker.WordCount(formatted)
	info := fmt.Sprintf("Word Count: %s words\nEstimated Reading Time: %d minute(s)\nGenerated: %s",
		humanize.Comma(int64(words)), story.ReadingTime(words), now.Format("January 2, 2006"))
	c.Text(5, info, "C")
}

func (r *Renderer) body(c Canvas, content string) {
	c.AddPage()
	c.SetTextColor(30, 41, 59)

	intro, chapters := SplitSections(content)
	if intro != nil {
		r.section(c, *intro)
	}
	for _, s := range chapters {
		r.section(c, s)
	}
}

func (r *Renderer) section(c Canvas, s Section) {
	if s.Title != "" {
		if c.GetY() > PageBreakY {
			c.AddPage()
		}
		c.Ln(8)
		c.SetFont("B", 16)
		c.SetTextColor(51, 65, 85)
		c.Text(8, s.Title, "L")
		c.Ln(4)
	}

	c.SetFont("", 11)
	c.SetTextColor(30, 41, 59)
	for _, para := range strings.Split(s.Content, "\n\n") {
		para = strings.TrimSpace(para)
		switch {
		case para == "":
			continue
		case para == "---":
			continue
		case para == story.ChapterDivider:
			c.Text(6, "* * *", "C")
			c.Ln(4)
			continue
		}
		if spans, rich := ParseInline(para); rich {
			c.RichText(6, spans)
		} else {
			c.Text(6, para, "L")
		}
		c.Ln(4)
	}
	c.Ln(4)
}

func (r *Renderer) closing(c Canvas, filename string, now time.Time) {
	c.AddPage()
	c.Ln(60)

	c.SetFont("B", 18)
	c.SetTextColor(51, 65, 85)
	c.Text(12, "The End", "C")
	c.Ln(10)

	c.SetFont("", 14)
	c.SetTextColor(100, 116, 139)
	c.Text(8, "Purr-fectly narrated by your friendly neighborhood cat", "C")
	c.Ln(20)

	c.SetFont("", 9)
	c.SetTextColor(148, 163, 184)
	info := fmt.Sprintf("Generated by Cat Narrative Generator\nOriginal document: %s\nCreated: %s",
		filename, now.Format("January 2, 2006 at 3:04 PM"))
	c.Text(4, info, "C")
}

// Finalize validates the serialized PDF with pdfcpu, optimizes it and counts
// its pages.
func Finalize(data []byte) (*Artifact, error) {
	if !HasPDFSignature(data) {
		return nil, &models.RenderError{Reason: "output does not start with a PDF signature"}
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, &models.RenderError{Reason: "PDF failed validation", Err: err}
	}
	var optimized bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &optimized, conf); err != nil {
		return nil, &models.RenderError{Reason: "failed to optimize PDF", Err: err}
	}
	pages, err := api.PageCount(bytes.NewReader(optimized.Bytes()), conf)
	if err != nil {
		return nil, &models.RenderError{Reason: "failed to count PDF pages", Err: err}
	}
	return &Artifact{Data: optimized.Bytes(), Pages: pages}, nil
}

// HasPDFSignature reports whether data opens with the %PDF- magic.
func HasPDFSignature(data []byte) bool {
	return bytes.HasPrefix(data, []byte(pdfSignature))
}

// ArtifactPath names the stored PDF for a project.
func ArtifactPath(projectID string, at time.Time) string {
	return fmt.Sprintf("pdfs/cat_narrative_%s_%d.pdf", projectID, at.Unix())
}

// EstimateGenerationTime is 5s plus a second per thousand words, at least one.
func EstimateGenerationTime(formatted string) time.Duration {
	words := chunker.WordCount(formatted)
	factor := max(1, words/1000)
	return 5*time.Second + time.Duration(factor)*time.Second
}

// EstimateArtifactSize is a rough byte count for progress display.
func EstimateArtifactSize(formatted string) int64 {
	return int64(50000 + float64(len(formatted))*0.5)
}
