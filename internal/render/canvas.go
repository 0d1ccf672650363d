package render

import (
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
)

// Canvas is the composition surface the renderer draws on. It never exposes
// the binary format.
type Canvas interface {
	AddPage()
	SetFont(style string, size float64)
	SetTextColor(r, g, b int)
	Ln(h float64)
	GetY() float64
	// Text writes a wrapped block. align is "L", "C" or "R".
	Text(h float64, text, align string)
	// RichText writes one wrapped paragraph of styled spans.
	RichText(h float64, spans []Span)
	Output(w io.Writer) error
}

// DocumentInfo is written into the PDF metadata.
type DocumentInfo struct {
	Title     string
	CreatedAt time.Time
}

const fontFamily = "Helvetica"

// FPDFCanvas draws on an A4 gofpdf document with core fonts.
type FPDFCanvas struct {
	pdf   *gofpdf.Fpdf
	tr    func(string) string
	style string
	size  float64
}

func NewFPDFCanvas(info DocumentInfo) *FPDFCanvas {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreator("Cat Narrative Generator", true)
	pdf.SetAuthor("A Very Sophisticated Cat", true)
	pdf.SetTitle(info.Title, true)
	pdf.SetSubject("Cat Narrative Story", true)
	pdf.SetKeywords("cat, narrative, story, entertainment", true)
	if !info.CreatedAt.IsZero() {
		pdf.SetCreationDate(info.CreatedAt)
	}
	pdf.SetMargins(20, 25, 20)
	pdf.SetAutoPageBreak(true, 25)
	c := &FPDFCanvas{
		pdf:  pdf,
		tr:   pdf.UnicodeTranslatorFromDescriptor(""),
		size: 11,
	}
	c.SetFont("", 11)
	return c
}

func (c *FPDFCanvas) AddPage() { c.pdf.AddPage() }

func (c *FPDFCanvas) SetFont(style string, size float64) {
	c.style, c.size = style, size
	c.pdf.SetFont(fontFamily, style, size)
}

func (c *FPDFCanvas) SetTextColor(r, g, b int) { c.pdf.SetTextColor(r, g, b) }
func (c *FPDFCanvas) Ln(h float64)             { c.pdf.Ln(h) }
func (c *FPDFCanvas) GetY() float64            { return c.pdf.GetY() }

func (c *FPDFCanvas) Text(h float64, text, align string) {
	c.pdf.MultiCell(0, h, c.encode(strings.TrimSpace(text)), "", align, false)
}

func (c *FPDFCanvas) RichText(h float64, spans []Span) {
	base := c.style
	for _, s := range spans {
		style := base
		if s.Bold && !strings.Contains(style, "B") {
			style += "B"
		}
		if s.Italic && !strings.Contains(style, "I") {
			style += "I"
		}
		c.pdf.SetFont(fontFamily, style, c.size)
		c.pdf.Write(h, c.encode(s.Text))
	}
	c.pdf.SetFont(fontFamily, base, c.size)
	c.pdf.Ln(h)
}

func (c *FPDFCanvas) Output(w io.Writer) error {
	return c.pdf.Output(w)
}

// encode drops symbols the core fonts cannot draw (emoji) and maps the rest
// to cp1252.
func (c *FPDFCanvas) encode(s string) string {
	s = strings.Map(func(r rune) rune {
		if r > 0xFF && (unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r) || r == 0xFE0F) {
			return -1
		}
		return r
	}, s)
	return c.tr(s)
}
