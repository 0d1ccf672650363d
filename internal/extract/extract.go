// Package extract pulls plain text out of uploaded docx, pptx and pdf files.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/blob"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/dustin/go-humanize"
)

// Source reads stored uploads.
type Source interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

type Extractor struct {
	source Source
	logger *slog.Logger
}

func New(source Source, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{source: source, logger: logger}
}

// SupportedTypes lists every type ExtractText accepts.
func SupportedTypes() []models.FileType {
	return []models.FileType{models.FileTypeDOCX, models.FileTypePDF, models.FileTypePPTX}
}

func CanProcess(t models.FileType) bool {
	for _, s := range SupportedTypes() {
		if s == t {
			return true
		}
	}
	return false
}

// EstimateProcessingTime allows 1.5s per MB, never less than 5s.
func EstimateProcessingTime(size int64) time.Duration {
	mb := float64(size) / (1 << 20)
	return max(5*time.Second, time.Duration(mb*1.5*float64(time.Second)))
}

// ExtractText reads path from the source and returns its cleaned text.
func (e *Extractor) ExtractText(ctx context.Context, path string, fileType models.FileType) (string, error) {
	if !CanProcess(fileType) {
		return "", models.Permanent(&models.ExtractionError{Reason: fmt.Sprintf("unsupported file type %q", fileType)})
	}
	data, err := e.source.Get(ctx, path)
	if errors.Is(err, blob.ErrNotExist) {
		return "", models.Permanent(&models.ExtractionError{Reason: "upload " + path + " does not exist", Err: err})
	}
	if err != nil {
		return "", &models.ExtractionError{Reason: "failed to read upload " + path, Err: err}
	}
	e.logger.Info("Extracting text.", "path", path, "fileType", fileType, "size", humanize.IBytes(uint64(len(data))))

	var raw string
	switch fileType {
	case models.FileTypeDOCX:
		raw, err = docxText(data)
	case models.FileTypePPTX:
		raw, err = pptxText(data)
	case models.FileTypePDF:
		raw, err = pdfText(data)
	}
	if err != nil {
		return "", &models.ExtractionError{Reason: fmt.Sprintf("failed to parse %s", fileType), Err: err}
	}
	return CleanText(raw), nil
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^\p{L}\p{N}\s\p{P}]`)
)

// CleanText collapses whitespace and strips anything that is not a letter,
// number, space or punctuation.
func CleanText(text string) string {
	text = disallowed.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
