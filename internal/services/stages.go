// Package services binds the pipeline stages to their collaborators and
// exposes them as the units the deployable functions run.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/blob"
	"github.com/Lllllllleong/catstoryflow/internal/extract"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/narrator"
	"github.com/Lllllllleong/catstoryflow/internal/pipeline"
	"github.com/Lllllllleong/catstoryflow/internal/render"
	"github.com/Lllllllleong/catstoryflow/internal/story"
)

const (
	MinExtractedLength = 10
	MinNarrativeLength = 50
	MinFormattedLength = 100
)

// Default policies per stage.
var (
	ExtractPolicy = pipeline.RetryPolicy{Attempts: 3, AttemptTimeout: 300 * time.Second, Deadline: 15 * time.Minute, Delay: 2 * time.Second}
	NarratePolicy = pipeline.RetryPolicy{Attempts: 2, AttemptTimeout: 600 * time.Second, Deadline: 30 * time.Minute, Delay: 5 * time.Second}
	FormatPolicy  = pipeline.RetryPolicy{Attempts: 2, AttemptTimeout: 300 * time.Second, Deadline: 15 * time.Minute, Delay: 2 * time.Second}
	RenderPolicy  = pipeline.RetryPolicy{Attempts: 2, AttemptTimeout: 300 * time.Second, Deadline: 15 * time.Minute, Delay: 2 * time.Second}
)

// Deps are the collaborators the four stages need.
type Deps struct {
	Blobs     blob.Storage
	Extractor *extract.Extractor
	Narrator  *narrator.Narrator
	Formatter *story.Formatter
	Renderer  *render.Renderer
	Now       func() time.Time
	// Policies overrides the default policy of individual stages.
	Policies map[models.StageName]pipeline.RetryPolicy
}

// Stages returns the pipeline in order.
func Stages(d Deps) []pipeline.Stage {
	if d.Now == nil {
		d.Now = time.Now
	}
	stages := []pipeline.Stage{
		ExtractStage(d.Extractor),
		NarrateStage(d.Narrator),
		FormatStage(d.Formatter),
		RenderStage(d.Renderer, d.Blobs, d.Now),
	}
	for i, s := range stages {
		if p, ok := d.Policies[s.Name]; ok {
			stages[i].Policy = p
		}
	}
	return stages
}

func ExtractStage(ex *extract.Extractor) pipeline.Stage {
	return pipeline.Stage{
		Name:   models.StageExtractText,
		Title:  "Text extraction",
		From:   models.StatusUploaded,
		Active: models.StatusExtractingText,
		To:     models.StatusTextExtracted,
		Policy: ExtractPolicy,
		Work: func(ctx context.Context, p *models.Project) (models.Patch, error) {
			text, err := ex.ExtractText(ctx, p.FilePath, p.FileType)
			if err != nil {
				return models.Patch{}, err
			}
			if len(strings.TrimSpace(text)) < MinExtractedLength {
				return models.Patch{}, models.Permanent(&models.ExtractionError{
					Reason: fmt.Sprintf("extracted text is empty or shorter than %d characters", MinExtractedLength),
				})
			}
			return models.Patch{ExtractedText: models.Ptr(text)}, nil
		},
		Fail: func(err error) error {
			return typedFailure(err, func(err error) *models.ExtractionError {
				return &models.ExtractionError{Reason: "extraction did not complete", Err: err}
			})
		},
	}
}

// NarrateStage leaves the project in converting_to_cat; the narrative
// field being set is what marks the conversion as done.
func NarrateStage(n *narrator.Narrator) pipeline.Stage {
	return pipeline.Stage{
		Name:   models.StageConvertToCat,
		Title:  "Cat narrative conversion",
		From:   models.StatusTextExtracted,
		Active: models.StatusConvertingToCat,
		To:     models.StatusConvertingToCat,
		Requires: func(p *models.Project) string {
			if strings.TrimSpace(p.ExtractedText) == "" {
				return "no extracted text to convert"
			}
			return ""
		},
		Done: func(p *models.Project) bool {
			return p.Status == models.StatusConvertingToCat && strings.TrimSpace(p.CatNarrative) != ""
		},
		Policy: NarratePolicy,
		Work: func(ctx context.Context, p *models.Project) (models.Patch, error) {
			if err := n.Configured(); err != nil {
				return models.Patch{}, models.Permanent(&models.TransformationError{Reason: "narrator credentials are missing", Err: err})
			}
			if !n.ValidateReadiness(ctx) {
				return models.Patch{}, &models.TransformationError{Reason: "narrator is not ready, check its connectivity"}
			}
			out, err := n.Transform(ctx, p.ExtractedText)
			if err != nil {
				return models.Patch{}, err
			}
			if len(strings.TrimSpace(out)) < MinNarrativeLength {
				return models.Patch{}, &models.TransformationError{
					Reason: fmt.Sprintf("narrative is empty or shorter than %d characters", MinNarrativeLength),
				}
			}
			return models.Patch{CatNarrative: models.Ptr(out)}, nil
		},
		Fail: func(err error) error {
			return typedFailure(err, func(err error) *models.TransformationError {
				return &models.TransformationError{Reason: "conversion did not complete", Err: err}
			})
		},
	}
}

func FormatStage(f *story.Formatter) pipeline.Stage {
	return pipeline.Stage{
		Name:   models.StageFormatNarrative,
		Title:  "Text formatting",
		From:   models.StatusConvertingToCat,
		Active: models.StatusFormatting,
		To:     models.StatusGeneratingPDF,
		Requires: func(p *models.Project) string {
			if strings.TrimSpace(p.CatNarrative) == "" {
				return "no cat narrative to format yet"
			}
			return ""
		},
		Policy: FormatPolicy,
		Work: func(ctx context.Context, p *models.Project) (models.Patch, error) {
			if err := ctx.Err(); err != nil {
				return models.Patch{}, err
			}
			doc := f.BuildDocument(p.CatNarrative, p.Title)
			if issues := story.Validate(doc); len(issues) > 0 {
				return models.Patch{}, models.Permanent(&models.StructuringError{Reason: "story failed validation", Issues: issues})
			}
			text := story.RenderToText(doc)
			if len(strings.TrimSpace(text)) < MinFormattedLength {
				return models.Patch{}, models.Permanent(&models.StructuringError{
					Reason: fmt.Sprintf("formatted narrative is empty or shorter than %d characters", MinFormattedLength),
				})
			}
			return models.Patch{FormattedNarrative: models.Ptr(text)}, nil
		},
		Fail: func(err error) error {
			return typedFailure(err, func(err error) *models.StructuringError {
				return &models.StructuringError{Reason: err.Error()}
			})
		},
	}
}

// RenderStage runs from generating_pdf, which both the formatting stage and
// a regeneration request leave the project in.
func RenderStage(r *render.Renderer, blobs blob.Storage, now func() time.Time) pipeline.Stage {
	return pipeline.Stage{
		Name:   models.StageGeneratePDF,
		Title:  "PDF generation",
		From:   models.StatusGeneratingPDF,
		Active: models.StatusGeneratingPDF,
		To:     models.StatusCompleted,
		Requires: func(p *models.Project) string {
			return strings.Join(render.Requirements(p.FormattedNarrative), "; ")
		},
		Policy: RenderPolicy,
		Work: func(ctx context.Context, p *models.Project) (models.Patch, error) {
			art, err := r.Render(ctx, render.Input{
				ProjectID:        p.ID,
				Formatted:        p.FormattedNarrative,
				FallbackTitle:    p.Title,
				OriginalFilename: p.OriginalFilename,
			})
			if err != nil {
				return models.Patch{}, err
			}
			path := render.ArtifactPath(p.ID, now())
			if err := blobs.Put(ctx, path, art.Data); err != nil {
				return models.Patch{}, &models.RenderError{Reason: "failed to store PDF", Err: err}
			}
			if err := verifyArtifact(ctx, blobs, path); err != nil {
				if delErr := blobs.Delete(ctx, path); delErr != nil {
					err = errors.Join(err, delErr)
				}
				return models.Patch{}, err
			}
			return models.Patch{PDFPath: models.Ptr(path)}, nil
		},
		Fail: func(err error) error {
			return typedFailure(err, func(err error) *models.RenderError {
				return &models.RenderError{Reason: "PDF generation did not complete", Err: err}
			})
		},
	}
}

// typedFailure returns err's typed stage error when err is nothing more
// than that error, and wraps it otherwise so context such as a deadline
// stays in the message.
func typedFailure[T error](err error, wrap func(error) T) error {
	var typed T
	if errors.As(err, &typed) && typed.Error() == err.Error() {
		return typed
	}
	return wrap(err)
}

// verifyArtifact reads the stored PDF back and checks its signature.
func verifyArtifact(ctx context.Context, blobs blob.Storage, path string) error {
	if path == "" {
		return &models.RenderError{Reason: "renderer returned an empty artifact path"}
	}
	ok, err := blobs.Exists(ctx, path)
	if err != nil {
		return &models.RenderError{Reason: "failed to check stored PDF", Err: err}
	}
	if !ok {
		return &models.RenderError{Reason: "stored PDF does not exist at " + path}
	}
	data, err := blobs.Get(ctx, path)
	if err != nil {
		return &models.RenderError{Reason: "failed to read stored PDF", Err: err}
	}
	if !render.HasPDFSignature(data) {
		return &models.RenderError{Reason: "stored file at " + path + " is not a PDF"}
	}
	return nil
}
