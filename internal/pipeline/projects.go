package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/blob"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/render"
	"github.com/Lllllllleong/catstoryflow/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const uploadPrefix = "uploads/"

var (
	slugRe         = regexp.MustCompile(`[^a-z0-9]+`)
	uploadStampRe  = regexp.MustCompile(`^\d+_`)
	registrationNS = uuid.MustParse("6f1c9a52-3c1e-4f0a-9b61-2f0d7c6b8e11")
)

// conditionalPutter is implemented by storages that can refuse to
// overwrite an existing object.
type conditionalPutter interface {
	PutIfAbsent(ctx context.Context, path string, data []byte) (bool, error)
}

// Projects is the lifecycle surface around the pipeline: intake,
// regeneration, deletion and lookups.
type Projects struct {
	store  store.ProjectStore
	blobs  blob.Storage
	router *Router
	logger *slog.Logger
	now    func() time.Time
}

func NewProjects(st store.ProjectStore, blobs blob.Storage, router *Router, logger *slog.Logger) *Projects {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projects{store: st, blobs: blobs, router: router, logger: logger, now: time.Now}
}

type Upload struct {
	Filename string
	// Title defaults to the filename without its extension.
	Title string
	Data  []byte
}

// Upload stores a new source document, creates its project and starts
// the pipeline. The returned project is in status uploaded.
func (s *Projects) Upload(ctx context.Context, in Upload) (*models.Project, error) {
	fileType, err := models.ParseFileType(in.Filename)
	if err != nil {
		return nil, err
	}
	if err := checkSize(int64(len(in.Data))); err != nil {
		return nil, err
	}

	stem := fileStem(in.Filename)
	objectPath := fmt.Sprintf("%s%d_%s.%s", uploadPrefix, s.now().Unix(), slugify(stem), fileType)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = stem
	}
	// The record goes first: the bucket notification for the object then
	// finds it and Register leaves it alone.
	p := &models.Project{
		ID:               registrationID(objectPath),
		Title:            title,
		OriginalFilename: path.Base(strings.ReplaceAll(in.Filename, `\`, "/")),
		FilePath:         objectPath,
		FileType:         fileType,
		FileSize:         int64(len(in.Data)),
		Status:           models.StatusUploaded,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	if err := s.putUpload(ctx, objectPath, in.Data); err != nil {
		if delErr := s.store.Delete(ctx, p.ID); delErr != nil {
			s.logger.Error("Failed to remove project without upload.", "projectId", p.ID, "error", delErr)
		}
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	s.logger.Info("Project uploaded.", "projectId", p.ID, "path", objectPath, "size", humanize.IBytes(uint64(p.FileSize)))
	return p, s.start(ctx, p)
}

func (s *Projects) putUpload(ctx context.Context, objectPath string, data []byte) error {
	cp, ok := s.blobs.(conditionalPutter)
	if !ok {
		return s.blobs.Put(ctx, objectPath, data)
	}
	written, err := cp.PutIfAbsent(ctx, objectPath, data)
	if err != nil {
		return err
	}
	if !written {
		return fmt.Errorf("object %s already exists", objectPath)
	}
	return nil
}

// registrationID derives the project ID from the upload's object path.
func registrationID(objectPath string) string {
	return uuid.NewSHA1(registrationNS, []byte(objectPath)).String()
}

// Register creates the project for an upload that already sits in
// storage, as reported by a bucket notification. The project ID is derived
// from the object path, so a redelivered notification returns the existing
// project instead of creating a second one.
func (s *Projects) Register(ctx context.Context, objectPath string) (*models.Project, error) {
	if !strings.HasPrefix(objectPath, uploadPrefix) {
		return nil, models.Permanent(fmt.Errorf("object %s is not under %s", objectPath, uploadPrefix))
	}
	fileType, err := models.ParseFileType(objectPath)
	if err != nil {
		return nil, models.Permanent(err)
	}
	id := registrationID(objectPath)
	if existing, err := s.store.Get(ctx, id); err == nil {
		s.logger.Info("Upload already registered, skipping.", "projectId", id, "path", objectPath)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	size, err := s.blobs.Size(ctx, objectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat upload: %w", err)
	}
	if err := checkSize(size); err != nil {
		return nil, models.Permanent(err)
	}

	filename := uploadStampRe.ReplaceAllString(strings.TrimPrefix(objectPath, uploadPrefix), "")
	p := &models.Project{
		ID:               id,
		Title:            fileStem(filename),
		OriginalFilename: filename,
		FilePath:         objectPath,
		FileType:         fileType,
		FileSize:         size,
		Status:           models.StatusUploaded,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.logger.Info("Project registered.", "projectId", p.ID, "path", objectPath, "size", humanize.IBytes(uint64(size)))
	return p, s.start(ctx, p)
}

func (s *Projects) start(ctx context.Context, p *models.Project) error {
	if s.router == nil {
		return nil
	}
	return s.router.Start(ctx, p.ID)
}

// Regenerate resets a finished project to generating_pdf, removes the
// previous PDF and dispatches the render stage again.
func (s *Projects) Regenerate(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := []models.Status{models.StatusCompleted, models.StatusFailed}
	if !p.Status.IsTerminal() {
		return nil, &models.PreconditionError{ProjectID: id, Stage: models.StageGeneratePDF, Want: allowed, Got: p.Status}
	}
	if issues := render.Requirements(p.FormattedNarrative); len(issues) > 0 {
		return nil, &models.PreconditionError{ProjectID: id, Stage: models.StageGeneratePDF, Got: p.Status, Reason: strings.Join(issues, "; ")}
	}

	oldPDF := p.PDFPath
	p, err = s.store.Transition(ctx, id, allowed, models.StatusGeneratingPDF,
		models.Patch{PDFPath: models.Ptr(""), ErrorMessage: models.Ptr("")})
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			return nil, &models.PreconditionError{ProjectID: id, Stage: models.StageGeneratePDF, Want: allowed, Got: conflict.Got}
		}
		return nil, err
	}
	if oldPDF != "" {
		if err := s.blobs.Delete(ctx, oldPDF); err != nil {
			s.logger.Warn("Failed to delete previous PDF.", "projectId", id, "path", oldPDF, "error", err)
		}
	}
	s.logger.Info("PDF regeneration requested.", "projectId", id)
	if s.router == nil {
		return p, nil
	}
	return p, s.router.Rerender(ctx, id)
}

// Resume dispatches the stage that moves a stalled project on. A project
// left in an active status by a run that died is marked failed instead,
// since its stage can only be claimed from the status before it.
func (s *Projects) Resume(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Leased(s.now()) {
		return nil, &models.PreconditionError{ProjectID: id, Got: p.Status, Reason: fmt.Sprintf("run %s is already in flight", p.RunID)}
	}

	var next models.StageName
	switch {
	case p.Status == models.StatusUploaded:
		next = models.StageExtractText
	case p.Status == models.StatusTextExtracted:
		next = models.StageConvertToCat
	case p.Status == models.StatusConvertingToCat && strings.TrimSpace(p.CatNarrative) != "":
		next = models.StageFormatNarrative
	case p.Status == models.StatusGeneratingPDF:
		next = models.StageGeneratePDF
	case p.Status.IsTerminal():
		return nil, &models.PreconditionError{ProjectID: id, Got: p.Status, Reason: "the pipeline has finished; regenerate the PDF instead"}
	default:
		message := fmt.Sprintf("Processing was interrupted while %s.", strings.ToLower(p.Status.Display()))
		p, err = s.store.Transition(ctx, id, []models.Status{p.Status}, models.StatusFailed, models.Patch{ErrorMessage: models.Ptr(message)})
		if err != nil {
			return nil, fmt.Errorf("failed to mark interrupted project: %w", err)
		}
		s.logger.Warn("Interrupted project marked failed.", "projectId", id)
		return p, nil
	}

	s.logger.Info("Resuming project.", "projectId", id, "status", p.Status, "stage", next)
	if s.router == nil {
		return p, nil
	}
	return p, s.router.Resume(ctx, id, next)
}

// Delete removes the upload and PDF, then the record. The record survives
// if any artifact could not be removed.
func (s *Projects) Delete(ctx context.Context, id string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status.IsProcessing() {
		return &models.PreconditionError{ProjectID: id, Got: p.Status, Reason: "a stage is in flight"}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, objectPath := range []string{p.FilePath, p.PDFPath} {
		if objectPath == "" {
			continue
		}
		g.Go(func() error {
			if err := s.blobs.Delete(gctx, objectPath); err != nil {
				return fmt.Errorf("failed to delete %s: %w", objectPath, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Project deleted.", "projectId", id)
	return nil
}

func (s *Projects) Get(ctx context.Context, id string) (*models.Project, error) {
	return s.store.Get(ctx, id)
}

func (s *Projects) List(ctx context.Context) ([]*models.Project, error) {
	return s.store.List(ctx)
}

// PDF returns the rendered document of a completed project.
func (s *Projects) PDF(ctx context.Context, id string) ([]byte, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.StatusCompleted || p.PDFPath == "" {
		return nil, &models.PreconditionError{ProjectID: id, Stage: models.StageGeneratePDF, Want: []models.Status{models.StatusCompleted}, Got: p.Status}
	}
	return s.blobs.Get(ctx, p.PDFPath)
}

func checkSize(size int64) error {
	if size == 0 {
		return errors.New("upload is empty")
	}
	if size > models.MaxUploadSize {
		return fmt.Errorf("upload of %s exceeds the %s limit",
			humanize.IBytes(uint64(size)), humanize.IBytes(models.MaxUploadSize))
	}
	return nil
}

func fileStem(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func slugify(s string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if slug == "" {
		return "document"
	}
	return slug
}
