package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/pipeline"
	"github.com/Lllllllleong/catstoryflow/internal/store"
)

// StageFunction runs one stage per request; the workflow calls one
// deployment of it per stage.
type StageFunction struct {
	runner pipeline.Runner
	stage  models.StageName
}

func NewStageFunction(runner pipeline.Runner, stage models.StageName) *StageFunction {
	return &StageFunction{runner: runner, stage: stage}
}

func (f *StageFunction) Process(ctx context.Context, req *models.StageRequest) (*models.StageResponse, error) {
	if req.ProjectID == "" {
		return nil, models.Permanent(errors.New("projectId is required"))
	}
	p, err := f.runner.Run(ctx, models.StageTask{ProjectID: req.ProjectID, Stage: f.stage, ExecutionID: req.ExecutionID})
	if err != nil {
		return nil, err
	}
	return &models.StageResponse{ProjectID: p.ID, Status: p.Status}, nil
}

// IntakeFunction turns bucket notifications into projects.
type IntakeFunction struct {
	projects *pipeline.Projects
}

func NewIntakeFunction(projects *pipeline.Projects) *IntakeFunction {
	return &IntakeFunction{projects: projects}
}

// Process registers the object. Objects that can never become a project
// are logged and acknowledged so the notification is not redelivered.
func (f *IntakeFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")
	p, err := f.projects.Register(ctx, e.Name)
	if err != nil {
		if models.IsPermanent(err) {
			logCtx.Warn("Object ignored.", "reason", err)
			return nil
		}
		logCtx.Error("Failed to register upload", "error", err)
		return err
	}
	logCtx.Info("Hand-off to pipeline complete.", "projectId", p.ID)
	return nil
}

type RegenerateFunction struct {
	projects *pipeline.Projects
}

func NewRegenerateFunction(projects *pipeline.Projects) *RegenerateFunction {
	return &RegenerateFunction{projects: projects}
}

func (f *RegenerateFunction) Process(ctx context.Context, req *models.RegenerateRequest) (*models.StageResponse, error) {
	if req.ProjectID == "" {
		return nil, models.Permanent(errors.New("projectId is required"))
	}
	p, err := f.projects.Regenerate(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to regenerate PDF: %w", err)
	}
	return &models.StageResponse{ProjectID: p.ID, Status: p.Status}, nil
}

// ResumeFunction restarts a project whose next stage was never dispatched.
type ResumeFunction struct {
	projects *pipeline.Projects
}

func NewResumeFunction(projects *pipeline.Projects) *ResumeFunction {
	return &ResumeFunction{projects: projects}
}

func (f *ResumeFunction) Process(ctx context.Context, req *models.ResumeRequest) (*models.StageResponse, error) {
	if req.ProjectID == "" {
		return nil, models.Permanent(errors.New("projectId is required"))
	}
	p, err := f.projects.Resume(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resume project: %w", err)
	}
	return &models.StageResponse{ProjectID: p.ID, Status: p.Status}, nil
}

// HTTPStatus maps a processing error to the response code the workflow
// acts on: 4xx codes are not retried by the workflow.
func HTTPStatus(err error) int {
	var precondition *models.PreconditionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &precondition):
		return http.StatusConflict
	case models.IsPermanent(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
