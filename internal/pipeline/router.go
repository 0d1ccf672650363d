package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/catstoryflow/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Dispatcher queues one stage for asynchronous execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, task models.StageTask) error
}

// nextStage is the canonical pipeline order. The render stage has no
// successor.
var nextStage = map[models.StageName]models.StageName{
	models.StageExtractText:     models.StageConvertToCat,
	models.StageConvertToCat:    models.StageFormatNarrative,
	models.StageFormatNarrative: models.StageGeneratePDF,
}

// Router consumes stage-completion events and dispatches whatever comes
// next, so stages never reference their successor.
type Router struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewRouter(d Dispatcher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{dispatcher: d, logger: logger}
}

// Start dispatches the first stage for a freshly uploaded project.
func (r *Router) Start(ctx context.Context, projectID string) error {
	return r.dispatch(ctx, models.StageTask{ProjectID: projectID, Stage: models.StageExtractText})
}

// Rerender dispatches the render stage after a regeneration reset.
func (r *Router) Rerender(ctx context.Context, projectID string) error {
	return r.dispatch(ctx, models.StageTask{ProjectID: projectID, Stage: models.StageGeneratePDF})
}

// Resume dispatches the given stage for a project whose pipeline stalled.
func (r *Router) Resume(ctx context.Context, projectID string, stage models.StageName) error {
	return r.dispatch(ctx, models.StageTask{ProjectID: projectID, Stage: stage})
}

func (r *Router) Publish(ctx context.Context, e cloudevents.Event) error {
	if e.Type() != EventStageCompleted {
		return models.Permanent(fmt.Errorf("unexpected event type %q", e.Type()))
	}
	var done models.StageCompleted
	if err := e.DataAs(&done); err != nil {
		return models.Permanent(fmt.Errorf("failed to decode stage event %s: %w", e.ID(), err))
	}
	next, ok := nextStage[done.Stage]
	if !ok {
		r.logger.Info("Pipeline finished.", "projectId", done.ProjectID, "status", done.Status)
		return nil
	}
	return r.dispatch(ctx, models.StageTask{ProjectID: done.ProjectID, Stage: next})
}

func (r *Router) dispatch(ctx context.Context, task models.StageTask) error {
	if err := r.dispatcher.Dispatch(ctx, task); err != nil {
		return fmt.Errorf("failed to dispatch %s for project %s: %w", task.Stage, task.ProjectID, err)
	}
	r.logger.Debug("Stage dispatched.", "projectId", task.ProjectID, "stage", task.Stage)
	return nil
}
