package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/store"
	"github.com/avast/retry-go/v4"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const (
	// EventStageCompleted is the cloudevent type published after a stage
	// records its success.
	EventStageCompleted = "dev.catstory.stage.completed"
	eventSource         = "//catstoryflow/pipeline"

	// leaseGrace keeps a lease alive past the stage deadline for the
	// failure write.
	leaseGrace     = time.Minute
	publishRetries = 3
)

// EventSink receives stage-completion events.
type EventSink interface {
	Publish(ctx context.Context, e cloudevents.Event) error
}

type Orchestrator struct {
	store        store.ProjectStore
	sink         EventSink
	stages       map[models.StageName]Stage
	logger       *slog.Logger
	now          func() time.Time
	publishDelay time.Duration
}

func NewOrchestrator(st store.ProjectStore, sink EventSink, logger *slog.Logger, stages ...Stage) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:  st,
		sink:   sink,
		stages: make(map[models.StageName]Stage, len(stages)),
		logger: logger,
		now:    time.Now,

		publishDelay: 500 * time.Millisecond,
	}
	for _, s := range stages {
		s.Policy = s.Policy.withDefaults()
		o.stages[s.Name] = s
	}
	return o
}

// Run executes one stage for one project. A project that is not in the
// stage's input status yields a PreconditionError and is left untouched.
// Any other failure is recorded on the project as status failed and
// returned as a permanent error wrapping the stage's typed error.
func (o *Orchestrator) Run(ctx context.Context, task models.StageTask) (*models.Project, error) {
	stage, ok := o.stages[task.Stage]
	if !ok {
		return nil, models.Permanent(fmt.Errorf("unknown stage %q", task.Stage))
	}
	logCtx := o.logger.With("projectId", task.ProjectID, "stage", task.Stage)
	if task.ExecutionID != "" {
		logCtx = logCtx.With("executionId", task.ExecutionID)
	}

	p, err := o.store.Get(ctx, task.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.Permanent(err)
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if !p.Leased(o.now()) && stage.done(p) {
		// A redelivered task for a stage that already succeeded. Publishing
		// again moves a pipeline whose earlier dispatch was lost.
		logCtx.Info("Stage already completed, publishing its event again.", "status", p.Status)
		if err := o.publish(ctx, stage.Name, p); err != nil {
			return p, fmt.Errorf("failed to dispatch after %s: %w", stage.Name, err)
		}
		return p, nil
	}
	if err := o.checkPrecondition(stage, p); err != nil {
		logCtx.Warn("Stage precondition failed, project left unchanged.", "status", p.Status, "error", err)
		return p, err
	}

	runID := uuid.NewString()
	lease := models.Lease{RunID: runID, ExpiresAt: o.now().Add(stage.Policy.Deadline + leaseGrace)}
	p, err = o.store.Claim(ctx, p.ID, stage.From, stage.Active, lease)
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			return nil, conflictPrecondition(task.ProjectID, stage, conflict)
		}
		return nil, fmt.Errorf("failed to start stage: %w", err)
	}
	logCtx = logCtx.With("runId", runID)
	logCtx.Info("Stage started.", "status", p.Status)

	patch, err := o.attempt(ctx, logCtx, stage, p)
	if err != nil {
		return nil, models.Permanent(o.handleError(ctx, logCtx, stage, p.ID, runID, err))
	}

	done, err := o.store.Release(ctx, p.ID, runID, stage.Active, stage.To, patch)
	if err != nil {
		return nil, models.Permanent(o.handleError(ctx, logCtx, stage, p.ID, runID, fmt.Errorf("failed to record result: %w", err)))
	}
	logCtx.Info("Stage completed.", "status", done.Status)

	if err := o.publish(ctx, stage.Name, done); err != nil {
		logCtx.Error("Stage succeeded but the next stage could not be dispatched.", "error", err)
		return done, fmt.Errorf("failed to dispatch after %s: %w", stage.Name, err)
	}
	return done, nil
}

func conflictPrecondition(projectID string, stage Stage, conflict *store.ConflictError) *models.PreconditionError {
	pe := &models.PreconditionError{ProjectID: projectID, Stage: stage.Name, Want: []models.Status{stage.From}, Got: conflict.Got}
	if conflict.RunID != "" {
		pe.Reason = fmt.Sprintf("run %s is already in flight", conflict.RunID)
	}
	return pe
}

func (o *Orchestrator) checkPrecondition(stage Stage, p *models.Project) error {
	if p.Status != stage.From {
		return &models.PreconditionError{ProjectID: p.ID, Stage: stage.Name, Want: []models.Status{stage.From}, Got: p.Status}
	}
	if p.Leased(o.now()) {
		return &models.PreconditionError{ProjectID: p.ID, Stage: stage.Name, Got: p.Status, Reason: fmt.Sprintf("run %s is already in flight", p.RunID)}
	}
	if stage.Requires != nil {
		if reason := stage.Requires(p); reason != "" {
			return &models.PreconditionError{ProjectID: p.ID, Stage: stage.Name, Got: p.Status, Reason: reason}
		}
	}
	return nil
}

// attempt runs the stage work under its retry policy.
func (o *Orchestrator) attempt(ctx context.Context, logCtx *slog.Logger, stage Stage, p *models.Project) (models.Patch, error) {
	policy := stage.Policy
	deadlineCtx, cancel := context.WithTimeout(ctx, policy.Deadline)
	defer cancel()

	var (
		patch   models.Patch
		lastErr error
	)
	err := retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(deadlineCtx, policy.AttemptTimeout)
			defer cancel()
			out, err := stage.Work(attemptCtx, p)
			if err != nil {
				lastErr = err
				return err
			}
			patch = out
			return nil
		},
		retry.Context(deadlineCtx),
		retry.Attempts(policy.Attempts),
		retry.Delay(policy.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !models.IsPermanent(err) }),
		retry.OnRetry(func(n uint, err error) {
			logCtx.Warn("Stage attempt failed, will retry.", "attempt", n+1, "maxAttempts", policy.Attempts, "error", err)
		}),
	)
	if err == nil {
		return patch, nil
	}
	if deadlineCtx.Err() != nil && ctx.Err() == nil {
		if lastErr == nil {
			lastErr = deadlineCtx.Err()
		}
		return models.Patch{}, fmt.Errorf("exceeded %s deadline: %w", policy.Deadline, lastErr)
	}
	if lastErr != nil {
		return models.Patch{}, lastErr
	}
	return models.Patch{}, err
}

// handleError records the failure on the project and returns the stage's
// typed error. The write uses a context that survives cancellation of the
// stage so an aborted run is still marked failed.
func (o *Orchestrator) handleError(ctx context.Context, logCtx *slog.Logger, stage Stage, projectID, runID string, cause error) error {
	typed := stage.failure(cause)
	message := fmt.Sprintf("%s failed: %v", stage.Title, typed)
	logCtx.Error(message, "error", cause)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	_, err := o.store.Release(writeCtx, projectID, runID, stage.Active, models.StatusFailed,
		models.Patch{ErrorMessage: models.Ptr(message)})
	if err != nil {
		logCtx.Error("CRITICAL: Failed to update project status to failed after a stage error.", "updateError", err)
	}
	return typed
}

func (o *Orchestrator) publish(ctx context.Context, name models.StageName, p *models.Project) error {
	if o.sink == nil {
		return nil
	}
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(eventSource)
	e.SetType(EventStageCompleted)
	e.SetSubject(p.ID)
	e.SetTime(o.now())
	if err := e.SetData(cloudevents.ApplicationJSON, models.StageCompleted{ProjectID: p.ID, Stage: name, Status: p.Status}); err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid stage event: %w", err)
	}
	return retry.Do(
		func() error { return o.sink.Publish(ctx, e) },
		retry.Context(ctx),
		retry.Attempts(publishRetries),
		retry.Delay(o.publishDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !models.IsPermanent(err) }),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Warn("Stage event publish failed, will retry.", "projectId", p.ID, "stage", name, "attempt", n+1, "error", err)
		}),
	)
}
