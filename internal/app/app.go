package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Lllllllleong/catstoryflow/internal/blob"
	"github.com/Lllllllleong/catstoryflow/internal/extract"
	"github.com/Lllllllleong/catstoryflow/internal/gcp"
	"github.com/Lllllllleong/catstoryflow/internal/narrator"
	"github.com/Lllllllleong/catstoryflow/internal/pipeline"
	"github.com/Lllllllleong/catstoryflow/internal/render"
	"github.com/Lllllllleong/catstoryflow/internal/services"
	"github.com/Lllllllleong/catstoryflow/internal/store"
	"github.com/Lllllllleong/catstoryflow/internal/story"
)

// App is a fully wired pipeline.
type App struct {
	Config       Config
	Store        store.ProjectStore
	Blobs        blob.Storage
	Narrator     *narrator.Narrator
	Orchestrator *pipeline.Orchestrator
	Projects     *pipeline.Projects
	// Queue is set for local runs only; in the cloud, Cloud Workflows
	// executes dispatched stages.
	Queue *pipeline.LocalQueue

	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewChatClient selects the narrator backend.
func NewChatClient(ctx context.Context, cfg Config) (narrator.ChatClient, func() error, error) {
	noop := func() error { return nil }
	switch cfg.NarratorBackend {
	case BackendOpenAI, "":
		return narrator.NewOpenAI(narrator.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}), noop, nil
	case BackendVertex:
		vc, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion)
		if err != nil {
			return nil, nil, err
		}
		return vc, vc.Close, nil
	case BackendEcho:
		return narrator.Echo{}, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown narrator backend %q (want openai, vertex or echo)", cfg.NarratorBackend)
}

func (a *App) stages(logger *slog.Logger) []pipeline.Stage {
	return services.Stages(services.Deps{
		Blobs:     a.Blobs,
		Extractor: extract.New(a.Blobs, logger),
		Narrator:  a.Narrator,
		Formatter: story.NewFormatter(),
		Renderer:  render.New(render.WithLogger(logger)),
	})
}

// NewLocal wires SQLite, the local filesystem and an in-process worker
// queue. The queue runs until Close.
func NewLocal(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg}

	blobs, err := blob.NewLocal(filepath.Join(cfg.DataDir, "storage"))
	if err != nil {
		return nil, err
	}
	a.Blobs = blobs

	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	client, closeClient, err := NewChatClient(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeClient)
	a.Narrator = narrator.New(client, cfg.NarratorConfig(logger))

	a.Queue = pipeline.NewLocalQueue(cfg.Workers, logger)
	router := pipeline.NewRouter(a.Queue, logger)
	a.Orchestrator = pipeline.NewOrchestrator(a.Store, router, logger, a.stages(logger)...)
	a.Projects = pipeline.NewProjects(a.Store, a.Blobs, router, logger)
	a.Queue.Start(ctx, a.Orchestrator)
	a.closers = append(a.closers, a.Queue.Close)

	logger.Debug("Local pipeline initialized.", "dataDir", cfg.DataDir, "narrator", client.Name(), "workers", cfg.Workers)
	return a, nil
}

// NewCloud wires Firestore, Cloud Storage and Cloud Workflows.
func NewCloud(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.ValidateCloud(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}

	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	a.Store = store.NewFirestore(fsClient, cfg.FirestoreCollection)
	a.closers = append(a.closers, a.Store.Close)

	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Blobs = blob.NewGCS(storageClient, cfg.ArtifactBucket)
	a.closers = append(a.closers, storageClient.Close)

	dispatcher, err := gcp.NewWorkflowDispatcher(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, dispatcher.Close)

	client, closeClient, err := NewChatClient(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeClient)
	a.Narrator = narrator.New(client, cfg.NarratorConfig(logger))

	router := pipeline.NewRouter(dispatcher, logger)
	a.Orchestrator = pipeline.NewOrchestrator(a.Store, router, logger, a.stages(logger)...)
	a.Projects = pipeline.NewProjects(a.Store, a.Blobs, router, logger)

	logger.Info("Cloud pipeline initialized.", "workflowId", cfg.WorkflowID, "bucket", cfg.ArtifactBucket, "narrator", client.Name())
	return a, nil
}

// NewCloudFromEnv is the init path of every Cloud Function.
func NewCloudFromEnv(ctx context.Context, logger *slog.Logger) (*App, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return NewCloud(ctx, cfg, logger)
}
