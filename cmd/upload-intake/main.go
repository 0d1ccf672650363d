package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/catstoryflow/internal/app"
	"github.com/Lllllllleong/catstoryflow/internal/gcp"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	intakeInstance *services.IntakeFunction
	bucket         string
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("HandleUploadIntake", handleUploadIntake)
}

// main is required by the Go Functions Framework.
func main() {}

// handleUploadIntake receives object-finalized events for the artifact bucket.
// Rendered PDFs land in the same bucket and are ignored.
func handleUploadIntake(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		a, err := app.NewCloudFromEnv(context.Background(), slog.Default())
		if err != nil {
			initErr = err
			return
		}
		bucket = a.Config.ArtifactBucket
		intakeInstance = services.NewIntakeFunction(a.Projects)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	gcsEvent, err := gcp.ParseGCSEvent(e)
	if err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return err
	}
	if gcsEvent.Bucket != bucket {
		slog.Warn("Event for an unexpected bucket, skipping.", "gcsBucket", gcsEvent.Bucket, "want", bucket)
		return nil
	}
	if size, err := gcp.ObjectSize(gcsEvent); err == nil && size > models.MaxUploadSize {
		slog.Warn("Upload exceeds the size limit, skipping.", "gcsObject", gcsEvent.Name, "size", size)
		return nil
	}
	return intakeInstance.Process(ctx, gcsEvent)
}
