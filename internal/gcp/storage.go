package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

func NewStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return client, nil
}

// ParseGCSEvent decodes an object-finalized cloudevent.
func ParseGCSEvent(e cloudevents.Event) (models.GCSEvent, error) {
	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		return models.GCSEvent{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	if gcsEvent.Bucket == "" || gcsEvent.Name == "" {
		return models.GCSEvent{}, fmt.Errorf("event %s has no bucket or object name", e.ID())
	}
	return gcsEvent, nil
}

// ObjectSize parses the decimal size string carried by storage events.
func ObjectSize(e models.GCSEvent) (int64, error) {
	if e.Size == "" {
		return 0, fmt.Errorf("event for %s carries no size", e.Name)
	}
	return strconv.ParseInt(e.Size, 10, 64)
}
