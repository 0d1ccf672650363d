package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/avast/retry-go/v4"
	"google.golang.org/api/googleapi"
)

// GCS keeps blobs as objects in one bucket.
type GCS struct {
	bucket *storage.BucketHandle
	name   string
}

func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{bucket: client.Bucket(bucket), name: bucket}
}

func (g *GCS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.bucket.Object(path).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	}
	return false, fmt.Errorf("failed to stat gs://%s/%s: %w", g.name, path, err)
}

func (g *GCS) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := g.bucket.Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", g.name, path, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", g.name, path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.name, path, err)
	}
	return data, nil
}

// Put uploads with bounded exponential backoff. Each attempt gets its own
// write deadline.
func (g *GCS) Put(ctx context.Context, path string, data []byte) error {
	return retry.Do(
		func() error {
			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()
			w := g.bucket.Object(path).NewWriter(writeCtx)
			if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
				_ = w.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Upload failed, will retry.", "gcsObject", path, "attempt", n+1, "error", err)
		}),
	)
}

// PutIfAbsent writes only when the object does not exist yet. An existing
// object is not an error: the write is skipped.
func (g *GCS) PutIfAbsent(ctx context.Context, path string, data []byte) (bool, error) {
	w := g.bucket.Object(path).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return false, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("Object already exists, skipping.", "gcsObject", path)
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return true, nil
}

func (g *GCS) Delete(ctx context.Context, path string) error {
	err := g.bucket.Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", g.name, path, err)
	}
	return nil
}

func (g *GCS) Size(ctx context.Context, path string) (int64, error) {
	attrs, err := g.bucket.Object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, fmt.Errorf("gs://%s/%s: %w", g.name, path, ErrNotExist)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat gs://%s/%s: %w", g.name, path, err)
	}
	return attrs.Size, nil
}
