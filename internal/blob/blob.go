// Package blob stores uploads and rendered PDFs by logical path
// ("uploads/...", "pdfs/...").
package blob

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get and Size for a missing path.
var ErrNotExist = errors.New("blob does not exist")

type Storage interface {
	Exists(ctx context.Context, path string) (bool, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	// Delete is a no-op for a missing path.
	Delete(ctx context.Context, path string) error
	Size(ctx context.Context, path string) (int64, error)
}
