package storage

import (
	"context"
	"io"
	"log/slog"

	"github.com/matt-primrose/blob-download-task/pkg/models"
)

// Store is the narrow capability the download task needs from a blob backend.
// Implementations must not retry; retry policy belongs to the vendor client.
type Store interface {
	// OpenReader opens a read stream for the referenced blob.
	// A missing blob or container yields an error matching ErrNotFound.
	OpenReader(ctx context.Context, ref BlobRef) (*Object, error)

	// Exists reports whether the referenced blob exists
	Exists(ctx context.Context, ref BlobRef) (bool, error)

	// CreateContainerIfMissing creates the container when it does not exist yet
	CreateContainerIfMissing(ctx context.Context, container string) error

	// Type returns the storage type name
	Type() string

	// Close releases the underlying client
	Close() error
}

// BlobRef identifies one blob inside a store
type BlobRef struct {
	Container string
	Name      string
	Kind      models.BlobKind
}

// Object is an open read stream plus the metadata known when it was opened.
// Size is -1 when the backend did not report a length.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Options contains common configuration for all storage types
type Options struct {
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// requireBlockKind rejects page and append blobs on backends that only have one object type
func requireBlockKind(backend string, ref BlobRef) error {
	if ref.Kind != models.BlobKindBlock {
		return &UnsupportedKindError{Backend: backend, Kind: ref.Kind}
	}
	return nil
}
