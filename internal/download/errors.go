package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/matt-primrose/blob-download-task/internal/storage"
)

var (
	// ErrFileExists is returned under the error policy when the destination file is already present
	ErrFileExists = errors.New("destination file already exists")

	// ErrCancelled is returned when the context ends before the transfer completes.
	// The context's own error is wrapped alongside it.
	ErrCancelled = errors.New("download cancelled")

	// ErrInvalidRequest is returned for malformed sources, destinations or encodings
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is storage.ErrNotFound, repeated here for callers of this package
	ErrNotFound = storage.ErrNotFound
)

// IOError reports a local filesystem failure
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// asCancelled converts store errors caused by the caller's context into ErrCancelled
func asCancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrCancelled) {
		return cancelled(ctxErr)
	}
	return err
}

// status maps an operation error onto a metrics label
func status(err error) string {
	var ioErr *IOError
	var storeErr *storage.StoreError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFileExists):
		return "file_exists"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, storage.ErrUnsupportedBlobKind):
		return "invalid"
	case errors.As(err, &ioErr):
		return "io_error"
	case errors.As(err, &storeErr):
		return "store_error"
	default:
		return "error"
	}
}
