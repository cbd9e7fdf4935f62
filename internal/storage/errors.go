package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/matt-primrose/blob-download-task/pkg/models"
)

var (
	// ErrNotFound is returned when the blob or its container does not exist
	ErrNotFound = errors.New("blob not found")

	// ErrUnsupportedBlobKind is returned when a backend cannot serve the requested blob kind
	ErrUnsupportedBlobKind = errors.New("unsupported blob kind")
)

// StoreError carries a transport or authorization failure from the backend.
// The vendor error is kept unchanged and available through Unwrap.
type StoreError struct {
	Backend    string
	Op         string
	StatusCode int
	Code       string
	Err        error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Backend, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d", e.StatusCode)
		if e.Code != "" {
			msg += ", " + e.Code
		}
		msg += ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// UnsupportedKindError names the backend and kind that could not be served
type UnsupportedKindError struct {
	Backend string
	Kind    models.BlobKind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("%s storage does not support %s blobs", e.Backend, e.Kind)
}

func (e *UnsupportedKindError) Is(target error) bool { return target == ErrUnsupportedBlobKind }

func notFound(ref BlobRef, err error) error {
	return fmt.Errorf("%w: %s/%s: %w", ErrNotFound, ref.Container, ref.Name, err)
}

// isContextError reports errors caused by the caller's context, which are
// returned as is so the caller can tell cancellation from backend failure.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
