// Package download copies blobs from a storage backend to local files or
// memory, applying the destination collision policy.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/matt-primrose/blob-download-task/internal/metrics"
	"github.com/matt-primrose/blob-download-task/internal/naming"
	"github.com/matt-primrose/blob-download-task/internal/storage"
	"github.com/matt-primrose/blob-download-task/pkg/models"
)

// DefaultChunkSize is the number of bytes copied between cancellation checks
const DefaultChunkSize = 4 << 20

// Opener constructs a store from a connection identifier
type Opener func(ctx context.Context, connectionString string) (storage.Store, error)

// Options configures a Downloader. Zero values select defaults.
type Options struct {
	ChunkSize int
	Opener    Opener
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// Downloader runs download, read and existence operations. It keeps no state
// between calls, so one value may serve concurrent callers.
type Downloader struct {
	open      Opener
	chunkSize int
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// New creates a Downloader
func New(opts Options) *Downloader {
	d := &Downloader{
		open:      opts.Opener,
		chunkSize: opts.ChunkSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.chunkSize <= 0 {
		d.chunkSize = DefaultChunkSize
	}
	if d.metrics == nil {
		d.metrics = metrics.Nop{}
	}
	if d.open == nil {
		logger := d.logger
		d.open = func(ctx context.Context, connectionString string) (storage.Store, error) {
			return storage.Open(ctx, connectionString, storage.Options{Logger: logger})
		}
	}
	return d
}

// DownloadBlob writes the blob named by src into dst.Directory.
//
// The file name is the last path segment of the blob name. Under
// PolicyOverwrite an existing file is replaced; under PolicyError an existing
// file fails the call with ErrFileExists before any content is read; under
// PolicyRename the first free name base(n).ext is used. Cancellation is
// checked between chunks and leaves any partially written file in place.
func (d *Downloader) DownloadBlob(ctx context.Context, src models.Source, dst models.Destination) (result *models.DownloadResult, err error) {
	start := time.Now()
	backend := storage.TypeOf(src.ConnectionString)
	var written int64
	defer func() {
		d.metrics.ObserveOperation("download", backend, status(err), written, time.Since(start))
	}()

	if err := validateSource(src); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dst.Directory) == "" {
		return nil, invalid("destination directory is required")
	}
	fileName, err := blobBaseName(src.BlobName)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Downloading blob",
		"connection", storage.Redact(src.ConnectionString),
		"container", src.ContainerName,
		"blobName", src.BlobName,
		"kind", src.BlobKind.String(),
		"directory", dst.Directory,
		"policy", dst.CollisionPolicy.String(),
	)

	store, err := d.open(ctx, src.ConnectionString)
	if err != nil {
		return nil, asCancelled(ctx, fmt.Errorf("failed to open storage: %w", err))
	}
	defer store.Close()

	obj, err := store.OpenReader(ctx, blobRef(src))
	if err != nil {
		return nil, asCancelled(ctx, fmt.Errorf("failed to open blob %s/%s: %w", src.ContainerName, src.BlobName, err))
	}
	defer obj.Body.Close()

	file, fileName, err := d.createDestination(dst, fileName)
	if err != nil {
		return nil, err
	}
	fullPath := file.Name()

	written, err = copyChunks(ctx, file, obj.Body, d.chunkSize, obj.Size, store.Type(), fullPath)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = &IOError{Op: "close", Path: fullPath, Err: closeErr}
	}
	if err != nil {
		d.logger.Warn("Blob download did not complete",
			"blobName", src.BlobName,
			"path", fullPath,
			"bytesWritten", written,
			"error", err,
		)
		return nil, err
	}

	d.logger.Info("Successfully downloaded blob",
		"blobName", src.BlobName,
		"path", fullPath,
		"size", written,
		"duration", time.Since(start),
	)

	return &models.DownloadResult{
		FullPath:  fullPath,
		FileName:  fileName,
		SizeBytes: written,
	}, nil
}

// BlobExists reports whether the blob named by src exists
func (d *Downloader) BlobExists(ctx context.Context, src models.Source) (exists bool, err error) {
	start := time.Now()
	backend := storage.TypeOf(src.ConnectionString)
	defer func() {
		d.metrics.ObserveOperation("exists", backend, status(err), 0, time.Since(start))
	}()

	if err := validateSource(src); err != nil {
		return false, err
	}

	store, err := d.open(ctx, src.ConnectionString)
	if err != nil {
		return false, asCancelled(ctx, fmt.Errorf("failed to open storage: %w", err))
	}
	defer store.Close()

	exists, err = store.Exists(ctx, blobRef(src))
	if err != nil {
		return false, asCancelled(ctx, fmt.Errorf("failed to check blob %s/%s: %w", src.ContainerName, src.BlobName, err))
	}

	d.logger.Debug("Checked blob existence",
		"container", src.ContainerName,
		"blobName", src.BlobName,
		"exists", exists,
	)
	return exists, nil
}

// createDestination opens the local file according to the collision policy
// and returns it with the file name actually used
func (d *Downloader) createDestination(dst models.Destination, fileName string) (*os.File, string, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL

	switch dst.CollisionPolicy {
	case models.PolicyOverwrite:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC

	case models.PolicyError:
		target := filepath.Join(dst.Directory, fileName)
		if _, err := os.Lstat(target); err == nil {
			return nil, "", fmt.Errorf("%w: %s", ErrFileExists, target)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", &IOError{Op: "stat", Path: target, Err: err}
		}

	case models.PolicyRename:
		resolved, err := naming.Resolve(fileName, dst.Directory)
		if err != nil {
			return nil, "", &IOError{Op: "resolve name in", Path: dst.Directory, Err: err}
		}
		if resolved != fileName {
			d.logger.Info("Destination file exists, renaming download",
				"original", fileName,
				"renamed", resolved,
			)
			d.metrics.IncRename()
		}
		fileName = resolved

	default:
		return nil, "", invalid("unknown collision policy %s", dst.CollisionPolicy)
	}

	target := filepath.Join(dst.Directory, fileName)
	// O_EXCL turns a file created by someone else after the check into ErrFileExists
	file, err := os.OpenFile(target, flags, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrFileExists, target)
		}
		return nil, "", &IOError{Op: "create", Path: target, Err: err}
	}
	return file, fileName, nil
}

// copyChunks copies src to dst one chunk at a time, checking ctx before each chunk.
// Only io.EOF ends the copy; when expected is not negative the byte count must match it.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int, expected int64, backend, destPath string) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, cancelled(err)
		}

		nr, readErr := fillChunk(src, buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, &IOError{Op: "write", Path: destPath, Err: writeErr}
			}
		}

		switch {
		case readErr == nil:
			continue
		case readErr == io.EOF:
			if expected >= 0 && written != expected {
				return written, &storage.StoreError{
					Backend: backend,
					Op:      "read",
					Err:     fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, written, expected),
				}
			}
			return written, nil
		case ctx.Err() != nil:
			return written, cancelled(ctx.Err())
		default:
			return written, &storage.StoreError{Backend: backend, Op: "read", Err: readErr}
		}
	}
}

// fillChunk reads until buf is full or src returns an error
func fillChunk(src io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		nr, err := src.Read(buf[n:])
		n += nr
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func validateSource(src models.Source) error {
	if strings.TrimSpace(src.ConnectionString) == "" {
		return invalid("connection string is required")
	}
	if strings.TrimSpace(src.ContainerName) == "" {
		return invalid("container name is required")
	}
	if strings.TrimSpace(src.BlobName) == "" {
		return invalid("blob name is required")
	}
	return nil
}

// blobBaseName returns the last slash separated segment of a blob name
func blobBaseName(blobName string) (string, error) {
	name := path.Base(blobName)
	if strings.HasSuffix(blobName, "/") || name == "." || name == ".." || name == "/" {
		return "", invalid("blob name %q has no file name", blobName)
	}
	return name, nil
}

func blobRef(src models.Source) storage.BlobRef {
	return storage.BlobRef{
		Container: src.ContainerName,
		Name:      src.BlobName,
		Kind:      src.BlobKind,
	}
}
