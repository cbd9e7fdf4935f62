package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const localType = "local"

// LocalStorage implements the Store interface on a directory tree.
// Containers are sub-directories of the root, blob names are slash separated
// paths below them.
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// ParseLocalURL extracts the root directory from file:///path/to/root
func ParseLocalURL(u *url.URL) (string, error) {
	root := u.Path
	if u.Host != "" && u.Host != "localhost" {
		// file://relative/dir puts the first segment into Host
		root = u.Host + u.Path
	}
	if root == "" {
		return "", fmt.Errorf("local storage root is empty")
	}
	return filepath.FromSlash(root), nil
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string, opts Options) *LocalStorage {
	return &LocalStorage{
		basePath: basePath,
		logger:   opts.logger(),
	}
}

// OpenReader opens the file backing the blob
func (ls *LocalStorage) OpenReader(ctx context.Context, ref BlobRef) (*Object, error) {
	if err := requireBlockKind(localType, ref); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := ls.blobPath(ref)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, ls.wrapError("open", ref, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ls.wrapError("stat", ref, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, notFound(ref, fmt.Errorf("%s is a directory", fullPath))
	}

	ls.logger.Debug("Opened local blob", "path", fullPath, "size", info.Size())

	return &Object{Body: file, Size: info.Size()}, nil
}

// Exists reports whether a regular file backs the blob
func (ls *LocalStorage) Exists(ctx context.Context, ref BlobRef) (bool, error) {
	if err := requireBlockKind(localType, ref); err != nil {
		return false, err
	}

	fullPath, err := ls.blobPath(ref)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, ls.wrapError("stat", ref, err)
	}
	return !info.IsDir(), nil
}

// CreateContainerIfMissing creates the container directory
func (ls *LocalStorage) CreateContainerIfMissing(ctx context.Context, containerName string) error {
	dir, err := ls.containerPath(containerName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ls.wrapError("create container", BlobRef{Container: containerName}, err)
	}
	return nil
}

// Type returns the storage type
func (ls *LocalStorage) Type() string {
	return localType
}

// Close is a no-op for local storage
func (ls *LocalStorage) Close() error {
	return nil
}

func (ls *LocalStorage) containerPath(containerName string) (string, error) {
	if containerName == "" || strings.ContainsAny(containerName, `/\`) || containerName == "." || containerName == ".." {
		return "", fmt.Errorf("invalid container name %q", containerName)
	}
	return filepath.Join(ls.basePath, containerName), nil
}

// blobPath maps a blob name onto the container directory, rejecting names
// that would escape it
func (ls *LocalStorage) blobPath(ref BlobRef) (string, error) {
	dir, err := ls.containerPath(ref.Container)
	if err != nil {
		return "", err
	}

	clean := path.Clean("/" + ref.Name)
	if clean == "/" || strings.Contains(ref.Name, `\`) {
		return "", fmt.Errorf("invalid blob name %q", ref.Name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean[1:])), nil
}

func (ls *LocalStorage) wrapError(op string, ref BlobRef, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(ref, err)
	}
	return &StoreError{Backend: localType, Op: op, Err: err}
}
