package download

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/matt-primrose/blob-download-task/internal/storage"
	"github.com/matt-primrose/blob-download-task/pkg/models"
)

// maxPrealloc caps the buffer allocated up front from a reported blob size
const maxPrealloc = 64 << 20

// ReadBlobContent reads the whole blob into memory and decodes it as text.
// An empty encodingName means UTF-8. Any other name is looked up in the
// WHATWG encoding index ("windows-1252", "iso-8859-1", "utf-16le", ...).
// A byte order mark at the start of the content overrides the encoding.
func (d *Downloader) ReadBlobContent(ctx context.Context, src models.Source, encodingName string) (result *models.ContentResult, err error) {
	start := time.Now()
	backend := storage.TypeOf(src.ConnectionString)
	var read int64
	defer func() {
		d.metrics.ObserveOperation("read", backend, status(err), read, time.Since(start))
	}()

	if err := validateSource(src); err != nil {
		return nil, err
	}
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Reading blob content",
		"connection", storage.Redact(src.ConnectionString),
		"container", src.ContainerName,
		"blobName", src.BlobName,
		"kind", src.BlobKind.String(),
		"encoding", encodingName,
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

	var buf bytes.Buffer
	if obj.Size > 0 && obj.Size <= maxPrealloc {
		buf.Grow(int(obj.Size))
	}

	read, err = copyChunks(ctx, &buf, obj.Body, d.chunkSize, obj.Size, store.Type(), "memory")
	if err != nil {
		return nil, err
	}

	content, err := decode(enc, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob %s/%s: %w", src.ContainerName, src.BlobName, err)
	}

	d.logger.Info("Successfully read blob content",
		"blobName", src.BlobName,
		"size", read,
		"duration", time.Since(start),
	)

	return &models.ContentResult{Content: content}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, invalid("unknown text encoding %q", name)
	}
	return enc, nil
}

func decode(enc encoding.Encoding, data []byte) (string, error) {
	decoder := unicode.BOMOverride(enc.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
