package download

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matt-primrose/blob-download-task/internal/storage"
	"github.com/matt-primrose/blob-download-task/pkg/models"
)

func TestReadBlobContent_ReturnsContentString(t *testing.T) {
	f := newFixture(t)

	result, err := f.downloader.ReadBlobContent(context.Background(), f.source, "")
	require.NoError(t, err)
	assert.Equal(t, testContent, result.Content)
	assert.Contains(t, result.Content, "<input>WhatHasBeenSeenCannotBeUnseen</input>")
}

func TestReadBlobContent_IgnoresLocalFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dest.Directory, testBlob), []byte("stale local copy"), 0644))

	result, err := f.downloader.ReadBlobContent(context.Background(), f.source, "")
	require.NoError(t, err)
	assert.Equal(t, testContent, result.Content)

	// nothing new is written
	assert.Equal(t, []string{testBlob}, dirEntries(t, f.dest.Directory))
}

func TestReadBlobContent_Encodings(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		encoding string
		expected string
	}{
		{"utf-8 default", []byte("h\xc3\xa9llo"), "", "héllo"},
		{"utf-8 bom stripped", []byte("\xef\xbb\xbfhello"), "", "hello"},
		{"utf-16le bom overrides default", []byte{0xff, 0xfe, 'h', 0, 'i', 0}, "", "hi"},
		{"windows-1252", []byte{'c', 'a', 'f', 0xe9}, "windows-1252", "café"},
		{"latin1 alias", []byte{'n', 0xe4, 'h'}, "ISO-8859-1", "näh"},
		{"explicit utf-8", []byte("plain"), "utf-8", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			store.put(testContainer, testBlob, tt.data)
			d := New(Options{Opener: store.opener()})
			src := models.Source{ConnectionString: "file:///unused", ContainerName: testContainer, BlobName: testBlob}

			result, err := d.ReadBlobContent(context.Background(), src, tt.encoding)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Content)
		})
	}
}

func TestReadBlobContent_UnknownEncoding(t *testing.T) {
	f := newFixture(t)

	_, err := f.downloader.ReadBlobContent(context.Background(), f.source, "klingon")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, f.store.closed, "store must not be opened for invalid requests")
}

func TestReadBlobContent_NotFound(t *testing.T) {
	f := newFixture(t)
	f.source.BlobName = "missing.txt"

	_, err := f.downloader.ReadBlobContent(context.Background(), f.source, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadBlobContent_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.wrap = func(body io.ReadCloser) io.ReadCloser {
		return &cancelAfterRead{ReadCloser: body, cancel: cancel}
	}

	_, err := f.downloader.ReadBlobContent(ctx, f.source, "")
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestReadBlobContent_TruncatedBody(t *testing.T) {
	body := &failingReader{data: []byte("partial"), err: io.ErrUnexpectedEOF}
	d := New(Options{Opener: singleObjectOpener(body, 100)})

	result, err := d.ReadBlobContent(context.Background(), mockSource, "")
	assert.Nil(t, result)

	var storeErr *storage.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadBlobContent_ShortOfReportedSize(t *testing.T) {
	d := New(Options{Opener: singleObjectOpener(io.NopCloser(strings.NewReader("partial")), 100)})

	_, err := d.ReadBlobContent(context.Background(), mockSource, "")

	var storeErr *storage.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "mock", storeErr.Backend)
}
