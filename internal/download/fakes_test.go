package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/matt-primrose/blob-download-task/internal/storage"
	"github.com/matt-primrose/blob-download-task/pkg/models"
)

// memoryStore is an in-memory Store keyed by container and blob name
type memoryStore struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte
	closed     int
	// wrap lets a test intercept the body returned by OpenReader
	wrap func(io.ReadCloser) io.ReadCloser
}

func newMemoryStore() *memoryStore {
	return &memoryStore{containers: map[string]map[string][]byte{}}
}

func (m *memoryStore) put(container, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.containers[container] == nil {
		m.containers[container] = map[string][]byte{}
	}
	m.containers[container][name] = data
}

func (m *memoryStore) OpenReader(ctx context.Context, ref storage.BlobRef) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	blobs, ok := m.containers[ref.Container]
	if !ok {
		return nil, fmt.Errorf("%w: container %s", storage.ErrNotFound, ref.Container)
	}
	data, ok := blobs[ref.Name]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", storage.ErrNotFound, ref.Name)
	}

	var body io.ReadCloser = io.NopCloser(bytes.NewReader(data))
	if m.wrap != nil {
		body = m.wrap(body)
	}
	return &storage.Object{Body: body, Size: int64(len(data))}, nil
}

func (m *memoryStore) Exists(ctx context.Context, ref storage.BlobRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.containers[ref.Container][ref.Name]
	return ok, nil
}

func (m *memoryStore) CreateContainerIfMissing(ctx context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.containers[container] == nil {
		m.containers[container] = map[string][]byte{}
	}
	return nil
}

func (m *memoryStore) Type() string { return "memory" }

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *memoryStore) opener() Opener {
	return func(ctx context.Context, connectionString string) (storage.Store, error) {
		return m, nil
	}
}

var mockSource = models.Source{ConnectionString: "s3://", ContainerName: testContainer, BlobName: testBlob}

// singleObjectOpener serves one body with the given reported size from a mockStore
func singleObjectOpener(body io.ReadCloser, size int64) Opener {
	ms := &mockStore{}
	ms.On("OpenReader", mock.Anything, mock.Anything).Return(&storage.Object{Body: body, Size: size}, nil)
	ms.On("Close").Return(nil)
	return func(context.Context, string) (storage.Store, error) { return ms, nil }
}

// mockStore is a testify mock of the Store interface
type mockStore struct {
	mock.Mock
}

func (m *mockStore) OpenReader(ctx context.Context, ref storage.BlobRef) (*storage.Object, error) {
	args := m.Called(ctx, ref)
	obj, _ := args.Get(0).(*storage.Object)
	return obj, args.Error(1)
}

func (m *mockStore) Exists(ctx context.Context, ref storage.BlobRef) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CreateContainerIfMissing(ctx context.Context, container string) error {
	return m.Called(ctx, container).Error(0)
}

func (m *mockStore) Type() string { return "mock" }

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// cancelAfterRead cancels a context once the first read has returned data
type cancelAfterRead struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelAfterRead) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.once.Do(c.cancel)
	return n, err
}

// failingReader returns its error after the first successful read
type failingReader struct {
	data []byte
	err  error
	done bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.done {
		return 0, f.err
	}
	f.done = true
	return copy(p, f.data), nil
}

func (f *failingReader) Close() error { return nil }
