package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"task-recipes/internal/orchestrator"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string]memObject
	putErr  error
}

type memObject struct {
	data        []byte
	contentType string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]memObject)}
}

func (m *memStorage) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (ObjectInfo, error) {
	if m.putErr != nil {
		return ObjectInfo{}, m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, contentType: contentType}
	return ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func TestStore_PutGetDelete(t *testing.T) {
	storage := newMemStorage()
	store := New(storage, "results")
	ctx := context.Background()

	ref, err := store.PutResult(ctx, "task_run:abc", orchestrator.Text("Hi there"))
	require.NoError(t, err)
	assert.Equal(t, "minio", ref.Storage)
	assert.Equal(t, "task_run:abc", ref.Key)
	assert.Equal(t, int64(8), ref.Size)
	assert.Contains(t, storage.objects, "results/task_run:abc")

	res, err := store.GetResult(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ContentTypeText, res.ContentType)
	assert.Equal(t, "Hi there", string(res.Data))

	require.NoError(t, store.DeleteResult(ctx, ref))
	_, err = store.GetResult(ctx, ref)
	assert.ErrorIs(t, err, orchestrator.ErrResultNotFound)
	assert.NoError(t, store.DeleteResult(ctx, ref))
}

func TestStore_PutFailure(t *testing.T) {
	storage := newMemStorage()
	storage.putErr = errors.New("bucket unreachable")

	_, err := New(storage, "").PutResult(context.Background(), "k", orchestrator.Text("x"))
	assert.ErrorContains(t, err, "bucket unreachable")
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	notFound := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	assert.ErrorIs(t, mapError(notFound), ErrObjectNotFound)

	denied := minio.ErrorResponse{Code: "AccessDenied"}
	assert.NotErrorIs(t, mapError(denied), ErrObjectNotFound)
}
