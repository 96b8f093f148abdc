// Package objectstore persists task results as objects in S3-compatible
// storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"task-recipes/internal/orchestrator"
)

// Store implements orchestrator.ResultStore over a Storage.
type Store struct {
	storage Storage
	prefix  string
}

var _ orchestrator.ResultStore = (*Store)(nil)

func New(storage Storage, prefix string) *Store {
	return &Store{storage: storage, prefix: prefix}
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *Store) PutResult(ctx context.Context, key string, res orchestrator.Result) (orchestrator.ResultRef, error) {
	info, err := s.storage.Put(ctx, s.objectKey(key), bytes.NewReader(res.Data), int64(len(res.Data)), res.ContentType)
	if err != nil {
		return orchestrator.ResultRef{}, fmt.Errorf("upload result %s: %w", key, err)
	}
	return orchestrator.ResultRef{
		Storage:     "minio",
		Key:         key,
		ContentType: res.ContentType,
		Size:        info.Size,
	}, nil
}

func (s *Store) GetResult(ctx context.Context, ref orchestrator.ResultRef) (orchestrator.Result, error) {
	rc, info, err := s.storage.Get(ctx, s.objectKey(ref.Key))
	if errors.Is(err, ErrObjectNotFound) {
		return orchestrator.Result{}, orchestrator.ErrResultNotFound
	}
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("download result %s: %w", ref.Key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("read result %s: %w", ref.Key, err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = ref.ContentType
	}
	return orchestrator.Result{ContentType: contentType, Data: data}, nil
}

func (s *Store) DeleteResult(ctx context.Context, ref orchestrator.ResultRef) error {
	err := s.storage.Delete(ctx, s.objectKey(ref.Key))
	if errors.Is(err, ErrObjectNotFound) {
		return nil
	}
	return err
}
