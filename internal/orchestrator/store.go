package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTaskRunNotFound = errors.New("task run not found")
	ErrResultNotFound  = errors.New("result not found")
	ErrResultNotReady  = errors.New("task run has not completed")
)

// RunStore persists task runs.
type RunStore interface {
	CreateTaskRun(ctx context.Context, run *TaskRun) error
	ReadTaskRun(ctx context.Context, id uuid.UUID) (*TaskRun, error)
	ReadTaskRuns(ctx context.Context, filter TaskRunFilter) ([]*TaskRun, error)
	UpdateTaskRun(ctx context.Context, run *TaskRun) error
	DeleteTaskRun(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}

// ResultStore persists task results.
type ResultStore interface {
	PutResult(ctx context.Context, key string, res Result) (ResultRef, error)
	GetResult(ctx context.Context, ref ResultRef) (Result, error)
	DeleteResult(ctx context.Context, ref ResultRef) error
}

// CacheStore maps cache keys to persisted results.
type CacheStore interface {
	// LookupCache returns nil without error on a miss.
	LookupCache(ctx context.Context, key string) (*ResultRef, error)
	StoreCache(ctx context.Context, key string, ref ResultRef, ttl time.Duration) error
}
