package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery identifies a run handed to a worker by a broker.
type Delivery struct {
	RunID   uuid.UUID `json:"run_id"`
	TaskKey string    `json:"task_key"`
}

// Executor processes deliveries. Returning a *RetryError asks the broker to
// redeliver after its delay; nil acknowledges the delivery.
type Executor interface {
	Execute(ctx context.Context, d Delivery) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, d Delivery) error

func (f ExecutorFunc) Execute(ctx context.Context, d Delivery) error { return f(ctx, d) }

// Broker moves runs from submitters to workers.
type Broker interface {
	Dispatch(ctx context.Context, task *Task, run *TaskRun) error
	// Serve blocks delivering runs of tasks to exec until ctx is done.
	Serve(ctx context.Context, tasks []*Task, exec Executor) error
	Close() error
}

// QueueStats is a snapshot of one broker queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
}

// QueueInspector is implemented by brokers that can report queue depth.
type QueueInspector interface {
	QueueStats(ctx context.Context) ([]QueueStats, error)
}

// RetryError asks the broker to redeliver after Delay.
type RetryError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry in %s: %v", e.Delay, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// AsRetry extracts a RetryError from err.
func AsRetry(err error) (*RetryError, bool) {
	var re *RetryError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ExitError is returned by a handler that wants the worker process to exit
// with Code. The run is recorded as CRASHED first.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("worker exit requested with code %d", e.Code)
}

// PanicError wraps a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
