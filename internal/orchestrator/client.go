package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/metrics"

	"github.com/google/uuid"
)

// Submitter creates task runs.
type Submitter interface {
	Submit(ctx context.Context, taskKey string, params any) (*TaskRun, error)
}

// Reader reads task runs and their results.
type Reader interface {
	ReadTaskRun(ctx context.Context, id uuid.UUID) (*TaskRun, error)
	ReadTaskRuns(ctx context.Context, filter TaskRunFilter) ([]*TaskRun, error)
	ReadResult(ctx context.Context, id uuid.UUID) (Result, error)
}

// Orchestrator is the full client surface, implemented locally by Client
// and remotely by the API client.
type Orchestrator interface {
	Submitter
	Reader
	DeleteTaskRun(ctx context.Context, id uuid.UUID) error
}

// Client submits and reads task runs against the configured stores and broker.
type Client struct {
	registry *Registry
	runs     RunStore
	results  ResultStore
	broker   Broker
	log      logger.Logger
}

func NewClient(registry *Registry, runs RunStore, results ResultStore, broker Broker, log logger.Logger) *Client {
	return &Client{
		registry: registry,
		runs:     runs,
		results:  results,
		broker:   broker,
		log:      log.WithFields(map[string]interface{}{"component": "orchestrator-client"}),
	}
}

// Submit validates params, records a Scheduled run and dispatches it.
func (c *Client) Submit(ctx context.Context, taskKey string, params any) (*TaskRun, error) {
	task, ok := c.registry.Get(taskKey)
	if !ok {
		return nil, apperrors.NewUnknownTaskError(taskKey)
	}

	raw, err := encodeParameters(params)
	if err != nil {
		return nil, err
	}
	if task.Schema != nil {
		result, err := task.Schema.Validate(raw)
		if err != nil {
			return nil, apperrors.NewInvalidParametersError(err.Error())
		}
		if !result.Valid {
			return nil, apperrors.NewInvalidParametersError(result.Error()).
				WithMetadata("errors", result.Errors)
		}
	}

	id := uuid.New()
	now := time.Now().UTC()
	run := &TaskRun{
		ID:         id,
		TaskKey:    taskKey,
		Name:       task.RunName(id.String(), raw),
		Parameters: raw,
		MaxRetries: task.Retries,
		CreatedAt:  now,
	}
	if task.CacheKeyFn != nil {
		key, err := task.CacheKeyFn(taskKey, raw)
		if err != nil {
			return nil, apperrors.NewInvalidParametersError(err.Error())
		}
		run.CacheKey = key
	}
	run.SetState(Scheduled())

	if err := c.runs.CreateTaskRun(ctx, run); err != nil {
		return nil, apperrors.NewStoreUnavailableError("runs", err)
	}

	if err := c.broker.Dispatch(ctx, task, run); err != nil {
		run.SetState(Failed(fmt.Sprintf("submission failed: %v", err)))
		if uerr := c.runs.UpdateTaskRun(ctx, run); uerr != nil {
			c.log.Error("Failed to record submission failure", map[string]interface{}{
				"taskRunId": run.ID.String(),
				"error":     uerr.Error(),
			})
		}
		return nil, apperrors.NewSubmissionFailedError(err)
	}

	metrics.TaskRunsSubmitted.WithLabelValues(taskKey).Inc()
	c.log.Debug("Task run submitted", map[string]interface{}{
		"taskRunId": run.ID.String(),
		"taskKey":   taskKey,
		"name":      run.Name,
	})
	return run, nil
}

func encodeParameters(params any) (json.RawMessage, error) {
	var raw []byte
	switch p := params.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, apperrors.NewInvalidParametersError(err.Error())
		}
		raw = b
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, apperrors.NewInvalidParametersError("parameters must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

func (c *Client) ReadTaskRun(ctx context.Context, id uuid.UUID) (*TaskRun, error) {
	run, err := c.runs.ReadTaskRun(ctx, id)
	if err != nil {
		return nil, notFound(id, err)
	}
	return run, nil
}

// notFound tags a missing run with TASK_RUN_NOT_FOUND; errors.Is still
// matches ErrTaskRunNotFound.
func notFound(id uuid.UUID, err error) error {
	if errors.Is(err, ErrTaskRunNotFound) {
		return apperrors.NewTaskRunNotFoundError(id.String(), err)
	}
	return err
}

func (c *Client) ReadTaskRuns(ctx context.Context, filter TaskRunFilter) ([]*TaskRun, error) {
	return c.runs.ReadTaskRuns(ctx, filter)
}

// ReadResult returns the persisted result of a COMPLETED run.
func (c *Client) ReadResult(ctx context.Context, id uuid.UUID) (Result, error) {
	run, err := c.ReadTaskRun(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !run.State.IsCompleted() || run.State.Result == nil {
		return Result{}, apperrors.NewResultNotReadyError(id.String(), run.State.Name, ErrResultNotReady)
	}
	return c.results.GetResult(ctx, *run.State.Result)
}

// DeleteTaskRun removes a run and its result. Cached results shared with
// other runs are kept.
func (c *Client) DeleteTaskRun(ctx context.Context, id uuid.UUID) error {
	run, err := c.ReadTaskRun(ctx, id)
	if err != nil {
		return err
	}
	if ref := run.State.Result; ref != nil && ref.Key == ResultKey(id.String()) {
		if err := c.results.DeleteResult(ctx, *ref); err != nil && !errors.Is(err, ErrResultNotFound) {
			return err
		}
	}
	return c.runs.DeleteTaskRun(ctx, id)
}

// Future tracks a submitted run.
type Future struct {
	TaskRunID uuid.UUID
	reader    Reader
}

// Delay submits a run and returns a Future for it.
func Delay(ctx context.Context, s interface {
	Submitter
	Reader
}, taskKey string, params any) (*Future, error) {
	run, err := s.Submit(ctx, taskKey, params)
	if err != nil {
		return nil, err
	}
	return &Future{TaskRunID: run.ID, reader: s}, nil
}

// NewFuture tracks an existing run.
func NewFuture(id uuid.UUID, reader Reader) *Future {
	return &Future{TaskRunID: id, reader: reader}
}

func (f *Future) State(ctx context.Context) (State, error) {
	run, err := f.reader.ReadTaskRun(ctx, f.TaskRunID)
	if err != nil {
		return State{}, err
	}
	return run.State, nil
}

// Wait polls until the run reaches a final state or ctx is done.
func (f *Future) Wait(ctx context.Context, poll time.Duration) (*TaskRun, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		run, err := f.reader.ReadTaskRun(ctx, f.TaskRunID)
		if err != nil {
			return nil, err
		}
		if run.State.IsFinal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Result returns the raw result of the completed run.
func (f *Future) Result(ctx context.Context) (Result, error) {
	return f.reader.ReadResult(ctx, f.TaskRunID)
}
