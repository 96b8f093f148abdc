package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/metrics"
	"task-recipes/internal/common/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// storeRetryDelay is the redelivery delay after a store failure.
const storeRetryDelay = time.Second

// Worker executes deliveries and drives each run through its states.
type Worker struct {
	registry *Registry
	runs     RunStore
	results  ResultStore
	cache    CacheStore
	log      logger.Logger
	obs      *observability.Observability
	tracer   trace.Tracer
	exit     func(code int)
	now      func() time.Time
}

type WorkerOption func(*Worker)

// WithExitFunc replaces os.Exit for runs that request a worker exit.
func WithExitFunc(fn func(code int)) WorkerOption {
	return func(w *Worker) { w.exit = fn }
}

func WithObservability(obs *observability.Observability) WorkerOption {
	return func(w *Worker) { w.obs = obs }
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker builds a worker. cache may be nil to disable result caching.
func NewWorker(registry *Registry, runs RunStore, results ResultStore, cache CacheStore, log logger.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		registry: registry,
		runs:     runs,
		results:  results,
		cache:    cache,
		log:      log.WithFields(map[string]interface{}{"component": "task-worker"}),
		tracer:   otel.Tracer("task-recipes/orchestrator"),
		exit:     os.Exit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.obs == nil {
		w.obs = observability.NewNoop()
	}
	return w
}

// Execute runs one delivery. It returns nil when the delivery is done and a
// *RetryError when the broker should deliver it again.
func (w *Worker) Execute(ctx context.Context, d Delivery) error {
	log := w.log.WithFields(map[string]interface{}{
		"taskRunId": d.RunID.String(),
		"taskKey":   d.TaskKey,
	})

	run, err := w.runs.ReadTaskRun(ctx, d.RunID)
	if errors.Is(err, ErrTaskRunNotFound) {
		log.Warn("Task run not found, dropping delivery", nil)
		return nil
	}
	if err != nil {
		return &RetryError{Delay: storeRetryDelay, Err: err}
	}

	if run.State.IsFinal() {
		log.Debug("Task run already final, skipping", map[string]interface{}{"state": run.State.Name})
		return nil
	}

	task, ok := w.registry.Get(run.TaskKey)
	if !ok || task.Handler == nil {
		log.Error("No handler registered for task", nil)
		return w.finish(ctx, nil, run, Failed(fmt.Sprintf("no handler registered for task %q", run.TaskKey)), log)
	}

	ctx, span := w.tracer.Start(ctx, "task_run "+task.Key, trace.WithAttributes(
		attribute.String("task_run.id", run.ID.String()),
		attribute.String("task_run.name", run.Name),
		attribute.Int("task_run.run_count", run.RunCount),
	))
	defer span.End()

	if hit, err := w.loadCached(ctx, task, run, log); err != nil || hit {
		return err
	}

	retry := run.RunCount > 0
	run.SetState(Pending())
	if err := w.runs.UpdateTaskRun(ctx, run); err != nil {
		return &RetryError{Delay: storeRetryDelay, Err: err}
	}

	run.RunCount++
	if retry {
		run.SetState(Retrying())
	} else {
		run.SetState(Running())
	}
	if err := w.runs.UpdateTaskRun(ctx, run); err != nil {
		return &RetryError{Delay: storeRetryDelay, Err: err}
	}

	log.Info("Task run started", map[string]interface{}{
		"name":     run.Name,
		"runCount": run.RunCount,
	})

	metrics.TaskRunsActive.WithLabelValues(task.Key).Inc()
	start := w.now()
	value, runErr := w.invoke(ctx, task, run)
	elapsed := w.now().Sub(start)
	metrics.TaskRunsActive.WithLabelValues(task.Key).Dec()
	metrics.TaskRunDuration.WithLabelValues(task.Key).Observe(elapsed.Seconds())

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return w.handleFailure(ctx, task, run, runErr, elapsed, log)
	}
	return w.handleSuccess(ctx, task, run, value, elapsed, log)
}

func (w *Worker) invoke(ctx context.Context, task *Task, run *TaskRun) (value any, err error) {
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task.Handler.Handle(ctx, run.Parameters)
}

func (w *Worker) loadCached(ctx context.Context, task *Task, run *TaskRun, log logger.Logger) (bool, error) {
	if w.cache == nil || run.CacheKey == "" {
		return false, nil
	}
	ref, err := w.cache.LookupCache(ctx, run.CacheKey)
	if err != nil {
		log.Warn("Cache lookup failed, executing task", map[string]interface{}{"error": err.Error()})
		return false, nil
	}
	if ref == nil {
		return false, nil
	}
	if _, err := w.results.GetResult(ctx, *ref); err != nil {
		log.Debug("Cached result no longer available", map[string]interface{}{"resultKey": ref.Key})
		return false, nil
	}

	log.Info("Task run loaded from cache", map[string]interface{}{"cacheKey": run.CacheKey})
	metrics.TaskRunsCompleted.WithLabelValues(task.Key, "true").Inc()
	w.obs.RecordRun(ctx, task.Key, "cached", 0)
	return true, w.finish(ctx, task, run, Cached(*ref), log)
}

func (w *Worker) handleSuccess(ctx context.Context, task *Task, run *TaskRun, value any, elapsed time.Duration, log logger.Logger) error {
	res, err := EncodeResult(value)
	if err != nil {
		return w.finish(ctx, task, run, Failed(err.Error()), log)
	}

	ref, err := w.results.PutResult(ctx, ResultKey(run.ID.String()), res)
	if err != nil {
		log.Error("Failed to persist result", map[string]interface{}{"error": err.Error()})
		return &RetryError{Delay: storeRetryDelay, Err: err}
	}

	if w.cache != nil && run.CacheKey != "" {
		if err := w.cache.StoreCache(ctx, run.CacheKey, ref, task.CacheExpiration); err != nil {
			log.Warn("Failed to store cache entry", map[string]interface{}{"error": err.Error()})
		}
	}

	metrics.TaskRunsCompleted.WithLabelValues(task.Key, "false").Inc()
	w.obs.RecordRun(ctx, task.Key, "completed", elapsed)
	log.Info("Task run completed", map[string]interface{}{
		"durationMs": elapsed.Milliseconds(),
		"resultSize": ref.Size,
	})
	return w.finish(ctx, task, run, Completed(ref), log)
}

func (w *Worker) handleFailure(ctx context.Context, task *Task, run *TaskRun, runErr error, elapsed time.Duration, log logger.Logger) error {
	var exitErr *ExitError
	if errors.As(runErr, &exitErr) {
		log.Warn("Task requested worker exit", map[string]interface{}{"exitCode": exitErr.Code})
		metrics.TaskRunsFailed.WithLabelValues(task.Key, string(StateCrashed), "EXIT_"+strconv.Itoa(exitErr.Code)).Inc()
		w.obs.RecordRun(ctx, task.Key, "crashed", elapsed)
		err := w.finish(ctx, task, run, Crashed(fmt.Sprintf("Worker exited with code %d", exitErr.Code)), log)
		w.exit(exitErr.Code)
		return err
	}

	var panicErr *PanicError
	if errors.As(runErr, &panicErr) {
		log.Error("Task panicked", map[string]interface{}{
			"panic": fmt.Sprint(panicErr.Value),
			"stack": string(panicErr.Stack),
		})
		metrics.TaskRunsFailed.WithLabelValues(task.Key, string(StateCrashed), "PANIC").Inc()
		w.obs.RecordRun(ctx, task.Key, "crashed", elapsed)
		return w.finish(ctx, task, run, Crashed(panicErr.Error()), log)
	}

	stdErr := apperrors.Normalize(runErr)
	message := failureMessage(runErr, stdErr)

	if stdErr.Retryable && run.RunCount <= task.Retries {
		at := w.now().Add(task.RetryDelay)
		run.SetState(AwaitingRetry(at, message))
		if err := w.runs.UpdateTaskRun(ctx, run); err != nil {
			return &RetryError{Delay: storeRetryDelay, Err: err}
		}
		metrics.TaskRunsRetried.WithLabelValues(task.Key).Inc()
		w.obs.RecordRun(ctx, task.Key, "retrying", elapsed)
		log.Warn("Task run failed, retrying", map[string]interface{}{
			"error":         message,
			"attempt":       run.RunCount,
			"retries":       task.Retries,
			"retryDelayMs":  task.RetryDelay.Milliseconds(),
			"errorCategory": apperrors.GetErrorCategory(stdErr.Code),
		})
		return &RetryError{Delay: task.RetryDelay, Err: runErr}
	}

	metrics.TaskRunsFailed.WithLabelValues(task.Key, string(StateFailed), string(stdErr.Code)).Inc()
	w.obs.RecordRun(ctx, task.Key, "failed", elapsed)
	log.Error("Task run failed", map[string]interface{}{
		"error":     message,
		"errorCode": string(stdErr.Code),
		"retryable": stdErr.Retryable,
		"attempts":  run.RunCount,
	})
	return w.finish(ctx, task, run, Failed(message), log)
}

// failureMessage keeps plain handler errors verbatim and renders structured
// errors with their code.
func failureMessage(err error, stdErr *apperrors.StandardError) string {
	var direct *apperrors.StandardError
	if errors.As(err, &direct) {
		return stdErr.Summary()
	}
	return err.Error()
}

// finish persists a final state and runs the matching hooks. task may be nil
// for runs whose task is not registered.
func (w *Worker) finish(ctx context.Context, task *Task, run *TaskRun, state State, log logger.Logger) error {
	run.SetState(state)
	if err := w.runs.UpdateTaskRun(ctx, run); err != nil {
		return &RetryError{Delay: storeRetryDelay, Err: err}
	}
	if task == nil {
		return nil
	}

	hooks := task.OnFailure
	if state.IsCompleted() {
		hooks = task.OnCompletion
	}
	ev := HookEvent{Task: task, Run: run, Results: w.results, Log: log}
	for _, hook := range hooks {
		if err := hook(ctx, ev); err != nil {
			log.Warn("State hook failed", map[string]interface{}{
				"state": state.Name,
				"error": err.Error(),
			})
		}
	}
	return nil
}
