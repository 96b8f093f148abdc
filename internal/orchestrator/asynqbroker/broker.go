// Package asynqbroker delivers task runs through asynq queues in Redis.
package asynqbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// RedeliveryAllowance is added to a task's retries so runs interrupted by
// store failures still get their full retry budget.
const RedeliveryAllowance = 3

type payload struct {
	RunID uuid.UUID `json:"run_id"`
}

// Options configures the broker.
type Options struct {
	Queue       string
	Concurrency int
	// Printer receives asynq's internal logs. Nil keeps asynq's default logger.
	Printer *logger.Printer
}

// Broker implements orchestrator.Broker and orchestrator.QueueInspector.
type Broker struct {
	redis     asynq.RedisConnOpt
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      Options
	log       logger.Logger
}

var (
	_ orchestrator.Broker         = (*Broker)(nil)
	_ orchestrator.QueueInspector = (*Broker)(nil)
)

func New(redis asynq.RedisConnOpt, opts Options, log logger.Logger) *Broker {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	return &Broker{
		redis:     redis,
		client:    asynq.NewClient(redis),
		inspector: asynq.NewInspector(redis),
		opts:      opts,
		log:       log.WithFields(map[string]interface{}{"component": "asynq-broker", "queue": opts.Queue}),
	}
}

// newTask builds the asynq task for a run.
func (b *Broker) newTask(task *orchestrator.Task, run *orchestrator.TaskRun) (*asynq.Task, error) {
	data, err := json.Marshal(payload{RunID: run.ID})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.TaskID(run.ID.String()),
		asynq.MaxRetry(task.Retries + RedeliveryAllowance),
		asynq.Queue(b.opts.Queue),
	}
	if task.Timeout > 0 {
		opts = append(opts, asynq.Timeout(task.Timeout))
	}
	return asynq.NewTask(task.Key, data, opts...), nil
}

func (b *Broker) Dispatch(ctx context.Context, task *orchestrator.Task, run *orchestrator.TaskRun) error {
	t, err := b.newTask(task, run)
	if err != nil {
		return fmt.Errorf("build asynq task: %w", err)
	}
	info, err := b.client.EnqueueContext(ctx, t)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Key, err)
	}
	b.log.Debug("Task run enqueued", map[string]interface{}{
		"taskRunId": run.ID.String(),
		"taskKey":   task.Key,
		"maxRetry":  info.MaxRetry,
	})
	return nil
}

// Serve runs an asynq server for the given tasks until ctx is done.
func (b *Broker) Serve(ctx context.Context, tasks []*orchestrator.Task, exec orchestrator.Executor) error {
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks to serve")
	}

	mux := asynq.NewServeMux()
	for _, task := range tasks {
		key := task.Key
		mux.HandleFunc(key, func(ctx context.Context, t *asynq.Task) error {
			return b.handle(ctx, key, t, exec)
		})
	}

	cfg := asynq.Config{
		Concurrency:     b.opts.Concurrency,
		Queues:          map[string]int{b.opts.Queue: 1},
		RetryDelayFunc:  retryDelay,
		ShutdownTimeout: 10 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			if _, ok := orchestrator.AsRetry(err); ok {
				return
			}
			b.log.Error("Task delivery failed", map[string]interface{}{
				"taskKey": t.Type(),
				"error":   err.Error(),
			})
		}),
	}
	if b.opts.Printer != nil {
		cfg.Logger = b.opts.Printer
	}

	srv := asynq.NewServer(b.redis, cfg)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	b.log.Info("Serving task runs", map[string]interface{}{
		"tasks":       len(tasks),
		"concurrency": b.opts.Concurrency,
	})

	<-ctx.Done()
	srv.Shutdown()
	return nil
}

func (b *Broker) handle(ctx context.Context, key string, t *asynq.Task, exec orchestrator.Executor) error {
	var p payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	err := exec.Execute(ctx, orchestrator.Delivery{RunID: p.RunID, TaskKey: key})
	if err == nil {
		return nil
	}
	if _, ok := orchestrator.AsRetry(err); ok {
		return err
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

// retryDelay honours the delay carried by a RetryError.
func retryDelay(n int, err error, t *asynq.Task) time.Duration {
	if re, ok := orchestrator.AsRetry(err); ok {
		return re.Delay
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}

func (b *Broker) QueueStats(ctx context.Context) ([]orchestrator.QueueStats, error) {
	info, err := b.inspector.GetQueueInfo(b.opts.Queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return []orchestrator.QueueStats{{Queue: b.opts.Queue}}, nil
		}
		return nil, fmt.Errorf("inspect queue %s: %w", b.opts.Queue, err)
	}
	return []orchestrator.QueueStats{{
		Queue:     info.Queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Processed: info.Processed,
		Failed:    info.Failed,
		Paused:    info.Paused,
	}}, nil
}

func (b *Broker) Close() error {
	errClient := b.client.Close()
	errInspector := b.inspector.Close()
	return errors.Join(errClient, errInspector)
}
