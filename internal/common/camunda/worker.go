// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"task-recipes/internal/orchestrator"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RedeliveryAllowance is added to a task's retries when its process is
// deployed, leaving room for redeliveries caused by store outages.
const RedeliveryAllowance = 3

const runIDVariable = "run_id"

// Broker delivers task runs as Zeebe service-task jobs. Every task key gets
// its own one-step process; a run is one process instance.
type Broker struct {
	client        *Client
	logger        *zap.Logger
	maxJobsActive int
	jobTimeout    time.Duration

	mu       sync.Mutex
	deployed map[string]bool
}

var _ orchestrator.Broker = (*Broker)(nil)

// Ping checks the gateway topology; /ready reports it under the broker name.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.HealthCheck(ctx)
}

func NewBroker(client *Client, maxJobsActive int, jobTimeout time.Duration, logger *zap.Logger) *Broker {
	if maxJobsActive <= 0 {
		maxJobsActive = 10
	}
	return &Broker{
		client:        client,
		logger:        logger.With(zap.String("component", "zeebe-broker")),
		maxJobsActive: maxJobsActive,
		jobTimeout:    jobTimeout,
		deployed:      make(map[string]bool),
	}
}

func (b *Broker) ensureDeployed(ctx context.Context, task *orchestrator.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deployed[task.Key] {
		return nil
	}
	if err := b.client.DeployTaskProcess(ctx, task.Key, task.Retries+RedeliveryAllowance); err != nil {
		return fmt.Errorf("deploy process for %s: %w", task.Key, err)
	}
	b.deployed[task.Key] = true
	b.logger.Info("process deployed", zap.String("taskKey", task.Key), zap.String("processId", ProcessID(task.Key)))
	return nil
}

func (b *Broker) Dispatch(ctx context.Context, task *orchestrator.Task, run *orchestrator.TaskRun) error {
	if err := b.ensureDeployed(ctx, task); err != nil {
		return err
	}
	instanceKey, err := b.client.StartTaskProcess(ctx, task.Key, map[string]interface{}{
		runIDVariable: run.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("start process for %s: %w", task.Key, err)
	}
	b.logger.Debug("process instance created",
		zap.String("taskRunId", run.ID.String()),
		zap.Int64("processInstanceKey", instanceKey))
	return nil
}

// Serve opens one job worker per task and blocks until ctx is done.
func (b *Broker) Serve(ctx context.Context, tasks []*orchestrator.Task, exec orchestrator.Executor) error {
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks to serve")
	}

	workers := make([]worker.JobWorker, 0, len(tasks))
	defer func() {
		for _, w := range workers {
			w.Close()
			w.AwaitClose()
		}
	}()

	for _, task := range tasks {
		if err := b.ensureDeployed(ctx, task); err != nil {
			return err
		}
		key := task.Key
		step := b.client.GetClient().NewJobWorker().
			JobType(key).
			Handler(func(client worker.JobClient, job entities.Job) {
				b.handle(ctx, key, client, job, exec)
			}).
			MaxJobsActive(b.jobsActive(task)).
			Name("task-worker")
		if b.jobTimeout > 0 {
			step = step.Timeout(b.jobTimeout)
		}
		workers = append(workers, step.Open())
		b.logger.Info("worker started", zap.String("taskType", key))
	}

	<-ctx.Done()
	b.logger.Info("stopping workers", zap.Int("count", len(workers)))
	return nil
}

// jobsActive is the task's own concurrency, or the broker-wide limit.
func (b *Broker) jobsActive(task *orchestrator.Task) int {
	if task.Concurrency > 0 {
		return task.Concurrency
	}
	return b.maxJobsActive
}

func (b *Broker) handle(ctx context.Context, key string, client worker.JobClient, job entities.Job, exec orchestrator.Executor) {
	log := b.logger.With(zap.Int64("jobKey", job.Key), zap.String("taskType", key))

	runID, err := runIDFromVariables(job)
	var out outcome
	if err != nil {
		out = outcome{message: err.Error()}
	} else {
		out = jobOutcome(exec.Execute(ctx, orchestrator.Delivery{RunID: runID, TaskKey: key}), job.Retries)
	}

	// job commands must outlive a cancelled serve context
	cmdCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if out.complete {
		if _, err := client.NewCompleteJobCommand().JobKey(job.Key).Send(cmdCtx); err != nil {
			log.Error("failed to complete job", zap.Error(err))
		}
		return
	}

	_, err = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(out.retries).
		ErrorMessage(out.message).
		RetryBackoff(out.backoff).
		Send(cmdCtx)
	if err != nil {
		log.Error("failed to fail job", zap.Error(err))
		return
	}
	log.Debug("job failed", zap.Int32("retries", out.retries), zap.Duration("backoff", out.backoff))
}

func runIDFromVariables(job entities.Job) (uuid.UUID, error) {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode job variables: %w", err)
	}
	raw, ok := vars[runIDVariable].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("job variable %q missing", runIDVariable)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("job variable %q: %w", runIDVariable, err)
	}
	return id, nil
}

// outcome is what to report back to Zeebe for one job.
type outcome struct {
	complete bool
	retries  int32
	backoff  time.Duration
	message  string
}

// jobOutcome maps an executor result to a job command. Terminal errors
// complete the job because the run already holds its final state.
func jobOutcome(err error, jobRetries int32) outcome {
	if err == nil {
		return outcome{complete: true}
	}
	re, ok := orchestrator.AsRetry(err)
	if !ok {
		return outcome{complete: true}
	}
	retries := jobRetries - 1
	if retries < 0 {
		retries = 0
	}
	return outcome{retries: retries, backoff: re.Delay, message: re.Error()}
}

func (b *Broker) Close() error {
	return b.client.Close()
}
