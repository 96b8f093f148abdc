package crashme

import (
	"context"
	"testing"
	"time"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	_, err := NewHandler(logger.NewTestLogger(t)).Execute(context.Background(), &Input{ExitCode: 42})

	var exitErr *orchestrator.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 42, exitErr.Code)
}

func TestCrashMe_RecordsCrashed(t *testing.T) {
	log := logger.NewNoOpLogger()
	store := orchestrator.NewMemoryStore()
	reg := orchestrator.NewRegistry()
	reg.MustRegister(NewHandler(log).Task())

	broker := orchestrator.NewMemoryBroker(4, 1, log)
	client := orchestrator.NewClient(reg, store, store, broker, log)

	var exited []int
	worker := orchestrator.NewWorker(reg, store, store, store, log,
		orchestrator.WithExitFunc(func(code int) { exited = append(exited, code) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := client.Submit(ctx, TaskKey, Input{ExitCode: DefaultExitCode})
	require.NoError(t, err)
	_, err = broker.Drain(ctx, worker)
	require.NoError(t, err)

	got, err := client.ReadTaskRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateCrashed, got.State.Type)
	assert.Equal(t, []int{42}, exited)
}
