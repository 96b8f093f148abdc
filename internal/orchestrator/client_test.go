package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/validation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBroker struct{ err error }

func (b failingBroker) Dispatch(context.Context, *Task, *TaskRun) error { return b.err }
func (b failingBroker) Serve(context.Context, []*Task, Executor) error  { return nil }
func (b failingBroker) Close() error                                    { return nil }

func TestClient_Submit_Validation(t *testing.T) {
	task := greetTask()
	task.Schema = validation.MustCompileSchema(`{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string", "minLength": 1}}
	}`)
	h := newHarness(t, task)
	ctx := context.Background()

	tests := []struct {
		name         string
		key          string
		params       any
		expectedCode apperrors.ErrorCode
	}{
		{name: "unknown task", key: "test.missing", params: nil, expectedCode: apperrors.ErrCodeUnknownTask},
		{name: "array parameters", key: "test.greet", params: []int{1, 2}, expectedCode: apperrors.ErrCodeInvalidParameters},
		{name: "malformed raw json", key: "test.greet", params: json.RawMessage(`{"name":`), expectedCode: apperrors.ErrCodeInvalidParameters},
		{name: "schema violation", key: "test.greet", params: map[string]any{"name": ""}, expectedCode: apperrors.ErrCodeInvalidParameters},
		{name: "missing required", key: "test.greet", params: nil, expectedCode: apperrors.ErrCodeInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := h.client.Submit(ctx, tt.key, tt.params)
			require.Error(t, err)
			assert.Nil(t, run)
			assert.True(t, apperrors.HasCode(err, tt.expectedCode), "got %v", err)
		})
	}

	runs, err := h.client.ReadTaskRuns(ctx, TaskRunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected submissions must not create runs")
}

func TestClient_Submit_RecordsScheduledRun(t *testing.T) {
	h := newHarness(t, greetTask())
	ctx := context.Background()

	run, err := h.client.Submit(ctx, "test.greet", map[string]string{"name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, StateScheduled, run.State.Type)
	assert.Equal(t, "greet-Ada", run.Name)
	assert.JSONEq(t, `{"name":"Ada"}`, string(run.Parameters))
	assert.Equal(t, 1, h.broker.Pending())

	stored, err := h.client.ReadTaskRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, stored.ID)
	assert.Equal(t, "Scheduled", stored.State.Name)
}

func TestClient_Submit_DispatchFailure(t *testing.T) {
	log := logger.NewTestLogger(t)
	reg := NewRegistry()
	require.NoError(t, reg.Register(greetTask()))
	store := NewMemoryStore()
	client := NewClient(reg, store, store, failingBroker{err: errors.New("redis down")}, log)
	ctx := context.Background()

	run, err := client.Submit(ctx, "test.greet", nil)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSubmissionFailed))

	runs, err := store.ReadTaskRuns(ctx, TaskRunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StateFailed, runs[0].State.Type)
	assert.Contains(t, runs[0].State.Message, "submission failed: redis down")
}

func TestClient_ReadResult(t *testing.T) {
	h := newHarness(t, greetTask())
	ctx := context.Background()

	run, err := h.client.Submit(ctx, "test.greet", map[string]string{"name": "Ada"})
	require.NoError(t, err)

	_, err = h.client.ReadResult(ctx, run.ID)
	assert.ErrorIs(t, err, ErrResultNotReady)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeResultNotReady))
	assert.True(t, apperrors.IsRetryable(err))

	_, err = h.client.ReadResult(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTaskRunNotFound)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTaskRunNotFound))

	_, err = h.client.ReadTaskRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTaskRunNotFound)
	assert.False(t, apperrors.IsRetryable(err))

	_, err = h.broker.Drain(ctx, h.worker)
	require.NoError(t, err)

	res, err := h.client.ReadResult(ctx, run.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"Hello Ada"}`, string(res.Data))
}

func TestClient_DeleteTaskRun(t *testing.T) {
	h := newHarness(t, greetTask())
	ctx := context.Background()

	run := h.submitAndDrain(t, "test.greet", map[string]string{"name": "Ada"})
	ref := *run.State.Result

	require.NoError(t, h.client.DeleteTaskRun(ctx, run.ID))

	_, err := h.client.ReadTaskRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrTaskRunNotFound)
	_, err = h.store.GetResult(ctx, ref)
	assert.ErrorIs(t, err, ErrResultNotFound)

	assert.ErrorIs(t, h.client.DeleteTaskRun(ctx, run.ID), ErrTaskRunNotFound)
}

func TestFuture_WaitAndResult(t *testing.T) {
	h := newHarness(t, greetTask())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = h.broker.Serve(serveCtx, h.registry.Served(), h.worker) }()

	future, err := Delay(ctx, h.client, "test.greet", map[string]string{"name": "Grace"})
	require.NoError(t, err)

	run, err := future.Wait(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State.Type)

	state, err := future.State(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsCompleted())

	res, err := future.Result(ctx)
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, "Hello Grace", out["greeting"])
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	h := newHarness(t, greetTask())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	future, err := Delay(ctx, h.client, "test.greet", nil)
	require.NoError(t, err)

	run, err := future.Wait(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, run)
	assert.Equal(t, StateScheduled, run.State.Type)
}
