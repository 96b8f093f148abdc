package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-recipes/internal/common/auth"
	"task-recipes/internal/common/config"
	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/orchestrator/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingInput struct {
	Sequence int `json:"sequence"`
}

type remote struct {
	store  *orchestrator.MemoryStore
	broker *orchestrator.MemoryBroker
	worker *orchestrator.Worker
	url    string
}

func setupRemote(t *testing.T, tokens *auth.TokenService) *remote {
	t.Helper()
	log := logger.NewTestLogger(t)

	registry := orchestrator.NewRegistry()
	require.NoError(t, registry.Register(&orchestrator.Task{
		Key: "chaos.ping",
		Handler: orchestrator.Typed(func(ctx context.Context, in *pingInput) ([]interface{}, error) {
			return []interface{}{"pong", in.Sequence}, nil
		}),
	}))

	r := &remote{
		store:  orchestrator.NewMemoryStore(),
		broker: orchestrator.NewMemoryBroker(16, 1, log),
	}
	client := orchestrator.NewClient(registry, r.store, r.store, r.broker, log)
	r.worker = orchestrator.NewWorker(registry, r.store, r.store, r.store, log)

	srv := httptest.NewServer(api.NewServer(client, log, api.WithAuth(tokens)).Routes())
	t.Cleanup(srv.Close)
	r.url = srv.URL
	return r
}

func TestClient_RoundTrip(t *testing.T) {
	r := setupRemote(t, nil)
	c := New(r.url, "", time.Second)
	ctx := context.Background()

	run, err := c.Submit(ctx, "chaos.ping", map[string]int{"sequence": 7})
	require.NoError(t, err)
	assert.Equal(t, "chaos.ping", run.TaskKey)
	assert.Equal(t, orchestrator.StateScheduled, run.State.Type)

	_, err = c.ReadResult(ctx, run.ID)
	assert.ErrorIs(t, err, orchestrator.ErrResultNotReady)

	_, err = r.broker.Drain(ctx, r.worker)
	require.NoError(t, err)

	runs, err := c.ReadTaskRuns(ctx, orchestrator.TaskRunFilter{IDs: []uuid.UUID{run.ID}})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, orchestrator.StateCompleted, runs[0].State.Type)

	res, err := c.ReadResult(ctx, run.ID)
	require.NoError(t, err)
	var reply []interface{}
	require.NoError(t, res.Decode(&reply))
	assert.Equal(t, []interface{}{"pong", float64(7)}, reply)

	require.NoError(t, c.DeleteTaskRun(ctx, run.ID))
	_, err = c.ReadTaskRun(ctx, run.ID)
	assert.ErrorIs(t, err, orchestrator.ErrTaskRunNotFound)
}

func TestClient_Future(t *testing.T) {
	r := setupRemote(t, nil)
	c := New(r.url, "", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	future, err := orchestrator.Delay(ctx, c, "chaos.ping", map[string]int{"sequence": 1})
	require.NoError(t, err)

	go func() { _, _ = r.broker.Drain(ctx, r.worker) }()

	run, err := future.Wait(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, run.State.IsCompleted())
}

func TestClient_Errors(t *testing.T) {
	r := setupRemote(t, nil)
	c := New(r.url, "", time.Second)
	ctx := context.Background()

	_, err := c.Submit(ctx, "chaos.nope", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnknownTask))

	_, err = c.Submit(ctx, "chaos.ping", []int{1})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidParameters))

	_, err = c.ReadTaskRun(ctx, uuid.New())
	assert.ErrorIs(t, err, orchestrator.ErrTaskRunNotFound)

	_, err = c.QueueStats(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternalService))
}

func TestClient_BearerToken(t *testing.T) {
	var cfg config.AuthConfig
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	tokens, err := auth.NewTokenService(cfg)
	require.NoError(t, err)
	r := setupRemote(t, tokens)
	ctx := context.Background()

	_, err = New(r.url, "", time.Second).ReadTaskRuns(ctx, orchestrator.TaskRunFilter{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternalService))
	assert.Contains(t, apperrors.Normalize(err).Details, "status 401")

	token, err := tokens.Generate("chaos-duck", "")
	require.NoError(t, err)
	runs, err := New(r.url, token, time.Second).ReadTaskRuns(ctx, orchestrator.TaskRunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDecodeError_PlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).ReadTaskRun(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternalService))
}
