package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"task-recipes/internal/common/auth"
	"task-recipes/internal/common/config"
	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store  *orchestrator.MemoryStore
	broker *orchestrator.MemoryBroker
	client *orchestrator.Client
	worker *orchestrator.Worker
	server *Server
}

type echoInput struct {
	Word string `json:"word"`
}

func setupEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	log := logger.NewTestLogger(t)

	registry := orchestrator.NewRegistry()
	require.NoError(t, registry.Register(&orchestrator.Task{
		Key: "test.echo",
		Handler: orchestrator.Typed(func(ctx context.Context, in *echoInput) (orchestrator.Result, error) {
			return orchestrator.Text(in.Word), nil
		}),
	}))

	env := &testEnv{
		store:  orchestrator.NewMemoryStore(),
		broker: orchestrator.NewMemoryBroker(16, 1, log),
	}
	env.client = orchestrator.NewClient(registry, env.store, env.store, env.broker, log)
	env.worker = orchestrator.NewWorker(registry, env.store, env.store, env.store, log)
	env.server = NewServer(env.client, log, append([]Option{WithPinger("runs", env.store)}, opts...)...)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Routes().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	_, err := e.broker.Drain(context.Background(), e.worker)
	require.NoError(t, err)
}

// ==========================
// Health
// ==========================

func TestHealthAndReady(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true,"checks":{"runs":"ok"}}`, rec.Body.String())
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReady_Unavailable(t *testing.T) {
	env := setupEnv(t, WithPinger("results", downPinger{}))
	rec := env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

// ==========================
// Task runs
// ==========================

func TestCreateTaskRun(t *testing.T) {
	env := setupEnv(t)

	tests := []struct {
		name     string
		body     interface{}
		expected int
		code     string
	}{
		{name: "created", body: map[string]interface{}{"task_key": "test.echo", "parameters": map[string]string{"word": "hi"}}, expected: http.StatusCreated},
		{name: "missing key", body: map[string]interface{}{}, expected: http.StatusBadRequest, code: "INVALID_PARAMETERS"},
		{name: "unknown key", body: map[string]interface{}{"task_key": "test.nope"}, expected: http.StatusNotFound, code: "UNKNOWN_TASK"},
		{name: "array parameters", body: map[string]interface{}{"task_key": "test.echo", "parameters": []int{1}}, expected: http.StatusBadRequest, code: "INVALID_PARAMETERS"},
		{name: "unknown field", body: map[string]interface{}{"task_key": "test.echo", "extra": 1}, expected: http.StatusBadRequest, code: "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/task_runs", tt.body)
			assert.Equal(t, tt.expected, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
			}
		})
	}
}

func TestTaskRunLifecycle(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/api/task_runs", map[string]interface{}{
		"task_key":   "test.echo",
		"parameters": map[string]string{"word": "pong"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var run orchestrator.TaskRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	path := "/api/task_runs/" + run.ID.String()

	rec = env.do(t, http.MethodGet, path+"/result", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.drain(t)

	rec = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, orchestrator.StateCompleted, run.State.Type)

	rec = env.do(t, http.MethodGet, path+"/result", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orchestrator.ContentTypeText, rec.Header().Get("Content-Type"))
	assert.Equal(t, "pong", rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/task_runs/filter", orchestrator.TaskRunFilter{
		StateTypes: []orchestrator.StateType{orchestrator.StateCompleted},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []orchestrator.TaskRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilter_EmptyList(t *testing.T) {
	env := setupEnv(t)
	rec := env.do(t, http.MethodPost, "/api/task_runs/filter", orchestrator.TaskRunFilter{})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetTaskRun_BadID(t *testing.T) {
	env := setupEnv(t)
	rec := env.do(t, http.MethodGet, "/api/task_runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/task_runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ==========================
// Queues
// ==========================

type fakeInspector struct{}

func (fakeInspector) QueueStats(context.Context) ([]orchestrator.QueueStats, error) {
	return []orchestrator.QueueStats{{Queue: "default", Pending: 3}}, nil
}

func TestQueues(t *testing.T) {
	rec := setupEnv(t).do(t, http.MethodGet, "/api/queues", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = setupEnv(t, WithInspector(fakeInspector{})).do(t, http.MethodGet, "/api/queues", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":3`)
}

// ==========================
// Auth
// ==========================

func TestAuth(t *testing.T) {
	var cfg config.AuthConfig
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	tokens, err := auth.NewTokenService(cfg)
	require.NoError(t, err)
	env := setupEnv(t, WithAuth(tokens))

	rec := env.do(t, http.MethodPost, "/api/task_runs/filter", orchestrator.TaskRunFilter{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/task_runs/filter", orchestrator.TaskRunFilter{}, "Authorization", "Bearer junk")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := tokens.Generate("test", "")
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/api/task_runs/filter", orchestrator.TaskRunFilter{}, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

// ==========================
// Error mapping
// ==========================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"run not found", orchestrator.ErrTaskRunNotFound, http.StatusNotFound},
		{"result not ready", orchestrator.ErrResultNotReady, http.StatusConflict},
		{"result not found", orchestrator.ErrResultNotFound, http.StatusNotFound},
		{"coded run not found", apperrors.NewTaskRunNotFoundError("r-1", orchestrator.ErrTaskRunNotFound), http.StatusNotFound},
		{"coded result not ready", apperrors.NewResultNotReadyError("r-1", "Running", orchestrator.ErrResultNotReady), http.StatusConflict},
		{"unknown task", apperrors.NewUnknownTaskError("x"), http.StatusNotFound},
		{"invalid", apperrors.NewInvalidParametersError("x"), http.StatusBadRequest},
		{"submission", apperrors.NewSubmissionFailedError(errors.New("x")), http.StatusBadGateway},
		{"store", apperrors.NewStoreUnavailableError("runs", errors.New("x")), http.StatusServiceUnavailable},
		{"other", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}
