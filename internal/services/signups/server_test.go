package signups

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/users"
	"task-recipes/internal/workers"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Environment
// ==========================

type testEnv struct {
	server *httptest.Server
	users  *users.Store
	runs   *orchestrator.MemoryStore
}

func setupEnv(t *testing.T, tasks orchestrator.Submitter) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewTestLogger(t)
	store := orchestrator.NewMemoryStore()
	if tasks == nil {
		reg, err := workers.NewSubmitRegistry()
		require.NoError(t, err)
		tasks = orchestrator.NewClient(reg, store, store, orchestrator.NewMemoryBroker(16, 1, log), log)
	}

	userStore := users.NewStore(rdb)
	srv := httptest.NewServer(NewServer(userStore, tasks, log).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, users: userStore, runs: store}
}

func postUser(t *testing.T, env *testEnv, body string) *http.Response {
	resp, err := http.Post(env.server.URL+"/users", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, string, any) (*orchestrator.TaskRun, error) {
	return nil, errors.New("broker down")
}

// ==========================
// Tests
// ==========================

func TestCreateUser(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postUser(t, env, `{"email":"ada@example.com","name":"Ada"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.NotEmpty(t, user.ID.String())
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada", user.Name)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsSuperuser)

	runs, err := env.runs.ReadTaskRuns(context.Background(), orchestrator.TaskRunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	keys := map[string]bool{}
	for _, run := range runs {
		keys[run.TaskKey] = true
		assert.Equal(t, orchestrator.StateScheduled, run.State.Type)
	}
	for _, key := range WelcomeTasks {
		assert.True(t, keys[key], key)
	}
}

func TestCreateUser_IgnoresExtraFields(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postUser(t, env, `{"email":"ada@example.com","name":"Ada","is_superuser":true,"plan":"pro"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, "ada@example.com", user.Email)
	assert.False(t, user.IsSuperuser)
}

func TestCreateUser_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"email":"ada@example.com"}`},
		{"bad email", `{"email":"nope","name":"Ada"}`},
		{"not json", `{`},
	}

	env := setupEnv(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postUser(t, env, tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	}
}

func TestCreateUser_SubmissionFailure(t *testing.T) {
	env := setupEnv(t, failingSubmitter{})

	resp := postUser(t, env, `{"email":"ada@example.com","name":"Ada"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	n, err := env.users.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetUserAndWorkspace(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()
	user, err := env.users.Create(ctx, models.NewUser{Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)
	require.NoError(t, env.users.AddToWorkspace(ctx, user.ID, "thing-1", "thing-0"))

	resp, err := http.Get(env.server.URL + "/users/" + user.ID.String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/users/" + user.ID.String() + "/workspace")
	require.NoError(t, err)
	defer resp.Body.Close()
	var things []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&things))
	assert.Equal(t, []string{"thing-0", "thing-1"}, things)

	for _, path := range []string{"/users/not-a-uuid", "/users/" + "9b2d3c7e-8a8f-4f51-9d6c-5b0f7c1e2a11"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}
