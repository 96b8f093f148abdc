// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"task-recipes/internal/app"
	"task-recipes/internal/chaos"
	"task-recipes/internal/common/config"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/orchestrator/api"
	"task-recipes/internal/orchestrator/apiclient"
	"task-recipes/internal/services/signups"
	"task-recipes/internal/services/stubs"
	"task-recipes/internal/users"
	crashme "task-recipes/internal/workers/chaos/crash-me"
	"task-recipes/internal/workers/quickstart"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitPoll = 10 * time.Millisecond

// env runs the whole stack in process: miniredis, the mail and onboarding
// stubs, and an orchestrator on the memory broker with an embedded worker.
type env struct {
	app      *app.App
	tasks    orchestrator.Orchestrator
	recorder *stubs.Recorder
	redis    *miniredis.Miniredis
}

func setupEnv(t *testing.T, ctx context.Context) *env {
	t.Helper()
	mr := miniredis.RunT(t)

	rec := &stubs.Recorder{}
	mailSrv := httptest.NewServer(adaptor.FiberApp(stubs.MailApp(rec, nopLogger())))
	t.Cleanup(mailSrv.Close)
	onbSrv := httptest.NewServer(adaptor.FiberApp(stubs.OnboardingApp(rec, nopLogger())))
	t.Cleanup(onbSrv.Close)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
orchestrator:
  broker: memory
  run_store: memory
  result_store: memory
  concurrency: 4
  exit_on_crash: false
database:
  redis:
    address: %s
integrations:
  mail:
    base_url: %s
  onboarding:
    base_url: %s
workers:
  signups/send_confirmation_email:
    enabled: true
    failure_rate: 0
  chaos/ping:
    enabled: true
    failure_rate: 0
logging:
  level: warn
  format: console
`, mr.Addr(), mailSrv.URL, onbSrv.URL)), 0o600))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	a, err := app.FromConfig(ctx, "e2e", cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	tasks, err := a.Tasks(ctx)
	require.NoError(t, err)
	return &env{app: a, tasks: tasks, recorder: rec, redis: mr}
}

func TestFullE2E(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	e := setupEnv(t, ctx)

	t.Run("signup runs every welcome task", func(t *testing.T) {
		rdb, err := e.app.Redis(ctx)
		require.NoError(t, err)
		srv := httptest.NewServer(signups.NewServer(users.NewStore(rdb.Client), e.tasks, e.app.Log).Routes())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/users", "application/json",
			strings.NewReader(`{"email":"ada@example.com","name":"Ada"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var user struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))

		require.Eventually(t, func() bool {
			runs, err := e.tasks.ReadTaskRuns(ctx, orchestrator.TaskRunFilter{
				TaskKeys:   []string{"signups.send_confirmation_email", "signups.enroll_in_onboarding_flow", "signups.populate_workspace"},
				StateTypes: []orchestrator.StateType{orchestrator.StateCompleted},
			})
			return err == nil && len(runs) == 3
		}, 10*time.Second, waitPoll)

		mails := e.recorder.Mails()
		require.Len(t, mails, 1)
		assert.Equal(t, "ada@example.com", mails[0].To)
		assert.Contains(t, mails[0].Body, "Hi Ada, welcome to the app!")

		enrollments := e.recorder.Enrollments()
		require.Len(t, enrollments, 1)
		assert.Equal(t, user.ID, enrollments[0].UserID)

		ws, err := http.Get(srv.URL + "/users/" + user.ID + "/workspace")
		require.NoError(t, err)
		defer ws.Body.Close()
		var things []string
		require.NoError(t, json.NewDecoder(ws.Body).Decode(&things))
		assert.Len(t, things, 10)
	})

	t.Run("api client round trip", func(t *testing.T) {
		srv := httptest.NewServer(api.NewServer(e.tasks, e.app.Log).Routes())
		defer srv.Close()
		remote := apiclient.New(srv.URL, "", 5*time.Second)

		future, err := orchestrator.Delay(ctx, remote, quickstart.GreetKey, quickstart.NameInput{Name: "Arthur"})
		require.NoError(t, err)
		run, err := future.Wait(ctx, waitPoll)
		require.NoError(t, err)
		require.True(t, run.State.IsCompleted(), run.State.Message)

		res, err := future.Result(ctx)
		require.NoError(t, err)
		var greeting string
		require.NoError(t, res.Decode(&greeting))
		assert.Equal(t, quickstart.Greeting("Arthur"), greeting)
	})

	t.Run("crash_me ends crashed", func(t *testing.T) {
		future, err := orchestrator.Delay(ctx, e.tasks, crashme.TaskKey, crashme.Input{ExitCode: 42})
		require.NoError(t, err)
		run, err := future.Wait(ctx, waitPoll)
		require.NoError(t, err)
		assert.Equal(t, orchestrator.StateCrashed, run.State.Type)
	})

	t.Run("chaos driver without havoc", func(t *testing.T) {
		var out bytes.Buffer
		report, err := chaos.NewDriver(e.tasks, &out, waitPoll).Run(ctx, 25)
		require.NoError(t, err)

		assert.Zero(t, report.SubmissionFailures)
		assert.Zero(t, report.ResultMismatches)
		assert.Equal(t, 25, report.Results[orchestrator.StateCompleted])
		assert.Contains(t, out.String(), "Submitted run 20 tasks")
		assert.Contains(t, out.String(), "Submitted 25 tasks in")
	})
}

func nopLogger() logger.Logger { return logger.NewNoOpLogger() }
